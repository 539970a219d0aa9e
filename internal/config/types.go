package config

import "time"

// Config represents the complete eventsub-gw configuration. It is built once
// at startup and passed by value or pointer to constructors; nothing below
// cmd/ reads the environment directly.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Server     ServerConfig     `yaml:"server"`
	EventSub   EventSubConfig   `yaml:"eventsub"`
	Downstream DownstreamConfig `yaml:"downstream"`
	Twitch     TwitchConfig     `yaml:"twitch"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	API        APIConfig        `yaml:"api"`

	// SourceFile is the YAML file the config was read from, empty when the
	// configuration came from the environment only.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// ServerConfig defines the public HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	MaxBodySize     int64         `yaml:"max_body_size" env:"MAX_BODY_SIZE"`
	MaxMessageAge   time.Duration `yaml:"max_message_age" env:"MAX_MESSAGE_AGE"` // 0 disables the replay window
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EventSubConfig holds the webhook secret shared with Twitch.
type EventSubConfig struct {
	Secret      string `yaml:"secret" env:"EVENTSUB_SECRET"`
	CallbackURL string `yaml:"callback_url" env:"CALLBACK_URL"`
}

// DownstreamConfig points at the streamer API and the processing function.
type DownstreamConfig struct {
	APIURL        string        `yaml:"api_url" env:"API_URL"`
	ProcessorURL  string        `yaml:"processor_url" env:"SERVERLESS_PROCESSOR_URL"`
	LookupTimeout time.Duration `yaml:"lookup_timeout" env:"LOOKUP_TIMEOUT"`
	SinkTimeout   time.Duration `yaml:"sink_timeout" env:"SINK_TIMEOUT"`
}

// TwitchConfig holds Helix credentials for subscription registration.
type TwitchConfig struct {
	ClientID    string        `yaml:"client_id" env:"CLIENT_ID"`
	AccessToken string        `yaml:"access_token" env:"TWITCH_ACCESS_TOKEN"`
	HelixURL    string        `yaml:"helix_url" env:"HELIX_URL"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LedgerConfig selects the delivery ledger backend.
type LedgerConfig struct {
	Backend  string        `yaml:"backend" env:"LEDGER_BACKEND"` // none, sqlite, redis
	Path     string        `yaml:"path" env:"LEDGER_PATH"`
	RedisURL string        `yaml:"redis_url" env:"REDIS_URL"`
	TTL      time.Duration `yaml:"ttl" env:"LEDGER_TTL"`
}

// APIConfig defines the admin surface sharing the public listener.
type APIConfig struct {
	// Secret authenticates /newuser and /events and is sent to the streamer API.
	Secret            string  `yaml:"secret" env:"API_SECRET"`
	EventsBuffer      int     `yaml:"events_buffer"`
	RegistrationRate  float64 `yaml:"registration_rate"`
	RegistrationBurst int     `yaml:"registration_burst"`
	// EventsKeepAlive is how often idle /events streams get a comment line.
	EventsKeepAlive time.Duration `yaml:"events_keep_alive"`
}

// Ledger backends.
const (
	LedgerNone   = "none"
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "eventsub-gw",
			LogLevel: "info",
		},
		Server: ServerConfig{
			Port:            3000,
			MaxBodySize:     1 << 20,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Downstream: DownstreamConfig{
			LookupTimeout: 5 * time.Second,
			SinkTimeout:   5 * time.Second,
		},
		Twitch: TwitchConfig{
			HelixURL: "https://api.twitch.tv/helix",
			Timeout:  10 * time.Second,
		},
		Ledger: LedgerConfig{
			Backend: LedgerNone,
			Path:    "./data/ledger.db",
			TTL:     10 * time.Minute,
		},
		API: APIConfig{
			EventsBuffer:      256,
			RegistrationRate:  1,
			RegistrationBurst: 5,
			EventsKeepAlive:   15 * time.Second,
		},
	}
}

// RegistrationEnabled reports whether /newuser has what it needs to call Helix.
func (c *Config) RegistrationEnabled() bool {
	return c.Twitch.ClientID != "" && c.Twitch.AccessToken != "" && c.EventSub.CallbackURL != ""
}
