package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Twitch rejects subscription secrets outside this range.
const (
	minSecretLength = 10
	maxSecretLength = 100
)

// Validate checks that cfg is complete enough to serve traffic.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", cfg.Server.Port)
	}
	if cfg.Server.MaxBodySize <= 0 {
		return errors.New("server.max_body_size must be positive")
	}
	if cfg.Server.MaxMessageAge < 0 {
		return errors.New("server.max_message_age must not be negative")
	}

	if err := checkResolved("eventsub.secret", cfg.EventSub.Secret); err != nil {
		return err
	}
	if cfg.EventSub.Secret == "" {
		return errors.New("eventsub.secret is required (set EVENTSUB_SECRET)")
	}
	if n := len(cfg.EventSub.Secret); n < minSecretLength || n > maxSecretLength {
		return fmt.Errorf("eventsub.secret must be %d-%d characters (got %d)", minSecretLength, maxSecretLength, n)
	}

	if err := checkResolved("api.secret", cfg.API.Secret); err != nil {
		return err
	}
	if cfg.API.Secret == "" {
		return errors.New("api.secret is required (set API_SECRET)")
	}

	if err := checkURL("downstream.api_url", cfg.Downstream.APIURL); err != nil {
		return err
	}
	if err := checkURL("downstream.processor_url", cfg.Downstream.ProcessorURL); err != nil {
		return err
	}
	if cfg.Downstream.LookupTimeout <= 0 {
		return errors.New("downstream.lookup_timeout must be positive")
	}
	if cfg.Downstream.SinkTimeout <= 0 {
		return errors.New("downstream.sink_timeout must be positive")
	}

	if cfg.EventSub.CallbackURL != "" {
		if err := checkURL("eventsub.callback_url", cfg.EventSub.CallbackURL); err != nil {
			return err
		}
	}
	if err := checkURL("twitch.helix_url", cfg.Twitch.HelixURL); err != nil {
		return err
	}
	if cfg.Twitch.Timeout <= 0 {
		return errors.New("twitch.timeout must be positive")
	}

	switch cfg.Ledger.Backend {
	case LedgerNone:
	case LedgerSQLite:
		if cfg.Ledger.Path == "" {
			return errors.New("ledger.path is required for the sqlite backend")
		}
	case LedgerRedis:
		if cfg.Ledger.RedisURL == "" {
			return errors.New("ledger.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be one of: none, sqlite, redis (got %q)", cfg.Ledger.Backend)
	}
	if cfg.Ledger.Backend != LedgerNone && cfg.Ledger.TTL <= 0 {
		return errors.New("ledger.ttl must be positive")
	}

	if cfg.API.EventsBuffer <= 0 {
		return errors.New("api.events_buffer must be positive")
	}
	if cfg.API.RegistrationRate <= 0 {
		return errors.New("api.registration_rate must be positive")
	}
	if cfg.API.RegistrationBurst < 1 {
		return errors.New("api.registration_burst must be at least 1")
	}
	if cfg.API.EventsKeepAlive <= 0 {
		return errors.New("api.events_keep_alive must be positive")
	}

	return nil
}

func checkResolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

func checkURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	if err := checkResolved(field, raw); err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL (got %q)", field, raw)
	}
	return nil
}
