package webhook

import (
	"fmt"

	"github.com/mmattdonk/solrock-eventsub/internal/config"
)

// FromGlobalConfig converts the service configuration into the endpoint's
// Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	if cfg.EventSub.Secret == "" {
		return Config{}, fmt.Errorf("eventsub secret is not configured")
	}

	maxBodySize := cfg.Server.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	return Config{
		Secret:        []byte(cfg.EventSub.Secret),
		MaxBodySize:   maxBodySize,
		MaxMessageAge: cfg.Server.MaxMessageAge,
	}, nil
}
