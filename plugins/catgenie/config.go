package catgenie

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/catgenie/internal/config"
)

// Config defines runtime configuration for the CatGenie client and coordinator.
type Config struct {
	Name           string
	RefreshToken   string
	BaseURL        string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	RatePerMinute  int
	DeviceIDs      []string
}

func ConfigFromFile(cfg *config.CatGenieConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("catgenie config is required")
	}

	token := strings.TrimSpace(cfg.RefreshToken)
	if token == "" {
		return Config{}, fmt.Errorf("catgenie refresh_token is required")
	}

	out := Config{
		Name:           strings.TrimSpace(cfg.Name),
		RefreshToken:   token,
		BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		RatePerMinute:  cfg.RatePerMinute,
	}
	for _, id := range cfg.DeviceIDs {
		if id = strings.TrimSpace(id); id != "" {
			out.DeviceIDs = append(out.DeviceIDs, id)
		}
	}
	return out.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = config.DefaultBaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = config.DefaultRequestTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = config.DefaultPollInterval
	}
	c.PollInterval = config.ClampPollInterval(c.PollInterval)
	return c
}
