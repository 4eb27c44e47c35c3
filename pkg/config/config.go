// Package config loads the server's runtime configuration from the
// environment: a database connection URL and a listen address, both
// required.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config is the server's full runtime configuration. No other runtime
// configuration exists.
type Config struct {
	DatabaseURL string
	ListenAddr  string
}

// Load reads DATABASE_URL and LISTEN_ADDR from the environment. Missing
// either one is a fatal bootstrap error.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{
		DatabaseURL: k.String("database_url"),
		ListenAddr:  k.String("listen_addr"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("config: LISTEN_ADDR is required")
	}

	return cfg, nil
}
