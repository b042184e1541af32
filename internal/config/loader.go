package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "HERDWATCH_"
	envConfig  = "HERDWATCH_CONFIG"
	keyDelimit = "."
)

// Load builds a Config by layering, lowest precedence first:
//  1. defaults (New)
//  2. YAML file named by HERDWATCH_CONFIG, if set
//  3. HERDWATCH_* environment variables
//
// List values (alert_recipients, kafka_brokers) accept comma separated strings.
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(keyDelimit)

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// HERDWATCH_QUEUE_SIZE -> queue_size; underscores are kept to match koanf tags.
	envProvider := env.Provider(envPrefix, keyDelimit, func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	k.Delete("config")

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
