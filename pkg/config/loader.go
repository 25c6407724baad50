package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into the provided struct using its
// `env` and `envDefault` tags. Slices are split on commas.
func Load(cfg any) error {
	return LoadWithEnvironment(cfg, nil)
}

// LoadWithEnvironment parses cfg from the given variables instead of the
// process environment. A nil map reads the process environment.
func LoadWithEnvironment(cfg any, vars map[string]string) error {
	opts := env.Options{}
	if vars != nil {
		opts.Environment = vars
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
