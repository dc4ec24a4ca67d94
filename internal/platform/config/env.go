// Package config loads process configuration from OPENCONF_* environment
// variables into tagged structs.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from the process environment using `env` struct
// tags. Commands layer flag parsing on top of the values loaded here.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
