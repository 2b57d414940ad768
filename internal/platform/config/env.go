// Package config loads service configuration from the environment. Settings
// are read from OFFERTORY_-prefixed variables declared as struct tags on each
// command's config type.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
