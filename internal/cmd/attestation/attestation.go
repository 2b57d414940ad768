// Package attestation parses attestation service flags and launches the service.
package attestation

import (
	"context"
	"flag"

	entrypoint "github.com/offertoryapp/offertory/internal/platform/cmd"
	server "github.com/offertoryapp/offertory/internal/services/attestation/app"
)

// Config holds attestation command configuration.
type Config struct {
	Port int `env:"OFFERTORY_ATTESTATION_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The attestation HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the attestation HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAttestation, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
