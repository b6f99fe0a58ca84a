// Package consent parses consent service flags and launches the service.
package consent

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/pmyapp/accord/internal/platform/cmd"
	server "github.com/pmyapp/accord/internal/services/consent/app"
)

// Config holds consent command configuration.
type Config struct {
	HTTPAddr     string `env:"ACCORD_CONSENT_HTTP_ADDR" envDefault:"localhost:8090"`
	DBPath       string `env:"ACCORD_CONSENT_DB_PATH" envDefault:"consent.db"`
	DraftsDBPath string `env:"ACCORD_CONSENT_DRAFTS_DB_PATH" envDefault:"consent-drafts.db"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path for contracts")
	fs.StringVar(&cfg.DraftsDBPath, "drafts-db", cfg.DraftsDBPath, "bbolt database path for draft flow state")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the consent HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceConsent, func(ctx context.Context) error {
		srv, err := server.NewServer(server.Config{
			HTTPAddr:     cfg.HTTPAddr,
			DBPath:       cfg.DBPath,
			DraftsDBPath: cfg.DraftsDBPath,
		})
		if err != nil {
			return fmt.Errorf("init consent server: %w", err)
		}
		defer srv.Close()
		return srv.ListenAndServe(ctx)
	})
}
