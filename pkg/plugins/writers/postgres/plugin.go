// Package postgres provides a plugin wrapper for the PostgreSQL ledger.
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/config"
	pgwriter "github.com/ArionMiles/spesabot/pkg/writer/postgres"
)

// Plugin implements the SinkPlugin interface for PostgreSQL.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return pgwriter.SinkName
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Record expenses in the movimenti table, attributed to the sender's account"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
// PostgreSQL doesn't require OAuth scopes.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// NewSink connects to the database. The returned writer also resolves senders.
// Note: httpClient is ignored as PostgreSQL doesn't need OAuth.
func (p *Plugin) NewSink(ctx context.Context, cfg *config.Config, _ *http.Client, logger *slog.Logger) (api.Sink, error) {
	if cfg.Postgres.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return pgwriter.New(ctx, pgwriter.Config{
		URL:         cfg.Postgres.URL,
		InsecureTLS: cfg.Postgres.InsecureTLS,
		Migrate:     cfg.MigrateEnabled(),
		MaxPoolSize: cfg.Postgres.MaxPoolSize,
	}, logger)
}
