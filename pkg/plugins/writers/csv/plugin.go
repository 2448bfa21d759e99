// Package csv provides a plugin wrapper for the CSV ledger.
package csv

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/config"
	csvwriter "github.com/ArionMiles/spesabot/pkg/writer/csv"
)

// Plugin implements the SinkPlugin interface for CSV files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return csvwriter.SinkName
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Append expenses to a local CSV file"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	// CSV writer doesn't need OAuth scopes
	return nil
}

// NewSink creates a new CSV writer instance.
func (p *Plugin) NewSink(_ context.Context, cfg *config.Config, _ *http.Client, logger *slog.Logger) (api.Sink, error) {
	if cfg.Files.CSVPath == "" {
		return nil, errors.New("CSV_PATH is required")
	}
	return csvwriter.New(csvwriter.Config{FilePath: cfg.Files.CSVPath}, logger)
}
