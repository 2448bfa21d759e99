// Package json provides a plugin wrapper for the JSON ledger.
package json

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/config"
	jsonwriter "github.com/ArionMiles/spesabot/pkg/writer/json"
)

// Plugin implements the SinkPlugin interface for JSON files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return jsonwriter.SinkName
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Keep expenses in a local JSON file"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// NewSink creates a new JSON writer instance.
func (p *Plugin) NewSink(_ context.Context, cfg *config.Config, _ *http.Client, logger *slog.Logger) (api.Sink, error) {
	if cfg.Files.JSONPath == "" {
		return nil, errors.New("JSON_PATH is required")
	}
	return jsonwriter.New(jsonwriter.Config{FilePath: cfg.Files.JSONPath}, logger)
}
