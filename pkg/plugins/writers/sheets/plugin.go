// Package sheets provides a plugin wrapper for the Google Sheets ledger.
package sheets

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/config"
	sheetswriter "github.com/ArionMiles/spesabot/pkg/writer/sheets"
)

// Plugin implements the SinkPlugin interface for Google Sheets.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return sheetswriter.SinkName
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Append expenses as rows of an existing Google Sheets spreadsheet"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{sheets.SpreadsheetsScope}
}

// NewSink creates a new Google Sheets writer.
func (p *Plugin) NewSink(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (api.Sink, error) {
	if httpClient == nil {
		return nil, errors.New("sheets sink requires an authorized http client")
	}
	if cfg.Sheets.SpreadsheetID == "" {
		return nil, errors.New("GSHEETS_ID is required")
	}

	return sheetswriter.New(ctx, httpClient, sheetswriter.Config{
		SpreadsheetID: cfg.Sheets.SpreadsheetID,
		Range:         cfg.Sheets.Range,
	}, logger)
}
