// Package sheets implements a ledger sink that appends expenses to Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/spesabot/pkg/api"
)

// SinkName identifies this sink in logs and write errors.
const SinkName = "sheets"

// DefaultRange is the append target used when Config.Range is empty.
const DefaultRange = "Foglio1!A:E"

// Writer appends one row per expense to a Google Sheet.
type Writer struct {
	client        *sheets.Service
	spreadsheetID string
	writeRange    string
	logger        *slog.Logger
}

// Config holds configuration for the Sheets writer.
type Config struct {
	// SpreadsheetID is the ID of an existing spreadsheet.
	SpreadsheetID string
	// Range is the A1 range rows are appended after, e.g. "Spese!A:E".
	Range string
	// Endpoint overrides the Sheets API base URL.
	Endpoint string
	// LookupAttempts bounds retries of the startup lookup on HTTP 429. Defaults to 3.
	LookupAttempts uint
	// LookupDelay is the delay between startup lookup attempts. Defaults to 60s.
	LookupDelay time.Duration
}

// New creates a new Sheets writer and checks the spreadsheet is reachable.
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if cfg.Range == "" {
		cfg.Range = DefaultRange
	}
	if cfg.LookupAttempts == 0 {
		cfg.LookupAttempts = 3
	}
	if cfg.LookupDelay == 0 {
		cfg.LookupDelay = 60 * time.Second
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	w := &Writer{
		client:        client,
		spreadsheetID: cfg.SpreadsheetID,
		writeRange:    cfg.Range,
		logger:        logger,
	}

	title, err := w.lookup(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("looking up spreadsheet: %w", err)
	}

	logger.Info("sheets writer initialized",
		"spreadsheet_id", cfg.SpreadsheetID,
		"title", title,
		"range", cfg.Range,
	)

	return w, nil
}

// lookup fetches the spreadsheet title, retrying when rate limited.
func (w *Writer) lookup(ctx context.Context, cfg Config) (string, error) {
	var title string
	err := retry.Do(
		func() error {
			spreadsheet, err := w.client.Spreadsheets.Get(w.spreadsheetID).
				Fields("spreadsheetId", "properties.title").
				Context(ctx).
				Do()
			if err != nil {
				return err
			}
			if spreadsheet.Properties != nil {
				title = spreadsheet.Properties.Title
			}
			return nil
		},
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			if isRateLimited(err) {
				w.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(cfg.LookupAttempts),
		retry.Delay(cfg.LookupDelay),
		retry.LastErrorOnly(true),
	)
	return title, err
}

// Append adds one row after the existing data in the configured range.
// INSERT_ROWS guarantees rows already in the sheet are never overwritten.
func (w *Writer) Append(ctx context.Context, _ api.Account, expense api.Expense) error {
	row := &sheets.ValueRange{
		Values: [][]any{{
			expense.Date,
			expense.Kind,
			expense.Amount.InexactFloat64(),
			expense.Category,
			expense.Sender,
		}},
	}

	resp, err := w.client.Spreadsheets.Values.Append(w.spreadsheetID, w.writeRange, row).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return &api.WriteError{Sink: SinkName, Err: err}
	}

	updatedRange := ""
	if resp.Updates != nil {
		updatedRange = resp.Updates.UpdatedRange
	}
	w.logger.Debug("appended expense row",
		"range", updatedRange,
		"amount", expense.Amount,
		"category", expense.Category,
		"message_id", expense.MessageID,
	)
	return nil
}

// SpreadsheetID returns the ID of the spreadsheet being written to.
func (w *Writer) SpreadsheetID() string {
	return w.spreadsheetID
}

func isRateLimited(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}
