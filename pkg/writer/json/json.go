// Package json implements a ledger sink that keeps expenses in a JSON file.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/spesabot/pkg/api"
)

// SinkName identifies this sink in logs and write errors.
const SinkName = "json"

// Entry is one expense as stored in the JSON ledger.
type Entry struct {
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	api.Expense
}

// Writer keeps every expense in a JSON array on disk.
type Writer struct {
	filePath string
	entries  []Entry
	mu       sync.Mutex
	logger   *slog.Logger
	now      func() time.Time
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON ledger.
	FilePath string
}

// New creates a new JSON writer, loading any existing ledger.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating json directory: %w", err)
		}
	}

	w := &Writer{
		filePath: cfg.FilePath,
		entries:  make([]Entry, 0),
		logger:   logger,
		now:      time.Now,
	}

	if err := w.loadExisting(); err != nil {
		return nil, fmt.Errorf("loading existing ledger: %w", err)
	}

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.entries))
	return w, nil
}

func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &w.entries)
}

// Append adds the expense and rewrites the file (JSON arrays cannot be appended in place).
func (w *Writer) Append(_ context.Context, _ api.Account, expense api.Expense) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := append(w.entries, Entry{
		ID:         uuid.NewString(),
		RecordedAt: w.now().UTC(),
		Expense:    expense,
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return &api.WriteError{Sink: SinkName, Err: fmt.Errorf("marshaling json: %w", err)}
	}

	tmp := w.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &api.WriteError{Sink: SinkName, Err: fmt.Errorf("writing json file: %w", err)}
	}
	if err := os.Rename(tmp, w.filePath); err != nil {
		return &api.WriteError{Sink: SinkName, Err: fmt.Errorf("replacing json file: %w", err)}
	}
	w.entries = entries

	w.logger.Debug("wrote expense to json",
		"total_count", len(w.entries),
		"message_id", expense.MessageID,
	)
	return nil
}

// Count returns the number of expenses in the ledger.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
