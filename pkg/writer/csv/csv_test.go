package csv

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/spesabot/pkg/api"
)

func TestWriter_AppendKeepsExistingRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger", "spese.csv")

	expense := api.Expense{
		Kind:     api.DefaultKind,
		Date:     "2024-01-15",
		Amount:   decimal.RequireFromString("15.5"),
		Category: "Spesa cibo",
		Sender:   "393471234567",
	}

	// Two writer lifetimes: the second must append, not rewrite.
	for i := 0; i < 2; i++ {
		w, err := New(Config{FilePath: path}, nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := w.Append(context.Background(), api.Account{}, expense); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading ledger: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	if records[0][0] != "Date" {
		t.Errorf("header: got %v", records[0])
	}
	want := []string{"2024-01-15", "Spesa", "15.50", "Spesa cibo", "393471234567"}
	for i, v := range want {
		if records[2][i] != v {
			t.Errorf("field %d: got %q, want %q", i, records[2][i], v)
		}
	}
}
