package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ArionMiles/spesabot/internal/plugins"
	"github.com/ArionMiles/spesabot/pkg/client"
	"github.com/ArionMiles/spesabot/pkg/config"
	"github.com/ArionMiles/spesabot/pkg/parser"
	sheetsplugin "github.com/ArionMiles/spesabot/pkg/plugins/writers/sheets"
	"github.com/ArionMiles/spesabot/pkg/whatsapp"
	pgwriter "github.com/ArionMiles/spesabot/pkg/writer/postgres"
	sheetswriter "github.com/ArionMiles/spesabot/pkg/writer/sheets"
)

const checkTimeout = 20 * time.Second

// runStatus checks the configuration, the ledger backend and the WhatsApp pairing.
func runStatus(registry *plugins.Registry) error {
	fmt.Println("=== Spesabot Status ===")
	fmt.Println()

	allGood := true

	fmt.Print("Configuration: ")
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		printFinalStatus(false)
		return nil
	}
	mode, _ := parser.ParseMode(cfg.ParseMode)
	fmt.Printf("✓ sink=%s, format %q, timezone %s\n", cfg.LedgerSink, mode.Usage(), cfg.Timezone)

	fmt.Print("Sink plugin: ")
	if plugin, err := registry.Get(cfg.LedgerSink); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Printf("✓ %s\n", plugin.Description())
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	switch cfg.LedgerSink {
	case config.SinkPostgres:
		checkPostgres(ctx, &cfg, &allGood)
	case config.SinkSheets:
		checkSheets(ctx, &cfg, &allGood)
	case config.SinkCSV:
		checkFile(cfg.Files.CSVPath)
	case config.SinkJSON:
		checkFile(cfg.Files.JSONPath)
	}

	checkPairing(ctx, &cfg, &allGood)

	printFinalStatus(allGood)
	return nil
}

func checkPostgres(ctx context.Context, cfg *config.Config, allGood *bool) {
	fmt.Print("PostgreSQL: ")
	w, err := pgwriter.New(ctx, pgwriter.Config{
		URL:             cfg.Postgres.URL,
		InsecureTLS:     cfg.Postgres.InsecureTLS,
		ConnectAttempts: 1,
	}, discardLogger())
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	defer w.Close()

	if err := w.Ping(ctx); err != nil {
		fmt.Printf("✗ ping failed: %v\n", err)
		*allGood = false
		return
	}
	fmt.Println("✓ Connected")
}

func checkSheets(ctx context.Context, cfg *config.Config, allGood *bool) {
	keyJSON := []byte(cfg.Sheets.CredentialsJSON)
	if len(keyJSON) == 0 {
		b, err := os.ReadFile(cfg.Sheets.CredentialsFile)
		if err != nil {
			fmt.Printf("Service account: ✗ %v\n", err)
			*allGood = false
			return
		}
		keyJSON = b
	}

	email, err := client.ServiceAccountEmail(keyJSON)
	if err != nil {
		fmt.Printf("Service account: ✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Printf("Service account: ✓ %s\n", email)

	fmt.Print("Spreadsheet: ")
	httpClient, err := client.NewFromJSON(ctx, keyJSON, sheetsScopes()...)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	w, err := sheetswriter.New(ctx, httpClient, sheetswriter.Config{
		SpreadsheetID:  cfg.Sheets.SpreadsheetID,
		Range:          cfg.Sheets.Range,
		LookupAttempts: 1,
	}, discardLogger())
	if err != nil {
		fmt.Printf("✗ %v (is it shared with %s?)\n", err, email)
		*allGood = false
		return
	}
	fmt.Printf("✓ %s\n", w.SpreadsheetID())
}

func checkFile(path string) {
	fmt.Printf("Ledger file (%s): ", path)
	if info, err := os.Stat(path); err == nil {
		fmt.Printf("✓ %d bytes\n", info.Size())
	} else {
		fmt.Println("⚠ Not found (created on first run)")
	}
}

func checkPairing(ctx context.Context, cfg *config.Config, allGood *bool) {
	fmt.Print("WhatsApp session: ")
	paired, jid, err := whatsapp.Paired(ctx, whatsapp.Config{
		StoreDialect: cfg.WhatsApp.StoreDialect,
		StoreDSN:     cfg.WhatsApp.StoreDSN,
	})
	switch {
	case err != nil:
		fmt.Printf("✗ %v\n", err)
		*allGood = false
	case paired:
		fmt.Printf("✓ Paired as %s\n", jid)
	default:
		fmt.Printf("⚠ Not paired (run 'spesabot run' and open http://localhost:%d/qr)\n", cfg.Port)
	}
}

func printFinalStatus(allGood bool) {
	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
		fmt.Println()
		fmt.Println("Run 'spesabot run' to start recording expenses.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'spesabot status' again.")
	}
}

func sheetsScopes() []string {
	return (&sheetsplugin.Plugin{}).RequiredScopes()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
