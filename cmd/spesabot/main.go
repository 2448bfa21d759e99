package main

import (
	"fmt"
	"os"

	"github.com/ArionMiles/spesabot/internal/plugins"
	"github.com/ArionMiles/spesabot/pkg/logging"
	csvplugin "github.com/ArionMiles/spesabot/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/spesabot/pkg/plugins/writers/json"
	postgresplugin "github.com/ArionMiles/spesabot/pkg/plugins/writers/postgres"
	sheetsplugin "github.com/ArionMiles/spesabot/pkg/plugins/writers/sheets"
)

const usage = `spesabot records expenses sent as WhatsApp messages.

Usage:
  spesabot [command]

Commands:
  run      Connect to WhatsApp and record expenses (default)
  status   Check configuration, ledger and WhatsApp pairing
  help     Show this message

Configuration is read from the environment and from .env when present.`

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	registry, err := newRegistry()
	if err != nil {
		logger.Error("failed to register plugins", "error", err)
		os.Exit(1)
	}

	switch cmd {
	case "run":
		err = runBot(logger, registry)
	case "status":
		err = runStatus(registry)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()
	for _, p := range []plugins.SinkPlugin{
		&postgresplugin.Plugin{},
		&sheetsplugin.Plugin{},
		&csvplugin.Plugin{},
		&jsonplugin.Plugin{},
	} {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
