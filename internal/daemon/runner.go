// Package daemon provides the core daemon runner for the bot.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ArionMiles/spesabot/internal/plugins"
	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/bot"
	"github.com/ArionMiles/spesabot/pkg/client"
	"github.com/ArionMiles/spesabot/pkg/config"
	"github.com/ArionMiles/spesabot/pkg/parser"
	"github.com/ArionMiles/spesabot/pkg/server"
	"github.com/ArionMiles/spesabot/pkg/session"
	"github.com/ArionMiles/spesabot/pkg/whatsapp"
)

// Transport delivers chat events to a handler and sends replies.
type Transport interface {
	bot.Messenger
	Run(ctx context.Context, h bot.Handler) error
}

// TransportFactory opens the chat transport.
type TransportFactory func(ctx context.Context, cfg whatsapp.Config, logger *slog.Logger) (Transport, error)

// Runner manages the bot lifecycle.
type Runner struct {
	registry     *plugins.Registry
	newTransport TransportFactory
	logger       *slog.Logger
}

// New creates a new daemon runner using the WhatsApp transport.
func New(registry *plugins.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry: registry,
		newTransport: func(ctx context.Context, cfg whatsapp.Config, logger *slog.Logger) (Transport, error) {
			return whatsapp.New(ctx, cfg, logger)
		},
		logger: logger,
	}
}

// WithTransport replaces the chat transport.
func (r *Runner) WithTransport(factory TransportFactory) *Runner {
	r.newTransport = factory
	return r
}

// Run starts the bot with the given configuration.
// It blocks until the context is canceled or a component fails.
func (r *Runner) Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	r.logger.Info("starting spesabot",
		"sink", cfg.LedgerSink,
		"parse_mode", cfg.ParseMode,
		"resolve_users", cfg.ResolverEnabled(),
	)

	sink, err := r.createSink(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("creating sink: %w", err)
	}
	if closer, ok := sink.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				r.logger.Warn("error closing sink", "error", err)
			}
		}()
	}

	var resolver api.Resolver
	if cfg.ResolverEnabled() {
		res, ok := sink.(api.Resolver)
		if !ok {
			return fmt.Errorf("sink %q cannot resolve users", cfg.LedgerSink)
		}
		resolver = res
	}

	mode, err := parser.ParseMode(cfg.ParseMode)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	p := parser.New(parser.Config{Mode: mode, Kind: cfg.ExpenseKind, Location: loc})

	transport, err := r.newTransport(ctx, whatsapp.Config{
		StoreDialect: cfg.WhatsApp.StoreDialect,
		StoreDSN:     cfg.WhatsApp.StoreDSN,
		AllowGroups:  cfg.AllowGroups,
	}, r.logger.With("component", "whatsapp"))
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	sess := session.NewHolder()
	controller, err := bot.New(bot.Config{
		Parser:    p,
		Resolver:  resolver,
		Sink:      sink,
		Messenger: transport,
		Session:   sess,
	}, r.logger.With("component", "bot"))
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	srv := server.New(server.Config{
		Addr:          fmt.Sprintf(":%d", cfg.Port),
		AliveResponse: cfg.AliveResponse,
	}, sess, r.logger.With("component", "http"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		return transport.Run(ctx, controller)
	})

	r.logger.Info("daemon started", "port", cfg.Port)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	r.logger.Info("daemon stopped")
	return nil
}

func (r *Runner) createSink(ctx context.Context, cfg *config.Config) (api.Sink, error) {
	plugin, err := r.registry.Get(cfg.LedgerSink)
	if err != nil {
		return nil, err
	}

	var httpClient *http.Client
	if scopes := plugin.RequiredScopes(); len(scopes) > 0 {
		httpClient, err = client.NewServiceAccount(ctx, cfg.Sheets.CredentialsJSON, cfg.Sheets.CredentialsFile, scopes...)
		if err != nil {
			return nil, fmt.Errorf("creating google client: %w", err)
		}
	}

	return r.registry.Create(ctx, cfg.LedgerSink, cfg, httpClient, r.logger.With("component", "sink", "plugin", cfg.LedgerSink))
}
