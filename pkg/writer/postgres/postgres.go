// Package postgres provides a PostgreSQL ledger sink and account resolver.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/spesabot/pkg/api"
)

//go:embed 001_create_movimenti.sql
var migrationSQL string

// SinkName identifies this sink in logs and write errors.
const SinkName = "postgres"

// Config holds the PostgreSQL writer configuration.
type Config struct {
	// URL is a libpq connection string or postgres:// URL.
	URL string
	// InsecureTLS keeps TLS on but skips certificate verification,
	// as required by hosted databases with self-signed certificates.
	InsecureTLS bool
	// Migrate runs the embedded schema on startup.
	Migrate bool

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
	// ConnectAttempts is how many times the initial ping is tried. Defaults to 5.
	ConnectAttempts uint
	// ConnectDelay is the base delay between ping attempts. Defaults to 2s.
	ConnectDelay time.Duration
}

// Writer appends expenses to the movimenti table and resolves accounts from users.
type Writer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to PostgreSQL and returns a Writer.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 4
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 5
	}
	if cfg.ConnectDelay == 0 {
		cfg.ConnectDelay = 2 * time.Second
	}

	poolConfig, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(cfg.ConnectAttempts),
		retry.Delay(cfg.ConnectDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("database not reachable, retrying", "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
		"insecure_tls", cfg.InsecureTLS,
	)

	w := &Writer{
		pool:   pool,
		logger: logger,
	}

	if cfg.Migrate {
		if err := w.runMigrations(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return w, nil
}

// ParseConfig builds the pool configuration for cfg.
func ParseConfig(cfg Config) (*pgxpool.Config, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	if cfg.MaxPoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	}
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	if cfg.InsecureTLS {
		if tlsConfig := poolConfig.ConnConfig.TLSConfig; tlsConfig != nil {
			tlsConfig.InsecureSkipVerify = true
			tlsConfig.VerifyPeerCertificate = nil
		}
		for _, fallback := range poolConfig.ConnConfig.Fallbacks {
			if fallback.TLSConfig != nil {
				fallback.TLSConfig.InsecureSkipVerify = true
				fallback.TLSConfig.VerifyPeerCertificate = nil
			}
		}
	}

	return poolConfig, nil
}

func (w *Writer) runMigrations(ctx context.Context) error {
	w.logger.Info("running database migrations")

	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	w.logger.Info("migrations completed successfully")
	return nil
}

// FindAccount returns the account whose phone number equals phone. A missing
// email is reported as an empty string.
func (w *Writer) FindAccount(ctx context.Context, phone string) (api.Account, error) {
	var account api.Account
	err := w.pool.QueryRow(ctx,
		`SELECT id, telefono, COALESCE(email, '') FROM users WHERE telefono = $1`,
		phone,
	).Scan(&account.ID, &account.Phone, &account.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.Account{}, api.ErrNotLinked
	}
	if err != nil {
		return api.Account{}, fmt.Errorf("%w: %w", api.ErrLookup, err)
	}
	return account, nil
}

// Append inserts one movimenti row for account.
func (w *Writer) Append(ctx context.Context, account api.Account, expense api.Expense) error {
	date, err := time.Parse(api.DateLayout, expense.Date)
	if err != nil {
		return &api.WriteError{Sink: SinkName, Err: fmt.Errorf("parsing date: %w", err)}
	}

	_, err = w.pool.Exec(ctx, `
		INSERT INTO movimenti (user_id, tipo, data, importo, categoria)
		VALUES ($1, $2, $3, $4, $5)
	`,
		account.ID,
		expense.Kind,
		date,
		expense.Amount,
		expense.Category,
	)
	if err != nil {
		return &api.WriteError{Sink: SinkName, Err: err}
	}

	w.logger.Debug("inserted expense",
		"user_id", account.ID,
		"amount", expense.Amount,
		"category", expense.Category,
		"message_id", expense.MessageID,
	)
	return nil
}

// Ping checks database connectivity.
func (w *Writer) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (w *Writer) Close() error {
	if w.pool != nil {
		w.pool.Close()
		w.logger.Info("closed PostgreSQL connection pool")
	}
	return nil
}
