package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/spesabot/pkg/parser"
	"github.com/ArionMiles/spesabot/pkg/server"
)

// Ledger sink names accepted by LEDGER_SINK.
const (
	SinkPostgres = "postgres"
	SinkSheets   = "sheets"
	SinkCSV      = "csv"
	SinkJSON     = "json"
)

// Defaults applied by Load for unset variables.
const (
	DefaultPort          = 3000
	DefaultSheetsRange   = "Foglio1!A:E"
	DefaultCSVPath       = "data/ledger.csv"
	DefaultJSONPath      = "data/ledger.json"
	DefaultStoreDialect  = "sqlite"
	DefaultStoreDSN      = "file:data/whatsapp.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	DefaultAliveResponse = server.DefaultAliveResponse
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// Port is the HTTP port of the health and pairing server.
	// Environment variable: PORT
	Port int `koanf:"PORT"`

	// LedgerSink selects where expenses are written: postgres, sheets, csv or json.
	// Environment variable: LEDGER_SINK
	LedgerSink string `koanf:"LEDGER_SINK"`

	// ParseMode selects the message grammar: whitespace, delimited or delimited3.
	// Environment variable: PARSE_MODE
	ParseMode string `koanf:"PARSE_MODE"`

	// ExpenseKind is the kind label stored with each expense.
	// Environment variable: EXPENSE_KIND
	ExpenseKind string `koanf:"EXPENSE_KIND"`

	// Timezone is the IANA zone used to date incoming messages.
	// Environment variable: TIMEZONE
	Timezone string `koanf:"TIMEZONE"`

	// ResolveUsers maps senders to accounts before writing. Defaults to true
	// for the postgres sink and is not supported by the others.
	// Environment variable: RESOLVE_USERS
	ResolveUsers *bool `koanf:"RESOLVE_USERS"`

	// AllowGroups accepts commands sent in group chats.
	// Environment variable: ALLOW_GROUPS
	AllowGroups bool `koanf:"ALLOW_GROUPS"`

	// AliveResponse is the body of GET /.
	// Environment variable: ALIVE_RESPONSE
	AliveResponse string `koanf:"ALIVE_RESPONSE"`

	Postgres PostgresConfig `koanf:",squash"`
	Sheets   SheetsConfig   `koanf:",squash"`
	Files    FilesConfig    `koanf:",squash"`
	WhatsApp WhatsAppConfig `koanf:",squash"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	URL         string `koanf:"DATABASE_URL"`
	InsecureTLS bool   `koanf:"DATABASE_SSL_INSECURE"`
	Migrate     *bool  `koanf:"DATABASE_MIGRATE"`
	MaxPoolSize int    `koanf:"DATABASE_MAX_CONNS"`
}

// SheetsConfig holds Google Sheets configuration.
type SheetsConfig struct {
	// CredentialsJSON is an inline service account key.
	CredentialsJSON string `koanf:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	// CredentialsFile is a path to a service account key, used when CredentialsJSON is empty.
	CredentialsFile string `koanf:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	SpreadsheetID   string `koanf:"GSHEETS_ID"`
	Range           string `koanf:"GSHEETS_RANGE"`
}

// FilesConfig holds the paths of the local file ledgers.
type FilesConfig struct {
	CSVPath  string `koanf:"CSV_PATH"`
	JSONPath string `koanf:"JSON_PATH"`
}

// WhatsAppConfig holds the device session store configuration.
type WhatsAppConfig struct {
	// StoreDialect is "sqlite" or "postgres".
	StoreDialect string `koanf:"WHATSAPP_STORE_DIALECT"`
	StoreDSN     string `koanf:"WHATSAPP_STORE_DSN"`
}

// Load reads .env (if present) and the environment, applies defaults and validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	c.LedgerSink = strings.ToLower(strings.TrimSpace(c.LedgerSink))
	if c.LedgerSink == "" {
		c.LedgerSink = SinkPostgres
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.AliveResponse == "" {
		c.AliveResponse = DefaultAliveResponse
	}
	if c.ResolveUsers == nil {
		resolve := c.LedgerSink == SinkPostgres
		c.ResolveUsers = &resolve
	}
	if c.Postgres.Migrate == nil {
		migrate := true
		c.Postgres.Migrate = &migrate
	}
	if c.Sheets.Range == "" {
		c.Sheets.Range = DefaultSheetsRange
	}
	if c.Files.CSVPath == "" {
		c.Files.CSVPath = DefaultCSVPath
	}
	if c.Files.JSONPath == "" {
		c.Files.JSONPath = DefaultJSONPath
	}
	if c.WhatsApp.StoreDialect == "" {
		c.WhatsApp.StoreDialect = DefaultStoreDialect
	}
	if c.WhatsApp.StoreDSN == "" {
		c.WhatsApp.StoreDSN = DefaultStoreDSN
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if _, err := parser.ParseMode(c.ParseMode); err != nil {
		return fmt.Errorf("PARSE_MODE: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

	switch c.LedgerSink {
	case SinkPostgres:
		if c.Postgres.URL == "" {
			return errors.New("DATABASE_URL environment variable is required for the postgres sink")
		}
		if !c.ResolverEnabled() {
			return errors.New("the postgres sink needs RESOLVE_USERS to attribute expenses to accounts")
		}
	case SinkSheets:
		if c.Sheets.SpreadsheetID == "" {
			return errors.New("GSHEETS_ID environment variable is required for the sheets sink")
		}
		if c.Sheets.CredentialsJSON == "" && c.Sheets.CredentialsFile == "" {
			return errors.New("either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE is required for the sheets sink")
		}
	case SinkCSV, SinkJSON:
	default:
		return fmt.Errorf("LEDGER_SINK: unknown sink %q", c.LedgerSink)
	}

	if c.ResolverEnabled() && c.LedgerSink != SinkPostgres {
		return fmt.Errorf("RESOLVE_USERS requires the postgres sink, got %q", c.LedgerSink)
	}

	switch c.WhatsApp.StoreDialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("WHATSAPP_STORE_DIALECT: unsupported dialect %q", c.WhatsApp.StoreDialect)
	}

	return nil
}

// ResolverEnabled reports whether senders are resolved to accounts.
func (c *Config) ResolverEnabled() bool {
	return c.ResolveUsers != nil && *c.ResolveUsers
}

// MigrateEnabled reports whether the embedded schema is applied on startup.
func (c *Config) MigrateEnabled() bool {
	return c.Postgres.Migrate == nil || *c.Postgres.Migrate
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
