// Package parser turns message text into expenses.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/spesabot/pkg/api"
)

// Mode selects the input grammar.
type Mode string

// Supported grammars.
const (
	// ModeWhitespace parses "<amount> <category words...>".
	ModeWhitespace Mode = "whitespace"
	// ModeDelimited parses "<amount>;<category>".
	ModeDelimited Mode = "delimited"
	// ModeDelimited3 parses "<kind>;<category>;<amount>".
	ModeDelimited3 Mode = "delimited3"
)

const separator = ";"

var (
	nonAmountChars = regexp.MustCompile(`[^\d.]`)
	amountPrefix   = regexp.MustCompile(`^\d*(?:\.\d*)?`)
)

// ParseMode converts a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeWhitespace:
		return ModeWhitespace, nil
	case ModeDelimited:
		return ModeDelimited, nil
	case ModeDelimited3:
		return ModeDelimited3, nil
	default:
		return "", fmt.Errorf("unknown parse mode %q", s)
	}
}

// Usage returns the command format expected in the given mode.
func (m Mode) Usage() string {
	switch m {
	case ModeDelimited:
		return "Importo;Categoria"
	case ModeDelimited3:
		return "Tipo;Categoria;Importo"
	default:
		return "Importo Categoria"
	}
}

// Config holds configuration for the Parser.
type Config struct {
	Mode Mode
	// Kind is the label recorded when the grammar carries no kind.
	// Defaults to api.DefaultKind.
	Kind string
	// Location sets the calendar used for the receipt date. Defaults to UTC.
	Location *time.Location
}

// Parser parses expense commands.
type Parser struct {
	mode     Mode
	kind     string
	location *time.Location
}

// New creates a new Parser.
func New(cfg Config) *Parser {
	if cfg.Mode == "" {
		cfg.Mode = ModeWhitespace
	}
	if cfg.Kind == "" {
		cfg.Kind = api.DefaultKind
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Parser{
		mode:     cfg.Mode,
		kind:     cfg.Kind,
		location: cfg.Location,
	}
}

// Mode returns the grammar the parser was built with.
func (p *Parser) Mode() Mode {
	return p.mode
}

// Parse extracts an expense from text received at receivedAt.
// Errors are api.ErrEmptyMessage, api.ErrTooFewFields or api.ErrInvalidAmount.
func (p *Parser) Parse(text string, receivedAt time.Time) (api.Expense, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return api.Expense{}, api.ErrEmptyMessage
	}

	var (
		kind      = p.kind
		rawAmount string
		category  string
	)

	switch p.mode {
	case ModeDelimited:
		fields := strings.SplitN(text, separator, 2)
		if len(fields) < 2 {
			return api.Expense{}, api.ErrTooFewFields
		}
		rawAmount = strings.TrimSpace(fields[0])
		category = strings.TrimSpace(fields[1])

	case ModeDelimited3:
		fields := strings.Split(text, separator)
		if len(fields) < 3 {
			return api.Expense{}, api.ErrTooFewFields
		}
		last := len(fields) - 1
		if k := strings.TrimSpace(fields[0]); k != "" {
			kind = k
		}
		category = strings.TrimSpace(strings.Join(fields[1:last], separator))
		rawAmount = strings.TrimSpace(fields[last])

	default:
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return api.Expense{}, api.ErrTooFewFields
		}
		rawAmount = fields[0]
		category = strings.Join(fields[1:], " ")
	}

	if category == "" {
		return api.Expense{}, api.ErrTooFewFields
	}

	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return api.Expense{}, err
	}

	return api.Expense{
		Kind:     kind,
		Date:     receivedAt.In(p.location).Format(api.DateLayout),
		Amount:   amount,
		Category: category,
	}, nil
}

// ParseAmount normalizes a user supplied amount such as "15,50" or "€12.3".
// The first comma is read as the decimal separator, every other character that
// is not a digit or a period is dropped, and the longest leading decimal number
// is parsed. Input without digits yields api.ErrInvalidAmount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.Replace(raw, ",", ".", 1)
	s = nonAmountChars.ReplaceAllString(s, "")
	s = strings.TrimSuffix(amountPrefix.FindString(s), ".")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", api.ErrInvalidAmount, raw)
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q: %v", api.ErrInvalidAmount, raw, err)
	}
	return amount, nil
}
