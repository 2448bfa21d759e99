// Package api defines the core interfaces and data structures for spesabot.
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultKind is the kind label recorded for every expense unless configured otherwise.
const DefaultKind = "Spesa"

// DateLayout is the ISO calendar date format used for Expense.Date.
const DateLayout = "2006-01-02"

// Expense holds one parsed expense command.
type Expense struct {
	Kind     string          `json:"kind"`
	Date     string          `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	// Sender is the normalized phone number of the author.
	Sender string `json:"sender,omitempty"`
	// MessageID is the transport message ID, used only for log correlation.
	MessageID string `json:"-"`
}

// Account is a registered user of the companion app.
type Account struct {
	ID    int64
	Phone string
	Email string
}

// Sink persists a single expense to a ledger.
// Implementations return a *WriteError on failure and never deduplicate:
// appending the same expense twice produces two rows.
type Sink interface {
	Append(ctx context.Context, account Account, expense Expense) error
}

// Resolver maps a normalized phone number to an account.
// It returns ErrNotLinked when no account uses the phone number.
type Resolver interface {
	FindAccount(ctx context.Context, phone string) (Account, error)
}

// Parse failures. All are user input errors answered with a usage hint.
var (
	ErrEmptyMessage  = errors.New("empty message")
	ErrTooFewFields  = errors.New("too few fields")
	ErrInvalidAmount = errors.New("invalid amount")
)

// ErrNotLinked is returned by a Resolver when the phone has no account.
var ErrNotLinked = errors.New("phone not linked to any account")

// ErrLookup wraps account directory failures other than ErrNotLinked.
var ErrLookup = errors.New("account lookup failed")

// WriteError reports a failed ledger write.
type WriteError struct {
	Sink string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s write: %v", e.Sink, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// NormalizePhone strips the transport domain from a sender address,
// e.g. "39347xxxx@s.whatsapp.net" becomes "39347xxxx".
func NormalizePhone(address string) string {
	phone, _, _ := strings.Cut(address, "@")
	return phone
}
