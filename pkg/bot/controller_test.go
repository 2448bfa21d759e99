package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/parser"
	"github.com/ArionMiles/spesabot/pkg/session"
)

type fakeMessenger struct {
	replies []string
	err     error
}

func (m *fakeMessenger) Reply(_ context.Context, _ MessageReceived, text string) error {
	m.replies = append(m.replies, text)
	return m.err
}

type fakeSink struct {
	accounts []api.Account
	expenses []api.Expense
	err      error
	panics   bool
}

func (s *fakeSink) Append(_ context.Context, account api.Account, expense api.Expense) error {
	if s.panics {
		panic("connection reset")
	}
	if s.err != nil {
		return &api.WriteError{Sink: "fake", Err: s.err}
	}
	s.accounts = append(s.accounts, account)
	s.expenses = append(s.expenses, expense)
	return nil
}

type fakeResolver map[string]api.Account

func (r fakeResolver) FindAccount(_ context.Context, phone string) (api.Account, error) {
	if phone == "broken" {
		return api.Account{}, api.ErrLookup
	}
	account, ok := r[phone]
	if !ok {
		return api.Account{}, api.ErrNotLinked
	}
	return account, nil
}

type fixture struct {
	controller *Controller
	messenger  *fakeMessenger
	sink       *fakeSink
	session    *session.Holder
	replies    Replies
}

func newFixture(t *testing.T, mode parser.Mode, resolver api.Resolver) *fixture {
	t.Helper()

	f := &fixture{
		messenger: &fakeMessenger{},
		sink:      &fakeSink{},
		session:   session.NewHolder(),
	}

	cfg := Config{
		Parser:    parser.New(parser.Config{Mode: mode}),
		Sink:      f.sink,
		Messenger: f.messenger,
		Session:   f.session,
	}
	if resolver != nil {
		cfg.Resolver = resolver
	}

	c, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	f.controller = c
	f.replies = DefaultReplies(mode, resolver != nil)
	return f
}

func message(text string) MessageReceived {
	return MessageReceived{
		ID:        "3EB0C767D26A1D2E",
		Sender:    "393471234567@s.whatsapp.net",
		Chat:      "393471234567@s.whatsapp.net",
		Text:      text,
		Timestamp: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestController_RecordsExpense(t *testing.T) {
	f := newFixture(t, parser.ModeWhitespace, nil)

	f.controller.Handle(context.Background(), message("15,50 Spesa cibo"))

	require.Len(t, f.sink.expenses, 1)
	got := f.sink.expenses[0]
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("15.50")))
	assert.Equal(t, "Spesa cibo", got.Category)
	assert.Equal(t, "2024-01-15", got.Date)
	assert.Equal(t, "393471234567", got.Sender)
	assert.Equal(t, api.Account{}, f.sink.accounts[0], "no resolver means an implicit account")

	require.Len(t, f.messenger.replies, 1)
	assert.Contains(t, f.messenger.replies[0], f.replies.Saved)
	assert.Contains(t, f.messenger.replies[0], "15.50")
}

func TestController_ZeroTimestampUsesToday(t *testing.T) {
	f := newFixture(t, parser.ModeWhitespace, nil)
	msg := message("4 Caffè")
	msg.Timestamp = time.Time{}

	before := time.Now().UTC().Format(api.DateLayout)
	f.controller.Handle(context.Background(), msg)
	after := time.Now().UTC().Format(api.DateLayout)

	require.Len(t, f.sink.expenses, 1)
	assert.Contains(t, []string{before, after}, f.sink.expenses[0].Date)
}

func TestController_ParseFailures(t *testing.T) {
	tests := []struct {
		name string
		mode parser.Mode
		text string
		want func(Replies) string
	}{
		{"empty", parser.ModeWhitespace, "", func(r Replies) string { return r.Usage }},
		{"too few fields", parser.ModeWhitespace, "15.50", func(r Replies) string { return r.Usage }},
		{"invalid amount", parser.ModeWhitespace, "abc Cibo", func(r Replies) string { return r.InvalidAmount }},
		{"delimited usage", parser.ModeDelimited3, "Cibo 25", func(r Replies) string { return r.Usage }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.mode, nil)

			f.controller.Handle(context.Background(), message(tc.text))

			assert.Empty(t, f.sink.expenses)
			require.Len(t, f.messenger.replies, 1)
			assert.Equal(t, tc.want(f.replies), f.messenger.replies[0])
		})
	}
}

func TestController_DelimitedUsageMentionsFormat(t *testing.T) {
	f := newFixture(t, parser.ModeDelimited3, nil)
	assert.Contains(t, f.replies.Usage, "Tipo;Categoria;Importo")
}

func TestController_ResolvesAccount(t *testing.T) {
	account := api.Account{ID: 7, Phone: "393471234567", Email: "mario@example.com"}
	f := newFixture(t, parser.ModeWhitespace, fakeResolver{"393471234567": account})

	f.controller.Handle(context.Background(), message("20 Benzina"))

	require.Len(t, f.sink.accounts, 1)
	assert.Equal(t, account, f.sink.accounts[0])
	require.Len(t, f.messenger.replies, 1)
	assert.Contains(t, f.messenger.replies[0], "sul tuo account")
}

func TestController_NotLinkedSkipsWrite(t *testing.T) {
	f := newFixture(t, parser.ModeWhitespace, fakeResolver{})

	f.controller.Handle(context.Background(), message("20 Benzina"))

	assert.Empty(t, f.sink.expenses)
	assert.Equal(t, []string{f.replies.NotLinked}, f.messenger.replies)
}

func TestController_LookupFailure(t *testing.T) {
	f := newFixture(t, parser.ModeWhitespace, fakeResolver{})
	msg := message("20 Benzina")
	msg.Sender = "broken@s.whatsapp.net"

	f.controller.Handle(context.Background(), msg)

	assert.Empty(t, f.sink.expenses)
	assert.Equal(t, []string{f.replies.WriteFailed}, f.messenger.replies)
}

func TestController_WriteFailure(t *testing.T) {
	f := newFixture(t, parser.ModeWhitespace, nil)
	f.sink.err = errors.New("connection refused")

	require.NotPanics(t, func() {
		f.controller.Handle(context.Background(), message("20 Benzina"))
	})

	assert.Equal(t, []string{f.replies.WriteFailed}, f.messenger.replies)
}

func TestController_SinkPanic(t *testing.T) {
	f := newFixture(t, parser.ModeWhitespace, nil)
	f.sink.panics = true

	require.NotPanics(t, func() {
		f.controller.Handle(context.Background(), message("20 Benzina"))
	})

	assert.Equal(t, []string{f.replies.WriteFailed}, f.messenger.replies)
}

func TestController_ReplyFailureIsLogged(t *testing.T) {
	f := newFixture(t, parser.ModeWhitespace, nil)
	f.messenger.err = errors.New("not connected")

	require.NotPanics(t, func() {
		f.controller.Handle(context.Background(), message("20 Benzina"))
	})
	assert.Len(t, f.sink.expenses, 1)
}

func TestController_Lifecycle(t *testing.T) {
	f := newFixture(t, parser.ModeWhitespace, nil)
	ctx := context.Background()

	f.controller.Handle(ctx, PairingCode{Code: "2@abc,def"})
	code, ok := f.session.PairingCode()
	assert.True(t, ok)
	assert.Equal(t, "2@abc,def", code)
	assert.Equal(t, session.PairingCodeIssued, f.session.State())

	f.controller.Handle(ctx, Authenticated{})
	_, ok = f.session.PairingCode()
	assert.False(t, ok, "code is invalidated after authentication")
	assert.Equal(t, session.Authenticated, f.session.State())

	f.controller.Handle(ctx, Ready{})
	assert.Equal(t, session.Ready, f.session.State())

	f.controller.Handle(ctx, Disconnected{Reason: "stream replaced"})
	assert.Equal(t, session.Disconnected, f.session.State())

	f.controller.Handle(ctx, LoggedOut{Reason: "device removed"})
	assert.Equal(t, session.Unpaired, f.session.State())

	assert.Empty(t, f.messenger.replies, "lifecycle events never produce replies")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Parser: parser.New(parser.Config{}), Sink: &fakeSink{}}, nil)
	assert.Error(t, err)
}
