// Package bot turns inbound chat messages into ledger entries.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/parser"
	"github.com/ArionMiles/spesabot/pkg/session"
)

// Config holds the collaborators of a Controller.
type Config struct {
	Parser *parser.Parser
	// Resolver is optional. Without it every sender is accepted and the
	// sink receives a zero Account.
	Resolver  api.Resolver
	Sink      api.Sink
	Messenger Messenger
	Session   *session.Holder
	// Replies defaults to DefaultReplies for the parser mode.
	Replies *Replies
}

// Controller handles session lifecycle events and expense messages.
type Controller struct {
	parser    *parser.Parser
	resolver  api.Resolver
	sink      api.Sink
	messenger Messenger
	session   *session.Holder
	replies   Replies
	logger    *slog.Logger
}

// New creates a new Controller.
func New(cfg Config, logger *slog.Logger) (*Controller, error) {
	if cfg.Parser == nil {
		return nil, errors.New("parser is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if cfg.Messenger == nil {
		return nil, errors.New("messenger is required")
	}
	if cfg.Session == nil {
		cfg.Session = session.NewHolder()
	}
	if logger == nil {
		logger = slog.Default()
	}

	replies := DefaultReplies(cfg.Parser.Mode(), cfg.Resolver != nil)
	if cfg.Replies != nil {
		replies = *cfg.Replies
	}

	return &Controller{
		parser:    cfg.Parser,
		resolver:  cfg.Resolver,
		sink:      cfg.Sink,
		messenger: cfg.Messenger,
		session:   cfg.Session,
		replies:   replies,
		logger:    logger,
	}, nil
}

// Handle dispatches a single transport event.
func (c *Controller) Handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case PairingCode:
		c.session.IssuePairingCode(ev.Code)
		c.logger.Info("pairing code issued, open /qr to scan it")
	case Authenticated:
		c.session.SetState(session.Authenticated)
		c.logger.Info("session authenticated")
	case Ready:
		c.session.SetState(session.Ready)
		c.logger.Info("bot connected and ready")
	case Disconnected:
		c.session.SetState(session.Disconnected)
		c.logger.Warn("session disconnected", "reason", ev.Reason)
	case LoggedOut:
		c.session.SetState(session.Unpaired)
		c.logger.Warn("session logged out, pairing required", "reason", ev.Reason)
	case MessageReceived:
		c.handleMessage(ctx, ev)
	default:
		c.logger.Warn("ignoring unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) handleMessage(ctx context.Context, msg MessageReceived) {
	phone := api.NormalizePhone(msg.Sender)
	logger := c.logger.With("message_id", msg.ID, "phone", phone)
	logger.Info("message received", "text", msg.Text)

	reply := c.safeProcess(ctx, msg, phone, logger)

	if err := c.messenger.Reply(ctx, msg, reply); err != nil {
		logger.Error("failed to send reply", "error", err)
	}
}

// safeProcess turns a panic in a collaborator into the generic failure reply.
func (c *Controller) safeProcess(ctx context.Context, msg MessageReceived, phone string, logger *slog.Logger) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling message", "panic", r)
			reply = c.replies.WriteFailed
		}
	}()
	return c.process(ctx, msg, phone, logger)
}

// process runs parse, resolve and append, returning the reply for the sender.
func (c *Controller) process(ctx context.Context, msg MessageReceived, phone string, logger *slog.Logger) string {
	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	expense, err := c.parser.Parse(msg.Text, receivedAt)
	if err != nil {
		logger.Warn("invalid expense command", "error", err)
		if errors.Is(err, api.ErrInvalidAmount) {
			return c.replies.InvalidAmount
		}
		return c.replies.Usage
	}
	expense.Sender = phone
	expense.MessageID = msg.ID

	var account api.Account
	if c.resolver != nil {
		account, err = c.resolver.FindAccount(ctx, phone)
		if errors.Is(err, api.ErrNotLinked) {
			logger.Warn("sender not linked to any account")
			return c.replies.NotLinked
		}
		if err != nil {
			logger.Error("account lookup failed", "error", err)
			return c.replies.WriteFailed
		}
		logger = logger.With("user_id", account.ID)
	}

	if err := c.sink.Append(ctx, account, expense); err != nil {
		logger.Error("failed to record expense", "error", err)
		return c.replies.WriteFailed
	}

	logger.Info("expense recorded",
		"kind", expense.Kind,
		"amount", expense.Amount,
		"category", expense.Category,
		"email", account.Email,
	)
	return c.replies.confirm(expense)
}
