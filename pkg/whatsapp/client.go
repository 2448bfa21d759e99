// Package whatsapp connects the bot to WhatsApp through whatsmeow.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/ArionMiles/spesabot/pkg/bot"
	"github.com/ArionMiles/spesabot/pkg/logging"
)

// ErrNotConnected is returned by Reply while no session is connected.
var ErrNotConnected = errors.New("whatsapp client not connected")

// Config holds the transport configuration.
type Config struct {
	// StoreDialect is the session store driver: "sqlite" or "postgres".
	StoreDialect string
	// StoreDSN is the session store connection string.
	StoreDSN string
	// AllowGroups delivers group chat messages to the handler.
	AllowGroups bool
}

// Client is a WhatsApp session that emits bot events and sends replies.
type Client struct {
	container   *sqlstore.Container
	allowGroups bool
	logger      *slog.Logger
	waLogger    waLog.Logger

	mu sync.RWMutex
	wa *whatsmeow.Client
}

var _ bot.Messenger = (*Client)(nil)

// New opens the session store. Call Run to connect.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	container, err := openStore(ctx, cfg, logging.NewWALogger(logger, "whatsmeow/store"))
	if err != nil {
		return nil, err
	}

	return &Client{
		container:   container,
		allowGroups: cfg.AllowGroups,
		logger:      logger,
		waLogger:    logging.NewWALogger(logger, "whatsmeow"),
	}, nil
}

// Paired reports whether the session store holds a linked device, and its address.
func Paired(ctx context.Context, cfg Config) (bool, string, error) {
	container, err := openStore(ctx, cfg, waLog.Noop)
	if err != nil {
		return false, "", err
	}
	defer container.Close()

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return false, "", fmt.Errorf("loading device: %w", err)
	}
	if device.ID == nil {
		return false, "", nil
	}
	return true, device.ID.String(), nil
}

func openStore(ctx context.Context, cfg Config, log waLog.Logger) (*sqlstore.Container, error) {
	if cfg.StoreDialect == "sqlite" {
		if dir := sqliteDir(cfg.StoreDSN); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("creating session store directory: %w", err)
			}
		}
	}

	container, err := sqlstore.New(ctx, cfg.StoreDialect, cfg.StoreDSN, log)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return container, nil
}

// sqliteDir returns the directory of a file DSN such as "file:data/wa.db?_pragma=...".
func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// Run connects and delivers events to h until ctx is cancelled.
// A logged out device or an expired pairing starts a new pairing.
func (c *Client) Run(ctx context.Context, h bot.Handler) error {
	defer c.container.Close()

	for {
		device, err := c.container.GetFirstDevice(ctx)
		if err != nil {
			return fmt.Errorf("loading device: %w", err)
		}

		wa := whatsmeow.NewClient(device, c.waLogger)
		restart := make(chan struct{}, 1)
		wa.AddEventHandler(c.eventHandler(ctx, h, restart))

		c.mu.Lock()
		c.wa = wa
		c.mu.Unlock()

		if err := c.connect(ctx, wa, h, restart); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			c.logger.Info("disconnecting from whatsapp")
			wa.Disconnect()
			return nil
		case <-restart:
			wa.Disconnect()
			c.logger.Info("pairing required, starting over")
		}

		if err := awaitUnpaired(ctx, c.container.GetFirstDevice, unpairAttempts, unpairDelay); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("stored device not yet removed, reconnecting anyway", "error", err)
		}
	}
}

const (
	unpairAttempts = 10
	unpairDelay    = 300 * time.Millisecond
)

var errStillPaired = errors.New("device still registered in session store")

// awaitUnpaired waits until the store no longer holds a linked device.
// whatsmeow reports a logout before it has deleted the device keys.
func awaitUnpaired(ctx context.Context, load func(context.Context) (*store.Device, error), attempts uint, delay time.Duration) error {
	return retry.Do(
		func() error {
			device, err := load(ctx)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("loading device: %w", err))
			}
			if device.ID != nil {
				return errStillPaired
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) connect(ctx context.Context, wa *whatsmeow.Client, h bot.Handler, restart chan<- struct{}) error {
	if wa.Store.ID != nil {
		c.logger.Info("connecting with stored session", "jid", wa.Store.ID.String())
		if err := wa.Connect(); err != nil {
			return fmt.Errorf("connecting to whatsapp: %w", err)
		}
		return nil
	}

	qrChan, err := wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("requesting pairing channel: %w", err)
	}
	if err := wa.Connect(); err != nil {
		return fmt.Errorf("connecting to whatsapp: %w", err)
	}

	go func() {
		for item := range qrChan {
			switch item.Event {
			case whatsmeow.QRChannelEventCode:
				h.Handle(ctx, bot.PairingCode{Code: item.Code})
			case whatsmeow.QRChannelSuccess.Event:
				c.logger.Debug("pairing channel closed after success")
			case whatsmeow.QRChannelTimeout.Event:
				c.logger.Warn("pairing code expired without being scanned")
				signal(restart)
			default:
				c.logger.Error("pairing failed", "event", item.Event, "error", item.Error)
				signal(restart)
			}
		}
	}()
	return nil
}

func (c *Client) eventHandler(ctx context.Context, h bot.Handler, restart chan<- struct{}) func(any) {
	return func(evt any) {
		ev, dropped := translate(evt, c.allowGroups)
		if dropped != "" {
			if msg, ok := evt.(*events.Message); ok {
				c.logger.Debug("ignoring message",
					"reason", dropped,
					"message_id", msg.Info.ID,
					"chat", msg.Info.Chat.String(),
				)
			}
			return
		}
		if ev == nil {
			return
		}
		h.Handle(ctx, ev)
		if _, loggedOut := ev.(bot.LoggedOut); loggedOut {
			signal(restart)
		}
	}
}

func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Reasons a message is not delivered to the handler.
const (
	dropFromMe     = "sent by this device"
	dropBroadcast  = "status broadcast"
	dropGroup      = "group chat"
	dropNoContent  = "empty payload"
	dropNonContent = "protocol message"
)

// translate maps a whatsmeow event to a bot event. Events the bot does not
// act on yield a nil event; messages held back yield the reason instead.
func translate(evt any, allowGroups bool) (bot.Event, string) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		return bot.Authenticated{}, ""
	case *events.Connected:
		return bot.Ready{}, ""
	case *events.Disconnected:
		return bot.Disconnected{Reason: "connection lost"}, ""
	case *events.StreamReplaced:
		return bot.Disconnected{Reason: "stream replaced by another client"}, ""
	case *events.LoggedOut:
		return bot.LoggedOut{Reason: e.Reason.String()}, ""
	case *events.Message:
		return incoming(e, allowGroups)
	default:
		return nil, ""
	}
}

func incoming(e *events.Message, allowGroups bool) (bot.Event, string) {
	info := e.Info
	switch {
	case info.IsFromMe:
		return nil, dropFromMe
	case info.Chat.Server == types.BroadcastServer:
		return nil, dropBroadcast
	case info.IsGroup && !allowGroups:
		return nil, dropGroup
	case e.Message == nil:
		return nil, dropNoContent
	}

	text, ok := messageText(e.Message)
	if !ok {
		return nil, dropNonContent
	}

	sender := info.Sender.ToNonAD()
	if sender.Server == types.HiddenUserServer && !info.SenderAlt.IsEmpty() {
		sender = info.SenderAlt.ToNonAD()
	}

	return bot.MessageReceived{
		ID:        info.ID,
		Sender:    sender.String(),
		Chat:      info.Chat.String(),
		Text:      text,
		Timestamp: info.Timestamp,
	}, ""
}

// messageText returns the text a user wrote: the body of text messages or the
// caption of media. Other user content (stickers, voice notes, locations)
// yields an empty text. Reactions, edits and other protocol traffic report false.
func messageText(m *waE2E.Message) (string, bool) {
	switch {
	case m.Conversation != nil:
		return m.GetConversation(), true
	case m.ExtendedTextMessage != nil:
		return m.GetExtendedTextMessage().GetText(), true
	case m.ImageMessage != nil:
		return m.GetImageMessage().GetCaption(), true
	case m.VideoMessage != nil:
		return m.GetVideoMessage().GetCaption(), true
	case m.DocumentMessage != nil:
		return m.GetDocumentMessage().GetCaption(), true
	case m.StickerMessage != nil,
		m.AudioMessage != nil,
		m.ContactMessage != nil,
		m.ContactsArrayMessage != nil,
		m.LocationMessage != nil,
		m.LiveLocationMessage != nil,
		m.PollCreationMessage != nil:
		return "", true
	default:
		return "", false
	}
}

// Reply sends text to the chat of msg, quoting it.
func (c *Client) Reply(ctx context.Context, msg bot.MessageReceived, text string) error {
	c.mu.RLock()
	wa := c.wa
	c.mu.RUnlock()
	if wa == nil || !wa.IsConnected() {
		return ErrNotConnected
	}

	chat, err := types.ParseJID(msg.Chat)
	if err != nil {
		return fmt.Errorf("parsing chat address %q: %w", msg.Chat, err)
	}

	if _, err := wa.SendMessage(ctx, chat, quotedReply(msg, text)); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

func quotedReply(msg bot.MessageReceived, text string) *waE2E.Message {
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String(msg.ID),
				Participant:   proto.String(msg.Sender),
				QuotedMessage: &waE2E.Message{Conversation: proto.String(msg.Text)},
			},
		},
	}
}
