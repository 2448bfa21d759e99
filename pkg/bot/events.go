package bot

import (
	"context"
	"time"
)

// Event is one notification from the messaging transport.
// The set is closed: PairingCode, Authenticated, Ready, Disconnected,
// LoggedOut and MessageReceived.
type Event interface {
	event()
}

// PairingCode is emitted whenever the transport needs the device to be linked.
type PairingCode struct {
	Code string
}

// Authenticated is emitted once the pairing code has been scanned.
type Authenticated struct{}

// Ready is emitted when the session is connected and able to exchange messages.
type Ready struct{}

// Disconnected is emitted when the connection drops. The transport reconnects on its own.
type Disconnected struct {
	Reason string
}

// LoggedOut is emitted when the linked device was removed; pairing starts over.
type LoggedOut struct {
	Reason string
}

// MessageReceived carries an inbound text message.
type MessageReceived struct {
	ID string
	// Sender is the transport address of the author, e.g. "39347xxxx@s.whatsapp.net".
	Sender string
	// Chat is the address replies are sent to.
	Chat      string
	Text      string
	Timestamp time.Time
}

func (PairingCode) event()     {}
func (Authenticated) event()   {}
func (Ready) event()           {}
func (Disconnected) event()    {}
func (LoggedOut) event()       {}
func (MessageReceived) event() {}

// Handler consumes transport events one at a time.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// Messenger sends a plain text reply to the author of msg.
type Messenger interface {
	Reply(ctx context.Context, msg MessageReceived, text string) error
}
