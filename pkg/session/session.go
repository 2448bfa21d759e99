// Package session holds the process-wide state of the messaging session.
package session

import "sync"

// State is the lifecycle stage of the messaging session.
type State int

// Session states in lifecycle order.
const (
	Unpaired State = iota
	PairingCodeIssued
	Authenticated
	Ready
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unpaired:
		return "unpaired"
	case PairingCodeIssued:
		return "pairing_code_issued"
	case Authenticated:
		return "authenticated"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Holder stores the current pairing code and session state.
// The bot controller is the only writer; HTTP handlers read.
type Holder struct {
	mu    sync.RWMutex
	code  string
	state State
}

// NewHolder returns a Holder in the Unpaired state.
func NewHolder() *Holder {
	return &Holder{}
}

// PairingCode returns the current pairing code and whether one is issued.
func (h *Holder) PairingCode() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.code, h.code != ""
}

// IssuePairingCode records a new pairing code, replacing any previous one.
func (h *Holder) IssuePairingCode(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.code = code
	h.state = PairingCodeIssued
}

// SetState moves to state. Leaving the pairing stage invalidates the code.
func (h *Holder) SetState(state State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	if state != PairingCodeIssued {
		h.code = ""
	}
}

// State returns the current session state.
func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}
