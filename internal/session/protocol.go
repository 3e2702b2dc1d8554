package session

import "context"

// EventKind identifies a protocol client event.
type EventKind int

const (
	EventPairingCode EventKind = iota + 1
	EventConnectionOpen
	EventConnectionClosed
	EventCredentialsUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventPairingCode:
		return "pairing-code"
	case EventConnectionOpen:
		return "connection-open"
	case EventConnectionClosed:
		return "connection-closed"
	case EventCredentialsUpdated:
		return "credentials-updated"
	default:
		return "unknown"
	}
}

// Close reason codes carried by EventConnectionClosed.
const (
	ReasonNone = 0
	// ReasonLoggedOut is the terminal status: the remote side revoked the session.
	ReasonLoggedOut = 401
)

// Event is emitted by a protocol client.
type Event struct {
	Kind EventKind
	// Code is the pairing code (EventPairingCode).
	Code string
	// SelfID is the session's own account identity (EventConnectionOpen),
	// possibly carrying a device suffix, e.g. "15551234567:12@s.whatsapp.net".
	SelfID string
	// Reason is the close status (EventConnectionClosed); ReasonNone if unknown.
	Reason int
	// Credentials is the opaque blob to persist (EventCredentialsUpdated).
	Credentials []byte
}

// EventSink receives protocol events. It may be called from any goroutine.
type EventSink func(Event)

// AuthState is what a client needs to resume a session.
// Nil Credentials means the client must pair from scratch.
type AuthState struct {
	SessionID   string
	Credentials []byte
}

// Connector creates protocol clients.
type Connector interface {
	Initialize(ctx context.Context, auth AuthState, sink EventSink) (Client, error)
}

// Client is a live protocol session handle.
type Client interface {
	Send(ctx context.Context, to, text string) error
	Logout(ctx context.Context) error
	// Close drops the connection without revoking the session.
	Close()
}
