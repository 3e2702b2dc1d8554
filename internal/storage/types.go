package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the settings row (or a credential blob) is absent.
	ErrNotFound = errors.New("storage: not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: closed")
)

// SettingsID is the fixed primary key of the singleton settings row.
const SettingsID = 1

// Settings is the singleton settings record.
type Settings struct {
	IsActive bool    `json:"isActive"`
	Message  string  `json:"message"`
	Phone    *string `json:"phone"`
}

// SettingsPatch updates only the fields it names.
type SettingsPatch struct {
	IsActive *bool
	Message  *string
	// PhoneSet marks Phone as part of the patch; a nil Phone clears it.
	PhoneSet bool
	Phone    *string
}

func (p SettingsPatch) apply(s *Settings) {
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	if p.Message != nil {
		s.Message = *p.Message
	}
	if p.PhoneSet {
		if p.Phone == nil {
			s.Phone = nil
		} else {
			v := *p.Phone
			s.Phone = &v
		}
	}
}

// AuditEntry records one lifecycle or operator action.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Action  string    `json:"action"`
	Session string    `json:"session,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
}

// Config configures storage.
//
// Driver values: "sqlite" (default when empty) or "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SettingsStore holds the singleton settings row.
type SettingsStore interface {
	// EnsureSettings creates the row with defaults if it does not exist and
	// returns the current value.
	EnsureSettings(ctx context.Context, defaults Settings) (Settings, error)
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, patch SettingsPatch) error
}

// CredentialStore holds opaque session credential blobs keyed by session id.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, sessionID string, blob []byte) error
	// LoadCredentials returns ErrNotFound when nothing is stored for sessionID.
	LoadCredentials(ctx context.Context, sessionID string) ([]byte, error)
	// PurgeCredentials removes every stored credential.
	PurgeCredentials(ctx context.Context) error
}

// Store is the full persistence API.
type Store interface {
	SettingsStore
	CredentialStore
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}
