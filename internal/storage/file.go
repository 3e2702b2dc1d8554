package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wabot/pkg/logx"
)

// fileStore is the database-free backend.
//
// Files:
//   - <prefix>.settings.json          (singleton settings, rewritten atomically)
//   - <prefix>.sessions/<id>.json     (one credential blob per session id)
//   - <prefix>.audit.jsonl            (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	settingsPath string
	sessionsDir  string
	auditFile    *os.File
}

type credentialRecord struct {
	SessionID string    `json:"session_id"`
	Data      string    `json:"data"` // base64
	UpdatedAt time.Time `json:"updated_at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	sessionsDir := prefix + ".sessions"
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		return nil, err
	}
	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		log:          log,
		settingsPath: prefix + ".settings.json",
		sessionsDir:  sessionsDir,
		auditFile:    af,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) EnsureSettings(ctx context.Context, defaults Settings) (Settings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.readSettingsLocked()
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Settings{}, err
	}
	if err := writeJSONAtomic(s.settingsPath, defaults); err != nil {
		return Settings{}, err
	}
	return defaults, nil
}

func (s *fileStore) GetSettings(ctx context.Context) (Settings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSettingsLocked()
}

func (s *fileStore) UpdateSettings(ctx context.Context, patch SettingsPatch) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.readSettingsLocked()
	if err != nil {
		return err
	}
	patch.apply(&cur)
	return writeJSONAtomic(s.settingsPath, cur)
}

func (s *fileStore) readSettingsLocked() (Settings, error) {
	b, err := os.ReadFile(s.settingsPath)
	if errors.Is(err, os.ErrNotExist) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, err
	}
	var out Settings
	if err := json.Unmarshal(b, &out); err != nil {
		return Settings{}, err
	}
	return out, nil
}

func (s *fileStore) sessionPath(sessionID string) string {
	// Session ids come from config; keep them inside the sessions dir.
	return filepath.Join(s.sessionsDir, filepath.Base(sessionID)+".json")
}

func (s *fileStore) SaveCredentials(ctx context.Context, sessionID string, blob []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.sessionsDir, 0o700); err != nil {
		return err
	}
	return writeJSONAtomic(s.sessionPath(sessionID), credentialRecord{
		SessionID: sessionID,
		Data:      base64.StdEncoding.EncodeToString(blob),
		UpdatedAt: time.Now().UTC(),
	})
}

func (s *fileStore) LoadCredentials(ctx context.Context, sessionID string) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.sessionPath(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec credentialRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(rec.Data)
}

func (s *fileStore) PurgeCredentials(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.sessionsDir); err != nil {
		return err
	}
	return os.MkdirAll(s.sessionsDir, 0o700)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

// writeJSONAtomic writes v to a temp file and renames it over path.
func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
