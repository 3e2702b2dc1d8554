package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"wabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *sqliteStore) EnsureSettings(ctx context.Context, defaults Settings) (Settings, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(id, is_active, message, phone, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		SettingsID, defaults.IsActive, defaults.Message, nullPhone(defaults.Phone), now(),
	)
	if err != nil {
		return Settings{}, err
	}
	return s.GetSettings(ctx)
}

func (s *sqliteStore) GetSettings(ctx context.Context) (Settings, error) {
	var (
		out   Settings
		phone sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT is_active, message, phone FROM settings WHERE id = ?`, SettingsID,
	).Scan(&out.IsActive, &out.Message, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, err
	}
	if phone.Valid {
		v := phone.String
		out.Phone = &v
	}
	return out, nil
}

func (s *sqliteStore) UpdateSettings(ctx context.Context, patch SettingsPatch) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	if patch.Message != nil {
		sets = append(sets, "message = ?")
		args = append(args, *patch.Message)
	}
	if patch.PhoneSet {
		sets = append(sets, "phone = ?")
		args = append(args, nullPhone(patch.Phone))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), SettingsID)

	res, err := s.db.ExecContext(ctx, `UPDATE settings SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SaveCredentials(ctx context.Context, sessionID string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, data, updated_at) VALUES(?,?,?)
		 ON CONFLICT(session_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		sessionID, blob, now(),
	)
	return err
}

func (s *sqliteStore) LoadCredentials(ctx context.Context, sessionID string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE session_id = ?`, sessionID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *sqliteStore) PurgeCredentials(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, action, session, detail, ok, err) VALUES(?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Action, nullStr(e.Session), nullStr(e.Detail), e.OK, nullStr(e.Error),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullPhone(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
