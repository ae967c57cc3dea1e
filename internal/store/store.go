// Package store keeps the console's local state in a SQLite database: the
// persisted session (sealed at rest) and per-surface view preferences.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/timetable-console/internal/session"
)

// ErrNotFound is returned when the requested state row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the local state database.
type Store struct {
	db  *sql.DB
	key [32]byte
}

// Open opens (creating if needed) the state database at dsn and derives the
// sealing key from secret. The key salt is generated on first open and kept
// in the database, so the same secret unseals across restarts.
func Open(dsn, secret string) (*Store, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("store: sealing secret is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open %s: %w", dsn, err)
	}
	// The state file is touched from one process at a time; a second
	// connection would only invite SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	salt, err := s.sealSalt(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.key = deriveKey(secret, salt)

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stored_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			sealed BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS view_prefs (
			scope TEXT PRIMARY KEY,
			anchor TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) sealSalt(ctx context.Context) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = 'seal_salt'`).Scan(&value)
	switch {
	case err == nil:
		salt, decodeErr := hex.DecodeString(value)
		if decodeErr != nil {
			return nil, fmt.Errorf("store: corrupt seal salt: %w", decodeErr)
		}
		return salt, nil
	case errors.Is(err, sql.ErrNoRows):
		salt, genErr := newSalt()
		if genErr != nil {
			return nil, genErr
		}
		if _, insErr := s.db.ExecContext(ctx,
			`INSERT INTO meta (name, value) VALUES ('seal_salt', ?)`, hex.EncodeToString(salt)); insErr != nil {
			return nil, fmt.Errorf("store: failed to persist seal salt: %w", insErr)
		}
		return salt, nil
	default:
		return nil, fmt.Errorf("store: failed to read seal salt: %w", err)
	}
}

// SaveSession seals and upserts the session snapshot. A zero snapshot deletes
// the stored row instead, so logout leaves no credentials behind.
func (s *Store) SaveSession(ctx context.Context, snap session.Snapshot) error {
	if snap == (session.Snapshot{}) {
		return s.ClearSession(ctx)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: failed to encode session: %w", err)
	}
	sealed, err := seal(s.key, payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stored_session (id, sealed, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at
	`, sealed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: failed to save session: %w", err)
	}
	return nil
}

// LoadSession unseals the stored session. ErrNotFound is returned both when
// no session was stored and when the sealed payload does not open with the
// configured secret; either way the caller starts logged out.
func (s *Store) LoadSession(ctx context.Context) (session.Snapshot, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT sealed FROM stored_session WHERE id = 1`).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("store: failed to load session: %w", err)
	}

	payload, err := open(s.key, sealed)
	if err != nil {
		return session.Snapshot{}, ErrNotFound
	}

	var snap session.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return session.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// ClearSession removes the stored session row.
func (s *Store) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM stored_session WHERE id = 1`); err != nil {
		return fmt.Errorf("store: failed to clear session: %w", err)
	}
	return nil
}

// SaveAnchor remembers the last viewed week anchor for a schedule surface.
func (s *Store) SaveAnchor(ctx context.Context, scope string, anchor time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO view_prefs (scope, anchor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (scope) DO UPDATE SET anchor = excluded.anchor, updated_at = excluded.updated_at
	`, scope, anchor.Format("2006-01-02"), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: failed to save view preference: %w", err)
	}
	return nil
}

// LoadAnchor returns the remembered week anchor for a schedule surface.
func (s *Store) LoadAnchor(ctx context.Context, scope string) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT anchor FROM view_prefs WHERE scope = ?`, scope).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: failed to load view preference: %w", err)
	}
	anchor, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return time.Time{}, ErrNotFound
	}
	return anchor, nil
}
