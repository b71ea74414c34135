package authserver

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

// SQLiteStore keeps records in SQLite. Record documents are sealed with the
// store's data key when one is given.
type SQLiteStore struct {
	db  *sql.DB
	dek []byte

	mu sync.RWMutex
}

// NewSQLiteStore opens the database at path (":memory:" for a throwaway
// store). dek is optional; if set it must be box.KeySize bytes.
func NewSQLiteStore(path string, dek []byte) (*SQLiteStore, error) {
	if len(dek) != 0 && len(dek) != box.KeySize {
		return nil, fmt.Errorf("data key must be %d bytes", box.KeySize)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db, dek: box.Clone(dek)}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS logins (
		login_id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL DEFAULT '',
		pin2_id TEXT UNIQUE,
		record BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logins_parent ON logins(parent_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetLogin returns the record for loginID.
func (s *SQLiteStore) GetLogin(ctx context.Context, loginID string) (*Record, error) {
	return s.queryOne(ctx, `SELECT record FROM logins WHERE login_id = ?`, loginID)
}

// GetLoginByPin2ID returns the record whose PIN login handle is pin2ID.
func (s *SQLiteStore) GetLoginByPin2ID(ctx context.Context, pin2ID []byte) (*Record, error) {
	if len(pin2ID) == 0 {
		return nil, ErrRecordNotFound
	}
	return s.queryOne(ctx, `SELECT record FROM logins WHERE pin2_id = ?`, hex.EncodeToString(pin2ID))
}

// ListChildren returns the direct children of parentID, oldest first.
func (s *SQLiteStore) ListChildren(ctx context.Context, parentID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM logins
		WHERE parent_id = ?
		ORDER BY rowid
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := s.unseal(blob)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PutLogin inserts or replaces rec.
func (s *SQLiteStore) PutLogin(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.seal(rec)
	if err != nil {
		return err
	}

	var pin2ID any
	if handle := rec.pin2Handle(); handle != "" {
		pin2ID = handle
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO logins (login_id, parent_id, pin2_id, record, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(login_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			pin2_id = excluded.pin2_id,
			record = excluded.record,
			updated_at = excluded.updated_at
	`, rec.LoginID, rec.ParentID, pin2ID, blob, rec.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to store login: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, arg any) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get login: %w", err)
	}
	return s.unseal(blob)
}

func (s *SQLiteStore) seal(rec *Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	if len(s.dek) == 0 {
		return data, nil
	}
	sealed, err := box.Encrypt(data, s.dek)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt record: %w", err)
	}
	return json.Marshal(sealed)
}

func (s *SQLiteStore) unseal(blob []byte) (*Record, error) {
	data := blob
	if len(s.dek) != 0 {
		var sealed box.Box
		if err := json.Unmarshal(blob, &sealed); err != nil {
			return nil, fmt.Errorf("failed to parse sealed record: %w", err)
		}
		plain, err := box.Decrypt(&sealed, s.dek)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt record: %w", err)
		}
		data = plain
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}
