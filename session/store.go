package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/princinho/eldercarebackend/client"
)

// Snapshot is what survives a restart: the token and the profile it was
// issued with. Both are present or neither is.
type Snapshot struct {
	Token string
	User  *client.User
}

func (s Snapshot) Empty() bool {
	return s.Token == "" && s.User == nil
}

func (s Snapshot) complete() bool {
	return s.Token != "" && s.User != nil
}

type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

const (
	keyToken = "token"
	keyUser  = "user"
)

const schema = `
CREATE TABLE IF NOT EXISTS session (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteStore keeps the session in a small key/value table.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at dsn. ":memory:" works
// for tests.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// one connection, otherwise every ":memory:" connection is its own database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type kv struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	var rows []kv
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM session`); err != nil {
		return Snapshot{}, fmt.Errorf("load session: %w", err)
	}

	var snap Snapshot
	for _, row := range rows {
		switch row.Key {
		case keyToken:
			snap.Token = row.Value
		case keyUser:
			var u client.User
			if err := json.Unmarshal([]byte(row.Value), &u); err != nil {
				// unreadable profile counts as missing
				continue
			}
			snap.User = &u
		}
	}
	return snap, nil
}

// Save replaces the stored pair in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	if !snap.complete() {
		return errors.New("session snapshot needs both token and user")
	}
	userJSON, err := json.Marshal(snap.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	now := time.Now().UTC()
	for _, row := range []kv{{keyToken, snap.Token}, {keyUser, string(userJSON)}} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session (key, value, updated_at) VALUES (?, ?, ?)`,
			row.Key, row.Value, now); err != nil {
			return fmt.Errorf("save %s: %w", row.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

type MemoryStore struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySnapshot(m.snap), nil
}

func (m *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if !snap.complete() {
		return errors.New("session snapshot needs both token and user")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = copySnapshot(snap)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{}
	return nil
}

func copySnapshot(s Snapshot) Snapshot {
	out := Snapshot{Token: s.Token}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}
