package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`

// brokers shares one Broker between every view opened on the same file in
// this process.
var brokers = struct {
	mu sync.Mutex
	m  map[string]*Broker
}{m: make(map[string]*Broker)}

func brokerFor(path string) *Broker {
	brokers.mu.Lock()
	defer brokers.mu.Unlock()
	b, ok := brokers.m[path]
	if !ok {
		b = NewBroker()
		brokers.m[path] = b
	}
	return b
}

// SQLite is a view of a key/value table in a SQLite file.
type SQLite struct {
	db     *sql.DB
	path   string
	broker *Broker
	id     uint64
}

// Open opens a new view of the store kept in the file at path, creating the
// file and table if needed.
func Open(path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("localstore: path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("localstore: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", abs+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("localstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: create schema: %w", err)
	}

	b := brokerFor(abs)
	return &SQLite{db: db, path: abs, broker: b, id: b.newView()}, nil
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore: get %q: %w", key, err)
	}
	return val, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key)
		DO UPDATE SET value = excluded.value,
		              updated_at = excluded.updated_at`, key, value)
	if err != nil {
		return fmt.Errorf("localstore: set %q: %w", key, err)
	}
	s.broker.publish(s.id, Change{Key: key, Value: append([]byte(nil), value...)})
	return nil
}

func (s *SQLite) Subscribe(key string, fn func(Change)) Subscription {
	return s.broker.subscribe(s.id, key, fn)
}
