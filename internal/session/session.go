package session

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store persists session flags in a local sqlite file. It replaces the
// ambient process-wide login flag with an explicit injected dependency.
type Store struct {
	db *sql.DB
}

const loggedInKey = "logged_in"

// Open creates or opens the flag store at path.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	// single writer; sqlite supports only one at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping session store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS session_flags (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_flags (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_flags WHERE key = $1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SetLoggedIn(ctx context.Context, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return s.Set(ctx, loggedInKey, val)
}

func (s *Store) LoggedIn(ctx context.Context) (bool, error) {
	v, ok, err := s.Get(ctx, loggedInKey)
	if err != nil || !ok {
		return false, err
	}
	return v == "1", nil
}

func (s *Store) Close() error { return s.db.Close() }
