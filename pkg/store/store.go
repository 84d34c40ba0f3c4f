package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/crypto"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so packages built on
// top of Store (pkg/blockstore, pkg/index) can accept either a
// bare connection or an in-flight transaction without overloading every
// method.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns one repository's relational database connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database for repository id under
// cfg.DataDir, or an in-memory database if cfg.Temp is set.
func Open(cfg config.Config, id crypto.RepositoryID) (*Store, error) {
	dsn := dsnFor(cfg, id)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}

	if !cfg.Temp {
		// A single file-backed connection avoids SQLITE_BUSY from
		// concurrent writers by running every statement through that one
		// connection.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func dsnFor(cfg config.Config, id crypto.RepositoryID) string {
	if cfg.Temp {
		return ":memory:"
	}
	return "file:" + filepath.Join(cfg.DataDir, id.String()+".db")
}

// DB returns the underlying connection pool, for packages (pkg/index,
// pkg/blockstore) that issue their own queries against this
// repository's database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back if fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// SetMetadata stores value under key, overwriting any existing value.
func (s *Store) SetMetadata(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("store: set metadata %q: %w", key, err)
	}
	return nil
}

// GetMetadata returns the value stored under key, or (nil, false) if absent.
func (s *Store) GetMetadata(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get metadata %q: %w", key, err)
	}
	return value, true, nil
}
