package kvstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteCreateTable = `CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating it if needed) the SQLite database at path.
func NewSQLiteStore(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("SQLite path should not be empty")
	}

	dbPath, err := filepath.Abs(path)

	if err != nil {
		return nil, errors.Wrap(err, "Error while resolving the SQLite path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "Error while creating the SQLite directory")
	}

	db, err := sql.Open("sqlite3", dbPath)

	if err != nil {
		return nil, errors.Wrap(err, "Error while opening the SQLite database")
	}

	// A single connection serializes writers, SQLite locks the whole file
	// anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteCreateTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Error while creating the kv table")
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, errors.Wrapf(err, "Error while reading key %s", key)
	}

	return value, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)

	return errors.Wrapf(err, "Error while writing key %s", key)
}

func (s *sqliteStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)

	return errors.Wrapf(err, "Error while removing key %s", key)
}

func (s *sqliteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)

	if err != nil {
		return nil, errors.Wrap(err, "Error while listing keys")
	}

	defer rows.Close()

	keys := []string{}

	for rows.Next() {
		var key string

		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "Error while scanning key")
		}

		keys = append(keys, key)
	}

	return keys, errors.Wrap(rows.Err(), "Error while iterating keys")
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
