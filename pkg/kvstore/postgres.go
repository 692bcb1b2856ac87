package kvstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const postgresCreateTable = `CREATE TABLE IF NOT EXISTS board_kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the Postgres database at dsn and makes sure
// the board_kv table exists.
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return nil, errors.New("Postgres DSN should not be empty")
	}

	cfg, err := pgxpool.ParseConfig(dsn)

	if err != nil {
		return nil, errors.Wrap(err, "Error while parsing the Postgres DSN")
	}

	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, cfg)

	if err != nil {
		return nil, errors.Wrap(err, "Error while connecting to Postgres")
	}

	if _, err := pool.Exec(ctx, postgresCreateTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "Error while creating the board_kv table")
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.pool.QueryRow(ctx, `SELECT value FROM board_kv WHERE key = $1`, key).Scan(&value)

	if err == pgx.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, errors.Wrapf(err, "Error while reading key %s", key)
	}

	return value, true, nil
}

func (s *postgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO board_kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)

	return errors.Wrapf(err, "Error while writing key %s", key)
}

func (s *postgresStore) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM board_kv WHERE key = $1`, key)

	return errors.Wrapf(err, "Error while removing key %s", key)
}

func (s *postgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM board_kv ORDER BY key COLLATE "C"`)

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

func (s *postgresStore) Close() error {
	s.pool.Close()

	return nil
}
