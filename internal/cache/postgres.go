package cache

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores cache blobs in a single key/value table.
type PostgresBackend struct {
	Pool *pgxpool.Pool
}

const createCacheTable = `CREATE TABLE IF NOT EXISTS desk_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createCacheTable); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresBackend{Pool: pool}, nil
}

func (p *PostgresBackend) Shared() bool { return true }

func (p *PostgresBackend) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.Pool.QueryRow(ctx, `SELECT value FROM desk_cache WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMiss
	}
	return value, err
}

func (p *PostgresBackend) Set(ctx context.Context, key string, value []byte) error {
	return p.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO desk_cache (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, key, value)
		return err
	})
}

func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	_, err := p.Pool.Exec(ctx, `DELETE FROM desk_cache WHERE key = $1`, key)
	return err
}

func (p *PostgresBackend) Close() error {
	p.Pool.Close()
	return nil
}
