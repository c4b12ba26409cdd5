// Package store provides Postgres-backed persistence for the mirror.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the pool surface the stores need. *pgxpool.Pool satisfies it, as do
// pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS vehicle_ranges (
	id            BIGSERIAL PRIMARY KEY,
	parent_id     BIGINT REFERENCES vehicle_ranges(id),
	year_min      SMALLINT NOT NULL,
	year_max      SMALLINT NOT NULL,
	price_min     BIGINT NOT NULL,
	price_max     BIGINT NOT NULL,
	count         INTEGER NOT NULL DEFAULT 0,
	is_completed  BOOLEAN NOT NULL DEFAULT FALSE,
	fetched_pages INTEGER NOT NULL DEFAULT 0,
	empty_entries INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (year_min, year_max, price_min, price_max)
);

CREATE TABLE IF NOT EXISTS sellers (
	id          BIGSERIAL PRIMARY KEY,
	customer_id TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT '',
	zip_code    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS seller_contacts (
	id           BIGSERIAL PRIMARY KEY,
	seller_id    BIGINT NOT NULL REFERENCES sellers(id),
	area_code    INTEGER NOT NULL,
	local_number TEXT NOT NULL,
	phone_type   TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (seller_id, area_code, local_number)
);

CREATE TABLE IF NOT EXISTS vehicles (
	id         BIGSERIAL PRIMARY KEY,
	vehicle_id TEXT NOT NULL UNIQUE,
	seller_id  BIGINT NOT NULL REFERENCES sellers(id),
	vin        TEXT NOT NULL DEFAULT '',
	url        TEXT,
	add_date   TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS vehicle_images (
	id         BIGSERIAL PRIMARY KEY,
	vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
	url        TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS params (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS param_values (
	id         BIGSERIAL PRIMARY KEY,
	vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
	param_id   BIGINT NOT NULL REFERENCES params(id),
	data       TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (vehicle_id, param_id)
);
`

// Migrate creates the mirror tables if they do not exist yet.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
