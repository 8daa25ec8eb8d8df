package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	price_cents BIGINT NOT NULL CHECK (price_cents >= 0)
);

CREATE TABLE IF NOT EXISTS product_stock (
	product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	size       TEXT NOT NULL,
	quantity   INTEGER NOT NULL CHECK (quantity >= 0),
	PRIMARY KEY (product_id, size)
);

CREATE TABLE IF NOT EXISTS coupons (
	id                 TEXT PRIMARY KEY,
	code               TEXT NOT NULL UNIQUE,
	discount_type      TEXT NOT NULL,
	discount_value     DOUBLE PRECISION NOT NULL,
	expiry_date        TIMESTAMPTZ NOT NULL,
	min_purchase_cents BIGINT NOT NULL DEFAULT 0,
	usage_limit        INTEGER NOT NULL DEFAULT 1,
	times_used         INTEGER NOT NULL DEFAULT 0,
	is_active          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	items             JSONB NOT NULL,
	total_cents       BIGINT NOT NULL,
	discount_cents    BIGINT NOT NULL DEFAULT 0,
	coupon_applied    JSONB,
	status            TEXT NOT NULL,
	contact           TEXT NOT NULL,
	shipping_address  JSONB NOT NULL,
	whatsapp_notified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	version           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC);
`

// Connect opens a pooled connection and verifies it.
func Connect(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
