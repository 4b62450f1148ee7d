package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id                 TEXT PRIMARY KEY,
		code               TEXT NOT NULL UNIQUE,
		name               TEXT NOT NULL,
		category           TEXT NOT NULL,
		price              NUMERIC(14,2) NOT NULL CHECK (price >= 0),
		description        TEXT NOT NULL DEFAULT '',
		available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0),
		in_stock           BOOLEAN NOT NULL,
		version            BIGINT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              TEXT PRIMARY KEY,
		ref             TEXT NOT NULL,
		customer_name   TEXT NOT NULL,
		customer_phone  TEXT NOT NULL,
		customer_email  TEXT NOT NULL DEFAULT '',
		subtotal        NUMERIC(14,2) NOT NULL,
		shipping_fee    NUMERIC(14,2) NOT NULL CHECK (shipping_fee >= 0),
		discount        NUMERIC(14,2) NOT NULL CHECK (discount >= 0),
		total           NUMERIC(14,2) NOT NULL CHECK (total >= 0),
		status          TEXT NOT NULL CHECK (status IN ('pending','paid','shipped','delivered','cancelled')),
		stock_deducted  BOOLEAN NOT NULL DEFAULT FALSE,
		contact_message TEXT NOT NULL DEFAULT '',
		version         BIGINT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		CONSTRAINT orders_ref_key UNIQUE (ref)
	)`,
	`CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		title      TEXT NOT NULL,
		unit_price NUMERIC(14,2) NOT NULL CHECK (unit_price >= 0),
		qty        INTEGER NOT NULL CHECK (qty >= 1),
		PRIMARY KEY (order_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id             TEXT PRIMARY KEY,
		product_id     TEXT NOT NULL,
		order_ref      TEXT NOT NULL DEFAULT '',
		delta          INTEGER NOT NULL,
		reason         TEXT NOT NULL,
		note           TEXT NOT NULL DEFAULT '',
		quantity_after INTEGER NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS stock_movements_product_idx ON stock_movements (product_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id           TEXT PRIMARY KEY,
		ref          TEXT NOT NULL,
		first_name   TEXT NOT NULL,
		last_name    TEXT NOT NULL,
		email        TEXT NOT NULL,
		phone        TEXT NOT NULL,
		service      TEXT NOT NULL,
		date         TIMESTAMPTZ NOT NULL,
		slot         TEXT NOT NULL,
		contact_pref TEXT NOT NULL,
		notes        TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		CONSTRAINT appointments_ref_key UNIQUE (ref)
	)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
