package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// OrdersSchema is the SQL DDL for the orders table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const OrdersSchema = `
CREATE TABLE IF NOT EXISTS orders (
    order_id   TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    items      JSONB NOT NULL,
    subtotal   NUMERIC NOT NULL,
    total      NUMERIC NOT NULL,
    customer   JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore persists finalized orders in a PostgreSQL table, with line
// items and customer details serialised as JSONB.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store over db. Call Migrate before saving.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the orders table.
func (ps *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := ps.db.Exec(ctx, OrdersSchema); err != nil {
		return fmt.Errorf("orders: migrate: %w", err)
	}
	return nil
}

// SaveOrder implements Store.
func (ps *PostgresStore) SaveOrder(ctx context.Context, rec Record) error {
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("orders: marshal items: %w", err)
	}
	customer, err := json.Marshal(rec.Customer)
	if err != nil {
		return fmt.Errorf("orders: marshal customer: %w", err)
	}

	const q = `
		INSERT INTO orders (order_id, created_at, items, subtotal, total, customer)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := ps.db.Exec(ctx, q, rec.OrderID, rec.Timestamp, items, rec.Subtotal, rec.Total, customer); err != nil {
		return fmt.Errorf("orders: save %s: %w", rec.OrderID, err)
	}
	return nil
}

// RecentOrders returns the latest limit orders, newest first.
func (ps *PostgresStore) RecentOrders(ctx context.Context, limit int) ([]Record, error) {
	const q = `
		SELECT order_id, created_at, items, subtotal, total, customer
		FROM   orders
		ORDER  BY created_at DESC
		LIMIT  $1`
	rows, err := ps.db.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("orders: recent: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			rec      Record
			items    []byte
			customer []byte
		)
		if err := row.Scan(&rec.OrderID, &rec.Timestamp, &items, &rec.Subtotal, &rec.Total, &customer); err != nil {
			return Record{}, err
		}
		if err := json.Unmarshal(items, &rec.Items); err != nil {
			return Record{}, fmt.Errorf("decode items: %w", err)
		}
		if err := json.Unmarshal(customer, &rec.Customer); err != nil {
			return Record{}, fmt.Errorf("decode customer: %w", err)
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("orders: scan rows: %w", err)
	}
	return records, nil
}
