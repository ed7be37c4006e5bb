// Package postgres implements repositories.Registry on PostgreSQL via the
// pgx stdlib driver. Schema is ensured at boot; all statements go through a
// querier resolved from context so repository calls participate in a
// transaction opened by RunInTx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sunpeak-solar/api/internal/repositories"
)

// Registry implements repositories.Registry against a *sql.DB.
type Registry struct {
	db *sql.DB
}

// Open connects to the database, verifies connectivity, and ensures the schema.
func Open(ctx context.Context, dsn string) (*Registry, error) {
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	reg := &Registry{db: db}
	if err := reg.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}
	return reg, nil
}

// NewRegistry wraps an existing connection pool without touching the schema.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("postgres: not connected")
	}
	return r.db.PingContext(ctx)
}

// Products implements repositories.Registry.
func (r *Registry) Products() repositories.ProductRepository { return &productRepository{reg: r} }

// Orders implements repositories.Registry.
func (r *Registry) Orders() repositories.OrderRepository { return &orderRepository{reg: r} }

// Inventory implements repositories.Registry.
func (r *Registry) Inventory() repositories.InventoryRepository { return &inventoryRepository{reg: r} }

// Warehouses implements repositories.Registry.
func (r *Registry) Warehouses() repositories.WarehouseRepository { return &warehouseRepository{reg: r} }

// Contacts implements repositories.Registry.
func (r *Registry) Contacts() repositories.ContactRepository { return &contactRepository{reg: r} }

type txContextKey struct{}

// RunInTx executes fn inside a single database transaction. Repository calls
// made with the derived context share that transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repositories.NewUnavailable("postgres.tx.begin", err)
	}

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return repositories.NewUnavailable("postgres.tx.commit", err)
	}
	return nil
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Registry) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

func (r *Registry) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			sku TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			tax_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_bundle BOOLEAN NOT NULL DEFAULT FALSE,
			bundle_pricing_type TEXT NOT NULL DEFAULT 'calculated',
			bundle_discount_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS bundle_components (
			bundle_product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			component_product_id TEXT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bundle_product_id, component_product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS warehouses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			postal_code TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			contact_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			total DOUBLE PRECISION NOT NULL DEFAULT 0,
			order_date TIMESTAMPTZ NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			warehouse_id TEXT NOT NULL DEFAULT '',
			is_bundle_component BOOLEAN NOT NULL DEFAULT FALSE,
			bundle_product_id TEXT NOT NULL DEFAULT '',
			bundle_product_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			warehouse_id TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			min_quantity INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (product_id, warehouse_id)
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_adjustments (
			id TEXT PRIMARY KEY,
			inventory_id TEXT NOT NULL REFERENCES inventory(id),
			delta INTEGER NOT NULL,
			reason TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
