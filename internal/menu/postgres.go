package menu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the menu tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS restaurant_info (
    id      INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    name    TEXT NOT NULL,
    address TEXT NOT NULL DEFAULT '',
    phone   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS menu_items (
    category    TEXT NOT NULL,
    position    INT NOT NULL,
    item_pos    INT NOT NULL,
    name        TEXT NOT NULL,
    price       NUMERIC NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    variants    JSONB NOT NULL DEFAULT '[]',
    addons      JSONB NOT NULL DEFAULT '[]',
    allergens   JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (category, name)
);
CREATE INDEX IF NOT EXISTS idx_menu_items_order ON menu_items(position, item_pos);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore loads and saves catalogs in a PostgreSQL database.
// Structured sub-fields (variants, addons, allergens) are serialised as JSONB.
//
// The store is a persistence backend, not a [Repository]: reads happen
// against the in-memory [Catalog] it loads, because the matcher walks the
// whole catalog every turn.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a [PostgresStore] using the given connection or
// pool. Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("menu: migrate: %w", err)
	}
	return nil
}

// Save replaces the stored catalog with the contents of file. The previous
// rows are deleted first so removed items do not linger.
func (s *PostgresStore) Save(ctx context.Context, mf *MenuFile) error {
	const infoQ = `
		INSERT INTO restaurant_info (id, name, address, phone)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name, address = EXCLUDED.address, phone = EXCLUDED.phone`
	if _, err := s.db.Exec(ctx, infoQ, mf.Restaurant.Name, mf.Restaurant.Address, mf.Restaurant.Phone); err != nil {
		return fmt.Errorf("menu: save restaurant info: %w", err)
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM menu_items`); err != nil {
		return fmt.Errorf("menu: clear items: %w", err)
	}

	const itemQ = `
		INSERT INTO menu_items
		    (category, position, item_pos, name, price, description, variants, addons, allergens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for ci, cat := range mf.Menu {
		for ii, item := range cat.Items {
			variants, err := json.Marshal(emptySlice(item.Variants))
			if err != nil {
				return fmt.Errorf("menu: marshal variants for %q: %w", item.Name, err)
			}
			addons, err := json.Marshal(emptySlice(item.Addons))
			if err != nil {
				return fmt.Errorf("menu: marshal addons for %q: %w", item.Name, err)
			}
			allergens, err := json.Marshal(emptySlice(item.Allergens))
			if err != nil {
				return fmt.Errorf("menu: marshal allergens for %q: %w", item.Name, err)
			}
			if _, err := s.db.Exec(ctx, itemQ,
				cat.Name, ci, ii, item.Name, item.Price, item.Description,
				variants, addons, allergens,
			); err != nil {
				return fmt.Errorf("menu: insert item %q: %w", item.Name, err)
			}
		}
	}
	return nil
}

// Load reads the stored catalog. Category and item order follow the
// position columns so match tie-breaking stays stable across restarts.
func (s *PostgresStore) Load(ctx context.Context) (*Catalog, error) {
	var info RestaurantInfo
	err := s.db.QueryRow(ctx, `SELECT name, address, phone FROM restaurant_info WHERE id = 1`).
		Scan(&info.Name, &info.Address, &info.Phone)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("menu: load restaurant info: %w", err)
	}

	const q = `
		SELECT category, name, price, description, variants, addons, allergens
		FROM menu_items
		ORDER BY position, item_pos`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("menu: load items: %w", err)
	}
	defer rows.Close()

	var categories []Category
	byName := map[string]int{}
	for rows.Next() {
		var (
			category  string
			item      Item
			variants  []byte
			addons    []byte
			allergens []byte
		)
		if err := rows.Scan(&category, &item.Name, &item.Price, &item.Description,
			&variants, &addons, &allergens); err != nil {
			return nil, fmt.Errorf("menu: scan item: %w", err)
		}
		if err := json.Unmarshal(variants, &item.Variants); err != nil {
			return nil, fmt.Errorf("menu: unmarshal variants for %q: %w", item.Name, err)
		}
		if err := json.Unmarshal(addons, &item.Addons); err != nil {
			return nil, fmt.Errorf("menu: unmarshal addons for %q: %w", item.Name, err)
		}
		if err := json.Unmarshal(allergens, &item.Allergens); err != nil {
			return nil, fmt.Errorf("menu: unmarshal allergens for %q: %w", item.Name, err)
		}

		idx, ok := byName[category]
		if !ok {
			idx = len(categories)
			byName[category] = idx
			categories = append(categories, Category{Name: category})
		}
		categories[idx].Items = append(categories[idx].Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("menu: iterate items: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("menu: database holds no catalog")
	}

	return NewCatalog(info, categories), nil
}

// emptySlice maps nil to an empty slice so JSONB columns store '[]' rather
// than 'null'.
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
