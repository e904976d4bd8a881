package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores catalog items in the relational database.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("catalog: db required")
	}
	return &PostgresRepository{db: db}
}

const itemColumns = `id, code, sku, name, description, price, tax_rate, type, stock, category, created_at`

func (r *PostgresRepository) Create(ctx context.Context, req *CreateItemRequest) (*Item, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	item := newItem(req)
	_, err := r.db.Exec(ctx, `
		INSERT INTO catalog_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.Code, item.SKU, item.Name, item.Description,
		item.Price, item.TaxRate, string(item.Type), item.Stock, item.Category, item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: insert item: %w", err)
	}
	return item, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get item: %w", err)
	}
	return item, nil
}

func (r *PostgresRepository) List(ctx context.Context, query string) ([]*Item, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM catalog_items
		WHERE name ILIKE $1 OR code LIKE $1 OR category ILIKE $1
		ORDER BY name ASC`, pattern)
	if err != nil {
		return nil, fmt.Errorf("catalog: list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	var typ string
	if err := row.Scan(
		&item.ID, &item.Code, &item.SKU, &item.Name, &item.Description,
		&item.Price, &item.TaxRate, &typ, &item.Stock, &item.Category, &item.CreatedAt,
	); err != nil {
		return nil, err
	}
	item.Type = ItemType(typ)
	return &item, nil
}
