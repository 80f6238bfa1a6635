package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abejo/dental-clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.PgQuerier(ctx, r.pool)
}

const itemCols = `id, name, category, stock, created_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.Category, &it.Stock, &it.CreatedAt)
	return &it, err
}

func (r *repoPG) Create(ctx context.Context, item *Item) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory (name, category, stock)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		item.Name, item.Category, item.Stock).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert inventory item: %w", err)
	}
	return nil
}

func (r *repoPG) AddStock(ctx context.Context, id int64, qty int64) (*Item, error) {
	it, err := scanItem(r.conn(ctx).QueryRow(ctx, `
		UPDATE inventory SET stock = stock + $1
		WHERE id = $2
		RETURNING `+itemCols, qty, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if db.IsOutOfRange(err) {
		return nil, ErrStockOverflow
	}
	if err != nil {
		return nil, fmt.Errorf("add stock: %w", err)
	}
	return it, nil
}

func (r *repoPG) List(ctx context.Context) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+` FROM inventory ORDER BY category, name, id`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
