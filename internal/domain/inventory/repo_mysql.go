package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abejo/dental-clinic/internal/platform/db"
)

type repoMySQL struct{ db *sql.DB }

func NewRepoMySQL(sqlDB *sql.DB) Repository { return &repoMySQL{db: sqlDB} }

func (r *repoMySQL) conn(ctx context.Context) db.SQLQuerier {
	return db.SQLQuerierFrom(ctx, r.db)
}

func (r *repoMySQL) get(ctx context.Context, id int64) (*Item, error) {
	var it Item
	err := r.conn(ctx).QueryRowContext(ctx, `SELECT `+itemCols+` FROM inventory WHERE id = ?`, id).
		Scan(&it.ID, &it.Name, &it.Category, &it.Stock, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return &it, nil
}

func (r *repoMySQL) Create(ctx context.Context, item *Item) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`INSERT INTO inventory (name, category, stock) VALUES (?, ?, ?)`,
		item.Name, item.Category, item.Stock)
	if err != nil {
		return fmt.Errorf("insert inventory item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert inventory item: %w", err)
	}
	created, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	*item = *created
	return nil
}

func (r *repoMySQL) AddStock(ctx context.Context, id int64, qty int64) (*Item, error) {
	res, err := r.conn(ctx).ExecContext(ctx, `UPDATE inventory SET stock = stock + ? WHERE id = ?`, qty, id)
	if db.IsOutOfRange(err) {
		return nil, ErrStockOverflow
	}
	if err != nil {
		return nil, fmt.Errorf("add stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("add stock: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return r.get(ctx, id)
}

func (r *repoMySQL) List(ctx context.Context) ([]*Item, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, `SELECT `+itemCols+` FROM inventory ORDER BY CAST(category AS CHAR), name, id`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.Stock, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}
