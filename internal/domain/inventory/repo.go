package inventory

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("inventory item not found")
	// ErrStockOverflow means the new stock would not fit the stock column.
	ErrStockOverflow = errors.New("stock exceeds column range")
)

type Repository interface {
	Create(ctx context.Context, item *Item) error
	// AddStock increments stock in one statement and returns the updated
	// item, ErrNotFound, or ErrStockOverflow.
	AddStock(ctx context.Context, id int64, qty int64) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
}
