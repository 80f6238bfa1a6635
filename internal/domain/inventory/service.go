package inventory

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
)

const maxNameLen = 100

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Item, error) {
	name := strings.TrimSpace(req.Name)
	category := strings.TrimSpace(req.Category)
	if name == "" || category == "" || !req.Stock.Set {
		return nil, apierr.Validation("Missing required fields: name, category, stock", "name", "category", "stock")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, apierr.Validation("Item name must be at most 100 characters")
	}
	if !validCategories[category] {
		return nil, apierr.Validation("Invalid category. Must be one of: Medicine, Supply, Equipment")
	}
	if !req.Stock.Valid || req.Stock.Value < 0 {
		return nil, apierr.Validation("Invalid stock amount")
	}

	item := &Item{Name: name, Category: category, Stock: int(req.Stock.Value)}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("item_id", item.ID).Str("category", item.Category).Msg("inventory item created")
	return item, nil
}

// AddStock increments an item's stock by a positive quantity.
func (s *Service) AddStock(ctx context.Context, id int64, qty Quantity) (*Item, error) {
	if !qty.Set || !qty.Valid || qty.Value <= 0 {
		return nil, apierr.Validation("Invalid additional stock amount")
	}
	item, err := s.repo.AddStock(ctx, id, qty.Value)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("Inventory item not found")
	}
	if errors.Is(err, ErrStockOverflow) {
		return nil, apierr.Validation("Stock would exceed the maximum allowed amount")
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("item_id", id).Int64("added", qty.Value).Int("stock", item.Stock).Msg("stock updated")
	return item, nil
}

// List returns all items ordered by category, then name.
func (s *Service) List(ctx context.Context) ([]*Item, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Item{}
	}
	return items, nil
}
