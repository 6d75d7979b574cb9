package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/pizzahub/internal/core/domain"
	"github.com/rl1809/pizzahub/internal/port"
)

// IngredientService is the admin surface over the ingredient catalog.
type IngredientService struct {
	catalog port.IngredientCatalog
	alerts  *LowStockQueue
	logger  *slog.Logger
	now     func() time.Time
}

func NewIngredientService(catalog port.IngredientCatalog, alerts *LowStockQueue, logger *slog.Logger) *IngredientService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngredientService{
		catalog: catalog,
		alerts:  alerts,
		logger:  logger.With("component", "ingredient_service"),
		now:     time.Now,
	}
}

func (s *IngredientService) CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (domain.Ingredient, error) {
	if err := ingredient.Validate(); err != nil {
		return domain.Ingredient{}, err
	}
	now := s.now()
	ingredient.CreatedAt = now
	ingredient.UpdatedAt = now

	if err := s.catalog.Create(ctx, ingredient); err != nil {
		return domain.Ingredient{}, fmt.Errorf("create ingredient: %w", err)
	}
	s.logger.Info("ingredient created", "ingredient", ingredient.Key().String(), "stock", ingredient.StockQuantity)
	return ingredient, nil
}

func (s *IngredientService) GetIngredient(ctx context.Context, key domain.IngredientKey) (domain.Ingredient, error) {
	return s.catalog.Get(ctx, key)
}

// ListIngredients returns one type, or every type in reservation order when
// typ is zero.
func (s *IngredientService) ListIngredients(ctx context.Context, typ domain.IngredientType) ([]domain.Ingredient, error) {
	if typ != 0 {
		return s.catalog.List(ctx, typ)
	}
	var all []domain.Ingredient
	for _, t := range domain.IngredientTypes {
		items, err := s.catalog.List(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", t, err)
		}
		all = append(all, items...)
	}
	return all, nil
}

func (s *IngredientService) DeleteIngredient(ctx context.Context, key domain.IngredientKey) error {
	if err := s.catalog.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Info("ingredient deleted", "ingredient", key.String())
	return nil
}

// AdjustStock applies a manual restock or write-off. The result never goes
// below zero.
func (s *IngredientService) AdjustStock(ctx context.Context, key domain.IngredientKey, change int) (domain.Ingredient, error) {
	ingredient, err := s.catalog.AdjustStock(ctx, key, change)
	if err != nil {
		return domain.Ingredient{}, err
	}
	if s.alerts != nil {
		s.alerts.Enqueue(ingredient)
	}
	s.logger.Info("stock adjusted", "ingredient", key.String(), "change", change, "stock", ingredient.StockQuantity)
	return ingredient, nil
}
