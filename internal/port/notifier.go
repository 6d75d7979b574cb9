package port

import (
	"context"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

type LowStockNotifier interface {
	// NotifyLowStock alerts staff that an ingredient reached its threshold.
	// Callers log the error and carry on.
	NotifyLowStock(ctx context.Context, ingredient domain.Ingredient) error
}
