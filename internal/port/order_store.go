package port

import (
	"context"
	"time"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

type OrderStore interface {
	// Create persists a new order together with its initial status history
	Create(ctx context.Context, order domain.Order) error

	// AppendStatus adds one history entry, sets the current status and, when
	// deliveredAt is non-nil, the actual delivery time
	AppendStatus(ctx context.Context, orderID string, entry domain.StatusEntry, deliveredAt *time.Time) (domain.Order, error)

	// Get returns domain.ErrOrderNotFound if the order does not exist
	Get(ctx context.Context, orderID string) (domain.Order, error)

	// List returns matching orders newest first
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
}
