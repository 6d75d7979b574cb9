package port

import (
	"context"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

type IngredientStore interface {
	// ConditionalDecrement atomically decreases stock by amount only if the
	// current stock covers it. Returns domain.ErrIngredientNotFound or
	// domain.ErrInsufficientStock without touching the record otherwise.
	ConditionalDecrement(ctx context.Context, key domain.IngredientKey, amount int) (domain.Ingredient, error)

	// Increment restores stock (for rollback on failure)
	Increment(ctx context.Context, key domain.IngredientKey, amount int) (domain.Ingredient, error)

	// Get reads one ingredient, domain.ErrIngredientNotFound if absent
	Get(ctx context.Context, key domain.IngredientKey) (domain.Ingredient, error)
}

type IngredientCatalog interface {
	IngredientStore

	// Create inserts a new ingredient, domain.ErrIngredientExists if the key
	// is taken
	Create(ctx context.Context, ingredient domain.Ingredient) error

	// Save creates or replaces an ingredient record
	Save(ctx context.Context, ingredient domain.Ingredient) error

	// List returns the ingredients of one type ordered by id
	List(ctx context.Context, typ domain.IngredientType) ([]domain.Ingredient, error)

	// Delete removes an ingredient, domain.ErrIngredientNotFound if absent
	Delete(ctx context.Context, key domain.IngredientKey) error

	// AdjustStock adds change (may be negative) clamping the result at zero
	AdjustStock(ctx context.Context, key domain.IngredientKey, change int) (domain.Ingredient, error)
}

type IdempotencyGuard interface {
	// Acquire sets a key for idempotency check, returns false if already exists
	Acquire(ctx context.Context, key string) (bool, error)

	// Release frees a key so a failed request can be retried
	Release(ctx context.Context, key string) error
}
