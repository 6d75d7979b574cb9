package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/pizzahub/internal/core/domain"
	"github.com/rl1809/pizzahub/internal/port"
)

type reservation struct {
	ref      domain.IngredientRef
	snapshot domain.Ingredient
}

// reservationLedger tracks the decrements one placement attempt has made
// and not yet committed.
type reservationLedger struct {
	store   port.IngredientStore
	logger  *slog.Logger
	timeout time.Duration
	entries []reservation
}

func newReservationLedger(store port.IngredientStore, logger *slog.Logger, timeout time.Duration) *reservationLedger {
	return &reservationLedger{store: store, logger: logger, timeout: timeout}
}

func (l *reservationLedger) record(ref domain.IngredientRef, snapshot domain.Ingredient) {
	l.entries = append(l.entries, reservation{ref: ref, snapshot: snapshot})
}

func (l *reservationLedger) len() int {
	return len(l.entries)
}

// rollback issues a compensating increment for every recorded reservation,
// newest first. It ignores cancellation of ctx; each increment gets its own
// timeout instead. Failures are logged and returned joined, never retried.
func (l *reservationLedger) rollback(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(l.entries) - 1; i >= 0; i-- {
		entry := l.entries[i]
		key := entry.ref.Key()

		incCtx, cancel := context.WithTimeout(ctx, l.timeout)
		_, err := l.store.Increment(incCtx, key, entry.ref.Quantity)
		cancel()

		if err != nil {
			l.logger.Error("CRITICAL rollback failed",
				"ingredient", key.String(),
				"quantity", entry.ref.Quantity,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%w: %s x%d: %w", domain.ErrRollback, key, entry.ref.Quantity, err))
			continue
		}
		l.logger.Debug("rolled back reservation", "ingredient", key.String(), "quantity", entry.ref.Quantity)
	}
	l.entries = nil
	return errors.Join(errs...)
}

// snapshots returns the latest post-decrement state of each distinct
// ingredient, in first-reserved order.
func (l *reservationLedger) snapshots() []domain.Ingredient {
	index := make(map[domain.IngredientKey]int, len(l.entries))
	out := make([]domain.Ingredient, 0, len(l.entries))
	for _, entry := range l.entries {
		key := entry.ref.Key()
		if i, ok := index[key]; ok {
			out[i] = entry.snapshot
			continue
		}
		index[key] = len(out)
		out = append(out, entry.snapshot)
	}
	return out
}
