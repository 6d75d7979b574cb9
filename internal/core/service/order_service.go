package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rl1809/pizzahub/internal/core/domain"
	"github.com/rl1809/pizzahub/internal/port"
)

const (
	idempotencyKeyPrefix = "idempotency:order:"
	defaultStoreTimeout  = 3 * time.Second
	minDeliveryETA       = 30 * time.Minute
	deliveryETASpread    = 15 * time.Minute
)

type OrderService struct {
	ingredients port.IngredientStore
	orders      port.OrderStore
	alerts      *LowStockQueue
	idempotency port.IdempotencyGuard
	logger      *slog.Logger
	now         func() time.Time
	eta         func() time.Duration
	timeout     time.Duration
	sequence    atomic.Int64
}

type Option func(*OrderService)

// WithIdempotency enables request-id deduplication.
func WithIdempotency(guard port.IdempotencyGuard) Option {
	return func(s *OrderService) { s.idempotency = guard }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *OrderService) { s.logger = logger }
}

// WithStoreTimeout bounds every store call, including each rollback
// increment.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *OrderService) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

// NewOrderService wires the coordinator. alerts may be nil to disable
// low-stock checks.
func NewOrderService(ingredients port.IngredientStore, orders port.OrderStore, alerts *LowStockQueue, opts ...Option) *OrderService {
	s := &OrderService{
		ingredients: ingredients,
		orders:      orders,
		alerts:      alerts,
		logger:      slog.Default(),
		now:         time.Now,
		eta: func() time.Duration {
			return minDeliveryETA + time.Duration(rand.Int63n(int64(deliveryETASpread)))
		},
		timeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "order_service")
	return s
}

type PlaceOrderInput struct {
	// RequestID deduplicates client retries when an idempotency guard is set.
	RequestID       string
	CustomerRef     string
	CustomerPhone   string
	Configuration   domain.PizzaConfiguration
	Quantity        int
	Pricing         domain.Pricing
	DeliveryAddress domain.DeliveryAddress
	Notes           string
}

func (in PlaceOrderInput) validate() error {
	if in.CustomerRef == "" {
		return fmt.Errorf("%w: customer is required", domain.ErrInvalidConfiguration)
	}
	if in.Quantity < 1 || in.Quantity > domain.MaxPizzasPerOrder {
		return fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalidConfiguration, domain.MaxPizzasPerOrder)
	}
	if err := in.Configuration.Validate(); err != nil {
		return err
	}
	return in.Pricing.Validate()
}

// PlaceOrder reserves every ingredient of the configuration and records the
// order. Any failure after the first reservation rolls the reservations
// back before returning.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	if err := in.validate(); err != nil {
		return domain.Order{}, err
	}
	cfg := in.Configuration
	cfg.Vegetables = slices.Clone(cfg.Vegetables)
	cfg.Meats = slices.Clone(cfg.Meats)
	cfg.Normalize()
	refs, err := cfg.Reservations(in.Quantity)
	if err != nil {
		return domain.Order{}, err
	}

	committed := false

	if in.RequestID != "" && s.idempotency != nil {
		key := idempotencyKeyPrefix + in.RequestID
		ok, err := s.idempotency.Acquire(ctx, key)
		if err != nil {
			return domain.Order{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Order{}, domain.ErrDuplicateRequest
		}
		defer func() {
			if committed {
				return
			}
			if err := s.idempotency.Release(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn("failed to release idempotency key", "key", key, "error", err)
			}
		}()
	}

	ledger := newReservationLedger(s.ingredients, s.logger, s.timeout)
	defer func() {
		if committed || ledger.len() == 0 {
			return
		}
		// the caller already gets the placement error; rollback errors are logged inside
		_ = ledger.rollback(ctx)
	}()

	for _, ref := range refs {
		snapshot, err := s.reserve(ctx, ref)
		if err != nil {
			s.logger.Warn("reservation failed",
				"customer", in.CustomerRef,
				"ingredient", ref.Key().String(),
				"quantity", ref.Quantity,
				"reserved_before_failure", ledger.len(),
				"error", err,
			)
			return domain.Order{}, &domain.ReservationError{Ref: ref, Err: err}
		}
		ledger.record(ref, snapshot)
	}

	order := domain.NewOrder(domain.NewOrderParams{
		CustomerRef:     in.CustomerRef,
		CustomerPhone:   in.CustomerPhone,
		Configuration:   cfg,
		Quantity:        in.Quantity,
		Pricing:         in.Pricing,
		DeliveryAddress: in.DeliveryAddress,
		Notes:           in.Notes,
		Sequence:        int(s.sequence.Add(1)),
		DeliveryETA:     s.eta(),
	}, s.now())

	switch outcome, err := s.persist(ctx, order); outcome {
	case persistFailed:
		s.logger.Error("failed to save order, releasing reservations",
			"order_id", order.ID,
			"reservations", ledger.len(),
			"error", err,
		)
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	case persistUnknown:
		// The order may exist; releasing stock or the request id could
		// oversell or double-book, so both stay held for reconciliation.
		committed = true
		s.logger.Error("CRITICAL order commit outcome unknown, holding reservations",
			"order_id", order.ID,
			"request_id", in.RequestID,
			"reservations", ledger.len(),
			"error", err,
		)
		return domain.Order{}, fmt.Errorf("%w: commit outcome unknown for order %s: %w", domain.ErrPersistence, order.ID, err)
	}
	committed = true

	if s.alerts != nil {
		for _, snapshot := range ledger.snapshots() {
			s.alerts.Enqueue(snapshot)
		}
	}

	s.logger.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"customer", order.CustomerRef,
		"reservations", ledger.len(),
	)
	return order, nil
}

type persistOutcome int

const (
	persistStored persistOutcome = iota
	persistFailed
	persistUnknown
)

// persist writes the order detached from the caller's cancellation. When
// the store timeout fires mid-call the commit may still have landed, so the
// order is read back before the attempt counts as failed.
func (s *OrderService) persist(ctx context.Context, order domain.Order) (persistOutcome, error) {
	ctx = context.WithoutCancel(ctx)

	createCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.orders.Create(createCtx, order)
	timedOut := createCtx.Err() != nil
	cancel()
	if err == nil {
		return persistStored, nil
	}
	if !timedOut {
		return persistFailed, err
	}

	getCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, getErr := s.orders.Get(getCtx, order.ID)
	switch {
	case getErr == nil:
		s.logger.Warn("order commit confirmed after timeout", "order_id", order.ID, "error", err)
		return persistStored, nil
	case errors.Is(getErr, domain.ErrOrderNotFound):
		return persistFailed, err
	default:
		return persistUnknown, errors.Join(err, getErr)
	}
}

func (s *OrderService) reserve(ctx context.Context, ref domain.IngredientRef) (domain.Ingredient, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snapshot, err := s.ingredients.ConditionalDecrement(ctx, ref.Key(), ref.Quantity)
	if err != nil {
		return domain.Ingredient{}, err
	}
	return snapshot, nil
}

// UpdateStatus appends a history entry and moves the order to status. Any
// known status is accepted from any state, including repeats.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, actor, notes string) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}

	now := s.now()
	entry := domain.StatusEntry{Status: status, Timestamp: now, Actor: actor, Notes: notes}
	var deliveredAt *time.Time
	if status == domain.OrderStatusDelivered {
		deliveredAt = &now
	}

	order, err := s.orders.AppendStatus(ctx, orderID, entry, deliveredAt)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("append status: %w", err)
	}

	s.logger.Info("order status updated", "order_id", orderID, "status", status, "actor", actor)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, filter.Status)
	}
	return s.orders.List(ctx, filter)
}
