package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultDeliveryFee is charged when the caller leaves the fee unset.
var DefaultDeliveryFee = decimal.NewFromInt(50)

type OrderStatus string

const (
	OrderStatusReceived       OrderStatus = "received"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusBaking         OrderStatus = "baking"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out-for-delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderLifecycle is the forward progression; cancelled sits outside it.
var OrderLifecycle = []OrderStatus{
	OrderStatusReceived,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusBaking,
	OrderStatusReady,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	for _, known := range OrderLifecycle {
		if s == known {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Actor     string      `json:"actor,omitempty"`
	Notes     string      `json:"notes,omitempty"`
}

type Pricing struct {
	ItemPrice   decimal.Decimal `json:"item_price"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Tax         decimal.Decimal `json:"tax"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func (p Pricing) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"item price", p.ItemPrice},
		{"delivery fee", p.DeliveryFee},
		{"tax", p.Tax},
		{"total amount", p.TotalAmount},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidConfiguration, f.name)
		}
	}
	return nil
}

// Complete applies the default delivery fee and derives the total as
// itemPrice*quantity + deliveryFee + tax when it was not supplied.
func (p Pricing) Complete(quantity int) Pricing {
	if p.DeliveryFee.IsZero() {
		p.DeliveryFee = DefaultDeliveryFee
	}
	if p.TotalAmount.IsZero() {
		p.TotalAmount = p.ItemPrice.Mul(decimal.NewFromInt(int64(quantity))).Add(p.DeliveryFee).Add(p.Tax)
	}
	return p
}

type DeliveryAddress struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	Landmark     string `json:"landmark,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type Order struct {
	ID                    string             `json:"id"`
	OrderNumber           string             `json:"order_number"`
	CustomerRef           string             `json:"customer_ref"`
	CustomerPhone         string             `json:"customer_phone,omitempty"`
	Configuration         PizzaConfiguration `json:"configuration"`
	Quantity              int                `json:"quantity"`
	Pricing               Pricing            `json:"pricing"`
	DeliveryAddress       DeliveryAddress    `json:"delivery_address"`
	Notes                 string             `json:"notes,omitempty"`
	Status                OrderStatus        `json:"status"`
	StatusHistory         []StatusEntry      `json:"status_history"`
	EstimatedDeliveryTime time.Time          `json:"estimated_delivery_time"`
	ActualDeliveryTime    *time.Time         `json:"actual_delivery_time,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

type NewOrderParams struct {
	CustomerRef     string
	CustomerPhone   string
	Configuration   PizzaConfiguration
	Quantity        int
	Pricing         Pricing
	DeliveryAddress DeliveryAddress
	Notes           string
	// Sequence feeds the 4-digit suffix of the order number.
	Sequence     int
	DeliveryETA  time.Duration
	ReceivedNote string
}

// NewOrder builds an order in the first lifecycle state with its initial
// history entry.
func NewOrder(p NewOrderParams, now time.Time) Order {
	initial := OrderLifecycle[0]
	note := p.ReceivedNote
	if note == "" {
		note = "Order received"
	}
	return Order{
		ID:              uuid.New().String(),
		OrderNumber:     fmt.Sprintf("PZ%d%04d", now.UnixMilli(), p.Sequence%10000),
		CustomerRef:     p.CustomerRef,
		CustomerPhone:   p.CustomerPhone,
		Configuration:   p.Configuration,
		Quantity:        p.Quantity,
		Pricing:         p.Pricing.Complete(p.Quantity),
		DeliveryAddress: p.DeliveryAddress,
		Notes:           p.Notes,
		Status:          initial,
		StatusHistory: []StatusEntry{
			{Status: initial, Timestamp: now, Notes: note},
		},
		EstimatedDeliveryTime: now.Add(p.DeliveryETA),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// ApplyStatus appends one history entry and moves the order to status.
// Any known status is accepted from any state.
func (o *Order) ApplyStatus(status OrderStatus, actor, notes string, now time.Time) StatusEntry {
	entry := StatusEntry{Status: status, Timestamp: now, Actor: actor, Notes: notes}
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, entry)
	o.UpdatedAt = now
	if status == OrderStatusDelivered {
		delivered := now
		o.ActualDeliveryTime = &delivered
	}
	return entry
}

func (o Order) IsActive() bool {
	return !o.Status.Terminal()
}

// OrderFilter narrows ListOrders; zero fields match everything.
type OrderFilter struct {
	CustomerRef string
	Status      OrderStatus
}

func (f OrderFilter) Matches(o Order) bool {
	if f.CustomerRef != "" && o.CustomerRef != f.CustomerRef {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}
