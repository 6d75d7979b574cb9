package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

const LowStockQueue = "ingredient.low_stock"

// LowStockEvent is the message body published for every alert.
type LowStockEvent struct {
	Type       domain.IngredientType `json:"type"`
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Stock      int                   `json:"stock_quantity"`
	Threshold  int                   `json:"low_stock_threshold"`
	OccurredAt time.Time             `json:"occurred_at"`
}

func NewLowStockEvent(ingredient domain.Ingredient, now time.Time) LowStockEvent {
	return LowStockEvent{
		Type:       ingredient.Type,
		ID:         ingredient.ID,
		Name:       ingredient.Name,
		Stock:      ingredient.StockQuantity,
		Threshold:  ingredient.LowStockThreshold,
		OccurredAt: now,
	}
}

// Broker is the slice of RabbitMQ the publisher needs.
type Broker interface {
	DeclareQueue(name string) error
	Publish(ctx context.Context, queue string, message []byte) error
}

type LowStockPublisher struct {
	broker Broker
	now    func() time.Time
}

func NewLowStockPublisher(broker Broker) (*LowStockPublisher, error) {
	if err := broker.DeclareQueue(LowStockQueue); err != nil {
		return nil, err
	}

	return &LowStockPublisher{broker: broker, now: time.Now}, nil
}

func (p *LowStockPublisher) NotifyLowStock(ctx context.Context, ingredient domain.Ingredient) error {
	data, err := json.Marshal(NewLowStockEvent(ingredient, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return p.broker.Publish(ctx, LowStockQueue, data)
}

// LogNotifier only writes the alert to the log. Used when no broker is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "low_stock_notifier")}
}

func (n *LogNotifier) NotifyLowStock(ctx context.Context, ingredient domain.Ingredient) error {
	n.logger.WarnContext(ctx, "LOW STOCK ALERT",
		"ingredient", ingredient.Key().String(),
		"name", ingredient.Name,
		"stock", ingredient.StockQuantity,
		"threshold", ingredient.LowStockThreshold,
	)
	return nil
}

// ProcessLowStock drains alert deliveries and hands each decoded event to
// handle. Undecodable messages are dropped; handler failures are requeued.
func ProcessLowStock(messages <-chan amqp.Delivery, handle func(LowStockEvent) error, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for msg := range messages {
		var event LowStockEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			logger.Error("failed to parse low stock event", "error", err)
			msg.Nack(false, false)
			continue
		}

		if err := handle(event); err != nil {
			logger.Warn("low stock event failed, requeued", "ingredient", event.ID, "error", err)
			msg.Nack(false, true)
			continue
		}
		msg.Ack(false)
	}
}
