package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rl1809/pizzahub/internal/adapter/notify"
	"github.com/rl1809/pizzahub/internal/config"
)

// alert_consumer drains the low-stock queue and logs one line per alert for
// the kitchen dashboard to tail.
func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	mq, err := notify.NewRabbitMQ(cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("failed to connect rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mq.Close()

	if err := mq.DeclareQueue(notify.LowStockQueue); err != nil {
		logger.Error("failed to declare queue", "error", err)
		os.Exit(1)
	}
	messages, err := mq.Consume(notify.LowStockQueue)
	if err != nil {
		logger.Error("failed to consume", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		notify.ProcessLowStock(messages, func(e notify.LowStockEvent) error {
			logger.Warn("LOW STOCK",
				"type", e.Type,
				"ingredient", e.ID,
				"name", e.Name,
				"stock", e.Stock,
				"threshold", e.Threshold,
				"at", e.OccurredAt,
			)
			return nil
		}, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case <-done:
		logger.Warn("delivery channel closed")
	}
}
