package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/pizzahub/internal/core/domain"
	"github.com/rl1809/pizzahub/internal/port"
)

const defaultNotifyTimeout = 5 * time.Second

// LowStockQueue hands ingredient snapshots to a pool of workers that check
// the threshold and call the notifier. Enqueue never blocks.
type LowStockQueue struct {
	notifier port.LowStockNotifier
	logger   *slog.Logger
	timeout  time.Duration
	queue    chan domain.Ingredient

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewLowStockQueue(notifier port.LowStockNotifier, queueSize int, logger *slog.Logger) *LowStockQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowStockQueue{
		notifier: notifier,
		logger:   logger.With("component", "low_stock_queue"),
		timeout:  defaultNotifyTimeout,
		queue:    make(chan domain.Ingredient, queueSize),
	}
}

// Start launches the worker pool. Call once.
func (q *LowStockQueue) Start(workers int) {
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			q.workerLoop(id)
		}(i)
	}
	q.logger.Info("started low stock workers", "workers", workers)
}

// Enqueue reports false when the snapshot was dropped because the queue is
// full or closed.
func (q *LowStockQueue) Enqueue(ingredient domain.Ingredient) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	select {
	case q.queue <- ingredient:
		return true
	default:
		q.logger.Warn("low stock queue full, dropping check", "ingredient", ingredient.Key().String())
		return false
	}
}

// Close stops accepting snapshots and waits for the workers to drain the
// queue.
func (q *LowStockQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *LowStockQueue) workerLoop(id int) {
	for ingredient := range q.queue {
		if !ingredient.IsLowStock() {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.notifier.NotifyLowStock(ctx, ingredient); err != nil {
			q.logger.Error("failed to send low stock alert",
				"worker", id,
				"ingredient", ingredient.Key().String(),
				"error", err,
			)
		} else {
			q.logger.Info("sent low stock alert",
				"worker", id,
				"ingredient", ingredient.Key().String(),
				"stock", ingredient.StockQuantity,
			)
		}
		cancel()
	}
}
