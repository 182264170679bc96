package carts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task asks the worker to clear a user's cart after an order was committed.
type Task struct {
	TaskID      string    `json:"task_id"`
	UserID      string    `json:"user_id"`
	OrderID     string    `json:"order_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewTask builds a task with a fresh id.
func NewTask(userID, orderID string) Task {
	return Task{
		TaskID:      uuid.NewString(),
		UserID:      userID,
		OrderID:     orderID,
		RequestedAt: time.Now().UTC(),
	}
}

// Validate reports whether the task can be processed.
func (t Task) Validate() error {
	if t.UserID == "" {
		return errors.New("cart task: missing user_id")
	}
	return nil
}

// MessageSender is satisfied by *aws.Publisher.
type MessageSender interface {
	Send(ctx context.Context, messageBody string, attributes map[string]string) (string, error)
}

// QueueClearer hands cart clearing to the SQS worker. Delivery is at least once.
type QueueClearer struct {
	sender MessageSender
}

// NewQueueClearer returns a clearer publishing through sender.
func NewQueueClearer(sender MessageSender) *QueueClearer {
	return &QueueClearer{sender: sender}
}

// EnqueueCartClear publishes a cart-clear task.
func (q *QueueClearer) EnqueueCartClear(ctx context.Context, userID, orderID string) error {
	task := NewTask(userID, orderID)
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal cart task: %w", err)
	}
	if _, err := q.sender.Send(ctx, string(body), map[string]string{
		"task_id":  task.TaskID,
		"order_id": orderID,
	}); err != nil {
		return fmt.Errorf("enqueue cart task: %w", err)
	}
	return nil
}

// AsyncClearer clears carts in-process on a background goroutine. It is used
// when no queue is configured.
type AsyncClearer struct {
	store   *Store
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncClearer returns a clearer bounding each clear by timeout.
func NewAsyncClearer(store *Store, logger *zap.Logger, timeout time.Duration) *AsyncClearer {
	return &AsyncClearer{store: store, logger: logger, timeout: timeout}
}

// EnqueueCartClear starts the clear and returns immediately. The work is not
// cancelled with ctx.
func (a *AsyncClearer) EnqueueCartClear(ctx context.Context, userID, orderID string) error {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		log := a.logger.With(zap.String("user_id", userID), zap.String("order_id", orderID))
		if err := a.store.Clear(bg, userID); err != nil {
			log.Error("cart clear failed", zap.Error(err))
			return
		}
		log.Info("cart cleared")
	}()
	return nil
}

// Wait blocks until every started clear has finished.
func (a *AsyncClearer) Wait() {
	a.wg.Wait()
}
