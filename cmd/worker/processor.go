package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/Parthik04-cyber/shopbackend/internal/carts"
	"github.com/Parthik04-cyber/shopbackend/internal/metrics"
)

// CartClearer is implemented by *carts.Store.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// Recorder counts worker outcomes.
type Recorder interface {
	Incr(ctx context.Context, name string)
}

// Processor handles SQS cart-clear tasks.
type Processor struct {
	carts   CartClearer
	metrics Recorder
	logger  *zap.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(clearer CartClearer, recorder Recorder, logger *zap.Logger) *Processor {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{carts: clearer, metrics: recorder, logger: logger}
}

// Handle processes every record of the batch and reports the ones SQS should
// redeliver. Records failing permanently are logged and acknowledged.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		err := p.processMessage(ctx, rec)
		switch {
		case err == nil:
		case errors.Is(err, errPermanent):
			p.logger.Error("dropping cart task", zap.String("message_id", rec.MessageId), zap.Error(err))
			p.metrics.Incr(ctx, metrics.CartTaskFailed)
		default:
			p.logger.Warn("cart task will be retried", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	task, err := decodeTask(rec.Body)
	if err != nil {
		return err
	}
	log := p.logger.With(
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID),
		zap.String("order_id", task.OrderID),
	)

	if err := p.carts.Clear(ctx, task.UserID); err != nil {
		if errors.Is(err, carts.ErrUserNotFound) {
			return fmt.Errorf("%w: %w", errPermanent, err)
		}
		return err
	}
	log.Info("cart cleared")
	return nil
}
