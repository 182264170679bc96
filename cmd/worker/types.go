package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Parthik04-cyber/shopbackend/internal/carts"
)

// errPermanent marks records that redelivery cannot fix. They are dropped
// rather than reported as batch failures.
var errPermanent = errors.New("permanent failure")

// decodeTask parses an SQS body published by carts.QueueClearer.
func decodeTask(body string) (carts.Task, error) {
	var task carts.Task
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return carts.Task{}, fmt.Errorf("%w: invalid message body: %w", errPermanent, err)
	}
	if err := task.Validate(); err != nil {
		return carts.Task{}, fmt.Errorf("%w: %w", errPermanent, err)
	}
	return task, nil
}
