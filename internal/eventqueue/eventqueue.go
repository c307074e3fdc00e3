// Package eventqueue buffers events between intake and the delivery worker.
//
// Two drivers exist: an in-process memory queue for tests and single-node
// setups, and a RabbitMQ-backed queue for durable multi-node deployments.
// The queue is a buffer, not the source of truth; the event store holds the
// authoritative status, and startup recovery re-enqueues anything the buffer
// lost.
package eventqueue

import (
	"context"
	"errors"

	"github.com/hookhub/relay/internal/models"
)

type Queue interface {
	// Init prepares the driver and returns a cleanup func.
	Init(ctx context.Context) (func(), error)
	Enqueue(ctx context.Context, event *models.Event) error
	// Dequeue pops the oldest event. The bool reports whether an event was
	// available; an empty queue is not an error.
	Dequeue(ctx context.Context) (*models.Event, bool, error)
	IsEmpty(ctx context.Context) (bool, error)
	Size(ctx context.Context) (int64, error)
}

type QueueConfig struct {
	RabbitMQ *RabbitMQConfig
}

func (c *QueueConfig) Validate() error {
	if c.RabbitMQ != nil {
		return c.RabbitMQ.validate()
	}
	return nil
}

var ErrQueueClosed = errors.New("queue is closed")

// New constructs the queue for the config. A nil or empty config yields the
// in-memory driver.
func New(config *QueueConfig) Queue {
	if config != nil && config.RabbitMQ != nil {
		return NewRabbitMQQueue(config.RabbitMQ)
	}
	return NewMemoryQueue()
}
