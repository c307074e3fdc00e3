package eventqueue

import (
	"context"
	"sync"

	"github.com/hookhub/relay/internal/models"
)

type MemoryQueue struct {
	mu     sync.Mutex
	events []*models.Event
	closed bool
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Init(ctx context.Context) (func(), error) {
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.closed = true
		q.events = nil
	}, nil
}

func (q *MemoryQueue) Enqueue(ctx context.Context, event *models.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	copied := *event
	q.events = append(q.events, &copied)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*models.Event, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, false, ErrQueueClosed
	}
	if len(q.events) == 0 {
		return nil, false, nil
	}
	event := q.events[0]
	q.events = q.events[1:]
	return event, true, nil
}

func (q *MemoryQueue) IsEmpty(ctx context.Context) (bool, error) {
	size, err := q.Size(ctx)
	if err != nil {
		return false, err
	}
	return size == 0, nil
}

func (q *MemoryQueue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrQueueClosed
	}
	return int64(len(q.events)), nil
}
