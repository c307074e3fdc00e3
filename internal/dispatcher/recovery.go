package dispatcher

import (
	"context"
	"fmt"

	"github.com/hookhub/relay/internal/models"
	"go.uber.org/zap"
)

// Recover re-enqueues events stranded by a previous run: PENDING events
// whose queue message was lost, and PROCESSING events whose lane died
// mid-flight. RETRY_PENDING events are not touched; their due times live in
// the scheduler's sorted set, which survives restarts.
func (d *Dispatcher) Recover(ctx context.Context) error {
	recovered := 0

	// List PENDING before flipping any PROCESSING event so nothing is
	// enqueued twice.
	pending, err := d.events.ListEventsByStatus(ctx, models.EventStatusPending)
	if err != nil {
		return fmt.Errorf("list pending events: %w", err)
	}
	for i := range pending {
		if err := d.queue.Enqueue(ctx, &pending[i]); err != nil {
			return fmt.Errorf("enqueue pending event %s: %w", pending[i].ID, err)
		}
		recovered++
	}

	stale, err := d.events.ListEventsByStatus(ctx, models.EventStatusProcessing)
	if err != nil {
		return fmt.Errorf("list processing events: %w", err)
	}
	for i := range stale {
		event := &stale[i]
		if err := d.updateEventStatus(ctx, event, models.EventStatusPending, ""); err != nil {
			return fmt.Errorf("recover event %s: %w", event.ID, err)
		}
		if err := d.queue.Enqueue(ctx, event); err != nil {
			return fmt.Errorf("enqueue recovered event %s: %w", event.ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		d.logger.Ctx(ctx).Info("recovered stranded events", zap.Int("count", recovered))
	}
	return nil
}
