package services

import (
	"context"

	"github.com/hookhub/relay/internal/dispatcher"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/worker"
	"go.uber.org/zap"
)

// DispatcherWorker wraps the delivery dispatcher as a worker.
type DispatcherWorker struct {
	dispatcher *dispatcher.Dispatcher
	recover    bool
	logger     *logging.Logger
}

// NewDispatcherWorker creates a new dispatcher worker. When recover is set,
// stranded events are re-enqueued before the dispatch loop starts.
func NewDispatcherWorker(d *dispatcher.Dispatcher, recover bool, logger *logging.Logger) worker.Worker {
	return &DispatcherWorker{
		dispatcher: d,
		recover:    recover,
		logger:     logger,
	}
}

// Name returns the worker name.
func (w *DispatcherWorker) Name() string {
	return "dispatcher"
}

// Run recovers stranded events and then drives the dispatch loop until the
// context is cancelled.
func (w *DispatcherWorker) Run(ctx context.Context) error {
	logger := w.logger.Ctx(ctx)

	if w.recover {
		if err := w.dispatcher.Recover(ctx); err != nil {
			logger.Error("startup recovery failed", zap.Error(err))
			return err
		}
	}

	logger.Info("dispatcher running")
	return w.dispatcher.Run(ctx)
}
