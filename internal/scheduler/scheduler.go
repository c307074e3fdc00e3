// Package scheduler provides a Redis-backed delayed task scheduler. Tasks
// are members of a sorted set scored by their due time; Monitor polls the
// set and executes tasks as they come due. Claiming a task is an atomic
// ZREM, so multiple monitors can share one schedule without double
// execution.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/redis"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = time.Second
	DefaultRetryBackoff = 5 * time.Second

	// claimBatchSize caps how many due tasks a single poll picks up.
	claimBatchSize = 100
)

// ExecFunc runs a due task. The scheduledAt argument is the time the task
// was originally due. A non-nil error puts the task back on the schedule.
type ExecFunc func(ctx context.Context, id string, scheduledAt time.Time) error

type Scheduler interface {
	// Schedule registers a task to execute at dueAt. Scheduling an
	// already-scheduled task updates its due time.
	Schedule(ctx context.Context, id string, dueAt time.Time) error
	// Cancel removes a pending task. Canceling an unknown task is a no-op.
	Cancel(ctx context.Context, id string) error
	// Monitor polls for due tasks until ctx is canceled.
	Monitor(ctx context.Context) error
}

type schedulerImpl struct {
	key          string
	redisClient  redis.Cmdable
	exec         ExecFunc
	pollInterval time.Duration
	retryBackoff time.Duration
	logger       *logging.Logger
}

type Option func(*schedulerImpl)

func WithPollInterval(interval time.Duration) Option {
	return func(s *schedulerImpl) {
		s.pollInterval = interval
	}
}

// WithRetryBackoff sets how far in the future a task is rescheduled after
// its exec callback fails.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(s *schedulerImpl) {
		s.retryBackoff = backoff
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *schedulerImpl) {
		s.logger = logger
	}
}

func New(name string, redisClient redis.Cmdable, exec ExecFunc, opts ...Option) Scheduler {
	s := &schedulerImpl{
		key:          "scheduler:" + name,
		redisClient:  redisClient,
		exec:         exec,
		pollInterval: DefaultPollInterval,
		retryBackoff: DefaultRetryBackoff,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *schedulerImpl) Schedule(ctx context.Context, id string, dueAt time.Time) error {
	if err := s.redisClient.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: id,
	}).Err(); err != nil {
		return fmt.Errorf("schedule %q: %w", id, err)
	}
	return nil
}

func (s *schedulerImpl) Cancel(ctx context.Context, id string) error {
	if err := s.redisClient.ZRem(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("cancel %q: %w", id, err)
	}
	return nil
}

func (s *schedulerImpl) Monitor(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Ctx(ctx).Error("scheduler poll failed",
					zap.String("key", s.key),
					zap.Error(err))
			}
		}
	}
}

func (s *schedulerImpl) poll(ctx context.Context) error {
	now := time.Now()
	due, err := s.redisClient.ZRangeByScoreWithScores(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: claimBatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("range due tasks: %w", err)
	}

	for _, member := range due {
		id, ok := member.Member.(string)
		if !ok {
			continue
		}

		// Only the monitor that removes the member owns the task.
		removed, err := s.redisClient.ZRem(ctx, s.key, id).Result()
		if err != nil {
			return fmt.Errorf("claim task %q: %w", id, err)
		}
		if removed == 0 {
			continue
		}

		scheduledAt := time.UnixMilli(int64(member.Score))
		if err := s.exec(ctx, id, scheduledAt); err != nil {
			s.logger.Ctx(ctx).Error("scheduled task failed",
				zap.String("key", s.key),
				zap.String("task_id", id),
				zap.Error(err))
			if scheduleErr := s.Schedule(ctx, id, time.Now().Add(s.retryBackoff)); scheduleErr != nil {
				return fmt.Errorf("reschedule failed task %q: %w", id, scheduleErr)
			}
		}
	}
	return nil
}
