package backoff

import (
	"math/rand"
	"time"
)

// Backoff computes the wait duration before a given retry attempt.
type Backoff interface {
	Duration(retries int) time.Duration
}

// ExponentialBackoff grows the interval by a constant base factor per retry.
type ExponentialBackoff struct {
	Interval time.Duration
	Base     int
}

var _ Backoff = (*ExponentialBackoff)(nil)

func (b *ExponentialBackoff) Duration(retries int) time.Duration {
	d := b.Interval
	for i := 0; i < retries; i++ {
		d *= time.Duration(b.Base)
	}
	return d
}

// ConstantBackoff waits the same interval regardless of the retry count.
type ConstantBackoff struct {
	Interval time.Duration
}

var _ Backoff = (*ConstantBackoff)(nil)

func (b *ConstantBackoff) Duration(retries int) time.Duration {
	return b.Interval
}

// ScheduledBackoff follows an explicit schedule. Retries beyond the schedule
// reuse the last entry.
type ScheduledBackoff struct {
	Schedule []time.Duration
}

var _ Backoff = (*ScheduledBackoff)(nil)

func (b *ScheduledBackoff) Duration(retries int) time.Duration {
	if len(b.Schedule) == 0 {
		return 0
	}
	if retries >= len(b.Schedule) {
		return b.Schedule[len(b.Schedule)-1]
	}
	return b.Schedule[retries]
}

// RetryPolicy decides whether a failed delivery gets another attempt and how
// long to wait for it. Delays grow exponentially from BaseDelay, are capped
// at MaxDelay, and carry full jitter: the returned delay is uniformly random
// within [capped, 2*capped] so retry bursts from many events spread out.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int

	// schedule, when set, replaces the exponential curve entirely.
	schedule ScheduledBackoff

	// rng overrides the jitter source, for deterministic tests.
	rng *rand.Rand
}

// NewRetryPolicy returns a policy with the given bounds.
func NewRetryPolicy(baseDelay, maxDelay time.Duration, maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
		MaxRetries: maxRetries,
	}
}

// NewSchedulePolicy returns a policy driven by an explicit delay schedule.
// The schedule length bounds the retry count and scheduled delays are exact,
// with no jitter.
func NewSchedulePolicy(schedule []time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: len(schedule),
		schedule:   ScheduledBackoff{Schedule: schedule},
	}
}

// ShouldRetry reports whether an event that has already been retried
// retryCount times is allowed another attempt.
func (p *RetryPolicy) ShouldRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// Delay returns the wait before retry attempt retryCount. retryCount is the
// number of retries already performed, so the first retry uses retryCount 0.
func (p *RetryPolicy) Delay(retryCount int) time.Duration {
	if len(p.schedule.Schedule) > 0 {
		return p.schedule.Duration(retryCount)
	}
	capped := p.cappedDelay(retryCount)
	return capped + p.jitter(capped)
}

// DelayWithRetryAfter honors an origin-provided Retry-After value, in whole
// seconds. The value is respected verbatim when positive, floored at
// BaseDelay. Non-positive values fall back to the computed backoff delay.
func (p *RetryPolicy) DelayWithRetryAfter(retryCount, retryAfterSeconds int) time.Duration {
	if retryAfterSeconds > 0 {
		d := time.Duration(retryAfterSeconds) * time.Second
		if d < p.BaseDelay {
			return p.BaseDelay
		}
		return d
	}
	return p.Delay(retryCount)
}

func (p *RetryPolicy) cappedDelay(retryCount int) time.Duration {
	capped := p.MaxDelay
	if retryCount < 63 {
		d := p.BaseDelay << uint(retryCount)
		// A negative result means the shift overflowed.
		if d >= p.BaseDelay && d < capped {
			capped = d
		}
	}
	return capped
}

func (p *RetryPolicy) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	if p.rng != nil {
		return time.Duration(p.rng.Int63n(int64(max) + 1))
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}
