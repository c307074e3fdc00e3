package circuitbreaker_test

import (
	"testing"
	"time"

	"github.com/hookhub/relay/internal/circuitbreaker"
	"github.com/hookhub/relay/internal/models"
	"github.com/hookhub/relay/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker() *circuitbreaker.Breaker {
	return circuitbreaker.New(5, 60*time.Second, 3)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	t.Parallel()

	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any()
	now := time.Now()

	for i := 0; i < 4; i++ {
		breaker.RecordFailure(&webhook, now)
		assert.Equal(t, models.CircuitStateClosed, webhook.CircuitState)
		assert.True(t, breaker.AllowRequest(&webhook, now))
	}

	breaker.RecordFailure(&webhook, now)
	assert.Equal(t, models.CircuitStateOpen, webhook.CircuitState)
	require.NotNil(t, webhook.CircuitOpenedAt)
	assert.Equal(t, 5, webhook.ConsecutiveFailures)
	assert.Equal(t, int64(5), webhook.TotalFailures)
	assert.False(t, breaker.AllowRequest(&webhook, now))
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	t.Parallel()

	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any()
	now := time.Now()

	for i := 0; i < 4; i++ {
		breaker.RecordFailure(&webhook, now)
	}
	breaker.RecordSuccess(&webhook)
	assert.Zero(t, webhook.ConsecutiveFailures)

	// Four more failures after the reset do not open the breaker.
	for i := 0; i < 4; i++ {
		breaker.RecordFailure(&webhook, now)
	}
	assert.Equal(t, models.CircuitStateClosed, webhook.CircuitState)
}

func TestBreaker_CooldownAdmitsProbe(t *testing.T) {
	t.Parallel()

	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any()
	openedAt := time.Now()

	for i := 0; i < 5; i++ {
		breaker.RecordFailure(&webhook, openedAt)
	}
	require.Equal(t, models.CircuitStateOpen, webhook.CircuitState)

	assert.False(t, breaker.AllowRequest(&webhook, openedAt.Add(59*time.Second)))
	assert.Equal(t, models.CircuitStateOpen, webhook.CircuitState)

	assert.True(t, breaker.AllowRequest(&webhook, openedAt.Add(60*time.Second)))
	assert.Equal(t, models.CircuitStateHalfOpen, webhook.CircuitState)
	assert.Equal(t, 1, webhook.HalfOpenTests)
}

func TestBreaker_HalfOpenProbeLimit(t *testing.T) {
	t.Parallel()

	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any(
		testutil.WebhookFactory.WithCircuitState(models.CircuitStateHalfOpen),
	)
	now := time.Now()

	assert.True(t, breaker.AllowRequest(&webhook, now))
	assert.True(t, breaker.AllowRequest(&webhook, now))
	assert.True(t, breaker.AllowRequest(&webhook, now))
	assert.False(t, breaker.AllowRequest(&webhook, now))
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	t.Parallel()

	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any(
		testutil.WebhookFactory.WithCircuitState(models.CircuitStateHalfOpen),
	)
	now := time.Now()

	require.True(t, breaker.AllowRequest(&webhook, now))
	breaker.RecordSuccess(&webhook)

	assert.Equal(t, models.CircuitStateClosed, webhook.CircuitState)
	assert.Nil(t, webhook.CircuitOpenedAt)
	assert.Zero(t, webhook.HalfOpenTests)
	assert.Zero(t, webhook.ConsecutiveFailures)
	assert.Equal(t, int64(1), webhook.TotalSuccesses)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any(
		testutil.WebhookFactory.WithCircuitState(models.CircuitStateHalfOpen),
	)
	now := time.Now()

	require.True(t, breaker.AllowRequest(&webhook, now))
	breaker.RecordFailure(&webhook, now)

	assert.Equal(t, models.CircuitStateOpen, webhook.CircuitState)
	require.NotNil(t, webhook.CircuitOpenedAt)
	assert.Equal(t, now.UnixMilli(), webhook.CircuitOpenedAt.UnixMilli())
	assert.Zero(t, webhook.HalfOpenTests)

	// Cooldown restarts from the reopen.
	assert.False(t, breaker.AllowRequest(&webhook, now.Add(30*time.Second)))
	assert.True(t, breaker.AllowRequest(&webhook, now.Add(61*time.Second)))
}

func TestBreaker_OpenStateIgnoresOutcomes(t *testing.T) {
	t.Parallel()

	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any()
	now := time.Now()

	for i := 0; i < 5; i++ {
		breaker.RecordFailure(&webhook, now)
	}
	require.Equal(t, models.CircuitStateOpen, webhook.CircuitState)
	openedAt := *webhook.CircuitOpenedAt

	// A straggler success from an in-flight lane moves counters only.
	breaker.RecordSuccess(&webhook)
	assert.Equal(t, models.CircuitStateOpen, webhook.CircuitState)
	assert.Equal(t, int64(1), webhook.TotalSuccesses)

	breaker.RecordFailure(&webhook, now.Add(time.Second))
	assert.Equal(t, models.CircuitStateOpen, webhook.CircuitState)
	assert.Equal(t, openedAt.UnixMilli(), webhook.CircuitOpenedAt.UnixMilli())
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any()
	now := time.Now()

	for i := 0; i < 5; i++ {
		breaker.RecordFailure(&webhook, now)
	}
	require.Equal(t, models.CircuitStateOpen, webhook.CircuitState)

	breaker.Reset(&webhook)
	assert.Equal(t, models.CircuitStateClosed, webhook.CircuitState)
	assert.Nil(t, webhook.CircuitOpenedAt)
	assert.Zero(t, webhook.ConsecutiveFailures)
	assert.True(t, breaker.AllowRequest(&webhook, now))
}

func TestBreaker_OpenWithoutTimestampProbes(t *testing.T) {
	t.Parallel()

	// Legacy rows may have OPEN state with no opened-at timestamp; treat the
	// cooldown as elapsed rather than wedging the webhook.
	breaker := testBreaker()
	webhook := testutil.WebhookFactory.Any(
		testutil.WebhookFactory.WithCircuitState(models.CircuitStateOpen),
	)

	assert.True(t, breaker.AllowRequest(&webhook, time.Now()))
	assert.Equal(t, models.CircuitStateHalfOpen, webhook.CircuitState)
}

func TestBreaker_NewAppliesDefaults(t *testing.T) {
	t.Parallel()

	breaker := circuitbreaker.New(0, 0, 0)
	assert.Equal(t, circuitbreaker.DefaultFailureThreshold, breaker.FailureThreshold)
	assert.Equal(t, circuitbreaker.DefaultCooldown, breaker.Cooldown)
	assert.Equal(t, circuitbreaker.DefaultHalfOpenTestLimit, breaker.HalfOpenTestLimit)
}
