package configs

import (
	"os"
	"testing"

	"github.com/hookhub/relay/internal/config"
	"github.com/hookhub/relay/internal/util/testutil"
)

// Basic returns a singular-service configuration backed by the in-memory
// queue and a test Redis instance, tuned for fast e2e runs.
func Basic(t *testing.T) *config.Config {
	redisConfig := testutil.CreateTestRedisConfig(t)

	logLevel := "fatal"
	if os.Getenv("LOG_LEVEL") != "" {
		logLevel = os.Getenv("LOG_LEVEL")
	}

	return &config.Config{
		LogLevel: logLevel,
		GinMode:  "test",

		APIPort: testutil.RandomPortNumber(),
		APIKey:  "apikey",

		Redis: &config.RedisConfig{
			Host:     redisConfig.Host,
			Port:     redisConfig.Port,
			Password: redisConfig.Password,
			Database: redisConfig.Database,
		},
		Queue: &config.QueueConfig{Driver: "memory"},

		DeliveryMaxConcurrency: 3,
		DispatchPollIntervalMS: 50,

		DeliveryTimeoutSeconds:        5,
		DeliveryConnectTimeoutSeconds: 2,
		HTTPUserAgent:                 "HookHub-Relay/e2e",

		// Fast fixed retries so tests observe the full retry lifecycle
		// in seconds rather than minutes.
		RetrySchedule: []int{1, 1, 1},

		CircuitFailureThreshold:  10,
		CircuitCooldownSeconds:   60,
		CircuitHalfOpenMaxProbes: 3,

		WebhookPauseSeconds: 3600,

		RecoveryEnabled:  true,
		DisableTelemetry: true,
	}
}
