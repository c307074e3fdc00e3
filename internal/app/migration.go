package app

import (
	"context"
	"strings"
	"time"

	"github.com/hookhub/relay/internal/config"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/migrator"
	"github.com/hookhub/relay/internal/redis"
	"github.com/hookhub/relay/internal/redislock"
	"go.uber.org/zap"
)

const (
	migrationLockKey = "relay:migration:lock"
	migrationLockTTL = 30 * time.Second
)

// runMigration handles database schema migrations with retry logic for lock
// conflicts. The audit store only needs migrations when Postgres is
// configured; Redis and in-memory audit drivers are schemaless.
//
// MIGRATION LOCK BEHAVIOR:
// - A Redis lock serializes nodes so that at most one runs migrations at a time
// - Postgres advisory locks remain as a second line of defense inside golang-migrate
// - When multiple nodes start simultaneously and migrations are pending:
//  1. One node acquires the lock and performs migrations (ideally < 5 seconds)
//  2. Other nodes fail to acquire the lock, wait 5 seconds and retry
//  3. On retry, migrations are complete and nodes proceed successfully
//
// RETRY STRATEGY:
// - Max 3 attempts with 5-second delays between retries
// - 5 seconds is sufficient because most migrations complete quickly
// - If no migrations are needed (common case), the lock is held only briefly
func runMigration(ctx context.Context, cfg *config.Config, logger *logging.Logger, redisClient redis.Cmdable) error {
	if cfg.PostgresURL == "" {
		logger.Debug("postgres not configured, skipping migrations")
		return nil
	}

	const (
		maxRetries = 3
		retryDelay = 5 * time.Second
	)

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := migrateOnce(ctx, cfg, logger, redisClient)
		if err == nil {
			return nil
		}
		lastErr = err

		// Lock conflicts mean another node is migrating. Anything else
		// fails immediately.
		if !isLockRelatedError(err) {
			logger.Error("migration failed", zap.Error(err))
			return err
		}

		if attempt < maxRetries {
			logger.Warn("migration lock conflict, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("retry_delay", retryDelay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
				// Continue to next attempt
			}
		} else {
			logger.Error("migration failed after retries",
				zap.Int("attempts", maxRetries),
				zap.Error(err))
		}
	}

	return lastErr
}

var errMigrationLocked = &lockHeldError{}

type lockHeldError struct{}

func (e *lockHeldError) Error() string {
	return "can't acquire lock: another node is running migrations"
}

// migrateOnce runs one migration attempt under the Redis lock.
func migrateOnce(ctx context.Context, cfg *config.Config, logger *logging.Logger, redisClient redis.Cmdable) error {
	lock := redislock.New(redisClient,
		redislock.WithKey(migrationLockKey),
		redislock.WithTTL(migrationLockTTL),
	)

	acquired, err := lock.AttemptLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return errMigrationLocked
	}
	defer func() {
		if _, err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to release migration lock", zap.Error(err))
		}
	}()

	m, err := migrator.New(migrator.MigrationOpts{
		PG: migrator.MigrationOptsPG{URL: cfg.PostgresURL},
	})
	if err != nil {
		return err
	}

	version, versionJumped, err := m.Up(ctx, -1)

	// Always close the migrator after each attempt
	sourceErr, dbErr := m.Close(ctx)
	if sourceErr != nil {
		logger.Error("failed to close migrator source", zap.Error(sourceErr))
	}
	if dbErr != nil {
		logger.Error("failed to close migrator database connection", zap.Error(dbErr))
	}

	if err != nil {
		return err
	}

	if versionJumped > 0 {
		logger.Info("migrations applied",
			zap.Int("version", version),
			zap.Int("version_applied", versionJumped))
	} else {
		logger.Info("no migrations applied", zap.Int("version", version))
	}
	return nil
}

// isLockRelatedError checks if an error is related to migration lock
// acquisition, either our Redis lock or golang-migrate's locking mechanism.
func isLockRelatedError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	// Check for lock-related error messages:
	// 1. "can't acquire lock" - our Redis lock and database.ErrLocked from
	//    golang-migrate/migrate/v4/database
	// 2. "try lock failed" - returned by postgres driver when pg_advisory_lock() fails
	//    See: https://github.com/golang-migrate/migrate/blob/master/database/postgres/postgres.go
	lockIndicators := []string{
		"can't acquire lock",
		"try lock failed",
	}

	for _, indicator := range lockIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}

	return false
}
