package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/hookhub/relay/internal/redis"
)

const (
	relayrcKey      = "relayrc"
	installationKey = "installation"
)

// getInstallation returns a stable identifier for this deployment, creating
// one on first startup.
func getInstallation(ctx context.Context, redisClient redis.Cmdable) (string, error) {
	// First attempt: try to get existing installation ID
	installationID, err := redisClient.HGet(ctx, relayrcKey, installationKey).Result()
	if err == nil {
		return installationID, nil
	}

	if err != redis.Nil {
		return "", err
	}

	// Installation ID doesn't exist, create one atomically
	newInstallationID := uuid.New().String()

	// Use HSETNX to atomically set the installation ID only if it doesn't exist
	// This prevents race conditions when multiple instances start simultaneously
	wasSet, err := redisClient.HSetNX(ctx, relayrcKey, installationKey, newInstallationID).Result()
	if err != nil {
		return "", err
	}

	if wasSet {
		return newInstallationID, nil
	}

	// Another instance set the installation ID while we were generating ours
	// Fetch the installation ID that was actually set
	installationID, err = redisClient.HGet(ctx, relayrcKey, installationKey).Result()
	if err != nil {
		return "", err
	}

	return installationID, nil
}
