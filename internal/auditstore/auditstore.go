// Package auditstore persists error classification rows. Redis is the
// default driver; Postgres is available for deployments that want the audit
// trail in relational storage, and an in-memory driver backs tests.
package auditstore

import (
	"context"
	"errors"

	"github.com/hookhub/relay/internal/auditstore/driver"
	"github.com/hookhub/relay/internal/auditstore/memauditstore"
	"github.com/hookhub/relay/internal/auditstore/pgauditstore"
	"github.com/hookhub/relay/internal/auditstore/redisauditstore"
	"github.com/hookhub/relay/internal/redis"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditStore = driver.AuditStore

type DriverOpts struct {
	PG    *pgxpool.Pool
	Redis redis.Cmdable
}

func (d *DriverOpts) Close() error {
	if d.PG != nil {
		d.PG.Close()
	}
	return nil
}

func NewAuditStore(ctx context.Context, driverOpts DriverOpts) (AuditStore, error) {
	if driverOpts.PG != nil {
		return pgauditstore.NewAuditStore(driverOpts.PG), nil
	}
	if driverOpts.Redis != nil {
		return redisauditstore.NewAuditStore(driverOpts.Redis), nil
	}
	return nil, errors.New("no driver provided")
}

// NewMemAuditStore returns an in-memory audit store for testing.
func NewMemAuditStore() AuditStore {
	return memauditstore.NewAuditStore()
}

type Config struct {
	// PostgresURL switches the audit trail to Postgres when set.
	PostgresURL string
}

func MakeDriverOpts(ctx context.Context, cfg Config, redisClient redis.Cmdable) (DriverOpts, error) {
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return DriverOpts{}, err
		}
		return DriverOpts{PG: pool}, nil
	}
	return DriverOpts{Redis: redisClient}, nil
}
