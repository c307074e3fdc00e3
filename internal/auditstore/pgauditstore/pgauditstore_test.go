package pgauditstore

import (
	"context"
	"testing"

	"github.com/hookhub/relay/internal/auditstore/driver"
	"github.com/hookhub/relay/internal/auditstore/drivertest"
	"github.com/hookhub/relay/internal/migrator"
	"github.com/hookhub/relay/internal/util/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

type pgAuditStoreHarness struct {
	pool *pgxpool.Pool
}

func (h *pgAuditStoreHarness) MakeDriver(ctx context.Context) (driver.AuditStore, error) {
	return NewAuditStore(h.pool), nil
}

func (h *pgAuditStoreHarness) Close() {
	h.pool.Close()
}

func newHarness(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("relay"),
		tcpostgres.WithUsername("relay"),
		tcpostgres.WithPassword("relay"),
		tcpostgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if container != nil {
			_ = container.Terminate(context.Background())
		}
	})
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrator.New(migrator.MigrationOpts{PG: migrator.MigrationOptsPG{URL: url}})
	require.NoError(t, err)
	defer m.Close(ctx)
	_, _, err = m.Up(ctx, -1)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)

	return &pgAuditStoreHarness{pool: pool}, nil
}

func TestPGAuditStoreConformance(t *testing.T) {
	testutil.Integration(t)
	drivertest.RunConformanceTests(t, newHarness)
}
