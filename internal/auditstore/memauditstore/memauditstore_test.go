package memauditstore

import (
	"context"
	"testing"

	"github.com/hookhub/relay/internal/auditstore/driver"
	"github.com/hookhub/relay/internal/auditstore/drivertest"
)

type memAuditStoreHarness struct {
	auditStore driver.AuditStore
}

func (h *memAuditStoreHarness) MakeDriver(ctx context.Context) (driver.AuditStore, error) {
	return h.auditStore, nil
}

func (h *memAuditStoreHarness) Close() {
	// No-op for in-memory store
}

func newHarness(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
	return &memAuditStoreHarness{
		auditStore: NewAuditStore(),
	}, nil
}

func TestMemAuditStoreConformance(t *testing.T) {
	drivertest.RunConformanceTests(t, newHarness)
}
