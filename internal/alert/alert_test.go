package alert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/observability"
)

func TestRaiseAcknowledgeResolve(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	m := New(store, nil, observability.Nop())

	id, err := m.Raise(ctx, "queue_depth", SeverityHigh, "ready partition exceeds threshold")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	active, err := m.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, StateActive, active[0].State)

	require.NoError(t, m.Acknowledge(ctx, id, "operator-1"))
	active, err = m.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, StateAcknowledged, active[0].State)
	require.Equal(t, "operator-1", active[0].AcknowledgedBy)

	require.NoError(t, m.Resolve(ctx, id))
	active, err = m.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestAcknowledgeAfterResolveErrors(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	m := New(store, nil, observability.Nop())

	id, err := m.Raise(ctx, "kv_unreachable", SeverityCritical, "store ping failed")
	require.NoError(t, err)
	require.NoError(t, m.Resolve(ctx, id))

	err = m.Acknowledge(ctx, id, "operator-2")
	require.Error(t, err)
}

func TestRunChecksRaisesOnlyOnViolation(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	m := New(store, nil, observability.Nop())

	m.RegisterCheck("always_ok", func(ctx context.Context) CheckResult {
		return CheckResult{Violated: false}
	})
	m.RegisterCheck("always_bad", func(ctx context.Context) CheckResult {
		return CheckResult{Violated: true, Severity: SeverityMedium, Message: "degraded"}
	})

	m.RunChecks(ctx)

	active, err := m.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "always_bad", active[0].Check)
}
