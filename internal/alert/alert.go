// Package alert implements the Alert / Health Monitor (component J):
// periodic health checks synthesized from the Scheduler, Indexer, and
// Optimizer's own statistics, converted into alert records stored in the
// KV Substrate's `alerts` sorted set (spec §4.9).
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/observability"
)

// Severity is one rung of spec §4.9's severity ladder.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// State tracks an alert's lifecycle: active -> acknowledged, and
// (from either) -> resolved, which is terminal.
type State string

const (
	StateActive       State = "active"
	StateAcknowledged State = "acknowledged"
	StateResolved     State = "resolved"
)

// Alert is the detail record stored in alert:{id}.
type Alert struct {
	ID             string   `json:"id"`
	Check          string   `json:"check"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	State          State    `json:"state"`
	CreatedAt      int64    `json:"created_at"`
	AcknowledgedBy string   `json:"acknowledged_by,omitempty"`
	AcknowledgedAt int64    `json:"acknowledged_at,omitempty"`
	ResolvedAt     int64    `json:"resolved_at,omitempty"`
}

// CheckResult is what a CheckFunc reports.
type CheckResult struct {
	Violated bool
	Severity Severity
	Message  string
}

// CheckFunc is a registered health check (spec §4.9: "KV reachability,
// document store reachability, queue depth, storage stats" — each wired in
// by the caller against the concrete component it inspects, keeping this
// package decoupled from the Scheduler/Indexer/Optimizer it monitors).
type CheckFunc func(ctx context.Context) CheckResult

const alertsKey = "alerts"

func alertKey(id string) string { return "alert:" + id }

// Monitor runs registered checks on an interval and manages the resulting
// alert records.
type Monitor struct {
	store  kv.Store
	checks map[string]CheckFunc
	log    *zap.Logger
	hub    *Hub
}

// New builds a Monitor. hub may be nil if no live event stream is wanted.
func New(store kv.Store, hub *Hub, log *zap.Logger) *Monitor {
	if log == nil {
		log = observability.Nop()
	}
	return &Monitor{store: store, checks: make(map[string]CheckFunc), log: log, hub: hub}
}

// RegisterCheck binds name to fn.
func (m *Monitor) RegisterCheck(name string, fn CheckFunc) {
	m.checks[name] = fn
}

// Run blocks, running all registered checks every interval until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunChecks(ctx)
		}
	}
}

// RunChecks executes every registered check once, raising an alert for each
// violation found.
func (m *Monitor) RunChecks(ctx context.Context) {
	for name, fn := range m.checks {
		result := fn(ctx)
		if !result.Violated {
			continue
		}
		if _, err := m.Raise(ctx, name, result.Severity, result.Message); err != nil {
			m.log.Warn("alert: raising alert failed", zap.String("check", name), zap.Error(err))
		}
	}
}

// Raise creates a new active alert.
func (m *Monitor) Raise(ctx context.Context, check string, severity Severity, message string) (string, error) {
	now := time.Now()
	a := &Alert{
		ID:        uuid.NewString(),
		Check:     check,
		Severity:  severity,
		Message:   message,
		State:     StateActive,
		CreatedAt: now.UnixMilli(),
	}
	if err := m.write(ctx, a, float64(now.UnixMilli())); err != nil {
		return "", err
	}
	observability.AlertsActive.WithLabelValues(string(severity)).Inc()
	m.log.Warn("alert raised", zap.String("check", check), zap.String("severity", string(severity)), zap.String("message", message))
	if m.hub != nil {
		m.hub.Broadcast(a)
	}
	return a.ID, nil
}

// Acknowledge records who/when an active alert was acknowledged.
func (m *Monitor) Acknowledge(ctx context.Context, id, by string) error {
	a, ok, err := m.get(ctx, id)
	if err != nil || !ok {
		return err
	}
	if a.State == StateResolved {
		return fmt.Errorf("alert: %q is already resolved", id)
	}
	a.State = StateAcknowledged
	a.AcknowledgedBy = by
	a.AcknowledgedAt = time.Now().UnixMilli()
	if err := m.write(ctx, a, float64(a.CreatedAt)); err != nil {
		return err
	}
	if m.hub != nil {
		m.hub.Broadcast(a)
	}
	return nil
}

// Resolve is terminal: once resolved, an alert cannot transition further.
func (m *Monitor) Resolve(ctx context.Context, id string) error {
	a, ok, err := m.get(ctx, id)
	if err != nil || !ok {
		return err
	}
	wasActive := a.State != StateResolved
	a.State = StateResolved
	a.ResolvedAt = time.Now().UnixMilli()
	if err := m.write(ctx, a, float64(a.CreatedAt)); err != nil {
		return err
	}
	if wasActive {
		observability.AlertsActive.WithLabelValues(string(a.Severity)).Dec()
	}
	if m.hub != nil {
		m.hub.Broadcast(a)
	}
	return nil
}

// ListActive returns alerts in {active, acknowledged} state, newest first.
func (m *Monitor) ListActive(ctx context.Context, limit int64) ([]*Alert, error) {
	members, err := m.store.ZRevRange(ctx, alertsKey, 0, limit-1)
	if err != nil {
		return nil, err
	}
	var out []*Alert
	for _, mem := range members {
		a, ok, err := m.get(ctx, mem.Value)
		if err != nil || !ok {
			continue
		}
		if a.State != StateResolved {
			out = append(out, a)
		}
	}
	return out, nil
}

// alertDataField is the single hash field each alert:{id} record is stored
// under, matching the persisted key layout's "alert:{id} (hash)" shape.
const alertDataField = "data"

func (m *Monitor) get(ctx context.Context, id string) (*Alert, bool, error) {
	raw, ok, err := m.store.HGet(ctx, alertKey(id), alertDataField)
	if err != nil || !ok {
		return nil, ok, err
	}
	var a Alert
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, false, fmt.Errorf("alert: decoding %q: %w", id, err)
	}
	return &a, true, nil
}

func (m *Monitor) write(ctx context.Context, a *Alert, score float64) error {
	buf, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("alert: encoding %q: %w", a.ID, err)
	}
	p := m.store.Pipeline()
	p.ZAdd(alertsKey, a.ID, score)
	p.HSet(alertKey(a.ID), alertDataField, string(buf))
	return p.Exec(ctx)
}
