package main

import (
	"context"

	"github.com/itskum47/mailforge/internal/alert"
	"github.com/itskum47/mailforge/internal/collaborators/docstore"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/optimizer"
	"github.com/itskum47/mailforge/internal/scheduler"
)

const (
	queueDepthWarn     = 10_000
	indexStorageWarnGB = 1
)

// wireHealthChecks registers the Alert Monitor's checks against the concrete
// components it observes (spec §4.9: KV reachability, document store
// reachability, queue depth, storage stats), keeping the alert package
// itself free of any dependency on them.
func wireHealthChecks(m *alert.Monitor, sched *scheduler.Scheduler, opt *optimizer.Optimizer, store kv.Store, docs docstore.Store) {
	m.RegisterCheck("kv_reachable", func(ctx context.Context) alert.CheckResult {
		if _, _, err := store.Get(ctx, "health:ping"); err != nil {
			return alert.CheckResult{Violated: true, Severity: alert.SeverityCritical, Message: "KV substrate unreachable: " + err.Error()}
		}
		return alert.CheckResult{}
	})

	m.RegisterCheck("queue_depth", func(ctx context.Context) alert.CheckResult {
		snap, err := sched.Snapshot(ctx)
		if err != nil {
			return alert.CheckResult{Violated: true, Severity: alert.SeverityMedium, Message: "snapshot failed: " + err.Error()}
		}
		if snap.Ready+snap.Scheduled > queueDepthWarn {
			return alert.CheckResult{Violated: true, Severity: alert.SeverityMedium, Message: "ready+scheduled queue depth exceeds threshold"}
		}
		return alert.CheckResult{}
	})

	m.RegisterCheck("index_health", func(ctx context.Context) alert.CheckResult {
		report, err := opt.Analyze(ctx)
		if err != nil {
			return alert.CheckResult{Violated: true, Severity: alert.SeverityMedium, Message: "health analysis failed: " + err.Error()}
		}
		switch report.Status {
		case optimizer.StatusUnhealthy:
			return alert.CheckResult{Violated: true, Severity: alert.SeverityHigh, Message: "index health unhealthy"}
		case optimizer.StatusDegraded:
			return alert.CheckResult{Violated: true, Severity: alert.SeverityLow, Message: "index health degraded"}
		}
		return alert.CheckResult{}
	})

	m.RegisterCheck("docstore_reachable", func(ctx context.Context) alert.CheckResult {
		if !docsPing(ctx, docs) {
			return alert.CheckResult{Violated: true, Severity: alert.SeverityCritical, Message: "document store unreachable"}
		}
		return alert.CheckResult{}
	})
}

// docsPing proves document store reachability: GetEmail against a sentinel
// id returns either a found/not-found answer (both healthy) or an error
// (unhealthy) — no dedicated ping method exists on docstore.Store.
func docsPing(ctx context.Context, docs docstore.Store) bool {
	_, _, err := docs.GetEmail(ctx, "health:ping")
	return err == nil
}
