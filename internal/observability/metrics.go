package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of tasks in each durable partition.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailforge_queue_depth",
		Help: "Current number of tasks in a queue partition",
	}, []string{"partition"})

	// TasksEnqueued counts tasks admitted to the scheduler, by kind.
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailforge_tasks_enqueued_total",
		Help: "Total number of tasks enqueued",
	}, []string{"kind", "priority"})

	// TasksCompleted counts terminal outcomes by kind and result.
	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailforge_tasks_completed_total",
		Help: "Total number of tasks that reached a terminal state",
	}, []string{"kind", "result"}) // result: completed, failed, cancelled, dead_letter

	// TaskAttempts records attempt count distribution at terminal state.
	TaskAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailforge_task_attempts",
		Help:    "Distribution of attempts consumed per task at terminal state",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	// TaskLatency tracks lease-to-completion wall time.
	TaskLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailforge_task_latency_seconds",
		Help:    "Time from lease acquisition to terminal state",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"kind"})

	// LeaseReaped counts tasks recovered by the stale-lease reaper.
	LeaseReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailforge_lease_reaped_total",
		Help: "Tasks returned to scheduled by the stale-lease reaper",
	})

	// DependentEnqueueFailures counts best-effort completion-hook failures.
	DependentEnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailforge_dependent_enqueue_failures_total",
		Help: "Completion-hook dependent task enqueues that failed",
	})

	// LockContention counts failed lock acquisitions, by lock name prefix.
	LockContention = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailforge_lock_contention_total",
		Help: "Lock acquisition attempts that found the lock already held",
	}, []string{"lock"})

	// IndexedDocuments tracks documents currently indexed, by type.
	IndexedDocuments = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailforge_indexed_documents",
		Help: "Current number of documents in the inverted index",
	}, []string{"type"})

	// IndexingDuration tracks per-document indexing latency.
	IndexingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailforge_indexing_duration_seconds",
		Help:    "Duration of a single document indexing pass",
		Buckets: prometheus.DefBuckets,
	})

	// QueryLatency tracks search query resolution latency.
	QueryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailforge_query_latency_seconds",
		Help:    "Duration of search query resolution",
		Buckets: prometheus.DefBuckets,
	})

	// OptimizerPassDuration tracks optimizer pass latency, by pass name.
	OptimizerPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailforge_optimizer_pass_duration_seconds",
		Help:    "Duration of an index optimizer maintenance pass",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"pass"})

	// IndexHealthStatus exposes the last computed health status (0=healthy,1=degraded,2=unhealthy).
	IndexHealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailforge_index_health_status",
		Help: "Last computed index health status (0=healthy,1=degraded,2=unhealthy)",
	})

	// AlertsActive tracks the number of currently active alerts, by severity.
	AlertsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailforge_alerts_active",
		Help: "Currently active (unresolved) alerts",
	}, []string{"severity"})

	// WorkerSaturation tracks the fraction of the worker pool's semaphore in use.
	WorkerSaturation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailforge_worker_saturation",
		Help: "Fraction of worker pool capacity currently in use",
	})
)
