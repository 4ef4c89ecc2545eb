// Package task defines the Task Record (component C): the durable value type
// and codec every other component exchanges through the KV Substrate.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts is the max_attempts applied when EnqueueOptions leaves
// it at its zero value (spec §4.1: "defaults to 3 if unspecified").
const DefaultMaxAttempts = 3

// Kind is the closed set of task kinds from spec §3 / §4.5.
type Kind string

const (
	KindProcessEmail       Kind = "process_email"
	KindSendEmail          Kind = "send_email"
	KindProcessAttachments Kind = "process_attachments"
	KindGenerateAnalytics  Kind = "generate_analytics"
	KindCleanupStorage     Kind = "cleanup_storage"
	KindIndexSearch        Kind = "index_search"
	KindUpdateThread       Kind = "update_thread"
	KindSendNotification   Kind = "send_notification"
)

// KnownKinds enumerates the closed set; Scheduler.Enqueue rejects anything
// else with ErrInvalidArgument.
var KnownKinds = map[Kind]bool{
	KindProcessEmail:       true,
	KindSendEmail:          true,
	KindProcessAttachments: true,
	KindGenerateAnalytics:  true,
	KindCleanupStorage:     true,
	KindIndexSearch:        true,
	KindUpdateThread:       true,
	KindSendNotification:   true,
}

// Priority is one of the three priority classes in spec §3.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Weight returns priority_weight(priority) from spec §4.1.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityHigh:
		return 1_000_000
	case PriorityLow:
		return 10_000
	default:
		return 100_000
	}
}

// Status is one of the lifecycle states in spec §3.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// DependentTask is one entry of Task.Metadata["dependent_tasks"] (spec §4.1
// completion hook).
type DependentTask struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Opts    EnqueueOptions  `json:"opts"`
}

// Task is the durable record described in spec §3.
type Task struct {
	ID              string            `json:"id"`
	Kind            Kind              `json:"kind"`
	Payload         json.RawMessage   `json:"payload"`
	Priority        Priority          `json:"priority"`
	Status          Status            `json:"status"`
	Attempts        int               `json:"attempts"`
	MaxAttempts     int               `json:"max_attempts"`
	CreatedAt       time.Time         `json:"created_at"`
	ScheduledFor    time.Time         `json:"scheduled_for"`
	LastAttemptAt   *time.Time        `json:"last_attempt_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	Error           string            `json:"error,omitempty"`
	CorrelationID   string            `json:"correlation_id"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	Timeout         time.Duration     `json:"timeout"`
	Progress        int               `json:"progress"`
}

// DependentTasks decodes Metadata["dependent_tasks"], if present.
func (t *Task) DependentTasks() ([]DependentTask, error) {
	raw, ok := t.Metadata["dependent_tasks"]
	if !ok {
		return nil, nil
	}
	// Metadata round-trips through JSON, so raw is already []interface{};
	// re-marshal/unmarshal is the simplest correct way to recover the typed
	// slice without a bespoke walk of map[string]any.
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var deps []DependentTask
	if err := json.Unmarshal(buf, &deps); err != nil {
		return nil, fmt.Errorf("task: decoding dependent_tasks: %w", err)
	}
	return deps, nil
}

// EnqueueOptions are the optional fields accepted by Scheduler.Enqueue
// (spec §4.1).
type EnqueueOptions struct {
	Priority     Priority       `json:"priority,omitempty"`
	ScheduledFor time.Time      `json:"scheduled_for,omitempty"`
	MaxAttempts  int            `json:"max_attempts,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timeout      time.Duration  `json:"timeout,omitempty"`
}

// New builds a fresh Task for enqueue: random id, fresh correlation id,
// normalized defaults. It does not decide ready vs scheduled placement —
// that's the Scheduler's job.
func New(kind Kind, payload json.RawMessage, opts EnqueueOptions) *Task {
	now := time.Now()
	priority := opts.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	scheduledFor := opts.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	return &Task{
		ID:            uuid.NewString(),
		Kind:          kind,
		Payload:       payload,
		Priority:      priority,
		Status:        StatusPending,
		Attempts:      0,
		MaxAttempts:   maxAttempts,
		CreatedAt:     now,
		ScheduledFor:  scheduledFor,
		CorrelationID: uuid.NewString(),
		Metadata:      opts.Metadata,
		Timeout:       timeout,
	}
}

// Encode serializes a Task for storage as a sorted-set member / hash value.
func Encode(t *Task) (string, error) {
	buf, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("task: encode: %w", err)
	}
	return string(buf), nil
}

// Decode parses a serialized Task record.
func Decode(raw string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("task: decode: %w", err)
	}
	return &t, nil
}

// StatusRecord is the value stored in the `status` hash (spec §3).
type StatusRecord struct {
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Progress      int        `json:"progress"`
}

func (t *Task) StatusRecord() StatusRecord {
	return StatusRecord{
		Status:        t.Status,
		Attempts:      t.Attempts,
		LastAttemptAt: t.LastAttemptAt,
		Error:         t.Error,
		CompletedAt:   t.CompletedAt,
		Progress:      t.Progress,
	}
}
