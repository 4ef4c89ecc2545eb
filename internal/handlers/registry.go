// Package handlers implements the Handler Registry (component F): the
// mapping from task kind to handler, and the eight typed handlers
// themselves (spec §4.4, §4.5).
package handlers

import (
	"context"

	"github.com/itskum47/mailforge/internal/task"
)

// ProgressFunc reports a handler's completion percentage back to the
// scheduler (spec §4.4: "emitting progress via scheduler.update_progress for
// long-running work").
type ProgressFunc func(percent int)

// Handler is the async handler signature from spec §4.4: (payload, env) ->
// result. Here "env" is folded into the context (for cancellation) and the
// ProgressFunc (for progress reporting); the payload lives on t.Payload.
//
// A returned error should be a *task.HandlerError so the worker can switch
// on Kind for the retry-vs-DLQ decision; any other error is treated as
// ErrTransient.
type Handler interface {
	Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, t *task.Task, progress ProgressFunc) error

func (f HandlerFunc) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	return f(ctx, t, progress)
}

// Registry maps each of the eight closed task kinds to its Handler.
type Registry struct {
	handlers map[task.Kind]Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[task.Kind]Handler)}
}

// Register binds kind to h, overwriting any previous binding.
func (r *Registry) Register(kind task.Kind, h Handler) {
	r.handlers[kind] = h
}

// Resolve looks up the handler for kind (spec §4.3 step 3).
func (r *Registry) Resolve(kind task.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}
