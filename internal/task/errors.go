package task

import (
	"errors"
	"fmt"
)

// ErrKind classifies an error the way spec §7 does: by taxonomy, not by
// exception text. The worker's retry-vs-DLQ decision is a switch on Kind,
// answering §9's "Error channel" re-architecture hint directly.
type ErrKind int

const (
	// ErrTransient is a retryable infra failure (KV/transport/blob I/O).
	ErrTransient ErrKind = iota
	// ErrValidation is a fatal payload/options violation — no retry.
	ErrValidation
	// ErrLockContention means a required lock is held elsewhere.
	ErrLockContention
	// ErrIntegrity is a checksum mismatch or malformed record.
	ErrIntegrity
	// ErrTimeout means the handler exceeded task.Timeout; treated as transient.
	ErrTimeout
	// ErrTerminalFatal means max_attempts has been reached; DLQ-bound.
	ErrTerminalFatal
)

func (k ErrKind) String() string {
	switch k {
	case ErrValidation:
		return "validation"
	case ErrLockContention:
		return "lock_contention"
	case ErrIntegrity:
		return "integrity"
	case ErrTimeout:
		return "timeout"
	case ErrTerminalFatal:
		return "terminal_fatal"
	default:
		return "transient"
	}
}

// Retryable reports whether the worker should retry (subject to attempts
// budget) rather than go straight to the DLQ.
func (k ErrKind) Retryable() bool {
	return k != ErrValidation && k != ErrTerminalFatal
}

// HandlerError is the result type every handler returns on failure. Pairing
// Kind with Cause lets the worker decide retry vs DLQ without parsing error
// strings.
type HandlerError struct {
	Kind  ErrKind
	Cause error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// NewValidationError builds a fatal, no-retry HandlerError.
func NewValidationError(format string, args ...any) *HandlerError {
	return &HandlerError{Kind: ErrValidation, Cause: fmt.Errorf(format, args...)}
}

// NewTransientError builds a retryable HandlerError.
func NewTransientError(cause error) *HandlerError {
	return &HandlerError{Kind: ErrTransient, Cause: cause}
}

// NewLockContentionError builds a retryable (at the caller's layer)
// lock-contention HandlerError — for per-document indexing, spec §7 treats
// this as transient to the caller.
func NewLockContentionError(lockName string) *HandlerError {
	return &HandlerError{Kind: ErrLockContention, Cause: fmt.Errorf("lock %q held by another owner", lockName)}
}

// NewIntegrityError builds an integrity HandlerError.
func NewIntegrityError(cause error) *HandlerError {
	return &HandlerError{Kind: ErrIntegrity, Cause: cause}
}

// KindOf extracts the ErrKind from err, defaulting to ErrTransient if err is
// not a *HandlerError (e.g. a context deadline from the worker's own
// timeout).
func KindOf(err error) ErrKind {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Kind
	}
	return ErrTransient
}

// ErrInvalidArgument is returned by Scheduler.Enqueue for an unknown kind or
// max_attempts < 1 (spec §4.1).
var ErrInvalidArgument = errors.New("task: invalid argument")

// ErrUnsupportedKind is returned by the Worker when no handler is registered
// for a task's kind (spec §4.3 step 3).
var ErrUnsupportedKind = errors.New("task: unsupported kind")
