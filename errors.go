package jido

import (
	"errors"
	"fmt"
)

// Kind is the top-level error taxonomy leaf carried by *Error.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindRouting        Kind = "routing_error"
	KindExecution      Kind = "execution_error"
	KindStorage        Kind = "storage_error"
	KindTimeout        Kind = "timeout"
	KindQueueOverflow  Kind = "queue_overflow"
	KindInvalidAgent   Kind = "invalid_agent"
	KindMissingAgentID Kind = "missing_agent_id"
	KindInvalidStorage Kind = "invalid_storage"
	KindInvalidSignal  Kind = "invalid_signal"
)

// Routing sub-kinds (§4.1, §7).
const (
	RoutingConsecutiveDots    = "consecutive_dots"
	RoutingDoubleStarNotAlone = "double_star_not_alone"
	RoutingInvalidCharacters  = "invalid_characters"
	RoutingInvalidPriority    = "invalid_priority"
	RoutingInvalidMatchArity  = "invalid_match_arity"
	RoutingInvalidTarget      = "invalid_target"
	RoutingUnknownPath        = "unknown_path"
)

// Storage sub-kinds (§4.6, §7).
const (
	StorageNotFound               = "not_found"
	StorageConflict               = "conflict"
	StorageInvalidThreadRevision  = "invalid_thread_revision"
	StorageThreadRevRegression    = "thread_rev_regression"
	StorageThreadHistoryTruncated = "thread_history_truncated"
	StorageThreadMismatch         = "thread_mismatch"
	StorageMissingThread          = "missing_thread"
)

// Sentinel errors for errors.Is comparisons. Wrap these with *Error via
// Wrap/Wrapf to attach an operation name and the taxonomy Kind.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrQueueOverflow   = errors.New("queue overflow")
	ErrInvalidAgent    = errors.New("invalid agent")
	ErrMissingAgentID  = errors.New("missing agent id")
	ErrInvalidStorage  = errors.New("invalid storage")
	ErrInvalidSignal   = errors.New("invalid signal")
	ErrThreadMismatch  = errors.New("thread mismatch")
	ErrMissingThread   = errors.New("missing thread")
	ErrUnknownDirective = errors.New("unknown directive")
)

// Error is the L2 wrapper: an operation name, a taxonomy Kind, a sub-kind
// detail string (routing_error.kind / storage_error.kind), a message, and
// an optional wrapped cause.
type Error struct {
	Op      string
	Kind    Kind
	Detail  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s{%s}", msg, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(op string, kind Kind, message string) error {
	return &Error{Op: op, Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(op string, kind Kind, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a taxonomy sub-kind (e.g. a routing_error.kind or a
// storage_error.kind) to an *Error built via New/Newf/Wrap/Wrapf.
func WithDetail(err error, detail string) error {
	var e *Error
	if errors.As(err, &e) {
		e.Detail = detail
	}
	return err
}

// Wrap attaches an operation name, Kind and message to an existing cause.
func Wrap(err error, op string, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, op string, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// RoutingError builds a routing_error{kind} per §4.1/§7.
func RoutingError(op, detail, message string) error {
	return &Error{Op: op, Kind: KindRouting, Detail: detail, Message: message}
}

// StorageError builds a storage_error{kind} per §4.6/§7.
func StorageError(op, detail string, cause error) error {
	return &Error{Op: op, Kind: KindStorage, Detail: detail, Message: detail, Err: cause}
}

// TimeoutError builds a timeout{diagnostic} per §5/§7. diagnostic must be
// non-empty; callers should populate it with lifecycle state, queue length,
// drain iteration and elapsed time.
type TimeoutError struct {
	Op         string
	Diagnostic map[string]any
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout: %v", e.Op, e.Diagnostic)
}

func (e *TimeoutError) Kind() Kind { return KindTimeout }

// IsKind reports whether err (or something it wraps) is an *Error of the
// given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	if kind == KindTimeout {
		var t *TimeoutError
		return errors.As(err, &t)
	}
	return false
}
