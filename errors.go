package sourced

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict indicates that the persisted aggregate version
	// does not match the version the aggregate was loaded at. The save call
	// is terminal - the caller must reload the aggregate and retry.
	ErrConcurrencyConflict = errors.New("optimistic concurrency conflict")

	// ErrMissingHandler indicates that no event handler is registered for
	// an event type. This is a wiring defect, not a transient condition.
	ErrMissingHandler = errors.New("no handler registered for event type")
)

// ConflictError is returned by Repository.Save when the optimistic
// concurrency check fails. It unwraps to ErrConcurrencyConflict.
type ConflictError struct {
	AggregateID string
	Expected    uint64
	Actual      uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"aggregate %s: expected version %d, persisted version is %d: %v",
		e.AggregateID, e.Expected, e.Actual, ErrConcurrencyConflict,
	)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }

// ConfigError indicates a repository or dispatcher wiring defect, such as
// a missing event handler. It unwraps to ErrMissingHandler where relevant.
type ConfigError struct {
	EventType string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.EventType != "" {
		return fmt.Sprintf("event type %q: %v", e.EventType, e.Err)
	}

	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// HandlerError wraps a failure raised by a specific event-type handler
// during Save. Handlers appended before the failing one have already run
// and are not undone.
type HandlerError struct {
	EventType string
	EventID   string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q failed (event %s): %v", e.EventType, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
