package domain

import (
	"errors"
	"fmt"
)

// AdapterErrorKind classifies gateway failures.
type AdapterErrorKind string

const (
	ErrKindTimeout     AdapterErrorKind = "timeout"
	ErrKindRejected    AdapterErrorKind = "rejected"
	ErrKindTransport   AdapterErrorKind = "transport"
	ErrKindCircuitOpen AdapterErrorKind = "circuit_open"
)

// AdapterError is the gateway's terminal failure after retries are exhausted.
type AdapterError struct {
	Kind   AdapterErrorKind
	Venue  string
	Symbol string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("adapter %s: %s %s: %v", e.Kind, e.Venue, e.Symbol, e.Err)
	}
	return fmt.Sprintf("adapter %s: %s: %v", e.Kind, e.Venue, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsCircuitOpen reports whether err is a venue-wide circuit-open failure.
func IsCircuitOpen(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == ErrKindCircuitOpen
}

// SnapshotError marks a fetched state that could not be turned into a
// snapshot. The symbol is dropped from the cycle, never defaulted.
type SnapshotError struct {
	Symbol string
	Field  string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot incomplete for %s: missing %s", e.Symbol, e.Field)
}

// ErrSinkWrite wraps cache/durable-store write failures. Writes degrade
// observability only; the in-memory cycle result remains valid.
var ErrSinkWrite = errors.New("sink write failed")
