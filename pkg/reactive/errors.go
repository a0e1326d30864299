package reactive

import (
	"errors"
	"fmt"
)

// Sentinel errors for the programming-error half of the taxonomy: callers
// are expected to avoid triggering these, not to recover from them
// routinely. They are returned, never panicked, so a caller that does want
// to handle them (e.g. a transport layer turning them into a 409/404) can
// with errors.Is.
var (
	// ErrDuplicateKey is returned when Add is called with a key already
	// present in a keyed source.
	ErrDuplicateKey = errors.New("reactive: duplicate key")
	// ErrAbsentKey is returned when Update or Remove is called with a key
	// that is not currently present in a keyed source.
	ErrAbsentKey = errors.New("reactive: absent key")
	// ErrInvalidPrecondition names the failure kind for an event that breaks
	// the lifetime rules (an Update or Delete without a prior Add, or a second
	// Add on a live token). No function in this package returns it: operators
	// do not check incoming events against those rules.
	ErrInvalidPrecondition = errors.New("reactive: invalid precondition")
)

// UpstreamError wraps an error originating from a bridge's external source
// (the IObservable fed to a single/multi-value bridge, or the snapshot
// stream fed to a snapshot-diff bridge). When a node receives one, it emits
// a Delete event for every member it currently holds, then propagates an
// UpstreamError of its own to its subscribers and ends its broadcaster — the
// "delete-all-then-error" cascade described in SPEC_FULL.md §7.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("reactive: upstream error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err, or returns err unchanged if it is already an
// UpstreamError (the cascade does not double-wrap as it propagates).
func NewUpstreamError(err error) error {
	var existing *UpstreamError
	if errors.As(err, &existing) {
		return err
	}
	return &UpstreamError{Err: err}
}
