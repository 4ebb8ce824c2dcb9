package services

import (
	"errors"
	"fmt"
)

// ErrConcurrencyConflict signals a lost optimistic write: the lesson row
// changed between read and conditional update. Callers should re-fetch and
// retry once, not loop.
var ErrConcurrencyConflict = errors.New("concurrent update conflict")

// InvalidTransitionError is returned when a state change is attempted from
// a state that does not allow it. It carries both sides so callers can
// render a specific message instead of a generic failure.
type InvalidTransitionError struct {
	LessonID  uint
	Attempted string
	Current   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %q for lesson %d (current state %q)", e.Attempted, e.LessonID, e.Current)
}

// WindowClosedError is returned when a time-gated action (cancel, join) is
// attempted outside its allowed window. HoursUntil lets the caller present
// the alternative affordance inline.
type WindowClosedError struct {
	Action     string
	HoursUntil float64
}

func (e *WindowClosedError) Error() string {
	return fmt.Sprintf("window closed for %s (%.1f hours until start)", e.Action, e.HoursUntil)
}

// NotProvisionedError marks a resource reference that has not arrived yet
// from its external collaborator. It is a normal transient state, not a
// failure; handlers map it to a disabled affordance.
type NotProvisionedError struct {
	Resource string
}

func (e *NotProvisionedError) Error() string {
	return fmt.Sprintf("%s not provisioned yet", e.Resource)
}

// UpstreamUnavailableError wraps a failed sub-fetch inside the
// availability aggregator. The aggregator isolates it per list and
// degrades to an empty result instead of failing the whole view.
type UpstreamUnavailableError struct {
	Source string
	Err    error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Source, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}
