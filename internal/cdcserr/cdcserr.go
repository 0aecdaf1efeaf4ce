// Package cdcserr defines the closed error taxonomy shared across the
// citation discovery and compilation subsystem, so callers can branch on
// errors.As instead of matching error strings.
package cdcserr

import "fmt"

// TransientAPIError wraps a remote-source error that is safe to retry with
// backoff (timeouts, 5xx, 429).
type TransientAPIError struct {
	Adapter string
	Err     error
}

func (e *TransientAPIError) Error() string {
	return fmt.Sprintf("transient error from %s: %v", e.Adapter, e.Err)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// PermanentAPIError wraps a 4xx (non-429) error that must not be retried.
type PermanentAPIError struct {
	Adapter string
	Err     error
}

func (e *PermanentAPIError) Error() string {
	return fmt.Sprintf("permanent error from %s: %v", e.Adapter, e.Err)
}

func (e *PermanentAPIError) Unwrap() error { return e.Err }

// PlannerSafetyBlocked indicates the LLM planner refused a prompt on safety
// grounds; the caller should rephrase and retry up to a bounded count.
type PlannerSafetyBlocked struct {
	Topic string
}

func (e *PlannerSafetyBlocked) Error() string {
	return fmt.Sprintf("planner safety blocked for topic %q", e.Topic)
}

// PlannerTimeout indicates the planner call exceeded its bounded timeout.
type PlannerTimeout struct {
	Timeout string
}

func (e *PlannerTimeout) Error() string {
	return fmt.Sprintf("planner call timed out after %s", e.Timeout)
}

// ValidationFailure wraps a critical validation issue that should abort
// processing of the citation it refers to.
type ValidationFailure struct {
	CitationID string
	Reason     string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.CitationID, e.Reason)
}

// QualityGateFailure is returned when a run's final citation count falls
// below the minimal tier. FailedQueries is a truncated, enumerable sample.
type QualityGateFailure struct {
	Collected     int
	Target        int
	FailedQueries []string
}

func (e *QualityGateFailure) Error() string {
	return fmt.Sprintf("quality gate failed: collected %d of target %d (%d failed queries)",
		e.Collected, e.Target, len(e.FailedQueries))
}

// NetworkError wraps a low-level network failure that callers may choose to
// recover from locally (e.g. treat as a warning) or surface.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FileIOError wraps a local filesystem failure.
type FileIOError struct {
	Path string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("file io error for %s: %v", e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error { return e.Err }
