package capability

import (
	"time"
)

// Request is a single capability call. The dispatcher creates one per distinct tag.
type Request struct {
	Tag   Tag
	Query Query
}

// Payload is the capability-specific body of a successful result.
type Payload interface {
	// Tag returns the capability that produced the payload.
	Tag() Tag

	// Empty reports whether the backend answered but found nothing.
	Empty() bool

	// Render returns the Markdown body of the payload. Must be deterministic.
	Render() string
}

// Result is either a Success (Payload set) or a Failure (Failure set).
type Result struct {
	Tag      Tag
	Payload  Payload
	Metadata map[string]string
	Failure  *Failure

	// Elapsed is the wall time of the call. It is never rendered into a report.
	Elapsed time.Duration
}

// Success builds a successful result.
func Success(tag Tag, payload Payload, metadata map[string]string) Result {
	return Result{Tag: tag, Payload: payload, Metadata: metadata}
}

// Failed builds a failed result.
func Failed(tag Tag, reason Reason, detail string) Result {
	return Result{Tag: tag, Failure: &Failure{Reason: reason, Detail: detail}}
}

// OK reports whether the result is a Success.
func (r Result) OK() bool {
	return r.Failure == nil && r.Payload != nil
}

// Outcome is a short label for metrics and logs.
func (r Result) Outcome() string {
	if r.Failure != nil {
		return string(r.Failure.Reason)
	}
	if r.Payload != nil && r.Payload.Empty() {
		return "empty"
	}
	return "ok"
}

// MetadataProvider is implemented by payloads that carry result metadata
// (data source, executed query, freshness).
type MetadataProvider interface {
	Metadata() map[string]string
}
