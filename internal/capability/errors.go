package capability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	// ErrBackendUnreachable means the backend could not be contacted.
	ErrBackendUnreachable = errors.New("backend unreachable")

	// ErrBackendTimeout means the backend did not answer within the request timeout.
	ErrBackendTimeout = errors.New("backend timeout")

	// ErrBackendMalformed means the backend answered with something that could not be used.
	ErrBackendMalformed = errors.New("malformed backend response")

	// ErrUnroutable means no capability matched the query.
	ErrUnroutable = errors.New("unroutable query")

	// ErrUnknownCapability is a configuration defect: a tag outside the vocabulary
	// or a tag with no adapter bound to it.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrCancelled means the query ended before the backend answered.
	ErrCancelled = errors.New("cancelled")
)

// Malformed returns an error wrapping ErrBackendMalformed.
func Malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBackendMalformed, fmt.Sprintf(format, args...))
}

// Unreachable returns an error wrapping ErrBackendUnreachable.
func Unreachable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBackendUnreachable, fmt.Sprintf(format, args...))
}

// Reason is the machine-readable cause of a Failure.
type Reason string

const (
	ReasonUnreachable Reason = "unreachable"
	ReasonTimeout     Reason = "timeout"
	ReasonMalformed   Reason = "malformed"
	ReasonCancelled   Reason = "cancelled"
)

// Err returns the sentinel error for the reason.
func (r Reason) Err() error {
	switch r {
	case ReasonTimeout:
		return ErrBackendTimeout
	case ReasonMalformed:
		return ErrBackendMalformed
	case ReasonCancelled:
		return ErrCancelled
	default:
		return ErrBackendUnreachable
	}
}

// Failure describes why a capability produced no payload.
type Failure struct {
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (f Failure) String() string {
	if f.Detail == "" {
		return string(f.Reason)
	}
	return string(f.Reason) + ": " + f.Detail
}

// Unwrap lets callers use errors.Is against the taxonomy sentinels.
func (f *Failure) Unwrap() error { return f.Reason.Err() }

func (f *Failure) Error() string { return f.String() }

// FailureFrom classifies err into a Failure. Unknown errors count as unreachable.
func FailureFrom(err error) Failure {
	detail := err.Error()
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return Failure{Reason: ReasonCancelled, Detail: detail}
	case errors.Is(err, ErrBackendTimeout), errors.Is(err, context.DeadlineExceeded):
		return Failure{Reason: ReasonTimeout, Detail: detail}
	case errors.Is(err, ErrBackendMalformed):
		return Failure{Reason: ReasonMalformed, Detail: detail}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failure{Reason: ReasonTimeout, Detail: detail}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return Failure{Reason: ReasonTimeout, Detail: detail}
	}
	return Failure{Reason: ReasonUnreachable, Detail: detail}
}
