package sdk

import (
	"errors"
	"fmt"
)

// Common SDK errors that callers can check with errors.Is.
var (
	// ErrInvalidConfig indicates the client configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid client configuration")

	// ErrTransport indicates the request never produced an HTTP response
	// (connection refused, timeout, DNS failure, cancelled context).
	ErrTransport = errors.New("transport failure")

	// ErrProtocol indicates the controller answered with a non-200 status.
	ErrProtocol = errors.New("unexpected status code")

	// ErrApplication indicates a 200 response whose Result was not "ok".
	ErrApplication = errors.New("controller rejected request")

	// ErrMalformed indicates the response body could not be decoded or lacked
	// an expected field.
	ErrMalformed = errors.New("malformed response")
)

// Kind classifies a failed controller call.
type Kind int

const (
	// KindTransport is a failure below HTTP (no response received).
	KindTransport Kind = iota

	// KindProtocol is a non-200 HTTP status.
	KindProtocol

	// KindApplication is a 200 status with a Result other than "ok".
	KindApplication

	// KindMalformed is an undecodable or incomplete response body.
	KindMalformed
)

// String returns the lowercase name of the kind, used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindApplication:
		return "application"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindProtocol:
		return ErrProtocol
	case KindApplication:
		return ErrApplication
	default:
		return ErrMalformed
	}
}

// CallError describes a failed call to a controller endpoint.
type CallError struct {
	// Endpoint is the API path relative to the base URL (e.g. "addtenant").
	Endpoint string

	// Kind classifies the failure.
	Kind Kind

	// StatusCode is the HTTP status, or 0 for transport failures.
	StatusCode int

	// Result is the decoded Result field for application failures.
	Result string

	// Err is the underlying cause, if any.
	Err error
}

func (e *CallError) Error() string {
	switch e.Kind {
	case KindProtocol:
		return fmt.Sprintf("%s: %v: %d", e.Endpoint, ErrProtocol, e.StatusCode)
	case KindApplication:
		return fmt.Sprintf("%s: %v: result %q", e.Endpoint, ErrApplication, e.Result)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Endpoint, e.Kind.sentinel(), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Kind.sentinel())
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *CallError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of a *CallError anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind, true
	}
	return 0, false
}
