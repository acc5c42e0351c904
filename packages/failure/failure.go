// Package failure classifies everything that can go wrong with a dispatch.
//
// Executor errors are converted into a Failure before they cross the
// manager boundary, so observers never see raw transport errors. The only
// error returned directly to callers is InvalidStateError, which signals a
// lifecycle call made out of order.
package failure

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidState      = errors.New("invalid state")
	ErrTimeout           = errors.New("request timed out")
	ErrCancellationRace  = errors.New("result arrived after cancellation")
	ErrMalformedResponse = errors.New("malformed response")
)

// Kind is the user-visible classification of a failed dispatch.
type Kind int

const (
	KindNetwork Kind = iota
	KindTimeout
	KindBodyRead
	KindMalformedResponse
	KindInvalidRequest
)

var kindNames = map[Kind]string{
	KindNetwork:           "network_error",
	KindTimeout:           "timeout",
	KindBodyRead:          "body_read_error",
	KindMalformedResponse: "malformed_response",
	KindInvalidRequest:    "invalid_request",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind reverses Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindNetwork, false
}

// Title is a short label suitable for a status line.
func (k Kind) Title() string {
	switch k {
	case KindTimeout:
		return "Request Timeout"
	case KindBodyRead:
		return "Body Unreadable"
	case KindMalformedResponse:
		return "Malformed Response"
	case KindInvalidRequest:
		return "Invalid Request"
	default:
		return "Network Error"
	}
}

// InvalidStateError is returned when a lifecycle operation is invoked out
// of order, such as dispatching a manager twice.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: manager is %s", e.Op, e.State)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// BodyReadError means a request body file could not be read at dispatch
// time. The request never reaches the network.
type BodyReadError struct {
	Path string
	Err  error
}

func (e *BodyReadError) Error() string {
	return fmt.Sprintf("read body file %s: %v", e.Path, e.Err)
}

func (e *BodyReadError) Unwrap() error { return e.Err }

// MalformedResponseError means the server answered but the response could
// not be read completely.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedResponse, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// ValidationError is a request rejected before any I/O, e.g. a bad URL.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Failure is the classified outcome delivered to observers.
type Failure struct {
	Kind    Kind
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Cause }
