package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/relay/packages/failure"
	"github.com/abdul-hamid-achik/relay/packages/manager"
)

// Exit codes for the relay CLI
const (
	// ExitSuccess indicates the request completed
	ExitSuccess = 0

	// ExitCheckFailure indicates a completed response failed --schema or --extract
	ExitCheckFailure = 1

	// ExitInvalidRequest indicates the request was rejected before any I/O
	ExitInvalidRequest = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitTimeout indicates the request timed out
	ExitTimeout = 5

	// ExitBodyReadError indicates a body file could not be read
	ExitBodyReadError = 6

	// ExitMalformedResponse indicates the response could not be read
	ExitMalformedResponse = 7

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64

	// ExitCancelled indicates the request was cancelled by an interrupt
	ExitCancelled = 130
)

// exitError carries a specific exit code out of a command. A nil err means
// the command already reported the problem.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCodeFor maps a terminal outcome to the process exit code.
func exitCodeFor(o manager.Outcome) int {
	switch o.State {
	case manager.Completed:
		return ExitSuccess
	case manager.Cancelled:
		return ExitCancelled
	}
	if o.Failure == nil {
		return ExitNetworkError
	}
	switch o.Failure.Kind {
	case failure.KindTimeout:
		return ExitTimeout
	case failure.KindBodyRead:
		return ExitBodyReadError
	case failure.KindMalformedResponse:
		return ExitMalformedResponse
	case failure.KindInvalidRequest:
		return ExitInvalidRequest
	default:
		return ExitNetworkError
	}
}
