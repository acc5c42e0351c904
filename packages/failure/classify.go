package failure

import (
	"context"
	"errors"
	"net"
	"os"
)

// Classify converts an executor error into a Failure. It returns nil for a
// nil error and passes an existing Failure through unchanged.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var bodyErr *BodyReadError
	if errors.As(err, &bodyErr) {
		return &Failure{Kind: KindBodyRead, Message: bodyErr.Error(), Cause: err}
	}

	if isTimeout(err) {
		return &Failure{Kind: KindTimeout, Message: "the server took too long to respond", Cause: err}
	}

	if errors.Is(err, ErrMalformedResponse) {
		return &Failure{Kind: KindMalformedResponse, Message: err.Error(), Cause: err}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return &Failure{Kind: KindInvalidRequest, Message: validationErr.Error(), Cause: err}
	}

	return &Failure{Kind: KindNetwork, Message: err.Error(), Cause: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
