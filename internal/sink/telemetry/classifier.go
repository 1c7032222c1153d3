package telemetry

import (
	"errors"
	"fmt"

	"github.com/vitaliisemenov/agentcore/internal/sink/reliable"
)

// StatusError wraps a non-2xx response from the telemetry endpoint so the
// classifier can key off the status code instead of string-matching.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telemetry endpoint returned status %d", e.StatusCode)
}

// statusClassifier treats 429 and 5xx as recoverable (the remote is
// overloaded or transiently broken) and any other 4xx as non-recoverable
// (the batch itself is rejected and retrying it changes nothing); any other
// error falls through to the shared string/type classifier.
type statusClassifier struct {
	fallback reliable.ErrorClassifier
}

func newStatusClassifier() reliable.ErrorClassifier {
	return statusClassifier{fallback: reliable.DefaultClassifier}
}

func (c statusClassifier) IsRecoverable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}
	return c.fallback.IsRecoverable(err)
}
