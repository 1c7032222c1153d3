package reliable

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorClassifier decides whether a transport failure deserves an in-flight
// retry or should be dropped outright. Sinks with transport-specific
// knowledge (HTTP status codes, SDK error types) should supply their own;
// DefaultClassifier is a reasonable fallback when they don't.
type ErrorClassifier interface {
	IsRecoverable(err error) bool
}

// ClassifierFunc adapts a plain function to ErrorClassifier.
type ClassifierFunc func(err error) bool

// IsRecoverable implements ErrorClassifier.
func (f ClassifierFunc) IsRecoverable(err error) bool { return f(err) }

// DefaultClassifier treats timeouts, network-level failures, and rate
// limiting as recoverable, and everything else as not. Context cancellation
// is never recoverable: the caller is already giving up.
var DefaultClassifier ErrorClassifier = ClassifierFunc(defaultIsRecoverable)

func defaultIsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED),
			errors.Is(opErr.Err, syscall.ECONNRESET),
			errors.Is(opErr.Err, syscall.ENETUNREACH),
			errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return true
		}
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "i/o timeout"):
		return true
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		return true
	default:
		return false
	}
}
