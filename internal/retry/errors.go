package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// Kind classifies why a remote call (or the job that issued it) failed.
type Kind string

const (
	// KindTransient is a retryable failure: timeouts, connection resets, 5xx.
	KindTransient Kind = "transient"
	// KindFatal is a non-retryable failure: 4xx, malformed or missing payload.
	KindFatal Kind = "fatal"
	// KindRetriesExhausted wraps the last transient failure once the attempt cap is hit.
	KindRetriesExhausted Kind = "retries_exhausted"
	// KindCancelled is a batch-level abort observed at a suspension point.
	KindCancelled Kind = "cancelled"
)

// TransientError is a failure that may succeed if the call is repeated.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transient failure (http %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError is a failure that repeating the call will not fix.
type FatalError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: fatal failure (http %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: fatal failure: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned once every attempt failed with a transient error.
type ExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// CancelledError is returned when the caller's context ends before the call completes.
type CancelledError struct {
	Label string
	Err   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s cancelled: %v", e.Label, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError for op.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Fatal wraps err as a FatalError for op.
func Fatal(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}

// Fatalf builds a FatalError from a format string.
func Fatalf(op, format string, args ...any) error {
	return &FatalError{Op: op, Err: fmt.Errorf(format, args...)}
}

// StatusError classifies a non-2xx HTTP response. 408, 429 and 5xx are
// transient; every other status is fatal.
func StatusError(op string, statusCode int, body string) error {
	cause := fmt.Errorf("%s", truncate(strings.TrimSpace(body), 200))
	if IsRetryableStatus(statusCode) {
		return &TransientError{Op: op, StatusCode: statusCode, Err: cause}
	}
	return &FatalError{Op: op, StatusCode: statusCode, Err: cause}
}

// IsRetryableStatus reports whether an HTTP status code is worth retrying.
func IsRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

// Classify returns err typed as CancelledError, TransientError or FatalError.
// Errors that are already typed are returned unchanged. Context cancellation
// is checked first so a transport error wrapping it is not retried. Network
// failures and attempt deadlines are transient; everything else is fatal.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var transient *TransientError
	var fatal *FatalError
	var exhausted *ExhaustedError
	var cancelled *CancelledError
	if errors.As(err, &transient) || errors.As(err, &fatal) ||
		errors.As(err, &exhausted) || errors.As(err, &cancelled) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &CancelledError{Label: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return Transient(op, err)
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EPIPE):
		return Transient(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(op, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Transient(op, err)
	}

	return Fatal(op, err)
}

// KindOf reports the Kind of err. Untyped errors are treated as fatal.
func KindOf(err error) Kind {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return KindRetriesExhausted
	}
	var cancelled *CancelledError
	if errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return KindTransient
	}
	return KindFatal
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
