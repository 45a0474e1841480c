package navigation

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the navigator.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted
	// and no fallback is configured.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled
	// while waiting out a backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents caller-side errors (bad request,
	// cancelled context). Not retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents backend-side errors. Retried.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents throttling by the backend. Retried.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors. Retried.
	ErrorClassNetwork ErrorClass = "network"
)

// Error is a classified fetch error. Operations may return it to steer
// the navigator's retry decision; unclassified errors go through the
// default classifier.
type Error struct {
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to an error class.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassServer
	}
}

// defaultClassify classifies arbitrary operation errors. Typed *Error
// values keep their class; context and network errors map to their
// classes; everything else is treated as a server error.
func defaultClassify(err error) ErrorClass {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Class
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassClient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassNetwork
	}
	return ErrorClassServer
}

// shouldRetry determines if an error class is worth retrying.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
