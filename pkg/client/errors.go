package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrMalformedBody is returned when a 2xx response body is not valid JSON.
	ErrMalformedBody = errors.New("malformed response body")
)

// ErrorClass classifies a fetch failure for retry decisions.
type ErrorClass string

const (
	// ClassTransient covers timeouts, HTTP 429, 5xx, and connection
	// failures. Transient errors are retried up to the attempt limit.
	ClassTransient ErrorClass = "transient"

	// ClassPermanent covers non-429 4xx responses and malformed bodies.
	// Permanent errors fail immediately without retry.
	ClassPermanent ErrorClass = "permanent"
)

// FetchError describes a failed fetch with its retry classification.
type FetchError struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s failure (status %d)", e.URL, e.Class, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s failure: %v", e.URL, e.Class, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s failure", e.URL, e.Class)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class == ClassTransient
	}
	return false
}

// classifyStatus maps a non-2xx HTTP status to an error class. 429 and 5xx
// are worth retrying; every other client error is final.
func classifyStatus(status int) ErrorClass {
	if status == http.StatusTooManyRequests || status >= 500 {
		return ClassTransient
	}
	return ClassPermanent
}
