package client

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the tracked quota is exhausted and the
// request was not sent.
var ErrRateLimited = errors.New("rate limit exhausted")

// RequestError represents a failed GitHub request with additional context.
type RequestError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("github %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("github %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Class returns the classification of err if it is a *RequestError.
func Class(err error) (ErrorClass, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ErrorClass, true
	}
	return "", false
}
