package search

import (
	"errors"
	"fmt"
)

// Common errors returned by the search core.
var (
	// ErrInvalidQuery is returned by StartSearch when the query is empty
	// after trimming. No request is issued.
	ErrInvalidQuery = errors.New("invalid query: empty after trimming")

	// ErrUnexpectedStatus wraps every non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrNoResponse is used when a transport reports neither a response nor
	// an error.
	ErrNoResponse = errors.New("transport returned no response")
)

// ErrorKind classifies why a fetch failed.
type ErrorKind int

const (
	// KindTransport is a network-level failure reported by the transport.
	KindTransport ErrorKind = iota + 1

	// KindHTTP is a response with a non-success status code.
	KindHTTP

	// KindDecode is a body that failed structural or required-field checks.
	KindDecode
)

// String returns the label used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTP:
		return "http"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FetchError is carried by the Failed state.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d) fetching %s: %v", e.Kind, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// DecodeError represents a body that could not be turned into a Page.
type DecodeError struct {
	Message string
	Cause   error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("decode error: %s", e.Message)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}
