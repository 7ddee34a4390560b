package domain

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrEmptyResponse is returned when the quote source answers with an empty body.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMalformedResponse is returned when the quote source answers with markup
	// (usually an HTML error page) or a non-2xx status.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrParseError is returned when the body does not decode as a quote list.
	ErrParseError = errors.New("parse error")

	// ErrGoalNotFound is returned when removing a goal the user never set.
	// It is user-visible, not a system fault.
	ErrGoalNotFound = errors.New("goal not found")

	// ErrInvalidSymbol is returned for empty or whitespace-only symbols
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidPrice is returned for negative goal prices
	ErrInvalidPrice = errors.New("invalid price")

	// ErrCycleInProgress is returned when an evaluation cycle is triggered while
	// another one is still running.
	ErrCycleInProgress = errors.New("evaluation cycle already in progress")
)

// QuoteError describes a failed quote fetch. Kind is one of ErrEmptyResponse,
// ErrMalformedResponse or ErrParseError.
type QuoteError struct {
	Kind   error
	Status int   // HTTP status code, 0 if unknown
	Err    error // Underlying cause, may be nil
}

func (e *QuoteError) Error() string {
	msg := "quote source: " + e.Kind.Error()
	if e.Status != 0 {
		msg += " (status " + strconv.Itoa(e.Status) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is lets errors.Is match the error against its Kind sentinel.
func (e *QuoteError) Is(target error) bool {
	return target == e.Kind
}

func (e *QuoteError) Unwrap() error {
	return e.Err
}

// NetworkError represents a transport-level failure
type NetworkError struct {
	Op  string // Operation that failed (e.g., "fetch", "dial", "send")
	Err error  // Underlying error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// StorageError represents a failure to read or write the watchlist medium
type StorageError struct {
	Op  string // "load", "save", "add", "remove", "list"
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DeliveryError is a failed notification to a single recipient.
type DeliveryError struct {
	UserID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// MissingPriceError reports a matched quote that carries no last traded price.
type MissingPriceError struct {
	Symbol string
}

func (e *MissingPriceError) Error() string {
	return "quote " + e.Symbol + " has no last traded price"
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
