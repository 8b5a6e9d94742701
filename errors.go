package chatbridge

import (
	"errors"
	"fmt"
)

// Error represents a chat bridge error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for bridge operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a chat store operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeDecode indicates a malformed log record. The record is skipped.
	ErrCodeDecode = "DECODE_ERROR"

	// ErrCodeSerialization indicates a payload could not be encoded for the log.
	ErrCodeSerialization = "SERIALIZATION_ERROR"

	// ErrCodePublish indicates the broker client refused to enqueue a record.
	// Publish errors are retryable.
	ErrCodePublish = "PUBLISH_ERROR"

	// ErrCodeBackpressure indicates one subscriber was too slow and a delivery was dropped.
	ErrCodeBackpressure = "BACKPRESSURE_ERROR"

	// ErrCodeBrokerFatal indicates a broker failure (auth, missing topic, closed client)
	// that terminates the consumer loop.
	ErrCodeBrokerFatal = "BROKER_FATAL"

	// ErrCodeSinkWrite indicates writing to a connected client failed.
	ErrCodeSinkWrite = "SINK_WRITE_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrDoubleAck is returned when an AckHandle is acknowledged (or released) more than once.
	// The extra call has no effect on offset state.
	ErrDoubleAck = errors.New("delivery already acknowledged or released")

	// ErrSubscriberEvicted is returned by Streamer.Serve when the consumer loop
	// detached the subscriber after repeated backpressure drops.
	ErrSubscriberEvicted = errors.New("subscriber evicted after repeated backpressure drops")

	// ErrClosed is returned by log clients that have been closed.
	ErrClosed = errors.New("log client closed")
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// HasCode reports whether err is (or wraps) an *Error with the given code.
func HasCode(err error, code string) bool {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Code == code
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return HasCode(err, ErrCodeNoData)
}

// IsRetryable reports whether the operation that returned err may succeed if repeated.
func IsRetryable(err error) bool {
	return HasCode(err, ErrCodePublish)
}

// IsBrokerFatal reports whether err is a fatal broker error.
func IsBrokerFatal(err error) bool {
	return HasCode(err, ErrCodeBrokerFatal)
}
