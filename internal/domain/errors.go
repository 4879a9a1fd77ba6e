package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrRequestTimeout is the cancellation cause set when a request outlives its timeout.
var ErrRequestTimeout = errors.New("request timed out")

// ErrorKind classifies a completion failure.
type ErrorKind int

const (
	// KindValidation: the model configuration is missing or malformed.
	KindValidation ErrorKind = iota + 1
	// KindNetwork: transport failure.
	KindNetwork
	// KindHTTPStatus: the endpoint answered with a non-2xx status.
	KindHTTPStatus
	// KindProtocol: a malformed stream event. Recovered inside the decoder.
	KindProtocol
	// KindAborted: user- or timeout-triggered cancellation.
	KindAborted
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindProtocol:
		return "protocol"
	case KindAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// AbortReason says who cancelled a completion.
type AbortReason string

const (
	AbortByUser    AbortReason = "user"
	AbortByTimeout AbortReason = "timeout"
)

// CompletionError is the single error type raised by dispatch and decoding.
type CompletionError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int         // KindHTTPStatus
	Body       string      // KindHTTPStatus
	Reason     AbortReason // KindAborted
	Err        error
}

func (e *CompletionError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		if e.Body == "" {
			return fmt.Sprintf("HTTP %d", e.StatusCode)
		}
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	case KindAborted:
		if e.Reason == AbortByTimeout {
			return "request timed out"
		}
		return "request aborted"
	}
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a configuration problem found before any network call.
func NewValidationError(msg string) *CompletionError {
	return &CompletionError{Kind: KindValidation, Message: msg}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(msg string, err error) *CompletionError {
	return &CompletionError{Kind: KindNetwork, Message: msg, Err: err}
}

// NewHTTPStatusError carries a non-2xx status and the verbatim response body.
func NewHTTPStatusError(code int, body string) *CompletionError {
	return &CompletionError{Kind: KindHTTPStatus, StatusCode: code, Body: body}
}

// NewProtocolError reports a malformed stream event.
func NewProtocolError(err error) *CompletionError {
	return &CompletionError{Kind: KindProtocol, Message: "malformed stream event", Err: err}
}

// NewAbortedError reports a cancellation.
func NewAbortedError(reason AbortReason, err error) *CompletionError {
	return &CompletionError{Kind: KindAborted, Reason: reason, Err: err}
}

// AsCompletionError classifies any error. Errors that are not a
// CompletionError are treated as network failures.
func AsCompletionError(err error) *CompletionError {
	if err == nil {
		return nil
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce
	}
	return NewNetworkError("request failed", err)
}

// IsAborted reports whether err is a cancellation.
func IsAborted(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce) && ce.Kind == KindAborted
}

// AbortFromContext builds the Aborted error for a cancelled context,
// telling a timeout apart from a user stop by the context's cause.
func AbortFromContext(ctx context.Context) *CompletionError {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrRequestTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		return NewAbortedError(AbortByTimeout, cause)
	}
	return NewAbortedError(AbortByUser, cause)
}
