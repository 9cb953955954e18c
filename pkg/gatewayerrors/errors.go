// Package gatewayerrors defines the gateway's error taxonomy (spec §7).
//
// Each kind carries enough context to decide an HTTP-layer policy
// (resync-and-continue, single-flight failure, terminal) without the
// caller needing to string-match error text.
package gatewayerrors

import (
	"errors"
	"fmt"
	"strings"
)

// MalformedFrameError is raised when a frame prelude declares a
// total_length below the 16-byte minimum. The decoder resyncs by one byte and
// counts this against its error budget; it is not usually fatal.
type MalformedFrameError struct {
	TotalLength uint32
	Reason      string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame (total_length=%d): %s", e.TotalLength, e.Reason)
}

func NewMalformedFrameError(totalLength uint32, reason string) *MalformedFrameError {
	return &MalformedFrameError{TotalLength: totalLength, Reason: reason}
}

func IsMalformedFrameError(err error) bool {
	var e *MalformedFrameError
	return errors.As(err, &e)
}

// FrameTooLargeError is raised when total_length exceeds the 16MiB bound.
type FrameTooLargeError struct {
	TotalLength uint32
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame too large: total_length=%d exceeds 16MiB bound", e.TotalLength)
}

func NewFrameTooLargeError(totalLength uint32) *FrameTooLargeError {
	return &FrameTooLargeError{TotalLength: totalLength}
}

func IsFrameTooLargeError(err error) bool {
	var e *FrameTooLargeError
	return errors.As(err, &e)
}

// BadHeaderError is raised when a frame's headers_length does not fit
// inside the frame; the decoder counts it against its error budget and
// skips that frame. A malformed entry inside the header block (unknown
// value tag, or a declared length exceeding remaining bytes) does not
// raise it: header parsing stops there and keeps what was decoded.
type BadHeaderError struct {
	Message string
	Cause   error
}

func (e *BadHeaderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bad header: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("bad header: %s", e.Message)
}

func (e *BadHeaderError) Unwrap() error { return e.Cause }

func NewBadHeaderError(message string, cause error) *BadHeaderError {
	return &BadHeaderError{Message: message, Cause: cause}
}

func IsBadHeaderError(err error) bool {
	var e *BadHeaderError
	return errors.As(err, &e)
}

// ErrorBudgetExhaustedError is terminal: the decoder has resynced more
// times than its configured error budget allows.
type ErrorBudgetExhaustedError struct {
	MaxErrors int
}

func (e *ErrorBudgetExhaustedError) Error() string {
	return fmt.Sprintf("error budget exhausted: more than %d frame errors", e.MaxErrors)
}

func NewErrorBudgetExhaustedError(maxErrors int) *ErrorBudgetExhaustedError {
	return &ErrorBudgetExhaustedError{MaxErrors: maxErrors}
}

func IsErrorBudgetExhaustedError(err error) bool {
	var e *ErrorBudgetExhaustedError
	return errors.As(err, &e)
}

// UpstreamNon2xxError is raised by the upstream client when the
// response status code is outside [200,300).
type UpstreamNon2xxError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamNon2xxError) Error() string {
	return fmt.Sprintf("upstream returned non-2xx status %d: %s", e.StatusCode, e.Body)
}

func NewUpstreamNon2xxError(statusCode int, body string) *UpstreamNon2xxError {
	return &UpstreamNon2xxError{StatusCode: statusCode, Body: body}
}

func IsUpstreamNon2xxError(err error) bool {
	var e *UpstreamNon2xxError
	return errors.As(err, &e)
}

// UpstreamExceptionError represents an `exception` upstream event
// (e.g. ContentLengthExceededException). It maps to a forced stop/
// finish reason rather than failing the whole request.
type UpstreamExceptionError struct {
	ExceptionType string
}

func (e *UpstreamExceptionError) Error() string {
	return fmt.Sprintf("upstream exception event: %s", e.ExceptionType)
}

func NewUpstreamExceptionError(exceptionType string) *UpstreamExceptionError {
	return &UpstreamExceptionError{ExceptionType: exceptionType}
}

func IsUpstreamExceptionError(err error) bool {
	var e *UpstreamExceptionError
	return errors.As(err, &e)
}

// IsContentLengthExceeded reports whether an exception type names the
// content-length-exceeded condition that maps to stop_reason=max_tokens.
func IsContentLengthExceeded(exceptionType string) bool {
	return exceptionType == "ContentLengthExceededException" ||
		strings.Contains(exceptionType, "ContentLengthExceeds")
}

// RefreshFailureError is returned by a credential pool refresh attempt.
// The entry is not marked fresh; subsequent attempts may retry.
type RefreshFailureError struct {
	Index int
	Cause error
}

func (e *RefreshFailureError) Error() string {
	return fmt.Sprintf("credential %d: refresh failed: %v", e.Index, e.Cause)
}

func (e *RefreshFailureError) Unwrap() error { return e.Cause }

func NewRefreshFailureError(index int, cause error) *RefreshFailureError {
	return &RefreshFailureError{Index: index, Cause: cause}
}

func IsRefreshFailureError(err error) bool {
	var e *RefreshFailureError
	return errors.As(err, &e)
}

// AllCredentialsFailedError is propagated to the request handler when
// every credential in the pool failed selection in one round.
type AllCredentialsFailedError struct {
	Attempts int
	LastErr  error
}

func (e *AllCredentialsFailedError) Error() string {
	return fmt.Sprintf("all %d credentials failed: %v", e.Attempts, e.LastErr)
}

func (e *AllCredentialsFailedError) Unwrap() error { return e.LastErr }

func NewAllCredentialsFailedError(attempts int, lastErr error) *AllCredentialsFailedError {
	return &AllCredentialsFailedError{Attempts: attempts, LastErr: lastErr}
}

func IsAllCredentialsFailedError(err error) bool {
	var e *AllCredentialsFailedError
	return errors.As(err, &e)
}
