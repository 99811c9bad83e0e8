package usecase

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"catalog-assistant/internal/domain"
)

type ErrorCode string

const (
	ErrorInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrorUpstream      ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of a usecase error anywhere in err's chain,
// or ErrorInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Code
	}
	return ErrorInternal
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// isRateLimited detects 429s from the status when the error carries one,
// otherwise from transports that only report it in the message.
func isRateLimited(err error) bool {
	if status, ok := upstreamStatusCode(err); ok {
		return status == http.StatusTooManyRequests
	}
	return strings.Contains(err.Error(), "429")
}

// classifyCompletionError maps a failed completion onto the usecase error codes.
// A rate limit reaching here has used up its retries and is an upstream failure.
func classifyCompletionError(err error) *Error {
	var uerr *Error
	switch {
	case errors.As(err, &uerr):
		return uerr
	case errors.Is(err, domain.ErrMissingCredential):
		return newError(ErrorConfiguration, "missing_api_key", err)
	case isRateLimited(err):
		return newError(ErrorUpstream, "llm_rate_limit_exhausted", err)
	default:
		return newError(ErrorUpstream, "llm_error", err)
	}
}
