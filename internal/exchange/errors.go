package exchange

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tags exchange failures so callers can decide whether to retry,
// surface or ignore them.
type ErrorKind string

const (
	// ErrAuth is an authentication failure. Never retried.
	ErrAuth ErrorKind = "auth"
	// ErrRateLimited means the exchange asked us to slow down.
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrInsufficientFunds is returned from order placement.
	ErrInsufficientFunds ErrorKind = "insufficient_funds"
	// ErrInvalidArgument is surfaced to the caller, never retried.
	ErrInvalidArgument ErrorKind = "invalid_argument"
	// ErrTransport is a transient network or timeout failure.
	ErrTransport ErrorKind = "transport"
	// ErrNotFound is treated as "already gone" for cancel operations.
	ErrNotFound ErrorKind = "not_found"
	// ErrPriceValidation marks a stop/TP rejected for direction or
	// proximity to the mark price.
	ErrPriceValidation ErrorKind = "price_validation"
)

// Error is a classified exchange failure.
type Error struct {
	Kind ErrorKind
	// RetryAfterSec carries a Retry-After hint for rate limits, 0 if none.
	RetryAfterSec int
	Err           error
}

func (e *Error) Error() string {
	return fmt.Sprintf("exchange %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind tag.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err, classifying raw exchange errors
// by message when no tag is present.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return classify(err)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrTransport, ErrRateLimited:
		return true
	}
	return false
}

// classify maps raw go-binance and transport errors onto the taxonomy.
// Binance surfaces errors as "<APIError> code=-NNNN, msg=...".
func classify(err error) ErrorKind {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "code=-2014"), // bad api key format
		strings.Contains(msg, "code=-2015"), // invalid key / permissions
		strings.Contains(msg, "code=-1022"), // bad signature
		strings.Contains(msg, "unauthorized"):
		return ErrAuth
	case strings.Contains(msg, "code=-1003"), // too many requests
		strings.Contains(msg, "code=-1015"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"):
		return ErrRateLimited
	case strings.Contains(msg, "code=-2019"), // margin is insufficient
		strings.Contains(msg, "code=-4131"),
		strings.Contains(msg, "insufficient"):
		return ErrInsufficientFunds
	case strings.Contains(msg, "code=-2011"), // unknown order sent (cancel)
		strings.Contains(msg, "code=-2013"), // order does not exist
		strings.Contains(msg, "not found"):
		return ErrNotFound
	case strings.Contains(msg, "code=-1021"), // timestamp outside recvWindow
		strings.Contains(msg, "code=-1001"), // internal error
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "eof"):
		return ErrTransport
	case strings.Contains(msg, "code=-1111"), // precision over maximum
		strings.Contains(msg, "code=-4003"), // quantity less than zero
		strings.Contains(msg, "code=-1102"),
		strings.Contains(msg, "invalid"):
		return ErrInvalidArgument
	}
	return ErrTransport
}

// IsClockSkew reports whether err indicates local/exchange clock drift, in
// which case the adapter resynchronises server time and retries.
func IsClockSkew(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "code=-1021")
}
