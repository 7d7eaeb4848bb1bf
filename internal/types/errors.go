package types

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrSourceUnavailable means the ticker universe could not be retrieved. Fatal.
	ErrSourceUnavailable = errors.New("ticker source unavailable")
	// ErrConfigInvalid means the configuration failed validation. Fatal.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrDataUnavailable means the provider has no usable data for a symbol.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrTimeout means an external call did not complete in time.
	ErrTimeout = errors.New("request timed out")
	// ErrRateLimited means the provider throttled the request (HTTP 429 or an open breaker).
	ErrRateLimited = errors.New("rate limited by provider")
)

// ErrorKind is the serializable classification of a per-ticker error.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindDataUnavailable ErrorKind = "DATA_UNAVAILABLE"
	KindTimeout         ErrorKind = "TIMEOUT"
	KindRateLimited     ErrorKind = "RATE_LIMITED"
	KindCanceled        ErrorKind = "CANCELED"
	KindInternal        ErrorKind = "INTERNAL"
)

// KindOf classifies err. Unknown errors are reported as INTERNAL.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var netErr net.Error
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.Is(err, ErrDataUnavailable):
		return KindDataUnavailable
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}
