package llm

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindTransient   ErrorKind = "transient"
	KindFatal       ErrorKind = "fatal"
)

// ProviderError is the vendor-agnostic error container. The Kind drives the
// propagation policy: transient errors are retried once inside the adapter,
// everything else propagates unchanged.
type ProviderError struct {
	Vendor     string
	Kind       ErrorKind
	HTTPStatus int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.HTTPStatus != 0 {
		msg = http.StatusText(e.HTTPStatus)
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Vendor, msg)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsTransient(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Kind == KindTransient
}

func IsRateLimited(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Kind == KindRateLimited
}

func IsAuth(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Kind == KindAuth
}

// KindFromStatus classifies an HTTP status into the shared taxonomy.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}
