package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"BarLedger/internal/retry"
)

// Kind is the failure category of a provider call.
type Kind int

const (
	KindFetchFailed Kind = iota
	KindNotConfigured
	KindTransient
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "fetch_failed"
	}
}

var (
	ErrNotConfigured = errors.New("provider not configured")
	ErrTransient     = errors.New("transient provider failure")
	ErrRateLimited   = errors.New("provider quota exhausted")
	ErrFetchFailed   = errors.New("provider fetch failed")

	// ErrUnsupported marks a capability the provider does not offer.
	ErrUnsupported = errors.New("operation not supported by provider")
)

// Error is a classified provider failure.
type Error struct {
	Provider string
	Op       string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotConfigured:
		return e.Kind == KindNotConfigured
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrFetchFailed:
		return e.Kind == KindFetchFailed
	}
	return false
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d, body: %s", e.StatusCode, e.Body)
}

// APIError is an application-level error reported inside a 200 response.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Msg)
}

// quotaMarkers are message fragments providers use for quota and permission refusals.
var quotaMarkers = []string{"quota", "limit", "permission", "配额", "权限", "最多访问", "频率"}

// Classify maps an error onto a Kind. It is a heuristic over error types,
// HTTP status codes and message text; anything it cannot place is FetchFailed.
func Classify(err error) Kind {
	if err == nil {
		return KindFetchFailed
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return KindFetchFailed
	}
	if errors.Is(err, context.Canceled) {
		return KindFetchFailed
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return KindRateLimited
		case se.StatusCode >= 500:
			return KindTransient
		}
		if hasQuotaMarker(se.Body) {
			return KindRateLimited
		}
		return KindFetchFailed
	}

	var ae *APIError
	if errors.As(err, &ae) {
		if hasQuotaMarker(ae.Msg) {
			return KindRateLimited
		}
		return KindFetchFailed
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransient
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return KindTransient
	}

	if hasQuotaMarker(err.Error()) {
		return KindRateLimited
	}
	return KindFetchFailed
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == KindTransient
}

func hasQuotaMarker(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
