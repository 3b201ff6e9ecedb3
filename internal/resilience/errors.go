package resilience

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 504,
// network timeout). RetryAfter carries a server-provided delay hint.
type TransientError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// FromResponse builds a TransientError for a retryable HTTP response, reading
// a Retry-After header given in seconds. It returns nil for other statuses.
func FromResponse(err error, resp *http.Response) *TransientError {
	if resp == nil || !IsTransientHTTPStatus(resp.StatusCode) {
		return nil
	}
	te := NewTransientError(err, resp.StatusCode)
	if secs, convErr := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); convErr == nil && secs > 0 {
		te.RetryAfter = time.Duration(secs) * time.Second
	}
	return te
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRateLimited reports whether err carries a rate-limit (429) or gateway
// timeout (504) status. Those are the signals upstream map and nutrition APIs
// use to ask callers to slow down.
func IsRateLimited(err error) bool {
	var te *TransientError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == http.StatusTooManyRequests || te.StatusCode == http.StatusGatewayTimeout
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
