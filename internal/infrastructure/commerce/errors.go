package commerce

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// classify wraps a platform call failure with its retry classification.
// Network faults, timeouts, rate limiting and server errors are transient;
// any other 4xx means the request itself is wrong and retrying cannot help.
func classify(platform, op string, statusCode int, err error) error {
	transient := false
	switch {
	case statusCode == http.StatusTooManyRequests:
		transient = true
	case statusCode >= 500:
		transient = true
	case statusCode >= 400:
		transient = false
	default:
		// No status means the request never completed: timeouts, connection
		// resets, DNS failures. All worth retrying.
		transient = isNetworkError(err)
	}

	return &integration.PlatformError{
		Platform:   platform,
		Op:         op,
		StatusCode: statusCode,
		Transient:  transient,
		Err:        err,
	}
}

// isNetworkError reports whether err is a connectivity-level failure
func isNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wraps the underlying syscall failure; whatever is left at
	// this point never got an HTTP response and is worth retrying.
	return true
}
