package platform

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported marks a capability the active backend cannot provide.
var ErrUnsupported = errors.New("platform: unsupported capability")

// ErrNotFound is returned when the platform does not know the entity.
var ErrNotFound = errors.New("platform: entity not found")

// RateLimitError reports a platform flood limit. It is never retried
// automatically; the wait hint is surfaced to the operator instead.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("platform: rate limited, retry after %s", e.RetryAfter)
}

// Fatal reports whether err should stop a retry loop immediately.
// Unsupported capabilities, unknown entities and rate limits are not
// retriable.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupported) || errors.Is(err, ErrNotFound) {
		return true
	}
	var rl *RateLimitError
	return errors.As(err, &rl)
}
