package platform

import (
	"errors"
	"fmt"
	"time"
)

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// RateLimitError is a 429 response. RetryAfter is zero when the server
// did not say how long to back off.
type RateLimitError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("platform: %s rate limited, retry after %s", e.Endpoint, e.RetryAfter)
	}
	return fmt.Sprintf("platform: %s rate limited", e.Endpoint)
}

// AsRateLimit extracts a RateLimitError from an error chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
