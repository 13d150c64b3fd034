package reddit

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// NotFoundError reports a vanished resource (deleted post, removed
// account, missing wiki page).
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// ForbiddenError reports an authorization failure on a specific resource.
type ForbiddenError struct {
	Resource string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Resource)
}

// RateLimitError reports a structured rate-limit response. RetryAfter is
// parsed from the platform's message when present.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return "rate limited: " + e.Message
	}
	return "rate limited"
}

// ServerError reports a 5xx upstream response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status %d", e.StatusCode)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsForbidden reports whether err wraps a ForbiddenError.
func IsForbidden(err error) bool {
	var fb *ForbiddenError
	return errors.As(err, &fb)
}

// IsTransient reports whether err is worth retrying: server errors and
// rate limits are, authz and not-found failures are not.
func IsTransient(err error) bool {
	var se *ServerError
	var rl *RateLimitError
	return errors.As(err, &se) || errors.As(err, &rl)
}

var rateLimitRe = regexp.MustCompile(`(?i)\b(\d+)\s*(second|minute)s?\b`)

// ParseRetryAfter extracts a retry-after duration from a rate-limit
// message like "try again in 9 minutes". Returns false when the message
// carries no recognizable duration.
func ParseRetryAfter(msg string) (time.Duration, bool) {
	m := rateLimitRe.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	unit := time.Second
	if m[2][0] == 'm' || m[2][0] == 'M' {
		unit = time.Minute
	}
	return time.Duration(n) * unit, true
}
