package shortener

import (
	"errors"
	"fmt"

	"github.com/serroba/shortlinks/internal/ratelimit"
)

var (
	// ErrNotFound is returned when an alias or index entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert hits an existing key.
	ErrConflict = errors.New("already exists")
	// ErrGone is returned when an alias exists but is disabled or expired.
	ErrGone = errors.New("link is no longer available")
	// ErrUnauthorized is returned when an API key is missing or unknown.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAliasExhausted is returned when every generated alias collided.
	ErrAliasExhausted = errors.New("failed to generate a unique alias")
)

// ValidationError describes rejected client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RateLimitedError is returned when a rate limit bucket blocked the request.
type RateLimitedError struct {
	Result ratelimit.Result
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %d/%d on %s", e.Result.CurrentCount, e.Result.Limit, e.Result.Key)
}

// RetryAfterSeconds is the number of seconds until the blocking window closes.
func (e *RateLimitedError) RetryAfterSeconds() int64 {
	return e.Result.RetryAfterSeconds
}

// StoreError wraps a failure of a backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
