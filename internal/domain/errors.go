package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrRateLimitedCooldown = errors.New("rate limit cooldown active")
	ErrTransient           = errors.New("transient upstream error")
	ErrExhausted           = errors.New("retry attempts exhausted")
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrDataUnavailable     = errors.New("data unavailable")
	ErrRecordNotFound      = errors.New("record not found")
	ErrMirrorDisabled      = errors.New("durable mirror disabled")
	ErrInvalidDays         = errors.New("days must be between 1 and 365")
)

// RateLimitedError reports upstream throttling. RetryAfter is zero when the
// provider gave no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream rate limited, retry after %s", e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds the remaining wait up to whole seconds.
func (e *RateLimitedError) RetryAfterSeconds() int {
	return CeilSeconds(e.RetryAfter)
}

// CooldownError is returned without touching the network while a previous
// rate limit is still in force.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("rate limit cooldown active, %ds remaining", CeilSeconds(e.Remaining))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrRateLimitedCooldown || target == ErrRateLimited
}

type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP error %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d fetch attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// CeilSeconds rounds d up to whole seconds; non-positive durations are 0.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
