package resilience

import (
	"context"
	"errors"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/fitcoach/pkg/provider/llm"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// BackoffPolicy computes retry delays for transient provider failures. It is a
// pure value; waiting is done by a [Sleeper].
type BackoffPolicy struct {
	// BaseDelay is the wait before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps any single delay. Zero means uncapped.
	MaxDelay time.Duration

	// MaxRetries is the number of retries after the first attempt. Default: 3.
	MaxRetries int
}

// DefaultBackoff returns the policy used when none is configured.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{BaseDelay: time.Second, MaxRetries: 3}
}

// Delay returns BaseDelay * 2^attempt, where attempt is the zero-based index of
// the attempt that just failed.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d <= 0 {
			return time.Duration(math.MaxInt64)
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ShouldRetry reports whether a failure of the zero-based attempt may be
// retried under this policy.
func (p BackoffPolicy) ShouldRetry(attempt int, err error) bool {
	return attempt < p.MaxRetries && Classify(err).Transient
}

// Classification is the retry verdict for a transport-level error.
type Classification struct {
	Transient bool
	Category  types.ErrorCategory
}

var (
	rateLimitMarkers = []string{"429", "rate_limit", "ratelimit", "too many requests", "quota"}
	overloadMarkers  = []string{"503", "overloaded", "service unavailable"}

	// rateWord matches "rate" as a whole word so "Rate exceeded" counts but
	// "generate" does not.
	rateWord = regexp.MustCompile(`\brate\b`)
)

// Classify maps a provider error onto the error taxonomy. HTTP 429, quota and
// "rate" failures are transient api-rate-limit errors, HTTP 503 and overload failures
// are transient api-error errors, cancellation is never transient, and
// everything else is a permanent api-error.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return Classification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Classification{Category: types.CategoryCancelled}
	}

	switch llm.StatusCode(err) {
	case http.StatusTooManyRequests:
		return Classification{Transient: true, Category: types.CategoryAPIRateLimit}
	case http.StatusServiceUnavailable:
		return Classification{Transient: true, Category: types.CategoryAPIError}
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, rateLimitMarkers) || rateWord.MatchString(msg) {
		return Classification{Transient: true, Category: types.CategoryAPIRateLimit}
	}
	if containsAny(msg, overloadMarkers) || errors.Is(err, ErrCircuitOpen) {
		return Classification{Transient: true, Category: types.CategoryAPIError}
	}
	return Classification{Category: types.CategoryAPIError}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Sleeper waits between retry attempts. Sleep must return early with
// ctx.Err() when ctx is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to [Sleeper].
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper is the wall-clock [Sleeper].
type TimerSleeper struct{}

// Sleep blocks for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
