package tessera

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	internalbackoff "github.com/tessera-live/tessera-go/internal/backoff"
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait first. Attempt numbers are 1-based: attempt is the try that just
// failed, so a policy with 3 attempts allows two retries.
type RetryPolicy interface {
	ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool)
}

// DefaultRetryPolicy implements the platform's retry contract:
//
//   - Network errors (no response) and non-auth 5xx: linear backoff,
//     base*attempt.
//   - 429: exponential backoff, min(base*2^(n-1) + jitter[0,1s), 30s),
//     unless the server supplies a usable Retry-After.
//   - Any other 4xx: never retried.
//
// Authentication failures are handled by the refresh coordinator before the
// retry policy ever sees them.
type DefaultRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	exponential internalbackoff.Strategy
	linear      internalbackoff.Strategy
}

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 1 * time.Second
	defaultMaxRetryDelay = 30 * time.Second
	rateLimitJitterMax   = 1 * time.Second
)

// NewDefaultRetryPolicy builds the standard policy. maxAttempts counts the
// first try; baseDelay is the backoff unit for both curves.
func NewDefaultRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *DefaultRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxRetryDelay
	}
	return &DefaultRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		exponential: internalbackoff.ExponentialJitter{Multiplier: 2.0, JitterMax: rateLimitJitterMax},
		linear:      internalbackoff.Linear{},
	}
}

// ShouldRetry implements RetryPolicy.
func (p *DefaultRetryPolicy) ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxAttempts {
		return 0, false
	}

	if err != nil {
		// No response was received; the request may never have reached the
		// server, so back off linearly and try again.
		return p.linear.Delay(attempt, p.baseDelay, p.maxDelay), true
	}
	if resp == nil {
		return 0, false
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if delay := parseRetryAfter(resp.Header.Get("Retry-After")); delay > 0 {
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
			return delay, true
		}
		return p.exponential.Delay(attempt, p.baseDelay, p.maxDelay), true
	case resp.StatusCode >= 500:
		return p.linear.Delay(attempt, p.baseDelay, p.maxDelay), true
	default:
		return 0, false
	}
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form. Returns 0 when absent or unusable.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return 0
}
