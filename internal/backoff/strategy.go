package backoff

import (
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff delay algorithms. Attempt
// numbers are 1-based: attempt n is the nth try that just failed.
type Strategy interface {
	// Delay returns how long to wait before attempt n+1.
	Delay(attempt int, base, max time.Duration) time.Duration
}

// ExponentialJitter grows the delay as base*Multiplier^(n-1) and adds a
// uniformly random jitter in [0, JitterMax). The cap applies after jitter,
// so the returned delay never exceeds max.
type ExponentialJitter struct {
	Multiplier float64
	JitterMax  time.Duration
}

// Delay implements Strategy.
func (s ExponentialJitter) Delay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Prevent overflow by limiting the exponent.
	if attempt > 30 {
		attempt = 30
	}

	multiplier := s.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(base) * pow(multiplier, attempt-1))
	if delay < 0 || delay > max {
		delay = max
	}

	if s.JitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(s.JitterMax)))
	}
	if delay > max {
		delay = max
	}
	return delay
}

// Linear grows the delay as base*attempt with no jitter.
type Linear struct{}

// Delay implements Strategy.
func (Linear) Delay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base * time.Duration(attempt)
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
