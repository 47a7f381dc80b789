package backoff

import (
	"testing"
	"time"
)

func TestExponentialJitterBounds(t *testing.T) {
	strategy := ExponentialJitter{Multiplier: 2.0, JitterMax: time.Second}
	base := 500 * time.Millisecond
	max := 30 * time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			delay := strategy.Delay(attempt, base, max)
			lower := base * time.Duration(1<<(attempt-1))
			upper := lower + time.Second
			if lower > max {
				lower = max
			}
			if upper > max {
				upper = max
			}
			if delay < lower || delay > upper {
				t.Fatalf("attempt %d: delay = %v, want within [%v, %v]", attempt, delay, lower, upper)
			}
		}
	}
}

func TestExponentialJitterNeverExceedsMax(t *testing.T) {
	strategy := ExponentialJitter{Multiplier: 2.0, JitterMax: time.Second}
	for attempt := 1; attempt <= 64; attempt++ {
		if delay := strategy.Delay(attempt, time.Second, 30*time.Second); delay > 30*time.Second {
			t.Fatalf("attempt %d: delay = %v exceeds cap", attempt, delay)
		}
	}
}

func TestExponentialJitterDefaultsMultiplier(t *testing.T) {
	strategy := ExponentialJitter{}
	delay := strategy.Delay(3, 100*time.Millisecond, time.Minute)
	if delay < 400*time.Millisecond {
		t.Errorf("delay = %v, want >= 400ms with default 2x multiplier", delay)
	}
}

func TestExponentialJitterClampsAttempt(t *testing.T) {
	strategy := ExponentialJitter{Multiplier: 2.0}
	if delay := strategy.Delay(0, time.Second, time.Minute); delay != time.Second {
		t.Errorf("attempt 0 delay = %v, want base", delay)
	}
	if delay := strategy.Delay(-5, time.Second, time.Minute); delay != time.Second {
		t.Errorf("negative attempt delay = %v, want base", delay)
	}
}

func TestLinearDelay(t *testing.T) {
	strategy := Linear{}
	base := 250 * time.Millisecond
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{4, time.Second},
		{0, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := strategy.Delay(tt.attempt, base, time.Minute); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestLinearDelayCapped(t *testing.T) {
	strategy := Linear{}
	if got := strategy.Delay(100, time.Second, 10*time.Second); got != 10*time.Second {
		t.Errorf("Delay = %v, want capped at 10s", got)
	}
}
