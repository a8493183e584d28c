// Retry policy: pure strategies mapping (attempt, elapsed,
// last_delay) -> delay | END. Kept as pure functions, not a generic
// backoff library, since the test suite pins the exact monotonicity
// of these curves.
package sagabus

import (
	"math"
	"time"
)

// RetryStrategy decides how long to wait before the next poll of a stream
// with no new entries. It returns (delay, true) to wait delay before
// retrying, or (0, false) — "END" — to stop retrying.
type RetryStrategy func(attempt int, elapsed, lastDelay time.Duration) (time.Duration, bool)

// ImmediateFail never retries.
func ImmediateFail(_ int, _, _ time.Duration) (time.Duration, bool) {
	return 0, false
}

// ExponentialConfig parameterizes ExponentialRetry. Zero values are
// replaced by the documented defaults.
type ExponentialConfig struct {
	Initial     time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// ExponentialRetry returns the exponential-backoff strategy: delay =
// min(initial * factor^(attempt-1), max_delay), ending after max_attempts
// or on arithmetic overflow. Defaults: initial=100ms, factor=2,
// max_delay=1s, max_attempts=10.
func ExponentialRetry(cfg ...ExponentialConfig) RetryStrategy {
	c := ExponentialConfig{
		Initial:     100 * time.Millisecond,
		Factor:      2,
		MaxDelay:    time.Second,
		MaxAttempts: 10,
	}
	if len(cfg) > 0 {
		if cfg[0].Initial > 0 {
			c.Initial = cfg[0].Initial
		}
		if cfg[0].Factor > 0 {
			c.Factor = cfg[0].Factor
		}
		if cfg[0].MaxDelay > 0 {
			c.MaxDelay = cfg[0].MaxDelay
		}
		if cfg[0].MaxAttempts > 0 {
			c.MaxAttempts = cfg[0].MaxAttempts
		}
	}

	return func(attempt int, _, _ time.Duration) (time.Duration, bool) {
		if attempt > c.MaxAttempts {
			return 0, false
		}
		delaySeconds := c.Initial.Seconds() * math.Pow(c.Factor, float64(attempt-1))
		if math.IsInf(delaySeconds, 0) || math.IsNaN(delaySeconds) || delaySeconds*float64(time.Second) >= math.MaxInt64 {
			return 0, false
		}
		delay := time.Duration(delaySeconds * float64(time.Second))
		if delay > c.MaxDelay {
			delay = c.MaxDelay
		}
		return delay, true
	}
}

// LinearConfig parameterizes LinearRetry.
type LinearConfig struct {
	Step        time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// LinearRetry returns the linear-backoff strategy: delay = min(step *
// attempt, max_delay), ending after max_attempts or on overflow.
// Defaults: step=200ms, max_delay=1s, max_attempts=10.
func LinearRetry(cfg ...LinearConfig) RetryStrategy {
	c := LinearConfig{
		Step:        200 * time.Millisecond,
		MaxDelay:    time.Second,
		MaxAttempts: 10,
	}
	if len(cfg) > 0 {
		if cfg[0].Step > 0 {
			c.Step = cfg[0].Step
		}
		if cfg[0].MaxDelay > 0 {
			c.MaxDelay = cfg[0].MaxDelay
		}
		if cfg[0].MaxAttempts > 0 {
			c.MaxAttempts = cfg[0].MaxAttempts
		}
	}

	return func(attempt int, _, _ time.Duration) (time.Duration, bool) {
		if attempt > c.MaxAttempts {
			return 0, false
		}
		if attempt > 0 && c.Step > time.Duration(math.MaxInt64)/time.Duration(attempt) {
			return 0, false
		}
		delay := c.Step * time.Duration(attempt)
		if delay > c.MaxDelay {
			delay = c.MaxDelay
		}
		return delay, true
	}
}

// clampToBudget is the reader's extra END condition: treat a
// strategy's delay as END if elapsed+delay would exceed timeout.
func clampToBudget(delay, elapsed, timeout time.Duration) (time.Duration, bool) {
	if elapsed+delay > timeout {
		return 0, false
	}
	return delay, true
}
