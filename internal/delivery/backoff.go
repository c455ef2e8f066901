package delivery

import (
	"math"
	"math/rand"
	"time"
)

// Backoff returns the delay before the next attempt after `attempts` failed
// attempts (1-indexed): min(initial * multiplier^(attempts-1), max), plus
// uniform jitter in [0, 10%) of the capped delay. The pre-jitter sequence is
// non-decreasing and never exceeds max.
func Backoff(attempts int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(initial) * math.Pow(multiplier, float64(attempts-1))
	if delay > float64(max) {
		delay = float64(max)
	}
	jitter := rand.Float64() * 0.1 * delay
	return time.Duration(delay + jitter)
}
