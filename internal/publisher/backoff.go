package publisher

import (
	"math"
	"time"
)

// Backoff returns min(base * 2^(attempts-1), cap). attempts is the number of
// failed deliveries so far, counting the one just made. A non-positive cap
// leaves the delay uncapped but never past the largest time.Duration.
func Backoff(attempts int, base, cap time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		return 0
	}
	if cap <= 0 {
		cap = math.MaxInt64
	}

	d := base
	for i := 1; i < attempts; i++ {
		if d >= cap || d > cap/2 {
			return cap
		}
		d *= 2
	}
	if d > cap {
		return cap
	}
	return d
}
