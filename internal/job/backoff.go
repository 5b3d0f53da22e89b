package job

import "time"

// Backoff computes the retry delay applied to scheduled_at after a
// retryable failure: min(Base * 2^attempts, Max). It is a pure function
// of the attempt count — no jitter, no hidden state — so retry schedules
// are reproducible and testable without a clock.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the backoff delay for the given attempt count. Attempts
// at or below zero yield Base; the result never exceeds Max.
func (b Backoff) Delay(attempts int32) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := b.Base
	for i := int32(0); i < attempts; i++ {
		d *= 2
		// Doubling past Max (or overflowing) pins to the cap.
		if d >= b.Max || d < 0 {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}
