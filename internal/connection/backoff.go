package connection

import "time"

// Backoff computes reconnect delays as min(Max, Base * 2^attempt).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before reconnect number attempt. The counter is
// incremented before the first retry, so the first retry waits 2*Base.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if b.Base <= 0 {
		return b.Max
	}
	if attempt >= 62 || b.Base > b.Max>>uint(attempt) {
		return b.Max
	}
	return b.Base << uint(attempt)
}
