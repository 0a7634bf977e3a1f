package payment

import "time"

// RetryPolicy bounds payment attempts against one order and spaces out
// transient gateway call retries.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond, Multiplier: 2}
}

// Allow reports whether another attempt may follow `attempts` completed ones.
func (p RetryPolicy) Allow(attempts int) bool {
	return attempts < p.MaxAttempts
}

func (p RetryPolicy) Remaining(attempts int) int {
	if left := p.MaxAttempts - attempts; left > 0 {
		return left
	}
	return 0
}

// Delay returns the wait before retry number `attempt` (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.Backoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.Backoff)
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	return time.Duration(d)
}
