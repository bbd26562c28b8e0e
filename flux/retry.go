package flux

import (
	"time"
)

// RetryPolicy describes how often a failing call is attempted again.
type RetryPolicy struct {
	// Tries is the total number of attempts, at least 1.
	Tries int
	// Delay is the constant pause between two attempts.
	Delay time.Duration
	// Kinds lists the failure kinds that are retried. A failure of any other
	// kind ends the loop immediately.
	Kinds []Kind
}

// DefaultRetryPolicy mirrors the retry capability's defaults.
var DefaultRetryPolicy = RetryPolicy{Tries: 3, Delay: 100 * time.Millisecond, Kinds: []Kind{KindException}}

func (p RetryPolicy) retries(err error) bool {
	kind := KindOf(err)
	for _, k := range p.Kinds {
		if kind.Matches(k) {
			return true
		}
	}
	return false
}

// Retry calls attempt until it succeeds or the policy gives up, and returns
// the last result. sleep is called with the policy delay between attempts
// only, never after the final one.
func Retry[T any](p RetryPolicy, sleep func(time.Duration), attempt func() (T, error)) (T, error) {
	var zero T
	if p.Tries < 1 {
		return zero, newError(KindValue, "retry: tries must be at least 1, got %d", p.Tries)
	}
	var lastErr error
	for i := 1; i <= p.Tries; i++ {
		out, err := attempt()
		if err == nil {
			return out, nil
		}
		if !p.retries(err) {
			return zero, err
		}
		lastErr = err
		if i < p.Tries {
			sleep(p.Delay)
		}
	}
	return zero, lastErr
}
