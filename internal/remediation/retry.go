package remediation

import (
	"context"
	"time"

	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

// RetryPolicy bounds how provider calls are retried. Only retryable
// errors (see domain.IsRetryable) are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// Multiplier grows the delay after each attempt.
	Multiplier float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
	}
}

// Backoff returns the delay before attempt n (1-based; attempt 1 has none).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n <= 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff)
	for i := 2; i < n; i++ {
		d *= mult
		if p.MaxBackoff > 0 && d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && time.Duration(d) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// retry calls fn until it succeeds, fails permanently, or the policy is
// exhausted. Waiting between attempts stops early when ctx is done. It
// returns the number of attempts made.
func retry(ctx context.Context, p RetryPolicy, fn func() error, onRetry func(attempt int, delay time.Duration, err error)) (int, error) {
	var err error
	limit := p.attempts()
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			delay := p.Backoff(attempt)
			if onRetry != nil {
				onRetry(attempt, delay, err)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt - 1, err
			case <-timer.C:
			}
		}

		err = fn()
		if err == nil || !domain.IsRetryable(err) {
			return attempt, err
		}
	}
	return limit, err
}
