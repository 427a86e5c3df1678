package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how network calls are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries per call, including the first one.
	// It also caps name-conflict recovery rounds during upload.
	MaxAttempts int

	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration

	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration

	// Multiplier grows the wait after each attempt.
	Multiplier float64

	// CallTimeout bounds every metadata call (lookup, create, list, delete).
	CallTimeout time.Duration

	// UploadTimeout bounds every upload call.
	UploadTimeout time.Duration

	// MaxRateLimitWait is the longest server-requested wait that is honoured. A rate
	// limit that resets later fails the call instead of stalling the run.
	MaxRateLimitWait time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		CallTimeout:     30 * time.Second,
		UploadTimeout:   10 * time.Minute,

		MaxRateLimitWait: 2 * time.Minute,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	switch {
	case p.Multiplier <= 0:
		p.Multiplier = d.Multiplier
	case p.Multiplier < 1:
		p.Multiplier = 1
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = d.CallTimeout
	}
	if p.UploadTimeout <= 0 {
		p.UploadTimeout = d.UploadTimeout
	}
	if p.MaxRateLimitWait <= 0 {
		p.MaxRateLimitWait = d.MaxRateLimitWait
	}
	if p.MaxRateLimitWait < p.MaxInterval {
		p.MaxRateLimitWait = p.MaxInterval
	}
	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

// hintedBackOff waits at least as long as the last rate-limit hint. Hints are bounded
// by RetryPolicy.MaxRateLimitWait before they get here.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts run out.
// A rate limit whose hint exceeds MaxRateLimitWait is not retried.
// fn receives the 1-based attempt number. notify, if non-nil, is called before each wait.
// It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error, notify func(err error, wait time.Duration)) (int, error) {
	p = p.normalized()
	hinted := &hintedBackOff{BackOff: p.backOff()}

	attempts := 0
	op := func() error {
		attempts++
		err := fn(attempts)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		hint := retryAfter(err)
		if hint > p.MaxRateLimitWait {
			return backoff.Permanent(fmt.Errorf("rate limit resets in %s, beyond the %s wait limit: %w",
				hint.Round(time.Millisecond), p.MaxRateLimitWait, err))
		}
		hinted.hint = hint
		return err
	}

	err := backoff.RetryNotify(op, backoff.WithContext(hinted, ctx), func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait)
		}
	})
	return attempts, err
}
