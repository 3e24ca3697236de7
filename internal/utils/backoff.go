package utils

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type Backoff struct {
	base       time.Duration
	maxRetries int
	jitter     time.Duration
}

func NewBackoff(base time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, maxRetries: maxRetries}
}

// WithJitter adds up to j of random delay to every wait.
func (b Backoff) WithJitter(j time.Duration) Backoff {
	b.jitter = j
	return b
}

// Do calls fn until it succeeds or maxRetries retries have failed, doubling
// the wait each time. It stops early when ctx is done or fn returns a
// Permanent error.
func (b Backoff) Do(ctx context.Context, fn func(i int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		var p permanent
		if errors.As(err, &p) {
			return p.err
		}
		if i == b.maxRetries {
			break
		}
		wait := time.Duration(1<<i) * b.base
		if b.jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(b.jitter)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return permanent{err: err} }
