package cms

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls how transient failures are retried.
type RetryPolicy struct {
	MaxRetries int           // Retries after the first request; 0 disables
	BaseDelay  time.Duration // Wait before the first retry
	MaxDelay   time.Duration // Upper bound on any wait
	Multiplier float64       // Growth per retry
}

// DefaultRetryPolicy returns 3 retries from 100ms doubling up to 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
	}
}

// backoff is the wait before retry n (0-based), with ±20% jitter.
func (p RetryPolicy) backoff(n int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := math.Min(float64(p.BaseDelay)*math.Pow(mult, float64(n)), float64(p.MaxDelay))
	return time.Duration(d * (0.8 + rand.Float64()*0.4))
}

// request performs one GET and returns the body.
type request func(ctx context.Context) ([]byte, error)

// run calls req until it succeeds, fails with a non-transient error, or the
// retries are used up. A failure carries the number of requests made.
func (p RetryPolicy) run(ctx context.Context, log *zap.Logger, collection string, req request) ([]byte, error) {
	for n := 1; ; n++ {
		body, err := req(ctx)
		if err == nil {
			if n > 1 {
				log.Info("request recovered", zap.String("collection", collection), zap.Int("attempts", n))
			}
			return body, nil
		}

		var e *Error
		if !errors.As(err, &e) {
			return nil, err
		}
		e.Attempts = n
		if !e.Transient() {
			return nil, err
		}
		if n > p.MaxRetries {
			if p.MaxRetries > 0 {
				log.Warn("giving up", zap.String("collection", collection), zap.Int("attempts", n), zap.Error(err))
			}
			return nil, err
		}

		delay := p.backoff(n - 1)
		log.Debug("retrying", zap.String("collection", collection), zap.Int("attempt", n), zap.Duration("delay", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return nil, err
		}
	}
}
