package cms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRetry(max int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: max,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2,
	}
}

func flaky(status int) request {
	return func(context.Context) ([]byte, error) {
		return nil, statusError("jobs", status, "")
	}
}

func TestRetrySucceedsFirstTime(t *testing.T) {
	calls := 0
	body, err := fastRetry(3).run(context.Background(), zap.NewNop(), "jobs", func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"docs":[]}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, `{"docs":[]}`, string(body))
}

func TestRetryRecovers(t *testing.T) {
	calls := 0
	_, err := fastRetry(3).run(context.Background(), zap.NewNop(), "jobs", func(ctx context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return flaky(503)(ctx)
		}
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStatusCodes(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		expectedCalls int
	}{
		{"500 is retried", 500, 3},
		{"503 is retried", 503, 3},
		{"429 is retried", 429, 3},
		{"400 is not retried", 400, 1},
		{"404 is not retried", 404, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := fastRetry(2).run(context.Background(), zap.NewNop(), "jobs", func(ctx context.Context) ([]byte, error) {
				calls++
				return flaky(tt.status)(ctx)
			})
			assert.Equal(t, tt.expectedCalls, calls)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.expectedCalls, e.Attempts)
		})
	}
}

// Giving up must not hide what kind of failure it was: the breaker still
// needs to see a transient error.
func TestRetryExhaustionKeepsFailureTransient(t *testing.T) {
	_, err := fastRetry(2).run(context.Background(), zap.NewNop(), "jobs", flaky(502))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.True(t, e.Transient())
	assert.Equal(t, 502, e.Status)
	assert.Equal(t, 3, e.Attempts)
}

func TestRetryStopsOnCancel(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	calls := 0
	_, err := policy.run(ctx, zap.NewNop(), "jobs", func(ctx context.Context) ([]byte, error) {
		calls++
		return flaky(503)(ctx)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2)
}

func TestRetryDeadlineReturnsLastFailure(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 10, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := policy.run(ctx, zap.NewNop(), "jobs", flaky(503))
	assert.Equal(t, KindStatus, KindOf(err))
}

func TestRetryPassesThroughForeignErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := fastRetry(3).run(context.Background(), zap.NewNop(), "jobs", func(context.Context) ([]byte, error) {
		calls++
		return nil, boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	for n := 0; n < 6; n++ {
		d := p.backoff(n)
		assert.LessOrEqual(t, d, time.Duration(float64(p.MaxDelay)*1.2), "retry %d", n)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond, "retry %d", n)
	}
}

// fakeClock is a manually advanced clock for circuit timing.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testBreakers(clock *fakeClock, cfg BreakerConfig) *breakers {
	return newBreakers(cfg, clock.Now, zap.NewNop())
}

var transient = statusError("jobs", 503, "")

func TestBreakerOpensAndFailsFast(t *testing.T) {
	clock := newFakeClock()
	b := testBreakers(clock, BreakerConfig{Failures: 3, Window: time.Minute, Cooldown: time.Minute, Successes: 1}).get("jobs")

	for i := 0; i < 3; i++ {
		require.NoError(t, b.allow())
		b.record(transient)
	}
	assert.Equal(t, CircuitOpen, b.State())

	err := b.allow()
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Contains(t, UserFriendlyMessage(err), "Job openings are temporarily unavailable")
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	b := testBreakers(clock, BreakerConfig{Failures: 2, Window: time.Minute, Cooldown: 30 * time.Second, Successes: 2}).get("jobs")

	b.record(transient)
	b.record(transient)
	require.Equal(t, CircuitOpen, b.State())

	clock.Advance(29 * time.Second)
	assert.Error(t, b.allow())

	clock.Advance(time.Second)
	require.NoError(t, b.allow())
	assert.Equal(t, CircuitHalfOpen, b.State())

	b.record(nil)
	assert.Equal(t, CircuitHalfOpen, b.State(), "one trial is not enough")
	b.record(nil)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerReopensOnTrialFailure(t *testing.T) {
	clock := newFakeClock()
	b := testBreakers(clock, BreakerConfig{Failures: 2, Window: time.Minute, Cooldown: time.Second, Successes: 2}).get("jobs")

	b.record(transient)
	b.record(transient)
	clock.Advance(time.Second)
	require.NoError(t, b.allow())

	b.record(transient)
	assert.Equal(t, CircuitOpen, b.State())
	assert.Error(t, b.allow(), "cooldown restarts")
}

func TestBreakerForgetsOldFailures(t *testing.T) {
	clock := newFakeClock()
	b := testBreakers(clock, BreakerConfig{Failures: 2, Window: 10 * time.Second, Cooldown: time.Minute, Successes: 1}).get("jobs")

	b.record(transient)
	clock.Advance(11 * time.Second)
	b.record(transient)
	assert.Equal(t, CircuitClosed, b.State())

	b.record(transient)
	assert.Equal(t, CircuitOpen, b.State())
}

func TestBreakerIgnoresHealthyAnswers(t *testing.T) {
	clock := newFakeClock()
	b := testBreakers(clock, BreakerConfig{Failures: 1, Window: time.Minute, Cooldown: time.Minute, Successes: 1}).get("jobs")

	b.record(statusError("jobs", 404, ""))
	b.record(malformedError("jobs", "response is not JSON", nil))
	b.record(context.Canceled)
	b.record(errors.New("unrelated"))
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakersArePerCollection(t *testing.T) {
	clock := newFakeClock()
	bs := testBreakers(clock, BreakerConfig{Failures: 1, Window: time.Minute, Cooldown: time.Minute, Successes: 1})

	bs.get(CollectionTestimonials).record(transient)
	assert.Equal(t, CircuitOpen, bs.get(CollectionTestimonials).State())
	assert.Equal(t, CircuitClosed, bs.get(CollectionJobs).State())
	assert.NoError(t, bs.get(CollectionJobs).allow())

	assert.Equal(t, map[string]CircuitState{
		CollectionTestimonials: CircuitOpen,
		CollectionJobs:         CircuitClosed,
	}, bs.states())
}

func TestCircuitStateString(t *testing.T) {
	cases := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
