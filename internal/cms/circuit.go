package cms

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState is whether a collection is being requested.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Requests flow
	CircuitOpen                         // Requests fail fast until the cooldown ends
	CircuitHalfOpen                     // Trial requests decide whether to close
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig sets when a collection is paused and how it recovers.
type BreakerConfig struct {
	Failures  int           // Transient failures within Window that open the circuit
	Window    time.Duration // Failures older than this are forgotten
	Cooldown  time.Duration // Time spent open before trial requests
	Successes int           // Trial successes needed to close again
}

// DefaultBreakerConfig returns the thresholds used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Failures:  5,
		Window:    time.Minute,
		Cooldown:  30 * time.Second,
		Successes: 2,
	}
}

// breaker guards one collection. A failing testimonials endpoint never
// pauses job listings.
type breaker struct {
	collection string
	cfg        BreakerConfig
	now        func() time.Time
	log        *zap.Logger

	mu       sync.Mutex
	state    CircuitState
	failures []time.Time
	trials   int
	openedAt time.Time
}

// allow returns an unavailable error while the circuit is open.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return &Error{Collection: b.collection, Kind: KindUnavailable}
		}
		b.setState(CircuitHalfOpen)
	}
	return nil
}

// record feeds one request outcome into the circuit. Cancellations and
// errors that say nothing about the API's health are ignored.
func (b *breaker) record(err error) {
	var e *Error
	switch {
	case err == nil:
		b.succeeded()
	case errors.As(err, &e) && e.Transient():
		b.failed()
	}
}

func (b *breaker) succeeded() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.trials++
		if b.trials >= b.cfg.Successes {
			b.setState(CircuitClosed)
		}
	case CircuitClosed:
		b.failures = b.failures[:0]
	}
}

func (b *breaker) failed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.state == CircuitHalfOpen {
		b.setState(CircuitOpen)
		return
	}

	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, at := range b.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.failures = append(kept, now)

	if b.state == CircuitClosed && len(b.failures) >= b.cfg.Failures {
		b.setState(CircuitOpen)
	}
}

// setState switches state. Caller holds b.mu.
func (b *breaker) setState(to CircuitState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.trials = 0
	switch to {
	case CircuitOpen:
		b.openedAt = b.now()
		b.log.Warn("collection paused",
			zap.String("collection", b.collection),
			zap.Int("failures", len(b.failures)),
			zap.Duration("cooldown", b.cfg.Cooldown))
	case CircuitClosed:
		b.failures = b.failures[:0]
		b.log.Info("collection resumed", zap.String("collection", b.collection))
	default:
		b.log.Debug("collection on trial", zap.String("collection", b.collection), zap.Stringer("from", from))
	}
}

func (b *breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// breakers holds one breaker per collection, created on first use.
type breakers struct {
	cfg BreakerConfig
	now func() time.Time
	log *zap.Logger

	mu sync.Mutex
	m  map[string]*breaker
}

func newBreakers(cfg BreakerConfig, now func() time.Time, log *zap.Logger) *breakers {
	return &breakers{cfg: cfg, now: now, log: log, m: make(map[string]*breaker)}
}

func (bs *breakers) get(collection string) *breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.m[collection]
	if !ok {
		b = &breaker{collection: collection, cfg: bs.cfg, now: bs.now, log: bs.log}
		bs.m[collection] = b
	}
	return b
}

func (bs *breakers) states() map[string]CircuitState {
	bs.mu.Lock()
	all := make([]*breaker, 0, len(bs.m))
	for _, b := range bs.m {
		all = append(all, b)
	}
	bs.mu.Unlock()

	out := make(map[string]CircuitState, len(all))
	for _, b := range all {
		out[b.collection] = b.State()
	}
	return out
}
