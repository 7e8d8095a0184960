package server

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// evictionLogInterval is the minimum time between eviction log messages.
const evictionLogInterval = 30 * time.Second

// visitorLimits is the configuration of a visitors set.
type visitorLimits struct {
	RPS            float64
	Burst          int
	MaxVisitors    int
	Idle           time.Duration  // Quiet visitors are forgotten after this
	TrustedProxies []netip.Prefix // Peers whose X-Forwarded-For is believed
}

// visitor is one client address and its token bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors rate limits page views and stepper connections per client
// address. Page views are what reach the content API, so assets and health
// checks are never limited.
type visitors struct {
	cfg visitorLimits
	log *zap.Logger
	now func() time.Time

	mu           sync.Mutex
	lru          *simplelru.LRU[netip.Addr, *visitor] // oldest first is least recently seen
	evicted      int
	lastEvictLog time.Time
}

func newVisitors(cfg visitorLimits, log *zap.Logger) *visitors {
	if cfg.MaxVisitors <= 0 {
		cfg.MaxVisitors = 10000
	}
	if cfg.Idle <= 0 {
		cfg.Idle = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	lru, _ := simplelru.NewLRU[netip.Addr, *visitor](cfg.MaxVisitors, nil) // size is positive
	return &visitors{cfg: cfg, log: log, now: time.Now, lru: lru}
}

// sweep forgets every visitor idle for longer than cfg.Idle.
func (v *visitors) sweep() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := v.now().Add(-v.cfg.Idle)
	n := 0
	for {
		_, vis, ok := v.lru.GetOldest()
		if !ok || vis.lastSeen.After(cutoff) {
			return n
		}
		v.lru.RemoveOldest()
		n++
	}
}

// run sweeps idle visitors until ctx is done. The returned channel is
// closed when it stops.
func (v *visitors) run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	interval := v.cfg.Idle / 2
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := v.sweep(); n > 0 {
					v.log.Debug("forgot idle visitors", zap.Int("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// reserve takes a token for addr. It returns zero when the request may
// proceed, otherwise how long the visitor should wait.
func (v *visitors) reserve(addr netip.Addr) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	vis, ok := v.lru.Get(addr)
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RPS), v.cfg.Burst)}
		if v.lru.Add(addr, vis) {
			v.evicted++
			if now.Sub(v.lastEvictLog) >= evictionLogInterval {
				v.log.Info("evicted least recent visitors",
					zap.Int("count", v.evicted),
					zap.Int("capacity", v.cfg.MaxVisitors))
				v.lastEvictLog = now
				v.evicted = 0
			}
		}
	}
	vis.lastSeen = now

	r := vis.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return wait
	}
	return 0
}

// limit wraps next, handing over-limit requests to reject with the wait
// the visitor should observe.
func (v *visitors) limit(next http.Handler, reject func(w http.ResponseWriter, r *http.Request, wait time.Duration)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait := v.reserve(v.addr(r)); wait > 0 {
			w.Header().Set("Retry-After", retryAfter(wait))
			reject(w, r, wait)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// addr returns the visitor's address. X-Forwarded-For is read from the
// right, skipping trusted proxy hops, so a client cannot choose its own
// bucket by prepending entries.
func (v *visitors) addr(r *http.Request) netip.Addr {
	peer := parseAddr(r.RemoteAddr)
	if !v.trusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := parseAddr(strings.TrimSpace(hops[i]))
			if !hop.IsValid() {
				break
			}
			peer = hop
			if !v.trusted(hop) {
				break
			}
		}
		return peer
	}
	if xri := parseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); xri.IsValid() {
		return xri
	}
	return peer
}

func (v *visitors) trusted(a netip.Addr) bool {
	if !a.IsValid() {
		return false
	}
	for _, p := range v.cfg.TrustedProxies {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// parseAddr accepts "host", "host:port" and "[v6]:port", and unmaps
// IPv4-in-IPv6 so both forms share a bucket.
func parseAddr(s string) netip.Addr {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap()
}

// retryAfter formats a wait as whole seconds, rounding up.
func retryAfter(wait time.Duration) string {
	return strconv.Itoa(int(math.Ceil(wait.Seconds())))
}
