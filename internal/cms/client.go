package cms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/livetemplate/engagesite/internal/cache"
	"github.com/livetemplate/engagesite/internal/config"
	"github.com/livetemplate/engagesite/internal/security"
)

// Collection slugs served under /api/.
const (
	CollectionJobs         = "jobs"
	CollectionSlides       = "banner-slides"
	CollectionTestimonials = "testimonials"
)

const (
	maxResponseSize = 10 * 1024 * 1024 // 10MB
	jobsLimit       = 100
	fetchBudget     = 30 * time.Second // Retries included
)

// Client reads collections from the content API. Requests for the same URL
// are coalesced, pass through the collection's circuit breaker and are
// retried with backoff. Responses are optionally cached.
type Client struct {
	baseURL  string
	headers  map[string]string
	http     *http.Client
	retry    RetryPolicy
	breakers *breakers
	circuit  BreakerConfig
	now      func() time.Time
	log      *zap.Logger

	cache    cache.Cache
	ttl      time.Duration
	strategy string

	group singleflight.Group

	// Shared fetches and revalidations run on bgCtx, not on any caller's
	// context, and are waited for by Close.
	mu           sync.Mutex
	closed       bool
	revalidating map[string]bool
	bgCtx        context.Context
	bgCancel     context.CancelFunc
	bg           sync.WaitGroup
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy sets how transient failures are retried.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithBreaker sets the per-collection circuit thresholds.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) { c.circuit = cfg }
}

// WithClock replaces time.Now for circuit timing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithHeaders adds request headers, e.g. an API key.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithCache caches raw responses for ttl. strategy is "simple" or
// "stale-while-revalidate"; with the latter, entries are fresh for half the
// TTL and served stale while a background refresh runs for the other half.
func WithCache(store cache.Cache, ttl time.Duration, strategy string) Option {
	return func(c *Client) {
		c.cache = store
		c.ttl = ttl
		c.strategy = strategy
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, invalidError("", "url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, invalidError("", fmt.Sprintf("url %q is not absolute", baseURL))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		baseURL:      baseURL,
		headers:      make(map[string]string),
		http:         &http.Client{Timeout: 10 * time.Second},
		retry:        DefaultRetryPolicy(),
		circuit:      DefaultBreakerConfig(),
		now:          time.Now,
		log:          zap.NewNop(),
		revalidating: make(map[string]bool),
		bgCtx:        ctx,
		bgCancel:     cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breakers = newBreakers(c.circuit, c.now, c.log)
	return c, nil
}

// NewFromConfig builds a client from the cms section of the site config.
// store may be nil, in which case caching is disabled regardless of config.
func NewFromConfig(cfg config.CMSConfig, store cache.Cache, log *zap.Logger) (*Client, error) {
	opts := []Option{
		WithLogger(log),
		WithHTTPClient(&http.Client{Timeout: cfg.GetTimeout()}),
		WithHeaders(cfg.GetHeaders()),
		WithRetryPolicy(RetryPolicy{
			MaxRetries: cfg.GetRetryMaxRetries(),
			BaseDelay:  cfg.GetRetryBaseDelay(),
			MaxDelay:   cfg.GetRetryMaxDelay(),
			Multiplier: 2,
		}),
		WithBreaker(BreakerConfig{
			Failures:  cfg.GetCircuitFailures(),
			Window:    cfg.GetCircuitWindow(),
			Cooldown:  cfg.GetCircuitCooldown(),
			Successes: DefaultBreakerConfig().Successes,
		}),
	}
	if store != nil && cfg.IsCacheEnabled() {
		opts = append(opts, WithCache(store, cfg.GetCacheTTL(), cfg.GetCacheStrategy()))
	}
	return New(cfg.GetURL(), opts...)
}

// BaseURL returns the API origin
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Circuit returns the circuit state of one collection. Collections that
// have not been requested yet are closed.
func (c *Client) Circuit(collection string) CircuitState {
	return c.breakers.get(collection).State()
}

// Circuits returns the circuit state of every requested collection.
func (c *Client) Circuits() map[string]CircuitState {
	return c.breakers.states()
}

// Health returns the worst circuit state across collections.
func (c *Client) Health() CircuitState {
	worst := CircuitClosed
	for _, st := range c.breakers.states() {
		if st == CircuitOpen {
			return CircuitOpen
		}
		if st == CircuitHalfOpen {
			worst = CircuitHalfOpen
		}
	}
	return worst
}

// Find returns one page of a collection as plain records.
func (c *Client) Find(ctx context.Context, collection string, q Query) (*Result[map[string]any], error) {
	return find[map[string]any](ctx, c, collection, q)
}

// Jobs returns published openings, newest first.
func (c *Client) Jobs(ctx context.Context) (*Result[Job], error) {
	res, err := find[Job](ctx, c, CollectionJobs, Query{
		Where: []Where{Equals("status", "published")},
		Sort:  "-createdAt",
		Limit: jobsLimit,
	})
	if err != nil {
		return nil, err
	}
	for i := range res.Docs {
		res.Docs[i] = res.Docs[i].Normalize()
	}
	return res, nil
}

// Slides returns banner slides in editor order with their images expanded.
func (c *Client) Slides(ctx context.Context) (*Result[Slide], error) {
	res, err := find[Slide](ctx, c, CollectionSlides, Query{Sort: "order", Depth: 1})
	if err != nil {
		return nil, err
	}
	for i := range res.Docs {
		res.Docs[i].Image.URL = c.mediaURL(res.Docs[i].Image.URL)
		res.Docs[i] = res.Docs[i].Normalize()
	}
	return res, nil
}

// Testimonials returns quotes for one audience in editor order.
func (c *Client) Testimonials(ctx context.Context, audience Audience) (*Result[Testimonial], error) {
	if !audience.Valid() {
		return nil, invalidError(CollectionTestimonials, fmt.Sprintf("unknown audience %q", audience))
	}
	res, err := find[Testimonial](ctx, c, CollectionTestimonials, Query{
		Where: []Where{Equals("type", string(audience))},
		Sort:  "order",
		Depth: 1,
	})
	if err != nil {
		return nil, err
	}
	for i := range res.Docs {
		res.Docs[i].Avatar.URL = c.mediaURL(res.Docs[i].Avatar.URL)
		res.Docs[i] = res.Docs[i].Normalize()
	}
	return res, nil
}

// mediaURL makes an uploaded file path absolute against the API origin.
func (c *Client) mediaURL(u Text) Text {
	return Text(security.ResolveAgainst(c.baseURL, string(u)))
}

// Invalidate drops every cached response.
func (c *Client) Invalidate() {
	if c.cache != nil {
		c.cache.InvalidateAll()
	}
}

// Close cancels shared fetches and background revalidation and waits for
// them to finish. Later requests fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.bgCancel()
	c.bg.Wait()
	return nil
}

// startBackground registers one background task. It reports false once the
// client is closed.
func (c *Client) startBackground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.bg.Add(1)
	return true
}

func find[T any](ctx context.Context, c *Client, collection string, q Query) (*Result[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	endpoint := c.endpoint(collection, q)
	body, err := c.get(ctx, collection, endpoint)
	if err != nil {
		return nil, err
	}
	return decode[T](c.log, collection, body)
}

func (c *Client) endpoint(collection string, q Query) string {
	u := c.baseURL + "/api/" + collection
	if enc := q.Values().Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (c *Client) get(ctx context.Context, collection, endpoint string) ([]byte, error) {
	if c.cache != nil {
		if data, found, stale := c.cache.Get(endpoint); found {
			if stale && c.strategy == "stale-while-revalidate" {
				c.revalidate(collection, endpoint)
			}
			return data, nil
		}
	}

	// The shared fetch outlives any one caller: a visitor who leaves, or a
	// section whose deadline passes, stops waiting without failing the
	// others.
	ch := c.group.DoChan(endpoint, func() (any, error) {
		return c.fetchShared(collection, endpoint)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug("coalesced request", zap.String("url", endpoint))
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetchShared(collection, endpoint string) ([]byte, error) {
	if !c.startBackground() {
		return nil, ErrClosed
	}
	defer c.bg.Done()

	ctx, cancel := context.WithTimeout(c.bgCtx, fetchBudget)
	defer cancel()
	return c.fetchAndCache(ctx, collection, endpoint)
}

func (c *Client) fetchAndCache(ctx context.Context, collection, endpoint string) ([]byte, error) {
	br := c.breakers.get(collection)
	if err := br.allow(); err != nil {
		return nil, err
	}
	body, err := c.retry.run(ctx, c.log, collection, func(ctx context.Context) ([]byte, error) {
		return c.doGet(ctx, collection, endpoint)
	})
	br.record(err)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.ttl > 0 {
		if c.strategy == "stale-while-revalidate" {
			c.cache.SetWithStale(endpoint, body, c.ttl/2, c.ttl)
		} else {
			c.cache.Set(endpoint, body, c.ttl)
		}
	}
	return body, nil
}

func (c *Client) revalidate(collection, endpoint string) {
	c.mu.Lock()
	if c.revalidating[endpoint] || c.closed {
		c.mu.Unlock()
		return
	}
	c.revalidating[endpoint] = true
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.revalidating, endpoint)
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(c.bgCtx, fetchBudget)
		defer cancel()

		if _, err := c.fetchAndCache(ctx, collection, endpoint); err != nil && c.bgCtx.Err() == nil {
			c.log.Warn("background revalidation failed", zap.String("collection", collection), zap.Error(err))
		}
	}()
}

func (c *Client) doGet(ctx context.Context, collection, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, invalidError(collection, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(collection, err)
	}
	defer resp.Body.Close()

	c.log.Debug("cms request",
		zap.String("collection", collection),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, statusError(collection, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(collection, err)
	}
	return body, nil
}

// decode reads a find response. A bare JSON array is accepted as the docs
// list; individual documents that are not objects are skipped.
func decode[T any](log *zap.Logger, collection string, body []byte) (*Result[T], error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &Result[T]{Docs: []T{}}, nil
	}

	var envelope Result[json.RawMessage]
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &envelope.Docs); err != nil {
			return nil, malformedError(collection, "docs array", err)
		}
		envelope.TotalDocs = len(envelope.Docs)
	case '{':
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, malformedError(collection, "find envelope", err)
		}
	default:
		return nil, malformedError(collection, "response is not JSON", nil)
	}

	res := &Result[T]{
		Docs:        make([]T, 0, len(envelope.Docs)),
		TotalDocs:   envelope.TotalDocs,
		Limit:       envelope.Limit,
		Page:        envelope.Page,
		TotalPages:  envelope.TotalPages,
		HasNextPage: envelope.HasNextPage,
		HasPrevPage: envelope.HasPrevPage,
	}
	for i, raw := range envelope.Docs {
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.Warn("skipping malformed document", zap.String("collection", collection), zap.Int("index", i), zap.Error(err))
			continue
		}
		res.Docs = append(res.Docs, doc)
	}
	return res, nil
}
