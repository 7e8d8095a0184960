package cms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/engagesite/internal/cache"
	"github.com/livetemplate/engagesite/internal/config"
)

const jobsBody = `{
  "docs": [
    {"id": "j1", "title": "Backend Engineer", "category": "Engineering", "location": "Berlin", "status": "published", "createdAt": "2026-09-01T10:00:00Z"},
    {"id": 2, "title": null, "department": "Sales"},
    "not-an-object",
    {"id": "j3", "title": "Designer", "location": {"city": "?"}}
  ],
  "totalDocs": 3, "limit": 100, "page": 1, "totalPages": 1,
  "hasNextPage": false, "hasPrevPage": false
}`

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(fastRetry(2))}, opts...)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewValidatesURL(t *testing.T) {
	_, err := New("")
	assert.Equal(t, KindInvalid, KindOf(err))
	assert.Contains(t, err.Error(), "url is required")

	_, err = New("localhost:3000/api")
	assert.Equal(t, KindInvalid, KindOf(err))

	c, err := New("http://cms.test/")
	require.NoError(t, err)
	assert.Equal(t, "http://cms.test", c.BaseURL())
}

func TestNewFromConfigUsesEnvOverride(t *testing.T) {
	t.Setenv(config.EnvCMSURL, "http://override.test:4000")
	c, err := NewFromConfig(config.CMSConfig{URL: "http://ignored.test"}, nil, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "http://override.test:4000", c.BaseURL())
}

func TestJobsQueryAndTolerantDecode(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(jobsBody))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).Jobs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/api/jobs", gotPath)
	assert.Equal(t, []string{"published"}, gotQuery["where[status][equals]"])
	assert.Equal(t, []string{"-createdAt"}, gotQuery["sort"])

	require.Len(t, res.Docs, 3, "non-object documents are skipped")
	assert.Equal(t, 3, res.TotalDocs)

	first := res.Docs[0]
	assert.Equal(t, Text("Backend Engineer"), first.Title)
	assert.Equal(t, 2026, first.Posted().Year())

	second := res.Docs[1]
	assert.Equal(t, Text("2"), second.ID, "numeric ids become text")
	assert.Equal(t, Text("Untitled role"), second.Title)
	assert.Equal(t, Text("Sales"), second.Category, "department backs a missing category")
	assert.True(t, second.Posted().IsZero())

	third := res.Docs[2]
	assert.Equal(t, Text(DefaultJobCategory), third.Category)
	assert.Equal(t, Text("Remote"), third.Location, "object-typed text falls back")
}

func TestSlidesExpandImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/banner-slides", r.URL.Path)
		assert.Equal(t, "order", r.URL.Query().Get("sort"))
		assert.Equal(t, "1", r.URL.Query().Get("depth"))
		w.Write([]byte(`{"docs":[
			{"id":"s1","title":"Meet Engage","image":{"url":"/media/hero.png","alt":"Hero","width":"1200","height":630}},
			{"id":"s2","title":"No image","image":"64f0c2"},
			{"id":"s3","title":"Link","ctaHref":"/solutions"},
			{"id":"s4","title":"Unsafe","ctaHref":"javascript:alert(1)","image":{"url":"javascript:alert(1)"}}
		]}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).Slides(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Docs, 4)

	assert.Equal(t, Text(srv.URL+"/media/hero.png"), res.Docs[0].Image.URL, "uploads resolve against the API origin")
	assert.Equal(t, 1200, res.Docs[0].Image.Width)
	assert.Equal(t, 630, res.Docs[0].Image.Height)

	assert.Equal(t, Text("64f0c2"), res.Docs[1].Image.ID)
	assert.Equal(t, Text(FallbackSlideImage), res.Docs[1].Image.URL)
	assert.Equal(t, Text("No image"), res.Docs[1].Image.Alt)

	assert.Equal(t, Text("Learn more"), res.Docs[2].CTALabel)

	assert.Empty(t, res.Docs[3].CTAHref, "unsafe links are dropped")
	assert.Empty(t, res.Docs[3].CTALabel)
	assert.Equal(t, Text(FallbackSlideImage), res.Docs[3].Image.URL)
}

func TestTestimonialsAudience(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "employee", r.URL.Query().Get("where[type][equals]"))
		w.Write([]byte(`{"docs":[{"name":"ada lovelace","quote":"Great team","type":"employee"},{"quote":"anon"}]}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	res, err := c.Testimonials(context.Background(), AudienceEmployee)
	require.NoError(t, err)
	require.Len(t, res.Docs, 2)
	assert.Equal(t, "AL", res.Docs[0].Initials())
	assert.Equal(t, Text("Anonymous"), res.Docs[1].Name)

	_, err = c.Testimonials(context.Background(), Audience("partner"))
	assert.Equal(t, KindInvalid, KindOf(err))
}

func TestFindEmptyDocs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"docs": []}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).Jobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Docs)
	assert.NotNil(t, res.Docs)
}

func TestFindPlainRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`[{"id":1,"title":"a"},{"id":2,"title":"b"}]`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).Find(context.Background(), "posts", Query{Page: 2})
	require.NoError(t, err)
	require.Len(t, res.Docs, 2)
	assert.Equal(t, "b", res.Docs[1]["title"])
	assert.Equal(t, 2, res.TotalDocs)
}

func TestFindErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		calls   int32
		message string
	}{
		{"not found is not retried", http.StatusNotFound, "missing", 1, "Could not find job openings."},
		{"server error is retried", http.StatusInternalServerError, "boom", 3, "Server error. Please try again later."},
		{"malformed json", http.StatusOK, "<html>", 1, "Could not read job openings from the content service."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Jobs(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.calls, calls.Load())
			assert.Equal(t, tt.message, UserFriendlyMessage(err))
		})
	}
}

func TestFindNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := New(addr, WithRetryPolicy(fastRetry(0)))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Jobs(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Contains(t, UserFriendlyMessage(err), "Could not connect")
}

func TestFindCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, err := New("http://cms.test")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Jobs(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHeadersAreSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"docs":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, WithHeaders(map[string]string{"X-API-Key": "secret"})).Jobs(context.Background())
	require.NoError(t, err)
}

func TestCachedResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"docs":[{"title":"a"}]}`))
	}))
	defer srv.Close()

	store := cache.NewMemoryCache()
	defer store.Stop()
	c := newTestClient(t, srv, WithCache(store, time.Minute, "simple"))

	for i := 0; i < 3; i++ {
		_, err := c.Jobs(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	c.Invalidate()
	_, err := c.Jobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStaleWhileRevalidate(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"docs":[]}`))
	}))
	defer srv.Close()

	store := cache.NewMemoryCache()
	defer store.Stop()
	c := newTestClient(t, srv, WithCache(store, 200*time.Millisecond, "stale-while-revalidate"))

	_, err := c.Slides(context.Background())
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	_, err = c.Slides(context.Background())
	require.NoError(t, err, "stale data is served")

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestConcurrentRequestsCoalesce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte(`{"docs":[]}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := c.Jobs(context.Background())
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < 5; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv,
		WithRetryPolicy(fastRetry(0)),
		WithBreaker(BreakerConfig{Failures: 2, Window: time.Minute, Cooldown: time.Minute, Successes: 1}))

	c.Jobs(context.Background())
	c.Jobs(context.Background())
	_, err := c.Jobs(context.Background())

	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, CircuitOpen, c.Circuit(CollectionJobs))
	assert.Equal(t, CircuitOpen, c.Health())
}

// Retries that run out still count against the circuit.
func TestCircuitCountsExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv,
		WithRetryPolicy(fastRetry(1)),
		WithBreaker(BreakerConfig{Failures: 2, Window: time.Minute, Cooldown: time.Minute, Successes: 1}))

	for i := 0; i < 5; i++ {
		_, err := c.Jobs(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, c.Circuit(CollectionJobs))
	assert.Equal(t, int32(4), calls.Load(), "two failed fetches of two requests each, then fail fast")
}

func TestCircuitIsPerCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/testimonials" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"docs":[{"title":"SRE"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv,
		WithRetryPolicy(fastRetry(0)),
		WithBreaker(BreakerConfig{Failures: 1, Window: time.Minute, Cooldown: time.Minute, Successes: 1}))

	_, err := c.Testimonials(context.Background(), AudienceClient)
	require.Error(t, err)
	_, err = c.Testimonials(context.Background(), AudienceEmployee)
	assert.Equal(t, KindUnavailable, KindOf(err), "both audiences share the testimonials collection")

	res, err := c.Jobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Docs, 1)
	assert.Equal(t, CircuitClosed, c.Circuit(CollectionJobs))
	assert.Equal(t, CircuitOpen, c.Health())
}

func TestCircuitCooldownUsesClock(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"docs":[]}`))
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := newTestClient(t, srv,
		WithRetryPolicy(fastRetry(0)),
		WithClock(clock.Now),
		WithBreaker(BreakerConfig{Failures: 1, Window: time.Minute, Cooldown: 10 * time.Second, Successes: 1}))

	c.Jobs(context.Background())
	require.Equal(t, CircuitOpen, c.Circuit(CollectionJobs))

	failing.Store(false)
	clock.Advance(10 * time.Second)
	_, err := c.Jobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, c.Circuit(CollectionJobs))
}

// A caller that gives up while a coalesced request is in flight must not
// fail the callers waiting on the same request.
func TestCoalescedCallerLeavingDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte(`{"docs":[{"title":"SRE"}]}`))
	}))
	defer srv.Close()
	defer close(release)
	c := newTestClient(t, srv)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Jobs(first)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() {
		res, err := c.Jobs(context.Background())
		if err == nil && len(res.Docs) != 1 {
			err = errors.New("unexpected docs")
		}
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	release <- struct{}{}
	select {
	case err := <-second:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not finish")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestClosedClientRejectsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"docs":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	require.NoError(t, c.Close())

	_, err := c.Jobs(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
