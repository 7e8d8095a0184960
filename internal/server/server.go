// Package server serves the marketing site: server-rendered pages, embedded
// assets, and the live stepper channel.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/livetemplate/engagesite/internal/assets"
	"github.com/livetemplate/engagesite/internal/cms"
	"github.com/livetemplate/engagesite/internal/config"
	"github.com/livetemplate/engagesite/internal/content"
	"github.com/livetemplate/engagesite/internal/views"
)

// Server is the site's HTTP handler.
type Server struct {
	config  *config.Config
	content *content.Store
	cms     *cms.Client
	log     *zap.Logger
	now     func() time.Time

	router  chi.Router
	stepper *StepperHandler

	sessions map[*session]bool // Open stepper connections
	connMu   sync.RWMutex

	visitors      *visitors // nil when rate limiting is off
	limiterCancel context.CancelFunc
	limiterDone   <-chan struct{}
}

// New creates a server. store provides the static content and client the
// CMS-backed sections.
func New(cfg *config.Config, store *content.Store, client *cms.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config:   cfg,
		content:  store,
		cms:      client,
		log:      log,
		now:      time.Now,
		sessions: make(map[*session]bool),
	}
	s.stepper = NewStepperHandler(s, cfg.Stepper.ToStepper(), log.Named("ws"))
	if rl := cfg.RateLimit; rl != nil {
		proxies, err := rl.GetTrustedProxies()
		if err != nil {
			log.Warn("ignoring trusted proxies", zap.Error(err))
		}
		s.visitors = newVisitors(visitorLimits{
			RPS:            rl.GetRPS(),
			Burst:          rl.GetBurst(),
			MaxVisitors:    rl.GetMaxTrackedIPs(),
			Idle:           rl.GetIdle(),
			TrustedProxies: proxies,
		}, log.Named("ratelimit"))
		ctx, cancel := context.WithCancel(context.Background())
		s.limiterCancel = cancel
		s.limiterDone = s.visitors.run(ctx)
	}
	s.router = s.routes()

	// Open stepper sessions hold the old panels; ask them to reload.
	store.OnReload(func(*content.Data) {
		s.BroadcastReload()
	})
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.log.Named("http")))
	r.Use(siteHeaders(mediaOrigin(s.cms.BaseURL())))
	r.Use(CompressionMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		if s.visitors != nil {
			r.Use(func(next http.Handler) http.Handler {
				return s.visitors.limit(next, s.handleBusy)
			})
		}
		r.Get("/", s.handleHome)
		r.Get("/solutions", s.handleSolutions)
		r.Get("/about", s.handleAbout)
		r.Get("/careers", s.handleCareers)
		r.Handle(views.StepperWSPath, s.stepper)
	})
	r.Handle("/assets/*", http.StripPrefix("/assets/", cacheControl(http.FileServer(http.FS(assets.FS())))))
	r.NotFound(s.handleNotFound)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server and disconnects stepper
// clients.
func (s *Server) Close() error {
	if s.limiterCancel != nil {
		s.limiterCancel()
		<-s.limiterDone
	}

	s.connMu.Lock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
	s.connMu.Unlock()
	return nil
}

func (s *Server) registerSession(sess *session) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.sessions[sess] = true
	s.log.Debug("stepper connection registered", zap.Int("active", len(s.sessions)))
}

func (s *Server) unregisterSession(sess *session) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.sessions, sess)
	s.log.Debug("stepper connection unregistered", zap.Int("active", len(s.sessions)))
}

// Connections returns the number of open stepper connections.
func (s *Server) Connections() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.sessions)
}

// BroadcastReload tells every open stepper client that content changed.
func (s *Server) BroadcastReload() {
	s.connMu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.connMu.RUnlock()

	if len(sessions) == 0 {
		return
	}
	s.log.Info("broadcasting reload", zap.Int("connections", len(sessions)))
	for _, sess := range sessions {
		sess.send(outbound{Type: msgReload})
	}
}

func (s *Server) site() views.Site {
	return views.Site{
		Title:       s.config.Title,
		Description: s.config.Description,
		Year:        s.now().Year(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	circuits := make(map[string]string)
	for collection, st := range s.cms.Circuits() {
		circuits[collection] = st.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"cms":         s.cms.Health().String(),
		"circuits":    circuits,
		"connections": s.Connections(),
	})
}

func cacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
