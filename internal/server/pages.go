package server

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	g "maragu.dev/gomponents"

	"github.com/livetemplate/engagesite/internal/careers"
	"github.com/livetemplate/engagesite/internal/cms"
	"github.com/livetemplate/engagesite/internal/section"
	"github.com/livetemplate/engagesite/internal/stepper"
	"github.com/livetemplate/engagesite/internal/views"
)

// Empty-state text per section.
const (
	noSlides       = "No announcements right now"
	noTestimonials = "No testimonials yet"
)

// initialStepper is the state pages render before the browser measures.
var initialStepper = stepper.State{Class: stepper.Narrow}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	slides := section.New[cms.Slide]("banner", noSlides)
	clients := section.New[cms.Testimonial]("client", noTestimonials)

	if !s.loadSections(r.Context(),
		loader(slides, docs(s.cms.Slides)),
		loader(clients, testimonials(s.cms, cms.AudienceClient)),
	) {
		return
	}

	s.render(w, r, http.StatusOK, views.HomePage(s.site(), views.HomeData{
		Content: s.content.Data(),
		Slides:  slides.Snapshot(),
		Clients: clients.Snapshot(),
		Stepper: initialStepper,
	}))
}

func (s *Server) handleSolutions(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, views.SolutionsPage(s.site(), s.content.Data(), initialStepper))
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	employees := section.New[cms.Testimonial]("employee", noTestimonials)
	if !s.loadSections(r.Context(), loader(employees, testimonials(s.cms, cms.AudienceEmployee))) {
		return
	}

	s.render(w, r, http.StatusOK, views.AboutPage(s.site(), s.content.Data(), employees.Snapshot()))
}

func (s *Server) handleCareers(w http.ResponseWriter, r *http.Request) {
	params := careers.ParseParams(r.URL.Query())
	jobs := section.New[cms.Job]("jobs", careers.EmptyMessage)
	if !s.loadSections(r.Context(), loader(jobs, docs(s.cms.Jobs))) {
		return
	}

	snap := jobs.Snapshot()
	var listing careers.Listing
	if snap.Status == section.Ready {
		listing = careers.Build(snap.Items, params, s.config.Careers.GetPageSize())
	}
	s.render(w, r, http.StatusOK, views.CareersPage(s.site(), snap, listing))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, views.NotFoundPage(s.site()))
}

// handleBusy answers a rate-limited request. Stepper connections get a
// JSON error, page views a page.
func (s *Server) handleBusy(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	s.log.Debug("visitor rate limited", zap.String("path", r.URL.Path), zap.Duration("wait", wait))
	if r.URL.Path == views.StepperWSPath {
		writeJSONError(w, http.StatusTooManyRequests, "too many stepper connections")
		return
	}
	s.render(w, r, http.StatusTooManyRequests, views.BusyPage(s.site(), retryAfter(wait)))
}

// sectionLoad is one section of a page being fetched.
type sectionLoad struct {
	name    string
	load    func(ctx context.Context) bool // reports whether the result was applied
	unmount func()
}

func loader[T any](sec *section.Section[T], fetch section.FetchFunc[T]) sectionLoad {
	return sectionLoad{
		name:    sec.Snapshot().Name,
		load:    func(ctx context.Context) bool { return sec.Load(ctx, fetch) },
		unmount: sec.Unmount,
	}
}

// loadSections fetches every section concurrently, each under its own
// deadline. A failed section never cancels its siblings; the failure is
// carried in that section's snapshot. When the visitor goes away first, the
// sections are unmounted so late results are dropped, and false is returned:
// there is no one to render the page for.
func (s *Server) loadSections(ctx context.Context, loads ...sectionLoad) bool {
	timeout := s.config.Server.GetSectionTimeout()

	stop := context.AfterFunc(ctx, func() {
		for _, l := range loads {
			l.unmount()
		}
	})
	defer stop()

	var eg errgroup.Group
	for _, l := range loads {
		eg.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if !l.load(sctx) {
				s.log.Debug("section result dropped", zap.String("section", l.name))
			}
			return nil
		})
	}
	_ = eg.Wait()

	if ctx.Err() != nil {
		s.log.Debug("client gone, page not rendered", zap.Error(ctx.Err()))
		return false
	}
	return true
}

// docs adapts a typed CMS query to a section fetch.
func docs[T any](find func(context.Context) (*cms.Result[T], error)) section.FetchFunc[T] {
	return func(ctx context.Context) ([]T, error) {
		res, err := find(ctx)
		if err != nil {
			return nil, err
		}
		return res.Docs, nil
	}
}

func testimonials(c *cms.Client, audience cms.Audience) section.FetchFunc[cms.Testimonial] {
	return docs(func(ctx context.Context) (*cms.Result[cms.Testimonial], error) {
		return c.Testimonials(ctx, audience)
	})
}

// render writes a page. The document is rendered to a buffer first so a
// render failure can still produce a 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page g.Node) {
	var buf bytes.Buffer
	if err := views.Render(&buf, page); err != nil {
		s.log.Error("render failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
