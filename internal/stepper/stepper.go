// Package stepper implements the scroll-driven showcase stepper as a state
// machine. Browser scroll, resize and click events are fed in by an adapter;
// state changes and smooth-scroll commands are reported to a Listener.
package stepper

import (
	"sync"

	"go.uber.org/zap"
)

// State is the rendered state of a stepper.
type State struct {
	ActiveIndex int           `json:"activeIndex"`
	Progress    float64       `json:"progress"`
	Pinned      bool          `json:"pinned"`
	Class       ViewportClass `json:"class"`
}

// Viewport is the measured browser viewport.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Layout is the measured document geometry of the stepper.
type Layout struct {
	Top     float64 `json:"top"`     // Component top in document coordinates
	ScrollY float64 `json:"scrollY"` // Page scroll offset at measurement time
}

// ScrollCommand asks the browser to animate the page scroll offset.
type ScrollCommand struct {
	Panel  int     `json:"panel"`
	Y      float64 `json:"y"`
	Anchor string  `json:"anchor,omitempty"` // Element to bring into view when HasY is false
	Offset float64 `json:"offset,omitempty"` // Clearance to keep above Anchor
	Smooth bool    `json:"smooth"`
	HasY   bool    `json:"hasY"`
}

// Listener receives stepper output. Calls are made without the state lock
// held, from the goroutine that delivered the event or from the debounce
// timer, and never overlap: each call sees changes in the order they were made.
type Listener interface {
	StateChanged(State)
	ScrollRequested(ScrollCommand)
}

// Option configures a Stepper
type Option func(*Stepper)

// WithConfig overrides breakpoints, clearances and debounce delay.
func WithConfig(cfg Config) Option {
	return func(s *Stepper) { s.cfg = cfg.withDefaults() }
}

// WithListener registers the output listener.
func WithListener(l Listener) Option {
	return func(s *Stepper) { s.listener = l }
}

// WithAfterFunc replaces the timer used for resize debouncing.
func WithAfterFunc(after AfterFunc) Option {
	return func(s *Stepper) { s.after = after }
}

// WithLogger sets the logger used for binding lifecycle messages.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stepper) { s.log = l }
}

// Stepper is one mounted instance of the showcase stepper.
type Stepper struct {
	panels   []Panel
	cfg      Config
	listener Listener
	after    AfterFunc
	log      *zap.Logger
	debounce *Debouncer

	// emitMu spans a whole event, from mutation to listener call.
	emitMu sync.Mutex

	mu       sync.Mutex
	state    State
	viewport Viewport
	layout   Layout
	scrollY  float64
	binding  *Binding
	rebuilds int
	closed   bool
}

// New creates a stepper for the given panels. The stepper starts Narrow
// until the first measurement arrives.
func New(panels []Panel, opts ...Option) (*Stepper, error) {
	normalized, err := NormalizePanels(panels)
	if err != nil {
		return nil, err
	}

	s := &Stepper{
		panels: normalized,
		cfg:    DefaultConfig(),
		log:    zap.NewNop(),
		state:  State{Class: Narrow},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debounce = NewDebouncer(s.cfg.Debounce, s.after)
	return s, nil
}

// Panels returns the stepper's panels.
func (s *Stepper) Panels() []Panel {
	return s.panels
}

// Len returns the number of panels.
func (s *Stepper) Len() int {
	return len(s.panels)
}

// Snapshot returns the current state.
func (s *Stepper) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Binding returns the active pinned region, if any.
func (s *Stepper) Binding() (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return Binding{}, false
	}
	return *s.binding, true
}

// Rebuilds returns how many pinned regions have been created.
func (s *Stepper) Rebuilds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuilds
}

// Mount applies the first measurement immediately, without debouncing.
func (s *Stepper) Mount(vp Viewport, layout Layout) {
	s.update(func() *ScrollCommand {
		s.measure(vp, layout)
		s.state.Class = Classify(vp.Width, s.cfg)
		s.rebind()
		return nil
	})
}

// OnViewportResize records a new measurement. The class is recomputed
// right away; the pinned region is rebuilt once resizing settles.
func (s *Stepper) OnViewportResize(vp Viewport, layout Layout) {
	s.update(func() *ScrollCommand {
		s.measure(vp, layout)
		class := Classify(vp.Width, s.cfg)
		if class != s.state.Class {
			s.log.Debug("viewport class changed",
				zap.Stringer("from", s.state.Class),
				zap.Stringer("to", class))
			s.state.Class = class
			if class == Narrow {
				s.teardown()
				s.state.Progress = BandMidpoint(s.state.ActiveIndex, len(s.panels))
			}
		}
		s.debounce.Trigger(s.settle)
		return nil
	})
}

// settle runs after the resize debounce window closes.
func (s *Stepper) settle() {
	s.update(func() *ScrollCommand {
		s.rebind()
		return nil
	})
}

// OnScroll feeds a page scroll offset into the pinned region.
func (s *Stepper) OnScroll(scrollY float64) {
	s.update(func() *ScrollCommand {
		s.scrollY = scrollY
		s.applyScroll()
		return nil
	})
}

// SelectPanel handles a click on a step header. Out-of-range indices are ignored.
//
// On Wide the browser is sent to the scroll offset that makes index active.
// On Narrow the expanded panel changes height when the body is re-rendered,
// so the browser is sent to the panel's element and measures it after the
// swap.
func (s *Stepper) SelectPanel(index int) {
	s.update(func() *ScrollCommand {
		if index < 0 || index >= len(s.panels) {
			return nil
		}
		s.state.ActiveIndex = index

		if s.state.Class == Wide {
			if s.binding == nil {
				return nil
			}
			return &ScrollCommand{
				Panel:  index,
				Y:      ScrollTarget(*s.binding, index, len(s.panels)),
				HasY:   true,
				Smooth: true,
			}
		}
		s.state.Progress = BandMidpoint(index, len(s.panels))
		return &ScrollCommand{
			Panel:  index,
			Anchor: s.panels[index].ID(),
			Offset: s.cfg.NarrowClearance,
			Smooth: true,
		}
	})
}

// update runs one event: fn mutates state under s.mu and may return a scroll
// command, then the listener hears about the result. Events after Close are
// dropped.
func (s *Stepper) update(fn func() *ScrollCommand) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	before := s.state
	cmd := fn()
	after := s.state
	s.mu.Unlock()

	if s.listener == nil {
		return
	}
	if before != after {
		s.listener.StateChanged(after)
	}
	if cmd != nil {
		s.listener.ScrollRequested(*cmd)
	}
}

// Close releases the pinned region and the debounce timer. Events after
// Close are ignored.
func (s *Stepper) Close() error {
	s.debounce.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.teardown()
	s.closed = true
	return nil
}

// measure stores a measurement. Caller holds s.mu.
func (s *Stepper) measure(vp Viewport, layout Layout) {
	s.viewport = vp
	s.layout = layout
	s.scrollY = layout.ScrollY
}

// rebind tears down any pinned region and creates a fresh one when the
// viewport is Wide. Caller holds s.mu.
func (s *Stepper) rebind() {
	s.teardown()
	if s.state.Class != Wide {
		return
	}
	s.bindScrollScrub()
}

// bindScrollScrub creates the pinned region. A single panel has nothing to
// scrub between, so no region is created. Caller holds s.mu.
func (s *Stepper) bindScrollScrub() {
	n := len(s.panels)
	if n <= 1 || s.viewport.Height <= 0 {
		return
	}

	clearance := Clearance(s.viewport.Width, s.cfg)
	s.binding = &Binding{
		Start:     s.layout.Top - clearance,
		Height:    float64(n-1) * s.viewport.Height,
		Clearance: clearance,
	}
	s.rebuilds++
	s.log.Debug("pinned region bound",
		zap.Float64("start", s.binding.Start),
		zap.Float64("height", s.binding.Height),
		zap.Int("rebuilds", s.rebuilds))

	s.applyScroll()
}

// teardown releases the pinned region. Caller holds s.mu.
func (s *Stepper) teardown() {
	if s.binding == nil {
		return
	}
	s.binding = nil
	s.state.Pinned = false
	s.log.Debug("pinned region released")
}

// applyScroll recomputes progress from the last scroll offset. Caller holds s.mu.
func (s *Stepper) applyScroll() {
	if s.state.Class != Wide || s.binding == nil {
		return
	}

	n := len(s.panels)
	b := *s.binding
	switch {
	case s.scrollY < b.Start:
		s.state.Progress = 0
		s.state.Pinned = false
	case s.scrollY > b.End():
		s.state.Progress = 1
		s.state.Pinned = false
	default:
		s.state.Progress = Progress(b.Fraction(s.scrollY), n)
		s.state.Pinned = true
	}
	s.state.ActiveIndex = ActiveIndex(s.state.Progress, n)
}
