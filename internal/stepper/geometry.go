package stepper

import (
	"math"
	"time"
)

// ViewportClass selects between inline and pinned stepper behavior.
type ViewportClass int

const (
	Narrow ViewportClass = iota // Steps render inline, no pinning
	Wide                        // Step list is pinned and scrubbed by scroll
)

func (c ViewportClass) String() string {
	switch c {
	case Narrow:
		return "narrow"
	case Wide:
		return "wide"
	default:
		return "unknown"
	}
}

// MarshalText lets the class travel as "narrow"/"wide" in JSON messages.
func (c ViewportClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Config holds breakpoints and offsets for the stepper. Distances are CSS pixels.
type Config struct {
	Breakpoint      float64       // Width at or above which the viewport is Wide (default: 1024)
	LargeBreakpoint float64       // Width at or above which the larger header tier applies (default: 1536)
	WideClearance   float64       // Header clearance for the smaller desktop tier (default: 96)
	LargeClearance  float64       // Header clearance for the larger desktop tier (default: 120)
	NarrowClearance float64       // Offset below the header for Narrow scroll-into-view (default: 80)
	Debounce        time.Duration // Trailing-edge resize debounce (default: 250ms)
}

// DefaultConfig returns the default stepper configuration
func DefaultConfig() Config {
	return Config{
		Breakpoint:      1024,
		LargeBreakpoint: 1536,
		WideClearance:   96,
		LargeClearance:  120,
		NarrowClearance: 80,
		Debounce:        250 * time.Millisecond,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Breakpoint <= 0 {
		c.Breakpoint = d.Breakpoint
	}
	if c.LargeBreakpoint <= 0 {
		c.LargeBreakpoint = d.LargeBreakpoint
	}
	if c.WideClearance <= 0 {
		c.WideClearance = d.WideClearance
	}
	if c.LargeClearance <= 0 {
		c.LargeClearance = d.LargeClearance
	}
	if c.NarrowClearance <= 0 {
		c.NarrowClearance = d.NarrowClearance
	}
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	return c
}

// Classify maps a viewport width to its class.
func Classify(width float64, cfg Config) ViewportClass {
	if width >= cfg.Breakpoint {
		return Wide
	}
	return Narrow
}

// Clearance returns the fixed-header offset used for the given width.
func Clearance(width float64, cfg Config) float64 {
	switch {
	case width >= cfg.LargeBreakpoint:
		return cfg.LargeClearance
	case width >= cfg.Breakpoint:
		return cfg.WideClearance
	default:
		return cfg.NarrowClearance
	}
}

// ActiveIndex returns floor(progress*n) clamped to [0, n-1].
// Ties at exact panel boundaries are not special-cased.
func ActiveIndex(progress float64, n int) int {
	if n <= 1 || math.IsNaN(progress) {
		return 0
	}
	i := math.Floor(progress * float64(n))
	if i < 0 {
		return 0
	}
	if i > float64(n-1) {
		return n - 1
	}
	return int(i)
}

// Progress maps the scrolled fraction p of the pinned region to a progress
// fraction. Panel 0 is already reached at entry, the remaining n-1 panels
// split the region evenly.
func Progress(p float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	p = clamp01(p)
	return 1/float64(n) + p*float64(n-1)/float64(n)
}

// BandMidpoint returns the progress value in the middle of panel i's band.
func BandMidpoint(i, n int) float64 {
	if n <= 0 {
		return 0
	}
	return (float64(i) + 0.5) / float64(n)
}

// Binding is an active pinned scroll region.
type Binding struct {
	Start     float64 `json:"start"`     // Scroll offset at which pinning begins
	Height    float64 `json:"height"`    // (n-1) viewport heights
	Clearance float64 `json:"clearance"` // Header clearance applied to Start
}

// End returns the scroll offset at which pinning releases.
func (b Binding) End() float64 {
	return b.Start + b.Height
}

// Fraction returns how far scrollY is through the region, unclamped.
func (b Binding) Fraction(scrollY float64) float64 {
	if b.Height <= 0 {
		return 0
	}
	return (scrollY - b.Start) / b.Height
}

// ScrollTarget returns the scroll offset that selects panel index on a Wide
// viewport. Targets sit in the middle of the index's progress band so the
// scroll-driven recompute lands back on the same index; panel 0 is reached
// just above the region, where progress is still zero.
func ScrollTarget(b Binding, index, n int) float64 {
	if n <= 1 || b.Height <= 0 {
		return b.Start
	}
	if index <= 0 {
		return b.Start - 1
	}
	if index > n-1 {
		index = n - 1
	}
	p := (float64(index) - 0.5) / float64(n-1)
	return b.Start + p*b.Height
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
