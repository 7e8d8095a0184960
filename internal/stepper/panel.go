package stepper

import (
	"errors"
	"fmt"
)

// ErrNoPanels is returned when a stepper is built without panels.
var ErrNoPanels = errors.New("stepper: at least one panel is required")

// Highlight is a single bullet in a panel's detail view.
type Highlight struct {
	Icon string `yaml:"icon" json:"icon"`
	Text string `yaml:"text" json:"text"`
}

// IconPair is the two-state glyph shown in a step header.
type IconPair struct {
	Neutral string `yaml:"neutral" json:"neutral"` // Gray glyph for inactive steps
	Active  string `yaml:"active" json:"active"`   // Colored glyph for the active step
}

// Panel is one step of the showcase.
type Panel struct {
	Index       int         `yaml:"-" json:"index"`
	Label       string      `yaml:"label" json:"label"` // Display ordinal, e.g. "01"
	Title       string      `yaml:"title" json:"title"`
	Description string      `yaml:"description" json:"description"`
	Highlights  []Highlight `yaml:"highlights" json:"highlights"`
	Href        string      `yaml:"href" json:"href"`
	Accent      string      `yaml:"accent" json:"accent"`
	Image       string      `yaml:"image" json:"image"`
	Icon        IconPair    `yaml:"icon" json:"icon"`
}

// ID returns the DOM id of the panel's block.
func (p Panel) ID() string {
	return fmt.Sprintf("panel-%d", p.Index)
}

// Glyph returns the icon for the panel's active or inactive state.
func (p Panel) Glyph(active bool) string {
	if active && p.Icon.Active != "" {
		return p.Icon.Active
	}
	return p.Icon.Neutral
}

// NormalizePanels copies panels, assigning indices by position and filling
// missing ordinal labels.
func NormalizePanels(panels []Panel) ([]Panel, error) {
	if len(panels) == 0 {
		return nil, ErrNoPanels
	}

	out := make([]Panel, len(panels))
	for i, p := range panels {
		if p.Title == "" {
			return nil, fmt.Errorf("stepper: panel %d: title is required", i)
		}
		p.Index = i
		if p.Label == "" {
			p.Label = fmt.Sprintf("%02d", i+1)
		}
		p.Highlights = append([]Highlight(nil), p.Highlights...)
		out[i] = p
	}
	return out, nil
}
