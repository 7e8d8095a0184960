// Package content loads the site's static copy: the home hero and features,
// the solution stepper panels and the about page. The data ships embedded in
// the binary and can be overridden file by file from a directory.
package content

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/livetemplate/engagesite/internal/security"
	"github.com/livetemplate/engagesite/internal/stepper"
)

//go:embed data/*.yaml
var embedded embed.FS

// Files are the data files read by Load, in load order.
var Files = []string{"home.yaml", "solutions.yaml", "about.yaml"}

// Hero is the home page's lead block.
type Hero struct {
	Eyebrow  string `yaml:"eyebrow"`
	Title    string `yaml:"title"`
	Lead     string `yaml:"lead"` // Markdown
	CTALabel string `yaml:"cta_label"`
	CTAHref  string `yaml:"cta_href"`
	Image    string `yaml:"image"`

	LeadHTML string `yaml:"-"`
}

// Feature is one home page highlight card.
type Feature struct {
	Title string `yaml:"title"`
	Icon  string `yaml:"icon"`
	Body  string `yaml:"body"` // Markdown

	BodyHTML string `yaml:"-"`
}

// Stat is a headline number on the about page.
type Stat struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// Value is one company value on the about page.
type Value struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// About is the about page copy.
type About struct {
	Intro  string  `yaml:"intro"` // Markdown
	Stats  []Stat  `yaml:"stats"`
	Values []Value `yaml:"values"`

	IntroHTML string `yaml:"-"`
}

// Data is the complete static content of the site.
type Data struct {
	Hero     Hero            `yaml:"hero"`
	Features []Feature       `yaml:"features"`
	Panels   []stepper.Panel `yaml:"panels"`
	About    About           `yaml:"about"`
}

// Embedded returns the content compiled into the binary.
func Embedded() (*Data, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// Load reads Files from fsys. A file missing from fsys is skipped.
func Load(fsys fs.FS) (*Data, error) {
	return load(nil, fsys)
}

// LoadOverlay reads Files from the embedded data, then replaces the sections
// defined by any file present in overlay.
func LoadOverlay(overlay fs.FS) (*Data, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	base, err := Load(sub)
	if err != nil {
		return nil, err
	}
	return load(base, overlay)
}

func load(base *Data, fsys fs.FS) (*Data, error) {
	d := &Data{}
	if base != nil {
		*d = *base
	}
	for _, name := range Files {
		raw, err := fs.ReadFile(fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		// Only keys present in the file replace what came before.
		if err := yaml.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}

	if err := d.render(); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	panels, err := stepper.NormalizePanels(d.Panels)
	if err != nil {
		return nil, err
	}
	d.Panels = panels
	return d, nil
}

func (d *Data) render() error {
	var err error
	if d.Hero.LeadHTML, err = Markdown(d.Hero.Lead); err != nil {
		return fmt.Errorf("hero lead: %w", err)
	}
	for i := range d.Features {
		if d.Features[i].BodyHTML, err = Markdown(d.Features[i].Body); err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
	}
	if d.About.IntroHTML, err = Markdown(d.About.Intro); err != nil {
		return fmt.Errorf("about intro: %w", err)
	}
	return nil
}

// Validate checks required fields and panel ordering.
func (d *Data) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Hero.Title) == "" {
		errs = append(errs, errors.New("hero.title is required"))
	}
	for i, f := range d.Features {
		if strings.TrimSpace(f.Title) == "" {
			errs = append(errs, fmt.Errorf("features[%d].title is required", i))
		}
	}

	if len(d.Panels) == 0 {
		errs = append(errs, errors.New("panels: at least one panel is required"))
	}
	labels := make(map[string]int)
	titles := make(map[string]int)
	for i, p := range d.Panels {
		if strings.TrimSpace(p.Title) == "" {
			errs = append(errs, fmt.Errorf("panels[%d].title is required", i))
		}
		if prev, dup := titles[strings.ToLower(p.Title)]; dup && p.Title != "" {
			errs = append(errs, fmt.Errorf("panels[%d].title duplicates panels[%d]", i, prev))
		}
		titles[strings.ToLower(p.Title)] = i
		if p.Label != "" {
			if prev, dup := labels[p.Label]; dup {
				errs = append(errs, fmt.Errorf("panels[%d].label %q duplicates panels[%d]", i, p.Label, prev))
			}
			labels[p.Label] = i
		}
		if p.Href != "" {
			if err := security.ValidateLinkURL(p.Href); err != nil {
				errs = append(errs, fmt.Errorf("panels[%d].href: %w", i, err))
			}
		}
		if p.Image != "" {
			if err := security.ValidateLinkURL(p.Image); err != nil {
				errs = append(errs, fmt.Errorf("panels[%d].image: %w", i, err))
			}
		}
		for j, h := range p.Highlights {
			if strings.TrimSpace(h.Text) == "" {
				errs = append(errs, fmt.Errorf("panels[%d].highlights[%d].text is required", i, j))
			}
		}
	}
	return errors.Join(errs...)
}
