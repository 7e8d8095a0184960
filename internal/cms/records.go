package cms

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/livetemplate/engagesite/internal/security"
)

// Result is one page of a collection, as returned by the find endpoints.
type Result[T any] struct {
	Docs        []T  `json:"docs"`
	TotalDocs   int  `json:"totalDocs"`
	Limit       int  `json:"limit"`
	Page        int  `json:"page"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// Text decodes any JSON scalar into a string and anything else into "".
// Records coming from editors are often partial, so a wrong type in one field
// must not reject the whole document.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = ""
			return nil
		}
		*t = Text(strings.TrimSpace(s))
	case data[0] == '{', data[0] == '[':
		*t = ""
	default:
		*t = Text(data)
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Or returns t, or def when t is empty.
func (t Text) Or(def string) string {
	if t == "" {
		return def
	}
	return string(t)
}

// Media is an uploaded image. Unexpanded relations arrive as a bare ID and
// decode to a Media with only ID set.
type Media struct {
	ID     Text `json:"id"`
	URL    Text `json:"url"`
	Alt    Text `json:"alt"`
	Width  int  `json:"width"`
	Height int  `json:"height"`
}

func (m *Media) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		var id Text
		_ = id.UnmarshalJSON(data)
		*m = Media{ID: id}
		return nil
	}
	type plain struct {
		ID     Text            `json:"id"`
		URL    Text            `json:"url"`
		Alt    Text            `json:"alt"`
		Width  json.RawMessage `json:"width"`
		Height json.RawMessage `json:"height"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*m = Media{}
		return nil
	}
	*m = Media{ID: p.ID, URL: p.URL, Alt: p.Alt, Width: looseInt(p.Width), Height: looseInt(p.Height)}
	return nil
}

// Resolved reports whether the image has a usable URL.
func (m Media) Resolved() bool { return m.URL != "" }

// Job is a published opening.
type Job struct {
	ID             Text `json:"id"`
	Title          Text `json:"title"`
	Category       Text `json:"category"`
	Department     Text `json:"department"`
	Location       Text `json:"location"`
	EmploymentType Text `json:"type"`
	Summary        Text `json:"summary"`
	ApplyURL       Text `json:"applyUrl"`
	Status         Text `json:"status"`
	CreatedAt      Text `json:"createdAt"`
}

// DefaultJobCategory groups jobs that carry neither category nor department.
const DefaultJobCategory = "General"

// Normalize fills fallbacks for missing optional fields.
func (j Job) Normalize() Job {
	if j.Category == "" {
		j.Category = j.Department
	}
	if j.Category == "" {
		j.Category = DefaultJobCategory
	}
	if j.Title == "" {
		j.Title = "Untitled role"
	}
	if j.Location == "" {
		j.Location = "Remote"
	}
	j.ApplyURL = Text(security.SafeLink(string(j.ApplyURL)))
	return j
}

// Posted parses CreatedAt; zero when absent or malformed.
func (j Job) Posted() time.Time {
	t, err := time.Parse(time.RFC3339, string(j.CreatedAt))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Slide is one banner carousel entry.
type Slide struct {
	ID       Text  `json:"id"`
	Title    Text  `json:"title"`
	Subtitle Text  `json:"subtitle"`
	CTALabel Text  `json:"ctaLabel"`
	CTAHref  Text  `json:"ctaHref"`
	Image    Media `json:"image"`
	Order    Text  `json:"order"`
}

// FallbackSlideImage is shown when a slide's image relation is missing or
// was not expanded.
const FallbackSlideImage = "/assets/img/banner-fallback.svg"

// Normalize fills fallbacks for missing optional fields.
func (s Slide) Normalize() Slide {
	s.Image.URL = Text(security.SafeLink(string(s.Image.URL)))
	s.CTAHref = Text(security.SafeLink(string(s.CTAHref)))
	if !s.Image.Resolved() {
		s.Image.URL = FallbackSlideImage
	}
	if s.Image.Alt == "" {
		s.Image.Alt = s.Title
	}
	if s.CTAHref != "" && s.CTALabel == "" {
		s.CTALabel = "Learn more"
	}
	return s
}

// Audience selects which testimonials to show.
type Audience string

const (
	AudienceClient   Audience = "client"
	AudienceEmployee Audience = "employee"
)

// Valid reports whether a is a known audience
func (a Audience) Valid() bool {
	return a == AudienceClient || a == AudienceEmployee
}

// Testimonial is a quote from a client or an employee.
type Testimonial struct {
	ID      Text  `json:"id"`
	Name    Text  `json:"name"`
	Role    Text  `json:"role"`
	Company Text  `json:"company"`
	Quote   Text  `json:"quote"`
	Avatar  Media `json:"avatar"`
	Type    Text  `json:"type"`
	Order   Text  `json:"order"`
}

// Normalize fills fallbacks for missing optional fields.
func (t Testimonial) Normalize() Testimonial {
	if t.Name == "" {
		t.Name = "Anonymous"
	}
	t.Avatar.URL = Text(security.SafeLink(string(t.Avatar.URL)))
	return t
}

// Initials is used in place of a missing avatar.
func (t Testimonial) Initials() string {
	var out []rune
	for _, f := range strings.Fields(string(t.Name)) {
		out = append(out, []rune(strings.ToUpper(f))[0])
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}

func looseInt(raw json.RawMessage) int {
	var t Text
	_ = t.UnmarshalJSON(raw)
	f, err := strconv.ParseFloat(string(t), 64)
	if err != nil {
		return 0
	}
	return int(f)
}
