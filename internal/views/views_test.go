package views

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"

	"github.com/livetemplate/engagesite/internal/careers"
	"github.com/livetemplate/engagesite/internal/cms"
	"github.com/livetemplate/engagesite/internal/content"
	"github.com/livetemplate/engagesite/internal/section"
	"github.com/livetemplate/engagesite/internal/stepper"
)

var site = Site{Title: "Engage", Description: "AI customer engagement", Year: 2026}

func render(t *testing.T, n g.Node) string {
	t.Helper()
	out, err := String(n)
	require.NoError(t, err)
	return out
}

func testPanels(t *testing.T) []stepper.Panel {
	t.Helper()
	panels, err := stepper.NormalizePanels([]stepper.Panel{
		{Title: "Inbox", Description: "All channels", Accent: "indigo", Image: "/img/inbox.svg", Href: "/solutions#inbox",
			Icon: stepper.IconPair{Neutral: "inbox-gray", Active: "inbox"}, Highlights: []stepper.Highlight{{Icon: "check", Text: "Routing"}}},
		{Title: "Agents", Description: "AI that acts", Accent: "violet", Image: "/img/agents.svg",
			Icon: stepper.IconPair{Neutral: "spark-gray", Active: "spark"}},
		{Title: "Analytics", Description: "Insight", Image: "/img/analytics.svg"},
	})
	require.NoError(t, err)
	return panels
}

func TestStepperRendersOnlyActiveDetail(t *testing.T) {
	panels := testPanels(t)
	html := render(t, StepperBody(panels, stepper.State{ActiveIndex: 1, Progress: 0.6667, Class: stepper.Wide, Pinned: true}))

	assert.Equal(t, 1, strings.Count(html, `class="step-detail"`), "exactly one panel is expanded")
	assert.Contains(t, html, "AI that acts")
	assert.NotContains(t, html, "All channels", "inactive panels show only their header")

	assert.Contains(t, html, `data-icon="spark"`, "active panel uses the colored glyph")
	assert.Contains(t, html, `data-icon="inbox-gray"`, "inactive panels use the neutral glyph")
	assert.Contains(t, html, "accent-violet")
	assert.NotContains(t, html, "accent-indigo", "accent styling only on the active panel")

	assert.Contains(t, html, `height: 66.67%`)
	assert.Contains(t, html, `class="stepper-media"`)
	assert.Equal(t, 1, strings.Count(html, `src="/img/agents.svg"`), "wide shows the image once in the sticky slot")
	assert.NotContains(t, html, `class="step-image"`)
}

func TestStepperNarrowShowsInlineImage(t *testing.T) {
	panels := testPanels(t)
	html := render(t, StepperBody(panels, stepper.State{ActiveIndex: 0, Progress: 0, Class: stepper.Narrow}))

	assert.Contains(t, html, `class="step-image"`)
	assert.NotContains(t, html, "stepper-media")
	assert.Contains(t, html, `height: 0.00%`)
	assert.Contains(t, html, `href="/solutions#inbox"`)
	assert.Contains(t, html, "Routing")
}

func TestStepperRoot(t *testing.T) {
	html := render(t, Stepper(testPanels(t), stepper.State{}, StepperWSPath))
	assert.Contains(t, html, `id="showcase"`)
	assert.Contains(t, html, `data-ws="/ws/stepper"`)
	assert.Contains(t, html, `data-panels="3"`)
	assert.Equal(t, 3, strings.Count(html, `class="step-header"`))
}

func TestSectionStates(t *testing.T) {
	ready := func(items []cms.Slide) g.Node { return g.Text("READY") }

	tests := []struct {
		name string
		snap section.Snapshot[cms.Slide]
		want string
	}{
		{"loading", section.Snapshot[cms.Slide]{Status: section.Loading}, `data-state="loading"`},
		{"empty", section.Snapshot[cms.Slide]{Status: section.Empty, Message: "No slides"}, "No slides"},
		{"error", section.Snapshot[cms.Slide]{Status: section.Error, Message: "Server error. Please try again later."}, `role="alert"`},
		{"ready", section.Snapshot[cms.Slide]{Status: section.Ready, Items: []cms.Slide{{}}}, "READY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.snap.Status != section.Ready {
				assert.Contains(t, render(t, Banner(tt.snap)), tt.want)
			}
			html := render(t, h.Div(SectionBody(tt.snap, ready)))
			assert.Contains(t, html, tt.want)
		})
	}
}

func TestBannerSlides(t *testing.T) {
	snap := section.Snapshot[cms.Slide]{Status: section.Ready, Items: []cms.Slide{
		cms.Slide{Title: "One", Image: cms.Media{URL: "/a.png"}, CTAHref: "/solutions", CTALabel: "See how"}.Normalize(),
		cms.Slide{Title: "Two"}.Normalize(),
	}}
	html := render(t, Banner(snap))
	assert.Contains(t, html, "See how")
	assert.Contains(t, html, cms.FallbackSlideImage)
	assert.Contains(t, html, `aria-label="2 of 2"`)
	assert.Equal(t, 1, strings.Count(html, "is-current"))
}

func TestTestimonialFallbacks(t *testing.T) {
	snap := section.Snapshot[cms.Testimonial]{Name: "client", Status: section.Ready, Items: []cms.Testimonial{
		cms.Testimonial{Quote: "Great", Role: "CX Lead", Company: "Acme"}.Normalize(),
	}}
	html := render(t, Testimonials("Clients", snap))
	assert.Contains(t, html, "Anonymous")
	assert.Contains(t, html, "CX Lead, Acme")
	assert.Contains(t, html, "avatar-initials")
	assert.Contains(t, html, `id="testimonials-client"`)
	assert.Contains(t, html, "<blockquote><p>Great</p></blockquote>")
}

func TestJobListEmptyAndError(t *testing.T) {
	empty := section.Snapshot[cms.Job]{Status: section.Empty, Message: careers.EmptyMessage}
	html := render(t, JobList(empty, careers.Listing{}))
	assert.Contains(t, html, "No jobs found")
	assert.NotContains(t, html, `data-state="error"`)

	failed := section.Snapshot[cms.Job]{Status: section.Error, Message: "Could not connect to the content service. Please check your connection."}
	html = render(t, JobList(failed, careers.Listing{}))
	assert.Contains(t, html, "Could not connect")
	assert.NotContains(t, html, `data-state="loading"`)
}

func TestJobListFilterAndPager(t *testing.T) {
	jobs := []cms.Job{
		{Title: "Backend", Category: "Engineering"},
		{Title: "Sales rep", Category: "Sales"},
		{Title: "SRE", Category: "Engineering"},
	}
	listing := careers.Build(jobs, careers.Params{Category: "Engineering", Page: 1}, 1)
	snap := section.Snapshot[cms.Job]{Status: section.Ready, Items: jobs}

	html := render(t, JobList(snap, listing))
	assert.Contains(t, html, "Backend")
	assert.NotContains(t, html, "SRE", "second page item is not shown")
	assert.NotContains(t, html, "Sales rep")
	assert.Contains(t, html, `href="/careers?category=Engineering&amp;page=2"`)
	assert.Contains(t, html, "Page 1 of 2")
	assert.Contains(t, html, `href="/careers?category=Sales"`)
	assert.NotContains(t, html, `rel="prev"`)
}

func TestPagesRender(t *testing.T) {
	c, err := content.Embedded()
	require.NoError(t, err)

	home := render(t, HomePage(site, HomeData{
		Content: c,
		Slides:  section.Snapshot[cms.Slide]{Status: section.Error, Message: "Server error. Please try again later."},
		Clients: section.Snapshot[cms.Testimonial]{Status: section.Empty, Message: "No testimonials yet"},
	}))
	assert.Contains(t, home, "<!doctype html>")
	assert.Contains(t, home, c.Hero.Title)
	assert.Contains(t, home, "Server error", "a failed section renders inline")
	assert.Contains(t, home, "No testimonials yet")
	assert.Contains(t, home, `src="/assets/stepper.js"`)

	sol := render(t, SolutionsPage(site, c, stepper.State{}))
	assert.Contains(t, sol, `id="inbox"`)
	assert.Contains(t, sol, `aria-current="page"`)

	about := render(t, AboutPage(site, c, section.Snapshot[cms.Testimonial]{Status: section.Loading}))
	assert.Contains(t, about, "What we value")
	assert.NotContains(t, about, "stepper.js")

	careersPage := render(t, CareersPage(site, section.Snapshot[cms.Job]{Status: section.Empty, Message: careers.EmptyMessage}, careers.Listing{}))
	assert.Contains(t, careersPage, "No jobs found")
	assert.Contains(t, careersPage, "© 2026 Engage")

	assert.Contains(t, render(t, NotFoundPage(site)), "Page not found")
	assert.Contains(t, render(t, BusyPage(site, "2")), "Please wait 2 seconds")
}
