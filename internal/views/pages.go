package views

import (
	"strings"

	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/livetemplate/engagesite/internal/careers"
	"github.com/livetemplate/engagesite/internal/cms"
	"github.com/livetemplate/engagesite/internal/content"
	"github.com/livetemplate/engagesite/internal/section"
	"github.com/livetemplate/engagesite/internal/stepper"
)

// StepperWSPath is where the showcase script connects.
const StepperWSPath = "/ws/stepper"

// HomeData is everything the home page shows.
type HomeData struct {
	Content *content.Data
	Slides  section.Snapshot[cms.Slide]
	Clients section.Snapshot[cms.Testimonial]
	Stepper stepper.State
}

// HomePage renders the landing page.
func HomePage(site Site, d HomeData) g.Node {
	return Page(PageProps{Site: site, Path: "/", Live: true},
		Hero(d.Content.Hero),
		Banner(d.Slides),
		Features(d.Content.Features),
		Stepper(d.Content.Panels, d.Stepper, StepperWSPath),
		Testimonials("What our clients say", d.Clients),
	)
}

// SolutionsPage renders the solution features page around the showcase.
func SolutionsPage(site Site, c *content.Data, st stepper.State) g.Node {
	return Page(PageProps{Site: site, Title: "Solutions", Path: "/solutions", Live: true},
		Section(
			Class("page-intro"),
			H1(g.Text("One platform for every customer conversation")),
			P(g.Text("Scroll through the building blocks of Engage, or pick one to jump straight to it.")),
		),
		Stepper(c.Panels, st, StepperWSPath),
		Section(
			Class("panel-index"),
			H2(g.Text("In detail")),
			g.Map(c.Panels, func(p stepper.Panel) g.Node {
				return Article(
					ID(anchor(p)),
					H3(g.Text(p.Title)),
					P(g.Text(p.Description)),
				)
			}),
		),
	)
}

// AboutPage renders the company page.
func AboutPage(site Site, c *content.Data, employees section.Snapshot[cms.Testimonial]) g.Node {
	return Page(PageProps{Site: site, Title: "About", Path: "/about"},
		Section(
			Class("page-intro"),
			H1(g.Text("About "+site.Title)),
			Div(Class("lead"), g.Raw(c.About.IntroHTML)),
		),
		Section(
			Class("stats"),
			g.Map(c.About.Stats, func(s content.Stat) g.Node {
				return Div(Class("stat"), Strong(g.Text(s.Value)), Span(g.Text(s.Label)))
			}),
		),
		Section(
			Class("values"),
			H2(g.Text("What we value")),
			g.Map(c.About.Values, func(v content.Value) g.Node {
				return Article(Class("card"), H3(g.Text(v.Title)), P(g.Text(v.Body)))
			}),
		),
		Testimonials("Life at "+site.Title, employees),
		Section(ID("contact"), Class("contact"),
			H2(g.Text("Talk to us")),
			P(A(Href("mailto:hello@engage.example"), g.Text("hello@engage.example"))),
		),
	)
}

// CareersPage renders the job listing.
func CareersPage(site Site, jobs section.Snapshot[cms.Job], listing careers.Listing) g.Node {
	return Page(PageProps{Site: site, Title: "Careers", Path: "/careers"},
		Section(
			Class("page-intro"),
			H1(g.Text("Build the future of customer conversations")),
			P(g.Text("We hire curious people who care about craft. Find your team below.")),
		),
		JobList(jobs, listing),
	)
}

// NotFoundPage is served for unknown paths.
func NotFoundPage(site Site) g.Node {
	return Page(PageProps{Site: site, Title: "Not found"},
		Section(
			Class("page-intro"),
			H1(g.Text("Page not found")),
			P(A(Href("/"), g.Text("Back to the home page"))),
		),
	)
}

// BusyPage is served when a visitor is rate limited.
func BusyPage(site Site, retryAfter string) g.Node {
	return Page(PageProps{Site: site, Title: "Slow down"},
		Section(
			Class("page-intro"),
			H1(g.Text("Too many requests")),
			P(g.Textf("Please wait %s seconds and try again.", retryAfter)),
		),
	)
}

// anchor is the fragment a panel's action link points at on the solutions
// page, or a generated id when the link goes elsewhere.
func anchor(p stepper.Panel) string {
	if frag, ok := strings.CutPrefix(p.Href, "/solutions#"); ok && frag != "" {
		return frag
	}
	return p.ID() + "-detail"
}
