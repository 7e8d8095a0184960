package views

import (
	"strconv"

	g "maragu.dev/gomponents"
	c "maragu.dev/gomponents/components"
	. "maragu.dev/gomponents/html"

	"github.com/livetemplate/engagesite/internal/careers"
	"github.com/livetemplate/engagesite/internal/cms"
	"github.com/livetemplate/engagesite/internal/section"
)

// JobList renders the filtered, paginated openings. snap carries the load
// outcome; listing is only consulted when the section is Ready.
func JobList(snap section.Snapshot[cms.Job], listing careers.Listing) g.Node {
	return Section(
		ID("jobs"),
		Class("jobs"),
		H2(g.Text("Open positions")),
		SectionBody(snap, func([]cms.Job) g.Node {
			return g.Group([]g.Node{
				categoryFilter(listing),
				g.If(len(listing.Jobs) == 0, EmptyState(careers.EmptyMessage)),
				Ul(Class("job-list"), g.Map(listing.Jobs, jobCard)),
				pager(listing),
			})
		}),
	)
}

func categoryFilter(l careers.Listing) g.Node {
	return Nav(
		Class("job-filter"),
		Aria("label", "Filter by team"),
		g.Map(l.Categories, func(cat string) g.Node {
			active := cat == l.Category
			return A(
				Href("/careers"+careers.Params{Category: cat, Page: 1}.Query()),
				c.Classes{"chip": true, "is-active": active},
				g.If(active, Aria("current", "true")),
				g.Text(cat),
			)
		}),
	)
}

func jobCard(j cms.Job) g.Node {
	return Li(
		Class("job"),
		H3(g.Text(j.Title.String())),
		P(
			Class("job-meta"),
			Span(Class("job-category"), g.Text(j.Category.String())),
			Span(Class("job-location"), g.Text(j.Location.String())),
			g.If(j.EmploymentType != "", Span(Class("job-type"), g.Text(j.EmploymentType.String()))),
		),
		g.If(j.Summary != "", P(Class("job-summary"), g.Text(j.Summary.String()))),
		g.Iff(!j.Posted().IsZero(), func() g.Node {
			return g.El("time", g.Attr("datetime", j.Posted().Format("2006-01-02")), g.Text("Posted "+j.Posted().Format("2 Jan 2006")))
		}),
		g.If(j.ApplyURL != "", A(Class("btn"), Href(j.ApplyURL.String()), g.Text("Apply"))),
	)
}

func pager(l careers.Listing) g.Node {
	if l.TotalPages <= 1 {
		return nil
	}
	return Nav(
		Class("pager"),
		Aria("label", "Pages"),
		g.If(l.HasPrev(), A(Rel("prev"), Href("/careers"+l.Params(l.Page-1).Query()), g.Text("Previous"))),
		Span(Class("pager-status"), g.Text("Page "+strconv.Itoa(l.Page)+" of "+strconv.Itoa(l.TotalPages))),
		g.If(l.HasNext(), A(Rel("next"), Href("/careers"+l.Params(l.Page+1).Query()), g.Text("Next"))),
	)
}
