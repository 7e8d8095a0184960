// Package views renders the site's pages and live fragments with gomponents.
package views

import (
	"io"
	"strings"

	g "maragu.dev/gomponents"
	c "maragu.dev/gomponents/components"
	. "maragu.dev/gomponents/html"
)

// Site is the chrome shared by every page.
type Site struct {
	Title       string
	Description string
	Year        int
}

// PageProps describes one rendered page.
type PageProps struct {
	Site       Site
	Title      string // page title, prefixed to the site title
	Path       string // current path, for nav highlighting
	Live       bool   // include the live stepper script
	Stylesheet string
}

type navItem struct {
	Label string
	Href  string
}

var nav = []navItem{
	{"Solutions", "/solutions"},
	{"Careers", "/careers"},
	{"About", "/about"},
}

// Page wraps body in the HTML5 document, header and footer.
func Page(p PageProps, body ...g.Node) g.Node {
	title := p.Site.Title
	if p.Title != "" {
		title = p.Title + " | " + p.Site.Title
	}
	stylesheet := p.Stylesheet
	if stylesheet == "" {
		stylesheet = "/assets/site.css"
	}

	return c.HTML5(c.HTML5Props{
		Title:       title,
		Description: p.Site.Description,
		Language:    "en",
		Head: []g.Node{
			Link(Rel("stylesheet"), Href(stylesheet)),
			g.If(p.Live, Script(Src("/assets/stepper.js"), Defer())),
		},
		Body: []g.Node{
			header(p),
			Main(ID("main"), g.Group(body)),
			footer(p.Site),
		},
	})
}

func header(p PageProps) g.Node {
	return Header(
		Class("site-header"),
		A(Class("brand"), Href("/"), g.Text(p.Site.Title)),
		Nav(
			Aria("label", "Primary"),
			Ul(
				g.Map(nav, func(item navItem) g.Node {
					active := p.Path == item.Href || strings.HasPrefix(p.Path, item.Href+"/")
					return Li(A(
						Href(item.Href),
						c.Classes{"nav-link": true, "is-active": active},
						g.If(active, Aria("current", "page")),
						g.Text(item.Label),
					))
				}),
			),
		),
	)
}

func footer(s Site) g.Node {
	return Footer(
		Class("site-footer"),
		P(g.Textf("© %d %s. All rights reserved.", s.Year, s.Title)),
	)
}

// Render writes n to w.
func Render(w io.Writer, n g.Node) error {
	return n.Render(w)
}

// String renders n to a string, for fragments sent over the live channel.
func String(n g.Node) (string, error) {
	var b strings.Builder
	if err := n.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Icon renders a named glyph. The stylesheet maps names to images.
func Icon(name string, extra ...g.Node) g.Node {
	if name == "" {
		return nil
	}
	return Span(
		Class("icon icon-"+name),
		g.Attr("data-icon", name),
		Aria("hidden", "true"),
		g.Group(extra),
	)
}
