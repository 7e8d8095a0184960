package views

import (
	"strconv"

	g "maragu.dev/gomponents"
	c "maragu.dev/gomponents/components"
	. "maragu.dev/gomponents/html"

	"github.com/livetemplate/engagesite/internal/cms"
	"github.com/livetemplate/engagesite/internal/content"
	"github.com/livetemplate/engagesite/internal/section"
)

// Banner is the home page carousel of CMS slides.
func Banner(snap section.Snapshot[cms.Slide]) g.Node {
	return Section(
		ID("banner"),
		Class("banner"),
		Aria("roledescription", "carousel"),
		SectionBody(snap, func(slides []cms.Slide) g.Node {
			return Div(
				Class("banner-track"),
				g.Attr("data-carousel", ""),
				g.Map(indexed(slides), func(s item[cms.Slide]) g.Node {
					return slide(s.V, s.I, len(slides))
				}),
			)
		}),
	)
}

func slide(s cms.Slide, i, n int) g.Node {
	return Div(
		c.Classes{"slide": true, "is-current": i == 0},
		Aria("roledescription", "slide"),
		Aria("label", strconv.Itoa(i+1)+" of "+strconv.Itoa(n)),
		Img(Src(s.Image.URL.String()), Alt(s.Image.Alt.String()), g.If(i > 0, g.Attr("loading", "lazy"))),
		Div(
			Class("slide-copy"),
			H2(g.Text(s.Title.String())),
			g.If(s.Subtitle != "", P(g.Text(s.Subtitle.String()))),
			g.If(s.CTAHref != "", A(Class("btn"), Href(s.CTAHref.String()), g.Text(s.CTALabel.String()))),
		),
	)
}

// Testimonials is a slider of quotes for one audience.
func Testimonials(title string, snap section.Snapshot[cms.Testimonial]) g.Node {
	return Section(
		ID("testimonials-"+snap.Name),
		Class("testimonials"),
		H2(g.Text(title)),
		SectionBody(snap, func(items []cms.Testimonial) g.Node {
			return Div(
				Class("testimonial-track"),
				g.Attr("data-slider", ""),
				g.Map(items, testimonial),
			)
		}),
	)
}

func testimonial(t cms.Testimonial) g.Node {
	byline := t.Role.String()
	if t.Company != "" {
		if byline != "" {
			byline += ", "
		}
		byline += t.Company.String()
	}
	return Figure(
		Class("testimonial"),
		BlockQuote(P(g.Text(t.Quote.String()))),
		FigCaption(
			g.Iff(t.Avatar.Resolved(), func() g.Node {
				return Img(Class("avatar"), Src(t.Avatar.URL.String()), Alt(t.Name.String()), g.Attr("loading", "lazy"))
			}),
			g.If(!t.Avatar.Resolved(), Span(Class("avatar avatar-initials"), Aria("hidden", "true"), g.Text(t.Initials()))),
			Strong(g.Text(t.Name.String())),
			g.If(byline != "", Span(Class("byline"), g.Text(byline))),
		),
	)
}

// Hero is the home page lead block.
func Hero(h content.Hero) g.Node {
	return Section(
		ID("hero"),
		Class("hero"),
		Div(
			Class("hero-copy"),
			g.If(h.Eyebrow != "", P(Class("eyebrow"), g.Text(h.Eyebrow))),
			H1(g.Text(h.Title)),
			Div(Class("lead"), g.Raw(h.LeadHTML)),
			g.If(h.CTAHref != "", A(Class("btn btn-primary"), Href(h.CTAHref), g.Text(h.CTALabel))),
		),
		g.If(h.Image != "", Img(Class("hero-image"), Src(h.Image), Alt(""))),
	)
}

// Features is the grid of home page highlights.
func Features(features []content.Feature) g.Node {
	return Section(
		ID("features"),
		Class("features"),
		g.Map(features, func(f content.Feature) g.Node {
			return Article(
				Class("card"),
				Icon(f.Icon),
				H3(g.Text(f.Title)),
				Div(Class("card-body"), g.Raw(f.BodyHTML)),
			)
		}),
	)
}

type item[T any] struct {
	I int
	V T
}

func indexed[T any](xs []T) []item[T] {
	out := make([]item[T], len(xs))
	for i, x := range xs {
		out[i] = item[T]{I: i, V: x}
	}
	return out
}
