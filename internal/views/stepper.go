package views

import (
	"strconv"

	g "maragu.dev/gomponents"
	c "maragu.dev/gomponents/components"
	. "maragu.dev/gomponents/html"

	"github.com/livetemplate/engagesite/internal/stepper"
)

// StepperID is the DOM id of the showcase root; live updates replace its
// children.
const StepperID = "showcase"

// Stepper renders the showcase with its live-channel hooks. The server
// renders the Narrow layout until the browser reports its viewport.
func Stepper(panels []stepper.Panel, st stepper.State, wsPath string) g.Node {
	return Section(
		ID(StepperID),
		Class("stepper"),
		g.Attr("data-stepper", ""),
		g.Attr("data-ws", wsPath),
		g.Attr("data-panels", strconv.Itoa(len(panels))),
		StepperBody(panels, st),
	)
}

// StepperBody is the part of the showcase that changes with state.
//
// The active panel shows its full detail; every other panel shows only the
// compact header row. The image is inline on Narrow and in one shared sticky
// slot on Wide.
func StepperBody(panels []stepper.Panel, st stepper.State) g.Node {
	wide := st.Class == stepper.Wide
	return Div(
		c.Classes{"stepper-body": true, "is-wide": wide, "is-narrow": !wide, "is-pinned": st.Pinned},
		g.Attr("data-active", strconv.Itoa(st.ActiveIndex)),
		g.Attr("data-class", st.Class.String()),
		progressTrack(st.Progress),
		Ol(
			Class("stepper-steps"),
			g.Map(panels, func(p stepper.Panel) g.Node {
				return step(p, p.Index == st.ActiveIndex, wide)
			}),
		),
		g.If(wide, stickyImage(panels, st.ActiveIndex)),
	)
}

func progressTrack(progress float64) g.Node {
	pct := strconv.FormatFloat(clampPercent(progress*100), 'f', 2, 64)
	return Div(
		Class("stepper-track"),
		Role("progressbar"),
		Aria("valuemin", "0"),
		Aria("valuemax", "100"),
		Aria("valuenow", pct),
		Div(Class("stepper-fill"), g.Attr("style", "height: "+pct+"%")),
	)
}

func step(p stepper.Panel, active, wide bool) g.Node {
	return Li(
		ID(p.ID()),
		c.Classes{"step": true, "is-active": active},
		g.Attr("data-index", strconv.Itoa(p.Index)),
		Button(
			Type("button"),
			Class("step-header"),
			g.Attr("data-select", strconv.Itoa(p.Index)),
			g.If(active, Aria("current", "step")),
			Span(Class("step-label"), g.Text(p.Label)),
			Icon(p.Glyph(active)),
			Span(
				c.Classes{"step-title": true, "accent-" + p.Accent: active && p.Accent != ""},
				g.Text(p.Title),
			),
		),
		g.If(active, stepDetail(p, wide)),
	)
}

func stepDetail(p stepper.Panel, wide bool) g.Node {
	return Div(
		Class("step-detail"),
		P(Class("step-description"), g.Text(p.Description)),
		g.If(len(p.Highlights) > 0, Ul(
			Class("step-highlights"),
			g.Map(p.Highlights, func(h stepper.Highlight) g.Node {
				return Li(Icon(h.Icon), Span(g.Text(h.Text)))
			}),
		)),
		g.If(!wide && p.Image != "", Img(Class("step-image"), Src(p.Image), Alt(p.Title), g.Attr("loading", "lazy"))),
		g.If(p.Href != "", A(Class("step-action"), Href(p.Href), g.Text("Explore "+p.Title))),
	)
}

func stickyImage(panels []stepper.Panel, active int) g.Node {
	if active < 0 || active >= len(panels) || panels[active].Image == "" {
		return Div(Class("stepper-media"))
	}
	p := panels[active]
	return Div(
		Class("stepper-media"),
		Img(Src(p.Image), Alt(p.Title)),
	)
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 100:
		return 100
	}
	return v
}
