package views

import (
	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/livetemplate/engagesite/internal/section"
)

// SectionBody renders the items of a settled section with ready, or the
// inline loading, empty or error state otherwise. Failures stay inside the
// section; the rest of the page renders normally.
func SectionBody[T any](snap section.Snapshot[T], ready func([]T) g.Node) g.Node {
	switch snap.Status {
	case section.Ready:
		return ready(snap.Items)
	case section.Empty:
		return EmptyState(snap.Message)
	case section.Error:
		return ErrorState(snap.Message)
	default:
		return LoadingState()
	}
}

// EmptyState is the "no data" message of a section.
func EmptyState(msg string) g.Node {
	return P(Class("state state-empty"), g.Attr("data-state", "empty"), g.Text(msg))
}

// ErrorState is the inline failure message of a section.
func ErrorState(msg string) g.Node {
	return Div(
		Class("state state-error"),
		Role("alert"),
		g.Attr("data-state", "error"),
		Icon("alert"),
		P(g.Text(msg)),
	)
}

// LoadingState is a placeholder while a section has no result yet.
func LoadingState() g.Node {
	return Div(
		Class("state state-loading"),
		g.Attr("data-state", "loading"),
		Aria("busy", "true"),
		Span(Class("skeleton")),
		Span(Class("skeleton")),
	)
}
