// Package cms is a read-only client for the remote content API that serves
// job openings, banner slides and testimonials.
package cms

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("cms: client closed")

// Kind classifies a failed request.
type Kind int

const (
	// KindTransport means the API could not be reached or did not answer in time.
	KindTransport Kind = iota + 1
	// KindStatus means the API answered with a non-2xx status.
	KindStatus
	// KindMalformed means the body is not a find response.
	KindMalformed
	// KindUnavailable means the collection is paused after repeated failures.
	KindUnavailable
	// KindInvalid means the request could not be built.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindUnavailable:
		return "unavailable"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is a failed request for one collection.
type Error struct {
	Collection string
	Kind       Kind
	Status     int    // HTTP status for KindStatus
	Detail     string // Response excerpt or reason
	Attempts   int    // Requests made, counting retries
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("cms")
	if e.Collection != "" {
		b.WriteString(" " + e.Collection)
	}
	b.WriteString(": " + e.Kind.String())
	if e.Kind == KindStatus {
		fmt.Fprintf(&b, " %d", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " (%d attempts)", e.Attempts)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the same request may succeed later. Only
// transient failures are retried and counted against a collection's circuit.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTransport:
		return !errors.Is(e.Err, context.Canceled)
	case KindStatus:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// Timeout reports whether the request ran out of time.
func (e *Error) Timeout() bool {
	if e.Kind != KindTransport {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// KindOf returns the kind of a cms error, or 0 for any other error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func transportError(collection string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Collection: collection, Kind: KindTransport, Err: err}
}

func statusError(collection string, status int, body string) *Error {
	if len(body) > 200 {
		body = body[:200]
	}
	return &Error{Collection: collection, Kind: KindStatus, Status: status, Detail: body}
}

func malformedError(collection, reason string, err error) *Error {
	return &Error{Collection: collection, Kind: KindMalformed, Detail: reason, Err: err}
}

func invalidError(collection, reason string) *Error {
	return &Error{Collection: collection, Kind: KindInvalid, Detail: reason}
}

// nouns name each collection in inline messages.
var nouns = map[string]string{
	CollectionJobs:         "job openings",
	CollectionSlides:       "announcements",
	CollectionTestimonials: "testimonials",
}

func noun(collection string) string {
	if n, ok := nouns[collection]; ok {
		return n
	}
	if collection == "" {
		return "content"
	}
	return collection
}

// UserFriendlyMessage returns the inline text a section shows in place of
// its content.
func UserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out. Please try again."
	}

	var e *Error
	if !errors.As(err, &e) {
		return "Failed to load content. Please try again."
	}
	what := noun(e.Collection)

	switch e.Kind {
	case KindTransport:
		if e.Timeout() {
			return "Request timed out. Please try again."
		}
		return "Could not connect to the content service. Please check your connection."
	case KindStatus:
		switch {
		case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
			return "The content service refused the request."
		case e.Status == http.StatusNotFound:
			return fmt.Sprintf("Could not find %s.", what)
		case e.Status == http.StatusTooManyRequests:
			return "Too many requests. Please slow down."
		case e.Status >= 500:
			return "Server error. Please try again later."
		default:
			return fmt.Sprintf("Request failed (HTTP %d).", e.Status)
		}
	case KindMalformed:
		return fmt.Sprintf("Could not read %s from the content service.", what)
	case KindUnavailable:
		return fmt.Sprintf("%s are temporarily unavailable. Please try again later.", capitalize(what))
	default:
		return "Failed to load content. Please try again."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
