// Package section holds the load state of one data-backed page section.
//
// A section starts Loading, then settles into Ready, Empty or Error once its
// fetch returns. Results that arrive after Unmount are discarded, so a slow
// request can never overwrite a section that is no longer displayed.
package section

import (
	"context"
	"errors"
	"sync"

	"github.com/livetemplate/engagesite/internal/cms"
)

// Status is the render state of a section.
type Status int

const (
	Loading Status = iota
	Ready
	Empty
	Error
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Empty:
		return "empty"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// FetchFunc loads the items of a section.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Snapshot is an immutable view of a section for rendering.
type Snapshot[T any] struct {
	Name    string
	Status  Status
	Items   []T
	Message string // inline error or empty-state text
}

// Section tracks one fetch-and-render cycle.
type Section[T any] struct {
	name         string
	emptyMessage string

	mu      sync.Mutex
	mounted bool
	status  Status
	items   []T
	message string
}

// New returns a mounted section in the Loading state. emptyMessage is shown
// when the fetch succeeds with no items.
func New[T any](name, emptyMessage string) *Section[T] {
	return &Section[T]{
		name:         name,
		emptyMessage: emptyMessage,
		mounted:      true,
		status:       Loading,
	}
}

// Load runs fetch and applies its result if the section is still mounted.
// It returns false when the result was dropped.
func (s *Section[T]) Load(ctx context.Context, fetch FetchFunc[T]) bool {
	items, err := fetch(ctx)
	return s.apply(items, err)
}

func (s *Section[T]) apply(items []T, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return false
	}

	switch {
	case err != nil:
		s.status = Error
		s.items = nil
		s.message = message(err)
	case len(items) == 0:
		s.status = Empty
		s.items = nil
		s.message = s.emptyMessage
	default:
		s.status = Ready
		s.items = items
		s.message = ""
	}
	return true
}

// Unmount detaches the section; later results are ignored.
func (s *Section[T]) Unmount() {
	s.mu.Lock()
	s.mounted = false
	s.mu.Unlock()
}

// Mounted reports whether results are still applied
func (s *Section[T]) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// Snapshot returns the current state
func (s *Section[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot[T]{
		Name:    s.name,
		Status:  s.status,
		Items:   s.items,
		Message: s.message,
	}
}

func message(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out. Please try again."
	}
	return cms.UserFriendlyMessage(err)
}
