// Package careers filters and paginates the job listing.
package careers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/livetemplate/engagesite/internal/cms"
)

// All selects every category.
const All = "All"

// EmptyMessage is shown when the listing has no jobs.
const EmptyMessage = "No jobs found"

// Params is the user's filter and page selection.
type Params struct {
	Category string
	Page     int
}

// ParseParams reads ?category=&page= with fallbacks to All and page 1.
func ParseParams(q url.Values) Params {
	p := Params{Category: strings.TrimSpace(q.Get("category")), Page: 1}
	if p.Category == "" {
		p.Category = All
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	return p
}

// Query encodes p back into URL parameters, omitting defaults.
func (p Params) Query() string {
	v := url.Values{}
	if p.Category != "" && p.Category != All {
		v.Set("category", p.Category)
	}
	if p.Page > 1 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// Listing is one rendered page of jobs.
type Listing struct {
	Jobs       []cms.Job
	Categories []string // All first, then categories in order of first appearance
	Category   string
	Page       int
	TotalPages int
	Total      int // jobs matching the filter
}

// HasPrev reports whether there is an earlier page
func (l Listing) HasPrev() bool { return l.Page > 1 }

// HasNext reports whether there is a later page
func (l Listing) HasNext() bool { return l.Page < l.TotalPages }

// Params returns the selection for page n of the current category.
func (l Listing) Params(n int) Params {
	return Params{Category: l.Category, Page: n}
}

// Categories lists the distinct job categories, preceded by All.
func Categories(jobs []cms.Job) []string {
	seen := make(map[string]bool)
	out := []string{All}
	for _, j := range jobs {
		c := string(j.Category)
		if c == "" || seen[strings.ToLower(c)] {
			continue
		}
		seen[strings.ToLower(c)] = true
		out = append(out, c)
	}
	return out
}

// Filter returns the jobs in category, compared case-insensitively. All
// returns every job.
func Filter(jobs []cms.Job, category string) []cms.Job {
	if category == "" || category == All {
		return jobs
	}
	var out []cms.Job
	for _, j := range jobs {
		if strings.EqualFold(string(j.Category), category) {
			out = append(out, j)
		}
	}
	return out
}

// Paginate returns page (1-based, clamped to the valid range) of items.
func Paginate[T any](items []T, page, size int) (slice []T, clamped, totalPages int) {
	if size <= 0 {
		size = len(items)
	}
	totalPages = 1
	if size > 0 && len(items) > 0 {
		totalPages = (len(items) + size - 1) / size
	}
	clamped = min(max(page, 1), totalPages)
	if len(items) == 0 {
		return nil, clamped, totalPages
	}
	start := (clamped - 1) * size
	end := min(start+size, len(items))
	return items[start:end], clamped, totalPages
}

// Build applies p to jobs. An unknown category falls back to All.
func Build(jobs []cms.Job, p Params, pageSize int) Listing {
	cats := Categories(jobs)
	category := All
	for _, c := range cats {
		if strings.EqualFold(c, p.Category) {
			category = c
			break
		}
	}

	filtered := Filter(jobs, category)
	page, clamped, total := Paginate(filtered, p.Page, pageSize)
	return Listing{
		Jobs:       page,
		Categories: cats,
		Category:   category,
		Page:       clamped,
		TotalPages: total,
		Total:      len(filtered),
	}
}
