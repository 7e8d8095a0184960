package cms

import (
	"fmt"
	"net/url"
	"strconv"
)

// Where is one filter clause, encoded as where[Field][Op]=Value.
type Where struct {
	Field string
	Op    string // equals, not_equals, in, like, ...
	Value string
}

// Equals is shorthand for the most common filter.
func Equals(field, value string) Where {
	return Where{Field: field, Op: "equals", Value: value}
}

// Query holds the filtering, sorting and paging parameters of a find request.
type Query struct {
	Where []Where
	Sort  string // field name, "-" prefix for descending
	Depth int    // relationship expansion depth; 0 leaves the server default
	Limit int
	Page  int
}

// Values encodes q as URL query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	for _, w := range q.Where {
		v.Set(fmt.Sprintf("where[%s][%s]", w.Field, w.Op), w.Value)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Depth > 0 {
		v.Set("depth", strconv.Itoa(q.Depth))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v
}
