// Package pagination models the list screens' page, page size and search
// query. The address bar is the source of truth: handlers decode a State from
// the request URL on every read and encode a new URL on every write.
package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	ParamPage     = "pagina"
	ParamPageSize = "limite"
	ParamSearch   = "q"

	DefaultPageSize = 10
)

// PageSizeOptions is the closed set of page sizes a list can be shown with.
var PageSizeOptions = []int{10, 20, 30, 40, 50}

type State struct {
	Page     int
	PageSize int
	Search   string
}

func Default() State {
	return State{Page: 1, PageSize: DefaultPageSize}
}

// FromQuery decodes a State. Missing or invalid values fall back to defaults,
// so any URL decodes to a usable State.
func FromQuery(q url.Values) State {
	s := Default()
	if page, err := strconv.Atoi(strings.TrimSpace(q.Get(ParamPage))); err == nil && page >= 1 {
		s.Page = page
	}
	if size, err := strconv.Atoi(strings.TrimSpace(q.Get(ParamPageSize))); err == nil && ValidPageSize(size) {
		s.PageSize = size
	}
	s.Search = strings.TrimSpace(q.Get(ParamSearch))
	return s
}

func ValidPageSize(size int) bool {
	for _, option := range PageSizeOptions {
		if option == size {
			return true
		}
	}
	return false
}

func (s State) normalized() State {
	if s.Page < 1 {
		s.Page = 1
	}
	if !ValidPageSize(s.PageSize) {
		s.PageSize = DefaultPageSize
	}
	s.Search = strings.TrimSpace(s.Search)
	return s
}

// Query encodes the State on its own.
func (s State) Query() url.Values {
	return s.Apply(url.Values{})
}

// Apply writes the State into q, leaving unrelated parameters untouched.
// Page and page size are always written so a re-read returns the same values.
func (s State) Apply(q url.Values) url.Values {
	s = s.normalized()
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	out.Set(ParamPage, strconv.Itoa(s.Page))
	out.Set(ParamPageSize, strconv.Itoa(s.PageSize))
	if s.Search == "" {
		out.Del(ParamSearch)
	} else {
		out.Set(ParamSearch, s.Search)
	}
	return out
}

// URL returns base with its query replaced by base's query plus the State.
func (s State) URL(base *url.URL) string {
	u := url.URL{Path: "/"}
	if base != nil {
		u = *base
	}
	u.RawQuery = s.Apply(u.Query()).Encode()
	return u.RequestURI()
}

func (s State) WithPage(page int) State {
	if page < 1 {
		page = 1
	}
	s.Page = page
	return s
}

// WithPageSize keeps the current page unless it no longer exists for the new
// size, in which case it moves to the last valid page.
func (s State) WithPageSize(size, total int) State {
	if !ValidPageSize(size) {
		size = DefaultPageSize
	}
	s.PageSize = size
	return s.Clamp(total)
}

// WithSearch changes the query and returns to the first page.
func (s State) WithSearch(search string) State {
	s.Search = strings.TrimSpace(search)
	s.Page = 1
	return s
}

func (s State) Reset() State {
	s.Search = ""
	s.Page = 1
	return s
}

func (s State) IsAnyFilterActive() bool {
	return strings.TrimSpace(s.Search) != ""
}

// Clamp recomputes the page against total rows.
func (s State) Clamp(total int) State {
	s = s.normalized()
	last := PageCount(total, s.PageSize)
	if last < 1 {
		last = 1
	}
	if s.Page > last {
		s.Page = last
	}
	return s
}

func (s State) Offset() int {
	s = s.normalized()
	return (s.Page - 1) * s.PageSize
}

func PageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
