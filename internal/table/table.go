// Package table renders one page of rows for server-driven lists.
//
// Pagination is manual: the caller fetches exactly the rows of the current
// page and passes the total row count separately. The renderer never slices.
package table

import (
	"fmt"
	"html/template"
	"net/url"

	"github.com/phillip-england/staffsuite/internal/pagination"
)

const (
	DefaultEmptyText = "No results."
	noRecordsText    = "No records found"
	noPagesText      = "No pages"
)

type Column[T any] struct {
	Key    string
	Header string
	Value  func(row T) string
	Cell   func(row T) template.HTML
}

func (c Column[T]) render(row T) template.HTML {
	if c.Cell != nil {
		return c.Cell(row)
	}
	if c.Value != nil {
		return template.HTML(template.HTMLEscapeString(c.Value(row)))
	}
	return ""
}

type Table[T any] struct {
	Columns         []Column[T]
	PageSizeOptions []int
	EmptyText       string
}

type Header struct {
	Key   string
	Label string
}

type Row struct {
	Cells []template.HTML
}

type PageSizeOption struct {
	Size     int
	URL      string
	Selected bool
}

type View struct {
	Headers   []Header
	Rows      []Row
	Empty     bool
	EmptyText string
	ColSpan   int

	Total     int
	Page      int
	PageCount int
	Summary   string
	PageLabel string

	CanPrev  bool
	CanNext  bool
	FirstURL string
	PrevURL  string
	NextURL  string
	LastURL  string

	PageSizes []PageSizeOption
}

// paginationState mirrors the zero-based representation the renderer works
// in. The URL carries the one-based page; conversion happens only in
// fromState and toState.
type paginationState struct {
	pageIndex int
	pageSize  int
}

func fromState(s pagination.State) paginationState {
	return paginationState{pageIndex: s.Page - 1, pageSize: s.PageSize}
}

func toState(base pagination.State, p paginationState) pagination.State {
	base.Page = p.pageIndex + 1
	base.PageSize = p.pageSize
	return base
}

func (t Table[T]) Render(rows []T, total int, state pagination.State, base *url.URL) View {
	state = state.Clamp(total)
	current := fromState(state)
	pageCount := pagination.PageCount(total, current.pageSize)

	emptyText := t.EmptyText
	if emptyText == "" {
		emptyText = DefaultEmptyText
	}

	view := View{
		EmptyText: emptyText,
		ColSpan:   len(t.Columns),
		Total:     total,
		Page:      current.pageIndex + 1,
		PageCount: pageCount,
	}
	for _, c := range t.Columns {
		view.Headers = append(view.Headers, Header{Key: c.Key, Label: c.Header})
	}
	for _, row := range rows {
		cells := make([]template.HTML, 0, len(t.Columns))
		for _, c := range t.Columns {
			cells = append(cells, c.render(row))
		}
		view.Rows = append(view.Rows, Row{Cells: cells})
	}
	view.Empty = len(view.Rows) == 0

	if total > 0 {
		from := current.pageIndex*current.pageSize + 1
		to := min((current.pageIndex+1)*current.pageSize, total)
		view.Summary = fmt.Sprintf("Showing %d to %d of %d records", from, to, total)
		view.PageLabel = fmt.Sprintf("Page %d of %d", current.pageIndex+1, pageCount)
	} else {
		view.Summary = noRecordsText
		view.PageLabel = noPagesText
	}

	view.CanPrev = current.pageIndex > 0
	view.CanNext = current.pageIndex+1 < pageCount

	link := func(next paginationState) string {
		return toState(state, next).URL(base)
	}
	if view.CanPrev {
		view.FirstURL = link(paginationState{pageIndex: 0, pageSize: current.pageSize})
		view.PrevURL = link(paginationState{pageIndex: current.pageIndex - 1, pageSize: current.pageSize})
	}
	if view.CanNext {
		view.NextURL = link(paginationState{pageIndex: current.pageIndex + 1, pageSize: current.pageSize})
		view.LastURL = link(paginationState{pageIndex: pageCount - 1, pageSize: current.pageSize})
	}

	options := t.PageSizeOptions
	if len(options) == 0 {
		options = pagination.PageSizeOptions
	}
	for _, size := range options {
		resized := state.WithPageSize(size, total)
		view.PageSizes = append(view.PageSizes, PageSizeOption{
			Size:     size,
			URL:      resized.URL(base),
			Selected: size == current.pageSize,
		})
	}

	return view
}
