package pagination

import (
	"net/url"
	"testing"
)

func TestStateRoundTripsThroughQuery(t *testing.T) {
	for page := 1; page <= 12; page++ {
		for _, size := range PageSizeOptions {
			in := State{Page: page, PageSize: size}
			got := FromQuery(in.Query())
			if got.Page != page || got.PageSize != size {
				t.Fatalf("round trip (%d,%d) returned (%d,%d)", page, size, got.Page, got.PageSize)
			}
		}
	}
}

func TestFromQueryDefaults(t *testing.T) {
	cases := []struct {
		raw      string
		wantPage int
		wantSize int
	}{
		{raw: "", wantPage: 1, wantSize: 10},
		{raw: "pagina=0&limite=7", wantPage: 1, wantSize: 10},
		{raw: "pagina=-3&limite=abc", wantPage: 1, wantSize: 10},
		{raw: "pagina=4&limite=30", wantPage: 4, wantSize: 30},
	}
	for _, tc := range cases {
		q, err := url.ParseQuery(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		got := FromQuery(q)
		if got.Page != tc.wantPage || got.PageSize != tc.wantSize {
			t.Fatalf("FromQuery(%q) = (%d,%d), want (%d,%d)", tc.raw, got.Page, got.PageSize, tc.wantPage, tc.wantSize)
		}
	}
}

func TestWithPageSizeClampsToLastPage(t *testing.T) {
	s := State{Page: 3, PageSize: 10}
	got := s.WithPageSize(20, 25)
	if got.Page != 2 || got.PageSize != 20 {
		t.Fatalf("expected page 2 size 20, got page %d size %d", got.Page, got.PageSize)
	}
}

func TestWithPageSizeKeepsPageWhenStillValid(t *testing.T) {
	s := State{Page: 2, PageSize: 10}
	got := s.WithPageSize(20, 100)
	if got.Page != 2 {
		t.Fatalf("expected page to be preserved, got %d", got.Page)
	}
}

func TestWithPageSizeWithNoRows(t *testing.T) {
	got := State{Page: 5, PageSize: 10}.WithPageSize(50, 0)
	if got.Page != 1 {
		t.Fatalf("expected page 1 for empty set, got %d", got.Page)
	}
}

func TestResetFilters(t *testing.T) {
	states := []State{
		{Page: 7, PageSize: 20, Search: "ana"},
		{Page: 1, PageSize: 10},
		{Page: 3, PageSize: 50, Search: "  bob "},
	}
	for _, s := range states {
		got := s.Reset()
		if got.Page != 1 || got.Search != "" {
			t.Fatalf("Reset() from %+v gave %+v", s, got)
		}
		if got.IsAnyFilterActive() {
			t.Fatalf("expected no active filter after reset")
		}
	}
}

func TestWithSearchReturnsToFirstPage(t *testing.T) {
	got := State{Page: 4, PageSize: 10}.WithSearch(" maria ")
	if got.Page != 1 || got.Search != "maria" {
		t.Fatalf("unexpected state %+v", got)
	}
	if !got.IsAnyFilterActive() {
		t.Fatalf("expected filter to be active")
	}
}

func TestApplyPreservesOtherParams(t *testing.T) {
	q := url.Values{"message": {"saved"}, ParamSearch: {"old"}}
	out := State{Page: 2, PageSize: 20}.Apply(q)
	if out.Get("message") != "saved" {
		t.Fatalf("expected unrelated param to survive, got %v", out)
	}
	if out.Has(ParamSearch) {
		t.Fatalf("expected empty search to remove %q", ParamSearch)
	}
	if q.Get(ParamSearch) != "old" {
		t.Fatalf("Apply must not mutate its input")
	}
}

func TestURL(t *testing.T) {
	base, _ := url.Parse("/dashboard/employee?q=ana")
	got := State{Page: 3, PageSize: 10, Search: "ana"}.URL(base)
	if got != "/dashboard/employee?limite=10&pagina=3&q=ana" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestPageCount(t *testing.T) {
	cases := []struct{ total, size, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 20, 2},
	}
	for _, tc := range cases {
		if got := PageCount(tc.total, tc.size); got != tc.want {
			t.Fatalf("PageCount(%d,%d) = %d, want %d", tc.total, tc.size, got, tc.want)
		}
	}
}

func TestOffset(t *testing.T) {
	if got := (State{Page: 3, PageSize: 20}).Offset(); got != 40 {
		t.Fatalf("expected offset 40, got %d", got)
	}
}
