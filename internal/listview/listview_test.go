package listview

import (
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

func makeRows(n int) []Row {
	rows := make([]Row, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, Row{
			ID:     strconv.Itoa(i),
			Serial: i,
			Name:   "Student " + strconv.Itoa(i),
			Cells:  map[string]string{"CLASS": "X", "ROLL": strconv.Itoa(i)},
		})
	}
	return rows
}

func newState(rows []Row) *State {
	return New(rows, WithClock(func() time.Time { return fixedNow }))
}

func ids(rows []Row) string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return strings.Join(out, ",")
}

func TestPaginationDefaults(t *testing.T) {
	s := newState(makeRows(120))
	p := s.Page()
	if p.TotalPages != 3 || p.Number != 1 || len(p.Rows) != 50 {
		t.Fatalf("unexpected first page: %+v", p)
	}
	if p.Info != "Showing 1-50 of 120 results" {
		t.Fatalf("unexpected info %q", p.Info)
	}
	s.GoTo(99)
	p = s.Page()
	if p.Number != 3 || len(p.Rows) != 20 || p.HasNext {
		t.Fatalf("expected clamped last page, got %+v", p)
	}
	if p.Info != "Showing 101-120 of 120 results" {
		t.Fatalf("unexpected info %q", p.Info)
	}
	s.GoTo(-4)
	if s.CurrentPage() != 1 {
		t.Fatalf("expected clamp to 1")
	}
}

func TestEmptySetHasOnePage(t *testing.T) {
	s := newState(nil)
	p := s.Page()
	if p.TotalPages != 1 || p.Number != 1 || p.Info != "Showing 0 results" || !p.NoData || p.Empty {
		t.Fatalf("unexpected empty page: %+v", p)
	}
}

func TestSearchAllColumnsAndSingleField(t *testing.T) {
	rows := []Row{
		{ID: "1", Serial: 1, Name: "ALICE", Cells: map[string]string{"CITY": "PUNE"}},
		{ID: "2", Serial: 2, Name: "BOB", Cells: map[string]string{"CITY": "ALIBAG"}},
	}
	s := newState(rows)
	s.SetSearch("ali")
	if got := ids(s.Filtered()); got != "1,2" {
		t.Fatalf("all-column search: %s", got)
	}
	s.SetField("CITY")
	if got := ids(s.Filtered()); got != "2" {
		t.Fatalf("field search: %s", got)
	}
	s.SetSearch("zzz")
	p := s.Page()
	if !p.Empty || len(p.Rows) != 0 {
		t.Fatalf("expected empty state, got %+v", p)
	}
}

func TestFilterChangeResetsPage(t *testing.T) {
	s := newState(makeRows(200))
	s.GoTo(3)
	s.SetSearch("student")
	if s.CurrentPage() != 1 {
		t.Fatalf("search should reset to page 1")
	}
	s.GoTo(2)
	s.SetSort(SortNameDesc)
	if s.CurrentPage() != 1 {
		t.Fatalf("sort should reset to page 1")
	}
}

func TestFilteredIsSubsetAndPageClamped(t *testing.T) {
	rows := makeRows(73)
	all := make(map[string]bool, len(rows))
	for _, r := range rows {
		all[r.ID] = true
	}
	s := newState(rows)
	steps := []func(){
		func() { s.SetSearch("1") },
		func() { s.GoTo(5) },
		func() { s.SetSort(SortSerialDesc) },
		func() { s.SetPageSize(25) },
		func() { s.GoTo(3) },
		func() { s.SetSearch("") },
		func() { s.SetDate(DateToday) },
		func() { s.GoTo(10) },
	}
	for i, step := range steps {
		step()
		for _, r := range s.Filtered() {
			if !all[r.ID] {
				t.Fatalf("step %d: row %s not in all rows", i, r.ID)
			}
		}
		if p := s.CurrentPage(); p < 1 || p > s.TotalPages() {
			t.Fatalf("step %d: page %d outside [1,%d]", i, p, s.TotalPages())
		}
	}
}

func TestSortKeys(t *testing.T) {
	rows := []Row{
		{ID: "1", Serial: 1, Name: "charlie", Updated: fixedNow.Add(-time.Hour)},
		{ID: "2", Serial: 2, Name: "Alpha", Updated: fixedNow.Add(-48 * time.Hour)},
		{ID: "3", Serial: 3, Name: "bravo"},
	}
	s := newState(rows)
	cases := map[SortKey]string{
		SortSerialAsc:  "1,2,3",
		SortSerialDesc: "3,2,1",
		SortNameAsc:    "2,3,1",
		SortNameDesc:   "1,3,2",
		SortDateNew:    "1,2,3",
		SortDateOld:    "2,1,3",
	}
	for key, want := range cases {
		s.SetSort(key)
		if got := ids(s.Filtered()); got != want {
			t.Fatalf("%s: got %s want %s", key, got, want)
		}
	}
}

func TestDateBuckets(t *testing.T) {
	rows := []Row{
		{ID: "today", Serial: 1, Updated: fixedNow.Add(-time.Hour)},
		{ID: "yesterday", Serial: 2, Updated: fixedNow.Add(-20 * time.Hour)},
		{ID: "lastweek", Serial: 3, Updated: fixedNow.AddDate(0, 0, -6)},
		{ID: "lastmonth", Serial: 4, Updated: fixedNow.AddDate(0, 0, -25)},
		{ID: "old", Serial: 5, Updated: fixedNow.AddDate(0, -3, 0)},
		{ID: "nodate", Serial: 6},
		{ID: "tomorrow", Serial: 7, Updated: fixedNow.Add(12 * time.Hour)},
	}
	s := newState(rows)
	cases := map[DateBucket]string{
		DateToday: "today",
		DateWeek:  "today,yesterday,lastweek,tomorrow",
		DateMonth: "today,yesterday,lastweek,lastmonth,tomorrow",
		DateAny:   "today,yesterday,lastweek,lastmonth,old,nodate,tomorrow",
	}
	for bucket, want := range cases {
		s.SetDate(bucket)
		if got := ids(s.Filtered()); got != want {
			t.Fatalf("%q: got %s want %s", bucket, got, want)
		}
	}
}

func TestImageFilter(t *testing.T) {
	rows := []Row{
		{ID: "done", Serial: 1, Images: []string{"id_card_images/1/A.jpg"}},
		{ID: "waiting", Serial: 2, Images: []string{"PENDING:A12"}},
		{ID: "missing", Serial: 3, Images: []string{""}},
	}
	s := newState(rows)
	for filter, want := range map[ImageFilter]string{
		ImageComplete:   "done",
		ImagePending:    "waiting",
		ImageIncomplete: "missing",
	} {
		s.SetImage(filter)
		if got := ids(s.Filtered()); got != want {
			t.Fatalf("%s: got %s", filter, got)
		}
	}
}

func TestHighlightJumpsToPage(t *testing.T) {
	s := newState(makeRows(120))
	if !s.Highlight("77") {
		t.Fatalf("expected row 77 to be found")
	}
	if s.CurrentPage() != 2 || s.Page().Highlight != "77" {
		t.Fatalf("expected page 2 with highlight, got %d", s.CurrentPage())
	}
	if s.Highlight("999") {
		t.Fatalf("unknown id should not be found")
	}
}

func TestPageWindow(t *testing.T) {
	cases := []struct {
		current, total int
		want           string
	}{
		{1, 1, "1"},
		{1, 10, "1,2,3,4,5"},
		{6, 10, "4,5,6,7,8"},
		{10, 10, "6,7,8,9,10"},
		{2, 3, "1,2,3"},
	}
	for _, tc := range cases {
		parts := make([]string, 0)
		for _, n := range pageWindow(tc.current, tc.total) {
			parts = append(parts, strconv.Itoa(n))
		}
		if got := strings.Join(parts, ","); got != tc.want {
			t.Fatalf("window(%d,%d) = %s want %s", tc.current, tc.total, got, tc.want)
		}
	}
}

func TestParseQueryRoundTrip(t *testing.T) {
	v := url.Values{"q": {"ali"}, "sort": {"name-desc"}, "size": {"100"}, "page": {"2"}, "date": {"week"}}
	q := ParseQuery(v)
	if q.Search != "ali" || q.Sort != SortNameDesc || q.PageSize != 100 || q.Page != 2 || q.Date != DateWeek {
		t.Fatalf("unexpected query %+v", q)
	}
	if got := q.Values().Encode(); got != v.Encode() {
		t.Fatalf("round trip: %s vs %s", got, v.Encode())
	}
	bad := ParseQuery(url.Values{"size": {"7"}, "sort": {"random"}})
	if bad.PageSize != DefaultPageSize || bad.Sort != DefaultSort {
		t.Fatalf("bad input should fall back to defaults: %+v", bad)
	}
}

func TestParseUpdated(t *testing.T) {
	got := ParseUpdated("05-Mar-2026 02:07 PM", time.UTC)
	want := time.Date(2026, 3, 5, 14, 7, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if !ParseUpdated("garbage", time.UTC).IsZero() {
		t.Fatalf("garbage should give zero time")
	}
}

func TestDebouncerRunsLastCall(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var last atomic.Int64
	var calls atomic.Int64
	for i := 1; i <= 5; i++ {
		n := int64(i)
		d.Trigger(func() {
			calls.Add(1)
			last.Store(n)
		})
	}
	time.Sleep(120 * time.Millisecond)
	if calls.Load() != 1 || last.Load() != 5 {
		t.Fatalf("expected single call with last value, got calls=%d last=%d", calls.Load(), last.Load())
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int64
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("stopped debouncer should not fire")
	}
}
