// Package listview is the search, filter, sort and pagination pipeline
// behind the card list. It works on an in-memory row set and never touches
// the network.
package listview

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// UpdatedLayout is how the admin API formats timestamps.
const UpdatedLayout = "02-Jan-2006 03:04 PM"

const (
	DefaultPageSize = 50
	DefaultSort     = SortSerialAsc
)

// PageSizes are the sizes offered in the rows-per-page picker.
var PageSizes = []int{25, 50, 100, 200}

type SortKey string

const (
	SortSerialAsc  SortKey = "sr-asc"
	SortSerialDesc SortKey = "sr-desc"
	SortNameAsc    SortKey = "name-asc"
	SortNameDesc   SortKey = "name-desc"
	SortDateNew    SortKey = "date-new"
	SortDateOld    SortKey = "date-old"
)

func ParseSortKey(raw string) SortKey {
	switch k := SortKey(strings.TrimSpace(raw)); k {
	case SortSerialAsc, SortSerialDesc, SortNameAsc, SortNameDesc, SortDateNew, SortDateOld:
		return k
	default:
		return DefaultSort
	}
}

type DateBucket string

const (
	DateAny   DateBucket = ""
	DateToday DateBucket = "today"
	DateWeek  DateBucket = "week"
	DateMonth DateBucket = "month"
)

func ParseDateBucket(raw string) DateBucket {
	switch b := DateBucket(strings.TrimSpace(raw)); b {
	case DateToday, DateWeek, DateMonth:
		return b
	default:
		return DateAny
	}
}

type ImageFilter string

const (
	ImageAny        ImageFilter = ""
	ImageComplete   ImageFilter = "complete"
	ImagePending    ImageFilter = "pending"
	ImageIncomplete ImageFilter = "incomplete"
)

// PendingImagePrefix marks an image value whose file has not arrived yet.
const PendingImagePrefix = "PENDING:"

func ParseImageFilter(raw string) ImageFilter {
	switch f := ImageFilter(strings.TrimSpace(raw)); f {
	case ImageComplete, ImagePending, ImageIncomplete:
		return f
	default:
		return ImageAny
	}
}

// Row is one list entry. Serial is its 1-based position in load order.
type Row struct {
	ID      string
	Serial  int
	Name    string
	Cells   map[string]string
	Images  []string
	Updated time.Time
}

func (r Row) text() string {
	keys := make([]string, 0, len(r.Cells))
	for k := range r.Cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(r.Name)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(r.Cells[k])
	}
	return b.String()
}

// ParseUpdated reads an admin API timestamp in loc. Unparseable input
// gives the zero time.
func ParseUpdated(raw string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(UpdatedLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Query is every user-controlled input to the pipeline.
type Query struct {
	Search    string
	Field     string
	Date      DateBucket
	Image     ImageFilter
	Sort      SortKey
	PageSize  int
	Page      int
	Highlight string
}

func DefaultQuery() Query {
	return Query{Sort: DefaultSort, PageSize: DefaultPageSize, Page: 1}
}

// ParseQuery reads a Query from URL parameters, falling back to defaults.
func ParseQuery(v url.Values) Query {
	q := DefaultQuery()
	q.Search = strings.TrimSpace(v.Get("q"))
	q.Field = strings.TrimSpace(v.Get("field"))
	if q.Field == "all" {
		q.Field = ""
	}
	q.Date = ParseDateBucket(v.Get("date"))
	q.Image = ParseImageFilter(v.Get("image"))
	q.Sort = ParseSortKey(v.Get("sort"))
	if size, err := strconv.Atoi(v.Get("size")); err == nil && validPageSize(size) {
		q.PageSize = size
	}
	if page, err := strconv.Atoi(v.Get("page")); err == nil && page > 0 {
		q.Page = page
	}
	q.Highlight = strings.TrimSpace(v.Get("highlight"))
	return q
}

// Values is the inverse of ParseQuery, leaving defaults out.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.Field != "" {
		v.Set("field", q.Field)
	}
	if q.Date != DateAny {
		v.Set("date", string(q.Date))
	}
	if q.Image != ImageAny {
		v.Set("image", string(q.Image))
	}
	if q.Sort != "" && q.Sort != DefaultSort {
		v.Set("sort", string(q.Sort))
	}
	if q.PageSize != 0 && q.PageSize != DefaultPageSize {
		v.Set("size", strconv.Itoa(q.PageSize))
	}
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v
}

func validPageSize(n int) bool {
	for _, size := range PageSizes {
		if n == size {
			return true
		}
	}
	return false
}

type Option func(*State)

// WithClock fixes "now" for date buckets.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

func WithLanguage(tag language.Tag) Option {
	return func(s *State) { s.collator = collate.New(tag, collate.IgnoreCase) }
}

// State holds the full row set and the derived, filtered and sorted view.
type State struct {
	all      []Row
	filtered []Row
	query    Query
	page     int
	now      func() time.Time
	collator *collate.Collator
}

func New(rows []Row, opts ...Option) *State {
	s := &State{
		all:   append([]Row(nil), rows...),
		query: DefaultQuery(),
		page:  1,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.collator == nil {
		s.collator = collate.New(language.English, collate.IgnoreCase)
	}
	s.recompute()
	return s
}

// Apply replaces the query wholesale and honors q.Page.
func (s *State) Apply(q Query) {
	if q.Sort == "" {
		q.Sort = DefaultSort
	}
	if !validPageSize(q.PageSize) {
		q.PageSize = DefaultPageSize
	}
	s.query = q
	s.recompute()
	s.GoTo(q.Page)
}

func (s *State) SetSearch(text string) {
	s.query.Search = strings.TrimSpace(text)
	s.refilter()
}

func (s *State) SetField(field string) {
	s.query.Field = strings.TrimSpace(field)
	s.refilter()
}

func (s *State) SetDate(b DateBucket) {
	s.query.Date = b
	s.refilter()
}

func (s *State) SetImage(f ImageFilter) {
	s.query.Image = f
	s.refilter()
}

func (s *State) SetSort(k SortKey) {
	s.query.Sort = ParseSortKey(string(k))
	s.refilter()
}

func (s *State) SetPageSize(n int) {
	if !validPageSize(n) {
		n = DefaultPageSize
	}
	s.query.PageSize = n
	s.page = 1
}

// GoTo moves to page, clamped into [1, TotalPages].
func (s *State) GoTo(page int) {
	total := s.TotalPages()
	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}
	s.page = page
}

// Highlight moves to the page holding id and reports whether it is in the
// filtered set.
func (s *State) Highlight(id string) bool {
	for i, row := range s.filtered {
		if row.ID == id {
			s.query.Highlight = id
			s.GoTo(i/s.query.PageSize + 1)
			return true
		}
	}
	return false
}

func (s *State) Query() Query {
	q := s.query
	q.Page = s.page
	return q
}

func (s *State) All() []Row       { return s.all }
func (s *State) Filtered() []Row  { return s.filtered }
func (s *State) CurrentPage() int { return s.page }

func (s *State) TotalPages() int {
	size := s.query.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := int(math.Ceil(float64(len(s.filtered)) / float64(size)))
	if pages < 1 {
		return 1
	}
	return pages
}

func (s *State) refilter() {
	s.recompute()
	s.page = 1
}

func (s *State) recompute() {
	needle := strings.ToLower(s.query.Search)
	cutoff, until, hasCutoff := s.dateRange()
	out := make([]Row, 0, len(s.all))
	for _, row := range s.all {
		if needle != "" && !strings.Contains(strings.ToLower(s.haystack(row)), needle) {
			continue
		}
		if hasCutoff && (row.Updated.IsZero() || row.Updated.Before(cutoff) || (!until.IsZero() && !row.Updated.Before(until))) {
			continue
		}
		if !matchImage(row, s.query.Image) {
			continue
		}
		out = append(out, row)
	}
	s.sortRows(out)
	s.filtered = out
	if s.page > s.TotalPages() {
		s.page = s.TotalPages()
	}
}

func (s *State) haystack(row Row) string {
	if s.query.Field == "" {
		return row.text()
	}
	return row.Cells[s.query.Field]
}

// dateRange is the window a date bucket keeps. Today is bounded on both
// sides; week and month only have a start.
func (s *State) dateRange() (from, until time.Time, ok bool) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch s.query.Date {
	case DateToday:
		return midnight, midnight.AddDate(0, 0, 1), true
	case DateWeek:
		return midnight.AddDate(0, 0, -7), time.Time{}, true
	case DateMonth:
		return midnight.AddDate(0, 0, -30), time.Time{}, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

func matchImage(row Row, f ImageFilter) bool {
	if f == ImageAny {
		return true
	}
	if len(row.Images) == 0 {
		return f == ImageIncomplete
	}
	complete, pending, empty := 0, 0, 0
	for _, v := range row.Images {
		switch v = strings.TrimSpace(v); {
		case v == "":
			empty++
		case strings.HasPrefix(strings.ToUpper(v), PendingImagePrefix):
			pending++
		default:
			complete++
		}
	}
	switch f {
	case ImageComplete:
		return complete == len(row.Images)
	case ImagePending:
		return pending > 0
	case ImageIncomplete:
		return empty > 0
	}
	return true
}

func (s *State) sortRows(rows []Row) {
	key := s.query.Sort
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch key {
		case SortSerialDesc:
			return a.Serial > b.Serial
		case SortNameAsc, SortNameDesc:
			c := s.collator.CompareString(a.Name, b.Name)
			if c == 0 {
				return a.Serial < b.Serial
			}
			if key == SortNameDesc {
				return c > 0
			}
			return c < 0
		case SortDateNew, SortDateOld:
			if a.Updated.IsZero() != b.Updated.IsZero() {
				return b.Updated.IsZero()
			}
			if a.Updated.Equal(b.Updated) {
				return a.Serial < b.Serial
			}
			if key == SortDateNew {
				return a.Updated.After(b.Updated)
			}
			return a.Updated.Before(b.Updated)
		default:
			return a.Serial < b.Serial
		}
	})
}

// Page is the rendered slice plus everything the pager needs.
type Page struct {
	Rows       []Row
	Number     int
	TotalPages int
	Total      int
	Start      int
	End        int
	Window     []int
	HasPrev    bool
	HasNext    bool
	Empty      bool
	NoData     bool
	Info       string
	Highlight  string
}

func (s *State) Page() Page {
	size := s.query.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(s.filtered)
	pages := s.TotalPages()
	start := (s.page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	p := Page{
		Rows:       s.filtered[start:end],
		Number:     s.page,
		TotalPages: pages,
		Total:      total,
		Window:     pageWindow(s.page, pages),
		HasPrev:    s.page > 1,
		HasNext:    s.page < pages,
		Empty:      total == 0 && len(s.all) > 0,
		NoData:     len(s.all) == 0,
		Highlight:  s.query.Highlight,
	}
	if total == 0 {
		p.Info = "Showing 0 results"
		return p
	}
	p.Start = start + 1
	p.End = end
	p.Info = fmt.Sprintf("Showing %d-%d of %d results", p.Start, p.End, total)
	return p
}

// pageWindow is up to five page numbers centered on current.
func pageWindow(current, total int) []int {
	const span = 5
	start := current - span/2
	if start < 1 {
		start = 1
	}
	end := start + span - 1
	if end > total {
		end = total
		start = end - span + 1
		if start < 1 {
			start = 1
		}
	}
	out := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out
}
