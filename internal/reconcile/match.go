// Package reconcile lines up the header row of an uploaded spreadsheet with
// the fields a table expects, tolerating small spelling differences.
package reconcile

import (
	"strings"
)

type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchFuzzy MatchType = "fuzzy"
)

// Normalize lowercases name and drops everything outside [a-z0-9].
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Levenshtein is the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}
			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// maxDistance is the fuzzy tolerance for a normalized candidate.
func maxDistance(normalizedField string) int {
	if len(normalizedField) < 5 {
		return 1
	}
	return 2
}

type Match struct {
	Field    string
	Type     MatchType
	Distance int
}

// FindBestMatch picks the candidate header refers to. An exact normalized
// match wins outright; otherwise the closest candidate within tolerance is
// taken, earlier candidates winning ties.
func FindBestMatch(header string, candidates []string) (Match, bool) {
	normalized := Normalize(header)
	for _, field := range candidates {
		if Normalize(field) == normalized {
			return Match{Field: field, Type: MatchExact}, true
		}
	}

	best := Match{Distance: -1}
	for _, field := range candidates {
		nf := Normalize(field)
		d := Levenshtein(normalized, nf)
		if d <= maxDistance(nf) && (best.Distance < 0 || d < best.Distance) {
			best = Match{Field: field, Type: MatchFuzzy, Distance: d}
		}
	}
	if best.Distance < 0 {
		return Match{}, false
	}
	return best, true
}

type Matched struct {
	Header string
	Field  string
	Type   MatchType
}

// Report is the outcome of reconciling one header row.
type Report struct {
	Matched      []Matched
	Missing      []string
	Ignored      []string
	DataRowCount int
}

// OK reports whether the upload may go ahead.
func (r Report) OK() bool {
	return len(r.Matched) > 0
}

// FieldFor returns the expected field that header was matched to.
func (r Report) FieldFor(header string) (string, bool) {
	for _, m := range r.Matched {
		if m.Header == header {
			return m.Field, true
		}
	}
	return "", false
}

// Reconcile walks headers in order and lets each claim at most one
// unclaimed expected field. Blank headers are skipped. When nothing
// matches, every expected field is reported missing.
func Reconcile(headers, expected []string) Report {
	claimed := make(map[string]bool, len(expected))
	var report Report
	for _, raw := range headers {
		header := strings.TrimSpace(raw)
		if header == "" {
			continue
		}
		open := make([]string, 0, len(expected))
		for _, f := range expected {
			if !claimed[f] {
				open = append(open, f)
			}
		}
		m, ok := FindBestMatch(header, open)
		if !ok {
			report.Ignored = append(report.Ignored, header)
			continue
		}
		claimed[m.Field] = true
		report.Matched = append(report.Matched, Matched{Header: header, Field: m.Field, Type: m.Type})
	}
	for _, f := range expected {
		if !claimed[f] {
			report.Missing = append(report.Missing, f)
		}
	}
	return report
}
