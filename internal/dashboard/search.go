package dashboard

import (
	"net/http"
	"strings"

	"github.com/phillip-england/cardsuite/internal/adminapi"
)

var searchFilters = []string{"all", "client", "staff", "table", "card"}

type searchData struct {
	layout
	Query   string
	Filter  string
	Filters []string
	Short   bool
	Results []adminapi.SearchResult
}

func (s *server) searchPage(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	filter := r.URL.Query().Get("filter")
	known := false
	for _, f := range searchFilters {
		if f == filter {
			known = true
		}
	}
	if !known {
		filter = "all"
	}
	data := searchData{
		layout:  s.layoutFor(r, "Search", ""),
		Query:   q,
		Filter:  filter,
		Filters: searchFilters,
		Short:   len([]rune(q)) < adminapi.MinSearchLength,
	}
	if !data.Short {
		results, err := s.api.GlobalSearch(r.Context(), sessionOf(r), q, filter)
		if err != nil {
			s.loadFailed(w, r, "search results", err)
			return
		}
		data.Results = results
	}
	s.render(w, "search.html", data)
}
