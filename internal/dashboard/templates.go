package dashboard

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/phillip-england/cardsuite/internal/cardflow"
	"github.com/phillip-england/cardsuite/internal/listview"
)

// layoutPages render inside layout.html; standalone pages are whole
// documents or fragments of their own.
var (
	layoutPages     = []string{"clients.html", "staff.html", "tables.html", "cards.html", "profile.html", "search.html"}
	standalonePages = []string{"login.html", "card_search.html"}
)

var templateFuncs = template.FuncMap{
	"mediaURL":   mediaURL,
	"isPending":  isPendingImage,
	"pendingRef": pendingRef,
	"add":        func(a, b int) int { return a + b },
	"statusLabel": func(s cardflow.Status) string {
		return s.Label()
	},
	"join": strings.Join,
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(layoutPages)+len(standalonePages))
	for _, page := range layoutPages {
		tmpl, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templatesFS,
			"templates/layout.html", "templates/partials.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		pages[page] = tmpl
	}
	for _, page := range standalonePages {
		tmpl, err := template.New(page).Funcs(templateFuncs).ParseFS(templatesFS,
			"templates/partials.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		pages[page] = tmpl
	}
	return pages, nil
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}

func isPendingImage(value string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(value)), listview.PendingImagePrefix)
}

func pendingRef(value string) string {
	value = strings.TrimSpace(value)
	if !isPendingImage(value) {
		return ""
	}
	return value[len(listview.PendingImagePrefix):]
}

// mediaURL is where the browser loads a stored image from. Pending and
// empty values have no image.
func mediaURL(value string) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "" || isPendingImage(value):
		return ""
	case strings.HasPrefix(value, "/media/"):
		return value
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		return value
	default:
		return "/media/" + strings.TrimLeft(value, "/")
	}
}
