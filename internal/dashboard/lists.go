package dashboard

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/drawer"
	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/selection"
)

// listRow is a listview row plus how the page draws it.
type listRow struct {
	listview.Row
	Selected bool
	Link     string
}

// listPage is the shared shape of the clients, staff and tables pages.
type listPage struct {
	layout
	Page         listview.Page
	Query        listview.Query
	Rows         []listRow
	Selected     int64
	SelectedName string
	Gate         selection.ListGate
	Drawer       *drawerView
	Sizes        []int
	Base         string
	Extra        map[string]string
	PageURL      string
	AddURL       string
	EditURL      string
	ViewURL      string
}

// drawerView is the open drawer as a template sees it.
type drawerView struct {
	Title    string
	Mode     drawer.Mode
	ReadOnly bool
	ShowSave bool
	Close    string
	Entity   any
	Perms    []adminapi.PermissionGroup
}

// buildList filters and pages rows with the request's query and marks the
// single selected row. A selection that no longer exists is dropped.
func buildList(r *http.Request, rows []listview.Row) (listPage, *selection.Single) {
	q := listview.ParseQuery(r.URL.Query())
	state := listview.New(rows)
	state.Apply(q)

	current := r.URL.Query().Get("selected")
	if current == "" {
		current = r.URL.Query().Get("highlight")
	}
	sel := selection.NewSingle("")
	for _, row := range rows {
		if current != "" && row.ID == current {
			sel.Toggle(current)
			break
		}
	}
	if id, ok := sel.Selected(); ok && q.Page <= 1 && r.URL.Query().Get("page") == "" {
		state.Highlight(id)
	}

	page := state.Page()
	out := listPage{
		Page:  page,
		Query: state.Query(),
		Sizes: listview.PageSizes,
	}
	self := r.URL.RequestURI()
	for _, row := range page.Rows {
		next := selection.NewSingle(current)
		next.Toggle(row.ID)
		id, _ := next.Selected()
		out.Rows = append(out.Rows, listRow{
			Row:      row,
			Selected: sel.IsSelected(row.ID),
			Link:     withParams(self, "selected", id, "highlight", "", "drawer", ""),
		})
	}
	if id, ok := sel.Selected(); ok {
		out.Selected = parseID(id)
		for _, row := range rows {
			if row.ID == id {
				out.SelectedName = row.Name
			}
		}
	}
	out.Base = r.URL.Path
	out.PageURL = pageURL(self)
	out.AddURL = withParams(self, "drawer", "add", "selected", "", "highlight", "")
	out.EditURL = withParams(self, "drawer", "edit")
	out.ViewURL = withParams(self, "drawer", "view")
	return out, sel
}

// pageURL is self without its page, ready for a page number to be
// appended.
func pageURL(self string) string {
	u := withParams(self, "page", "", "highlight", "")
	if strings.Contains(u, "?") {
		return u + "&page="
	}
	return u + "?page="
}

// openDrawer resolves the ?drawer= mode. Edit and view need an entity,
// which load fetches; without a selection the drawer stays shut.
func openDrawer[T any](r *http.Request, noun string, selected int64, load func(id int64) (T, error)) (*drawerView, *drawer.Drawer[T], error) {
	mode, ok := drawer.ParseMode(r.URL.Query().Get("drawer"))
	if !ok {
		return nil, nil, nil
	}
	d := &drawer.Drawer[T]{}
	if mode == drawer.ModeAdd {
		d.OpenAdd()
	} else {
		if selected == 0 {
			return nil, nil, nil
		}
		entity, err := load(selected)
		if err != nil {
			return nil, nil, err
		}
		if err := d.OpenWith(mode, entity); err != nil {
			return nil, nil, err
		}
	}
	view := &drawerView{
		Title:    d.Title(noun),
		Mode:     d.Mode(),
		ReadOnly: d.ReadOnly(),
		ShowSave: d.ShowSave(),
		Close:    withParams(r.URL.RequestURI(), "drawer", ""),
	}
	if entity, ok := d.Entity(); ok {
		view.Entity = entity
	}
	return view, d, nil
}

func parseID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func updatedAt(raw string) time.Time {
	return listview.ParseUpdated(raw, time.Local)
}

// askConfirm parks run behind the confirm modal and sends the browser back
// to where it came from with the modal open. Only the session that asked
// can answer it.
func (s *server) askConfirm(w http.ResponseWriter, r *http.Request, req drawer.Request, run drawer.Action) {
	req.Owner = sessionOf(r).ID
	if req.Return == "" {
		req.Return = returnTo(r, "/clients")
	}
	p := s.confirms.OpenRequest(req, run)
	http.Redirect(w, r, withParams(req.Return, "confirm", p.Token), http.StatusSeeOther)
}
