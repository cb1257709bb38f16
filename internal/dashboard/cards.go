package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/cardflow"
	"github.com/phillip-england/cardsuite/internal/drawer"
	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/livehub"
	"github.com/phillip-england/cardsuite/internal/schema"
	"github.com/phillip-england/cardsuite/internal/selection"
	"github.com/phillip-england/cardsuite/internal/toast"
)

type tabLink struct {
	Status cardflow.Status
	Label  string
	Count  int
	URL    string
	Active bool
}

type rowAction struct {
	Action  cardflow.Action
	Label   string
	Confirm bool
}

type cardRow struct {
	listview.Row
	Card      adminapi.Card
	Checked   bool
	Highlight bool
	Actions   []rowAction
}

type cardField struct {
	Name    string
	Type    schema.FieldType
	Value   string
	IsImage bool
}

type cardDrawer struct {
	drawerView
	CardID int64
	Fields []cardField
}

type cardsData struct {
	layout
	Table        adminapi.Table
	Tab          cardflow.Status
	Tabs         []tabLink
	Page         listview.Page
	Query        listview.Query
	Rows         []cardRow
	Columns      []string
	ImageColumns []string
	Gate         selection.CardGate
	AllVisible   bool
	VisibleIDs   []string
	Loaded       int
	TotalInTab   int
	HasMore      bool
	LoadAllURL   string
	Drawer       *cardDrawer
	Panel        string
	Sizes        []int
	PageURL      string
	Downloads    []adminapi.DownloadKind
	CanReupload  bool
}

// filtering reports whether q needs every card of the tab loaded.
func filtering(q listview.Query) bool {
	return q.Search != "" || q.Date != listview.DateAny || q.Image != listview.ImageAny || q.Highlight != ""
}

func tabOf(raw string) cardflow.Status {
	if tab, ok := cardflow.ParseStatus(raw); ok {
		return tab
	}
	return cardflow.Pending
}

func (s *server) cardsPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	ctx := r.Context()
	tableID := queryID(r, "table")
	if tableID == 0 {
		http.Redirect(w, r, "/tables", http.StatusFound)
		return
	}
	tab := tabOf(r.URL.Query().Get("tab"))
	q := listview.ParseQuery(r.URL.Query())

	limit := adminapi.EagerCardLoad
	if r.URL.Query().Get("all") == "1" || filtering(q) {
		limit = 0
	}
	loaded, err := s.api.LoadCards(ctx, sess, tableID, tab, limit)
	if err != nil {
		s.loadFailed(w, r, "cards", err)
		return
	}
	table := loaded.Table
	if table.ID == 0 {
		t, err := s.api.GetTable(ctx, sess, tableID)
		if err != nil {
			s.loadFailed(w, r, "table", err)
			return
		}
		table = *t
	}

	display := schema.DisplayField(table.Fields)
	images := schema.ImageFields(table.Fields)
	rows := make([]listview.Row, 0, len(loaded.Cards))
	byID := make(map[string]adminapi.Card, len(loaded.Cards))
	for i, c := range loaded.Cards {
		id := idString(c.ID)
		byID[id] = c
		cells := make(map[string]string, len(c.FieldData))
		var imgs []string
		for _, f := range table.Fields {
			if f.Type == schema.TypeImage {
				imgs = append(imgs, c.FieldData[f.Name])
				continue
			}
			cells[f.Name] = c.FieldData[f.Name]
		}
		rows = append(rows, listview.Row{
			ID:      id,
			Serial:  i + 1,
			Name:    c.FieldData[display],
			Cells:   cells,
			Images:  imgs,
			Updated: updatedAt(c.UpdatedAt),
		})
	}

	state := listview.New(rows)
	state.Apply(q)
	if q.Highlight != "" {
		state.Highlight(q.Highlight)
	}
	page := state.Page()

	data := cardsData{
		layout:       s.layoutFor(r, table.Name, "tables"),
		Table:        table,
		Tab:          tab,
		Page:         page,
		Query:        state.Query(),
		Columns:      schema.Names(table.Fields, false),
		ImageColumns: images,
		Loaded:       len(loaded.Cards),
		TotalInTab:   loaded.TotalCount,
		HasMore:      loaded.HasMore,
		Panel:        r.URL.Query().Get("panel"),
		Sizes:        listview.PageSizes,
		CanReupload:  len(images) > 0,
	}
	data.Topic = livehub.TableTopic(tableID)
	if data.HasMore {
		data.LoadAllURL = withParams(r.URL.RequestURI(), "all", "1")
	}
	self := r.URL.RequestURI()
	data.PageURL = pageURL(self)
	for _, st := range cardflow.Tabs {
		data.Tabs = append(data.Tabs, tabLink{
			Status: st,
			Label:  st.Label(),
			Count:  loaded.StatusCounts.For(st),
			URL:    "/cards?table=" + idString(tableID) + "&tab=" + string(st),
			Active: st == tab,
		})
	}

	visible := make([]string, 0, len(page.Rows))
	for _, row := range page.Rows {
		visible = append(visible, row.ID)
	}
	data.VisibleIDs = visible
	var checked map[string]bool
	var single string
	s.picks.with(pickKey(sess.ID, tableID, tab), func(m *selection.Multi) {
		m.SetVisible(visible)
		data.Gate = selection.GateCards(tab, m.Count())
		data.AllVisible = m.AllVisibleSelected()
		checked = make(map[string]bool, m.Count())
		for _, id := range m.IDs() {
			checked[id] = true
		}
		if ids := m.IDs(); len(ids) == 1 {
			single = ids[0]
		}
	})
	if data.Gate.Downloadable {
		data.Downloads = []adminapi.DownloadKind{adminapi.DownloadXLSX, adminapi.DownloadDocx, adminapi.DownloadImages}
	}

	var actions []rowAction
	for _, a := range cardflow.RowActions(tab) {
		actions = append(actions, rowAction{Action: a, Label: a.Label(), Confirm: cardflow.NeedsConfirm(a)})
	}
	if del, ok := cardflow.DeleteFor(tab); ok {
		actions = append(actions, rowAction{Action: del, Label: del.Label(), Confirm: true})
	}
	for _, row := range page.Rows {
		data.Rows = append(data.Rows, cardRow{
			Row:       row,
			Card:      byID[row.ID],
			Checked:   checked[row.ID],
			Highlight: row.ID == page.Highlight,
			Actions:   actions,
		})
	}

	cardID := queryID(r, "card")
	if cardID == 0 {
		cardID = parseID(single)
	}
	view, d, err := openDrawer(r, "Card", cardID, func(id int64) (adminapi.Card, error) {
		c, err := s.api.GetCard(ctx, sess, id)
		if err != nil {
			return adminapi.Card{}, err
		}
		return *c, nil
	})
	if err != nil {
		s.loadFailed(w, r, "card", err)
		return
	}
	if view != nil {
		cd := &cardDrawer{drawerView: *view}
		card, _ := d.Entity()
		cd.CardID = card.ID
		for _, f := range table.Fields {
			cd.Fields = append(cd.Fields, cardField{
				Name:    f.Name,
				Type:    f.Type,
				Value:   card.FieldData[f.Name],
				IsImage: f.Type == schema.TypeImage,
			})
		}
		cd.Close = withParams(self, "drawer", "", "card", "")
		data.Drawer = cd
	}
	s.render(w, "cards.html", data)
}

type cardSearchData struct {
	Table int64
	Query string
	Short bool
	Hits  []cardHit
}

type cardHit struct {
	adminapi.CardHit
	URL string
}

// searchCards is the search-all fragment: hits across every status, each
// linking to its tab with the card highlighted.
func (s *server) searchCards(w http.ResponseWriter, r *http.Request) {
	tableID := queryID(r, "table")
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := cardSearchData{Table: tableID, Query: q, Short: len([]rune(q)) < adminapi.MinSearchLength}
	hits, err := s.api.SearchCards(r.Context(), sessionOf(r), tableID, q)
	if err != nil {
		s.loadFailed(w, r, "search results", err)
		return
	}
	for _, h := range hits {
		data.Hits = append(data.Hits, cardHit{
			CardHit: h,
			URL:     "/cards?table=" + idString(tableID) + "&tab=" + string(h.Status) + "&highlight=" + idString(h.ID),
		})
	}
	s.render(w, "card_search.html", data)
}

// selectCards changes the checkbox selection of one table tab.
func (s *server) selectCards(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	tableID := formID(r, "table")
	tab := tabOf(r.FormValue("tab"))
	back := returnTo(r, "/cards?table="+idString(tableID)+"&tab="+string(tab))
	sess := sessionOf(r)

	var all []string
	op := r.FormValue("op")
	if op == "all" {
		ids, err := s.api.AllCardIDs(r.Context(), sess, tableID, tab)
		if err != nil {
			s.failed(w, r, back, err, "Unable to select all cards")
			return
		}
		for _, id := range ids {
			all = append(all, idString(id))
		}
	}

	id := strings.TrimSpace(r.FormValue("id"))
	s.picks.with(pickKey(sess.ID, tableID, tab), func(m *selection.Multi) {
		if visible := r.Form["visible"]; len(visible) > 0 {
			m.SetVisible(visible)
		}
		switch op {
		case "toggle":
			m.Toggle(id)
		case "range":
			m.ToggleRange(id)
		case "page":
			m.SelectAllVisible()
		case "all":
			m.ReplaceAll(all)
		case "clear":
			m.Clear()
		}
	})
	if op == "all" {
		s.finish(w, r, back, toast.Info(strconv.Itoa(len(all))+" card(s) selected"))
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// cardAction runs a workflow action on the posted ids, or on the tab's
// selection when none are posted. Destructive actions go through the
// confirm modal first.
func (s *server) cardAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	tableID := formID(r, "table")
	tab := tabOf(r.FormValue("tab"))
	back := returnTo(r, "/cards?table="+idString(tableID)+"&tab="+string(tab))
	sess := sessionOf(r)

	action, ok := cardflow.ParseAction(r.FormValue("action"))
	if !ok {
		s.finish(w, r, back, toast.Error("Unknown action"))
		return
	}
	if action == cardflow.Delete || action == cardflow.DeletePermanent {
		del, ok := cardflow.DeleteFor(tab)
		if !ok {
			s.finish(w, r, back, toast.Error(tab.Label()+" cards cannot be deleted"))
			return
		}
		action = del
	}
	if _, _, err := cardflow.Target(action, tab); err != nil {
		s.finish(w, r, back, toast.Error("That action is not available here"))
		return
	}

	key := pickKey(sess.ID, tableID, tab)
	var ids []int64
	fromSelection := len(r.Form["ids"]) == 0
	if fromSelection {
		s.picks.with(key, func(m *selection.Multi) {
			for _, id := range m.IDs() {
				ids = append(ids, parseID(id))
			}
		})
	} else {
		for _, raw := range r.Form["ids"] {
			if id := parseID(raw); id > 0 {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		s.finish(w, r, back, toast.Error("Select at least one card"))
		return
	}

	run := func(ctx context.Context) (string, error) {
		n, err := s.api.Transition(ctx, sess, tableID, tab, action, ids)
		if err != nil {
			return "", err
		}
		s.picks.with(key, func(m *selection.Multi) {
			if fromSelection {
				m.Clear()
				return
			}
			for _, id := range ids {
				if m.IsSelected(idString(id)) {
					m.Toggle(idString(id))
				}
			}
		})
		s.logger.Info("card action",
			zap.Int64("table", tableID),
			zap.String("action", string(action)),
			zap.Int("count", n),
		)
		s.refresh(livehub.TableTopic(tableID))
		return cardflow.SuccessMessage(action, n), nil
	}

	if cardflow.NeedsConfirm(action) {
		title := "Confirm"
		if cardflow.IsHardDelete(action) {
			title = "Delete Permanently"
		} else if action == cardflow.Delete {
			title = "Move to Pool"
		}
		s.askConfirm(w, r, drawer.Request{
			Title:   title,
			Message: cardflow.ConfirmMessage(action, len(ids)),
			Return:  back,
		}, run)
		return
	}
	msg, err := run(r.Context())
	if err != nil {
		if errors.Is(err, adminapi.ErrNoCards) {
			s.finish(w, r, back, toast.Error("Select at least one card"))
			return
		}
		s.failed(w, r, back, err, "Action failed")
		return
	}
	s.finish(w, r, back, toast.Success(msg))
}

// saveCard creates or updates one card from the drawer form. Image fields
// are carried as hidden inputs and change only through uploads.
func (s *server) saveCard(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	tableID := formID(r, "table")
	back := returnTo(r, "/cards?table="+idString(tableID))
	sess := sessionOf(r)
	table, err := s.api.GetTable(r.Context(), sess, tableID)
	if err != nil {
		s.failed(w, r, back, err, "Unable to load table")
		return
	}

	values := make(map[string]string, len(table.Fields))
	empty := true
	for _, f := range table.Fields {
		v := strings.TrimSpace(r.FormValue("f." + f.Name))
		values[f.Name] = v
		if v != "" && f.Type != schema.TypeImage {
			empty = false
		}
	}
	if empty {
		s.finish(w, r, back, toast.Error("Fill in at least one field"))
		return
	}

	id := formID(r, "id")
	var msg string
	if id == 0 {
		var card *adminapi.Card
		card, msg, err = s.api.CreateCard(r.Context(), sess, tableID, values)
		if err == nil {
			id = card.ID
		}
	} else {
		msg, err = s.api.UpdateCard(r.Context(), sess, id, values)
	}
	if err != nil {
		s.failed(w, r, back, err, "Unable to save card")
		return
	}
	s.refresh(livehub.TableTopic(tableID))
	target := withParams(back, "drawer", "", "card", "", "highlight", idString(id))
	s.finish(w, r, target, toast.Success(orDefault(msg, "Card saved")))
}
