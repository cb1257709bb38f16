package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/drawer"
	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/schema"
	"github.com/phillip-england/cardsuite/internal/selection"
	"github.com/phillip-england/cardsuite/internal/toast"
)

const tablesTopic = "tables"

// tableDraft is the table drawer between schema editor round trips.
type tableDraft struct {
	ID      int64
	GroupID int64
	Name    string
	Fields  []schema.Field
	Error   string
	CanAdd  bool
}

type tablesData struct {
	listPage
	Clients    []adminapi.Client
	Groups     []adminapi.Group
	ClientID   int64
	GroupID    int64
	Group      *adminapi.Group
	Draft      *tableDraft
	FieldTypes []schema.FieldType
	MaxFields  int
}

func (s *server) tablesPage(w http.ResponseWriter, r *http.Request) {
	s.renderTables(w, r, nil)
}

func (s *server) renderTables(w http.ResponseWriter, r *http.Request, draft *tableDraft) {
	sess := sessionOf(r)
	ctx := r.Context()
	clientID := queryID(r, "client")
	clients, err := s.api.ListClients(ctx, sess)
	if err != nil {
		s.loadFailed(w, r, "clients", err)
		return
	}
	groups, err := s.api.ListGroups(ctx, sess, clientID)
	if err != nil {
		s.loadFailed(w, r, "groups", err)
		return
	}

	data := tablesData{
		Clients:    clients,
		Groups:     groups,
		ClientID:   clientID,
		GroupID:    queryID(r, "group"),
		FieldTypes: schema.FieldTypes,
		MaxFields:  schema.MaxFields,
	}
	if data.GroupID == 0 && len(groups) > 0 {
		data.GroupID = groups[0].ID
	}
	for i := range groups {
		if groups[i].ID == data.GroupID {
			data.Group = &groups[i]
		}
	}

	var tables []adminapi.Table
	if data.Group != nil {
		tables, err = s.api.GroupTables(ctx, sess, data.GroupID)
		if err != nil {
			s.loadFailed(w, r, "tables", err)
			return
		}
	}
	rows := make([]listview.Row, 0, len(tables))
	byID := make(map[int64]adminapi.Table, len(tables))
	for i, t := range tables {
		byID[t.ID] = t
		status := "Inactive"
		if t.IsActive {
			status = "Active"
		}
		rows = append(rows, listview.Row{
			ID:     idString(t.ID),
			Serial: i + 1,
			Name:   t.Name,
			Cells: map[string]string{
				"Fields": strconv.Itoa(t.FieldCount),
				"Cards":  strconv.Itoa(t.CardCount),
				"Status": status,
			},
			Updated: updatedAt(t.UpdatedAt),
		})
	}

	var sel *selection.Single
	data.listPage, sel = buildList(r, rows)
	data.layout = s.layoutFor(r, "ID Card Tables", "tables")
	data.Extra = map[string]string{"client": idString(clientID), "group": idString(data.GroupID)}
	data.Topic = tablesTopic
	data.Gate = selection.GateList(sel.Cardinality(), byID[data.Selected].IsActive)

	view, d, err := openDrawer(r, "Table", data.Selected, func(id int64) (adminapi.Table, error) {
		t, err := s.api.GetTable(ctx, sess, id)
		if err != nil {
			return adminapi.Table{}, err
		}
		return *t, nil
	})
	if err != nil {
		s.loadFailed(w, r, "table", err)
		return
	}
	if view != nil {
		data.Drawer = view
		if draft == nil {
			draft = &tableDraft{GroupID: data.GroupID}
			if t, ok := d.Entity(); ok {
				draft.ID, draft.GroupID, draft.Name, draft.Fields = t.ID, t.GroupID, t.Name, t.Fields
			}
		}
		draft.CanAdd = len(draft.Fields) < schema.MaxFields
		data.Draft = draft
	}
	s.render(w, "tables.html", data)
}

func draftFrom(r *http.Request) *tableDraft {
	names := r.Form["field_name"]
	types := r.Form["field_type"]
	d := &tableDraft{
		ID:      formID(r, "id"),
		GroupID: formID(r, "group_id"),
		Name:    strings.TrimSpace(r.FormValue("name")),
	}
	for i, name := range names {
		t := schema.TypeText
		if i < len(types) {
			t = schema.ParseFieldType(types[i])
		}
		d.Fields = append(d.Fields, schema.Field{Name: name, Type: t, Order: i})
	}
	return d
}

// redraw renders the tables page behind the form's return path with the
// drawer holding draft.
func (s *server) redraw(w http.ResponseWriter, r *http.Request, draft *tableDraft) {
	mode := string(drawer.ModeAdd)
	selected := ""
	if draft.ID > 0 {
		mode = string(drawer.ModeEdit)
		selected = idString(draft.ID)
	}
	target, err := url.Parse(withParams(returnTo(r, "/tables"), "drawer", mode, "selected", selected))
	if err != nil {
		target = &url.URL{Path: "/tables"}
	}
	r2 := r.Clone(r.Context())
	r2.URL = target
	s.renderTables(w, r2, draft)
}

// editTableFields applies one schema editor step to the posted draft. The
// op is "add", or "remove", "up", "down" or "type" followed by ":<index>".
func (s *server) editTableFields(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	draft := draftFrom(r)
	ed := schema.NewEditor(draft.Fields)
	op, at, _ := strings.Cut(r.FormValue("op"), ":")
	index, _ := strconv.Atoi(at)

	var err error
	switch op {
	case "add":
		err = ed.Add(r.FormValue("new_name"), schema.ParseFieldType(r.FormValue("new_type")))
	case "remove":
		err = ed.Remove(index)
	case "up":
		err = ed.Move(index, -1)
	case "down":
		err = ed.Move(index, 1)
	case "type":
		var t string
		if types := r.Form["field_type"]; index >= 0 && index < len(types) {
			t = types[index]
		}
		err = ed.SetType(index, schema.ParseFieldType(t))
	}
	if err != nil {
		draft.Error = toast.FromError(err, "").Message
	}
	draft.Fields = ed.Fields()
	s.redraw(w, r, draft)
}

func (s *server) saveTable(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	draft := draftFrom(r)
	name, fields, err := schema.Validate(draft.Name, draft.Fields)
	if err != nil {
		draft.Error = toast.FromError(err, "").Message
		s.redraw(w, r, draft)
		return
	}
	if len(fields) == 0 {
		draft.Error = "Add at least one field"
		s.redraw(w, r, draft)
		return
	}

	sess := sessionOf(r)
	in := adminapi.TableInput{Name: name, Fields: fields}
	id := draft.ID
	var msg string
	if id == 0 {
		if draft.GroupID == 0 {
			draft.Error = "Create or choose a group first"
			s.redraw(w, r, draft)
			return
		}
		var created *adminapi.Table
		created, msg, err = s.api.CreateTable(r.Context(), sess, draft.GroupID, in)
		if err == nil {
			id = created.ID
		}
	} else {
		msg, err = s.api.UpdateTable(r.Context(), sess, id, in)
	}
	if err != nil {
		if errors.Is(err, adminapi.ErrUnauthorized) {
			s.failed(w, r, "/login", err, "")
			return
		}
		draft.Error = toast.FromError(err, "Unable to save table").Message
		s.redraw(w, r, draft)
		return
	}
	s.refresh(tablesTopic)
	back := returnTo(r, "/tables")
	s.finish(w, r, withParams(back, "drawer", "", "selected", idString(id)), toast.Success(orDefault(msg, "Table saved")))
}

func (s *server) createGroup(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/tables")
	clientID := formID(r, "client_id")
	name := strings.TrimSpace(r.FormValue("name"))
	if clientID == 0 || name == "" {
		s.finish(w, r, back, toast.Error("Choose a client and enter a group name"))
		return
	}
	g, msg, err := s.api.CreateGroup(r.Context(), sessionOf(r), clientID, name)
	if err != nil {
		s.failed(w, r, back, err, "Unable to create group")
		return
	}
	s.refresh(tablesTopic)
	target := withParams(back, "client", idString(clientID), "group", idString(g.ID), "selected", "", "drawer", "")
	s.finish(w, r, target, toast.Success(orDefault(msg, "Group created")))
}

func (s *server) toggleTable(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/tables")
	id := formID(r, "id")
	if id == 0 {
		s.finish(w, r, back, toast.Error("Select a table first"))
		return
	}
	_, msg, err := s.api.ToggleTableStatus(r.Context(), sessionOf(r), id)
	if err != nil {
		s.failed(w, r, back, err, "Unable to change table status")
		return
	}
	s.refresh(tablesTopic)
	s.finish(w, r, back, toast.Success(orDefault(msg, "Table status updated")))
}

func (s *server) deleteTable(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/tables")
	id := formID(r, "id")
	if id == 0 {
		s.finish(w, r, back, toast.Error("Select a table first"))
		return
	}
	sess := sessionOf(r)
	s.askConfirm(w, r, drawer.Request{
		Title:   "Delete Table",
		Message: fmt.Sprintf("Delete table %q and all of its cards?", strings.TrimSpace(r.FormValue("name"))),
		Return:  withParams(back, "selected", "", "drawer", ""),
	}, func(ctx context.Context) (string, error) {
		msg, err := s.api.DeleteTable(ctx, sess, id)
		if err != nil {
			return "", err
		}
		s.refresh(tablesTopic)
		return orDefault(msg, "Table deleted"), nil
	})
}

// tableTemplate downloads an empty import sheet for a table.
func (s *server) tableTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.api.GetTable(r.Context(), sessionOf(r), queryID(r, "table"))
	if err != nil {
		s.loadFailed(w, r, "table", err)
		return
	}
	data, err := schema.Template(t.Fields)
	if err != nil {
		s.logger.Error("template build failed", zap.Int64("table", t.ID), zap.Error(err))
		http.Error(w, "unable to build template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", schema.TemplateFilename(t.Name)))
	_, _ = w.Write(data)
}
