package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/drawer"
	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/selection"
	"github.com/phillip-england/cardsuite/internal/toast"
)

const (
	clientsTopic = "clients"
	staffTopic   = "staff"
)

func (s *server) clientsPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	clients, err := s.api.ListClients(r.Context(), sess)
	if err != nil {
		s.loadFailed(w, r, "clients", err)
		return
	}

	rows := make([]listview.Row, 0, len(clients))
	byID := make(map[int64]adminapi.Client, len(clients))
	for i, c := range clients {
		byID[c.ID] = c
		rows = append(rows, listview.Row{
			ID:     idString(c.ID),
			Serial: i + 1,
			Name:   c.Name,
			Cells: map[string]string{
				"Email":  c.Email,
				"Phone":  c.Phone,
				"City":   c.City,
				"Status": c.Status,
			},
			Updated: updatedAt(c.UpdatedAt),
		})
	}

	data, sel := buildList(r, rows)
	data.layout = s.layoutFor(r, "Clients", "clients")
	data.Topic = clientsTopic
	data.Gate = selection.GateList(sel.Cardinality(), byID[data.Selected].Active())

	view, d, err := openDrawer(r, "Client", data.Selected, func(id int64) (adminapi.Client, error) {
		c, err := s.api.GetClient(r.Context(), sess, id)
		if err != nil {
			return adminapi.Client{}, err
		}
		return *c, nil
	})
	if err != nil {
		s.loadFailed(w, r, "client", err)
		return
	}
	if view != nil {
		var perms adminapi.Permissions
		if c, ok := d.Entity(); ok {
			perms = c.Permissions
		}
		view.Perms = perms.Groups(false)
		data.Drawer = view
	}
	s.render(w, "clients.html", data)
}

func clientInputFrom(r *http.Request) adminapi.ClientInput {
	return adminapi.ClientInput{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Email:       strings.TrimSpace(r.FormValue("email")),
		Phone:       strings.TrimSpace(r.FormValue("phone")),
		Address:     strings.TrimSpace(r.FormValue("address")),
		City:        strings.TrimSpace(r.FormValue("city")),
		State:       strings.TrimSpace(r.FormValue("state")),
		Pincode:     strings.TrimSpace(r.FormValue("pincode")),
		Permissions: permissionsFrom(r, false),
	}
}

// permissionsFrom reads the checked permission boxes of a drawer form.
func permissionsFrom(r *http.Request, staffOnly bool) adminapi.Permissions {
	keys := map[string]bool{}
	for _, g := range (adminapi.Permissions{}).Groups(staffOnly) {
		for _, item := range g.Items {
			if r.FormValue(item.Key) != "" {
				keys[item.Key] = true
			}
		}
	}
	return adminapi.PermissionsFromKeys(keys)
}

func (s *server) saveClient(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/clients")
	in := clientInputFrom(r)
	if in.Name == "" {
		s.finish(w, r, back, toast.Error("Client name is required"))
		return
	}
	sess := sessionOf(r)
	id := formID(r, "id")
	var (
		msg string
		err error
	)
	if id == 0 {
		var created *adminapi.Client
		created, msg, err = s.api.CreateClient(r.Context(), sess, in)
		if err == nil {
			id = created.ID
		}
	} else {
		msg, err = s.api.UpdateClient(r.Context(), sess, id, in)
	}
	if err != nil {
		s.failed(w, r, back, err, "Unable to save client")
		return
	}
	s.refresh(clientsTopic)
	s.finish(w, r, withParams(back, "drawer", "", "selected", idString(id)), toast.Success(orDefault(msg, "Client saved")))
}

func (s *server) toggleClient(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/clients")
	id := formID(r, "id")
	if id == 0 {
		s.finish(w, r, back, toast.Error("Select a client first"))
		return
	}
	_, msg, err := s.api.ToggleClientStatus(r.Context(), sessionOf(r), id)
	if err != nil {
		s.failed(w, r, back, err, "Unable to change client status")
		return
	}
	s.refresh(clientsTopic)
	s.finish(w, r, back, toast.Success(orDefault(msg, "Client status updated")))
}

func (s *server) deleteClient(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/clients")
	id := formID(r, "id")
	if id == 0 {
		s.finish(w, r, back, toast.Error("Select a client first"))
		return
	}
	sess := sessionOf(r)
	name := strings.TrimSpace(r.FormValue("name"))
	s.askConfirm(w, r, drawer.Request{
		Title:   "Delete Client",
		Message: fmt.Sprintf("Delete client %q? Their staff and tables go with them.", name),
		Return:  withParams(back, "selected", "", "drawer", ""),
	}, func(ctx context.Context) (string, error) {
		msg, err := s.api.DeleteClient(ctx, sess, id)
		if err != nil {
			return "", err
		}
		s.refresh(clientsTopic)
		return orDefault(msg, "Client deleted"), nil
	})
}

func (s *server) staffPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	clientID := queryID(r, "client")
	clients, err := s.api.ListClients(r.Context(), sess)
	if err != nil {
		s.loadFailed(w, r, "clients", err)
		return
	}
	staff, err := s.api.ListStaff(r.Context(), sess, clientID)
	if err != nil {
		s.loadFailed(w, r, "staff", err)
		return
	}

	clientNames := make(map[int64]string, len(clients))
	for _, c := range clients {
		clientNames[c.ID] = c.Name
	}
	rows := make([]listview.Row, 0, len(staff))
	byID := make(map[int64]adminapi.Staff, len(staff))
	for i, m := range staff {
		byID[m.ID] = m
		rows = append(rows, listview.Row{
			ID:     idString(m.ID),
			Serial: i + 1,
			Name:   m.Name,
			Cells: map[string]string{
				"Client":      clientNames[m.ClientID],
				"Email":       m.Email,
				"Phone":       m.Phone,
				"Designation": m.Designation,
				"Status":      m.Status,
			},
			Updated: updatedAt(m.CreatedAt),
		})
	}

	list, sel := buildList(r, rows)
	list.layout = s.layoutFor(r, "Staff", "staff")
	list.Topic = staffTopic
	list.Extra = map[string]string{"client": idString(clientID)}
	list.Gate = selection.GateList(sel.Cardinality(), byID[list.Selected].Active())

	view, d, err := openDrawer(r, "Staff", list.Selected, func(id int64) (adminapi.Staff, error) {
		m, err := s.api.GetStaff(r.Context(), sess, id)
		if err != nil {
			return adminapi.Staff{}, err
		}
		return *m, nil
	})
	if err != nil {
		s.loadFailed(w, r, "staff member", err)
		return
	}
	if view != nil {
		var perms adminapi.Permissions
		if m, ok := d.Entity(); ok {
			perms = m.Permissions
		}
		view.Perms = perms.Groups(true)
		list.Drawer = view
	}

	s.render(w, "staff.html", struct {
		listPage
		Clients  []adminapi.Client
		ClientID int64
	}{list, clients, clientID})
}

func (s *server) saveStaff(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/staff")
	in := adminapi.StaffInput{
		ClientID:    formID(r, "client_id"),
		Name:        strings.TrimSpace(r.FormValue("name")),
		Email:       strings.TrimSpace(r.FormValue("email")),
		Phone:       strings.TrimSpace(r.FormValue("phone")),
		Address:     strings.TrimSpace(r.FormValue("address")),
		Department:  strings.TrimSpace(r.FormValue("department")),
		Designation: strings.TrimSpace(r.FormValue("designation")),
		Permissions: permissionsFrom(r, true),
	}
	if in.Name == "" {
		s.finish(w, r, back, toast.Error("Staff name is required"))
		return
	}
	sess := sessionOf(r)
	id := formID(r, "id")
	var (
		msg string
		err error
	)
	if id == 0 {
		if in.ClientID == 0 {
			s.finish(w, r, back, toast.Error("Choose a client for the staff member"))
			return
		}
		var created *adminapi.Staff
		created, msg, err = s.api.CreateStaff(r.Context(), sess, in)
		if err == nil {
			id = created.ID
		}
	} else {
		msg, err = s.api.UpdateStaff(r.Context(), sess, id, in)
	}
	if err != nil {
		s.failed(w, r, back, err, "Unable to save staff member")
		return
	}
	s.refresh(staffTopic)
	s.finish(w, r, withParams(back, "drawer", "", "selected", idString(id)), toast.Success(orDefault(msg, "Staff saved")))
}

func (s *server) toggleStaff(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/staff")
	id := formID(r, "id")
	if id == 0 {
		s.finish(w, r, back, toast.Error("Select a staff member first"))
		return
	}
	_, msg, err := s.api.ToggleStaffStatus(r.Context(), sessionOf(r), id)
	if err != nil {
		s.failed(w, r, back, err, "Unable to change staff status")
		return
	}
	s.refresh(staffTopic)
	s.finish(w, r, back, toast.Success(orDefault(msg, "Staff status updated")))
}

func (s *server) deleteStaff(w http.ResponseWriter, r *http.Request) {
	back := returnTo(r, "/staff")
	id := formID(r, "id")
	if id == 0 {
		s.finish(w, r, back, toast.Error("Select a staff member first"))
		return
	}
	sess := sessionOf(r)
	s.askConfirm(w, r, drawer.Request{
		Title:   "Delete Staff",
		Message: fmt.Sprintf("Delete staff member %q?", strings.TrimSpace(r.FormValue("name"))),
		Return:  withParams(back, "selected", "", "drawer", ""),
	}, func(ctx context.Context) (string, error) {
		msg, err := s.api.DeleteStaff(ctx, sess, id)
		if err != nil {
			return "", err
		}
		s.refresh(staffTopic)
		return orDefault(msg, "Staff deleted"), nil
	})
}

func orDefault(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
