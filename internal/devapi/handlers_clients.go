package devapi

import (
	"net/http"
	"strings"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/schema"
)

func trimClientInput(in *adminapi.ClientInput) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.Pincode = strings.TrimSpace(in.Pincode)
}

func (s *server) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.store.listClients(r.Context())
	if err != nil {
		s.fail(w, r, "list clients", err)
		return
	}
	writeOK(w, map[string]any{"clients": clients})
}

func (s *server) getClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	client, err := s.store.getClient(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "Client", err)
		return
	}
	writeOK(w, map[string]any{"client": client})
}

func (s *server) createClient(w http.ResponseWriter, r *http.Request) {
	var in adminapi.ClientInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	trimClientInput(&in)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "Client name is required")
		return
	}
	client, err := s.store.createClient(r.Context(), in)
	if err != nil {
		s.storeError(w, r, "Client", err)
		return
	}
	writeOK(w, map[string]any{"message": "Client created successfully", "client": client})
}

func (s *server) updateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	var in adminapi.ClientInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	trimClientInput(&in)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "Client name is required")
		return
	}
	if err := s.store.updateClient(r.Context(), id, in); err != nil {
		s.storeError(w, r, "Client", err)
		return
	}
	writeOK(w, map[string]any{"message": "Client updated successfully"})
}

func (s *server) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	if err := s.store.deleteClient(r.Context(), id); err != nil {
		s.storeError(w, r, "Client", err)
		return
	}
	writeOK(w, map[string]any{"message": "Client deleted successfully"})
}

func (s *server) toggleClientStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	status, err := s.store.toggleClientStatus(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "Client", err)
		return
	}
	writeOK(w, map[string]any{"message": "Client status changed to " + status, "status": status})
}

func (s *server) clientStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	if _, err := s.store.getClient(r.Context(), id); err != nil {
		s.storeError(w, r, "Client", err)
		return
	}
	staff, err := s.store.listStaff(r.Context(), id)
	if err != nil {
		s.fail(w, r, "list client staff", err)
		return
	}
	writeOK(w, map[string]any{"staff": staff})
}

func trimStaffInput(in *adminapi.StaffInput) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Department = strings.TrimSpace(in.Department)
	in.Designation = strings.TrimSpace(in.Designation)
}

func (s *server) listStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := s.store.listStaff(r.Context(), queryID(r, "client"))
	if err != nil {
		s.fail(w, r, "list staff", err)
		return
	}
	writeOK(w, map[string]any{"staff": staff})
}

func (s *server) getStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Staff not found")
		return
	}
	staff, err := s.store.getStaff(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "Staff", err)
		return
	}
	writeOK(w, map[string]any{"staff": staff})
}

func (s *server) createStaff(w http.ResponseWriter, r *http.Request) {
	var in adminapi.StaffInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	trimStaffInput(&in)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "Staff name is required")
		return
	}
	if in.ClientID <= 0 {
		writeError(w, http.StatusBadRequest, "Client is required")
		return
	}
	staff, err := s.store.createStaff(r.Context(), in)
	if err != nil {
		s.storeError(w, r, "Client", err)
		return
	}
	writeOK(w, map[string]any{"message": "Staff created successfully", "staff": staff})
}

func (s *server) updateStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Staff not found")
		return
	}
	var in adminapi.StaffInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	trimStaffInput(&in)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "Staff name is required")
		return
	}
	if err := s.store.updateStaff(r.Context(), id, in); err != nil {
		s.storeError(w, r, "Staff", err)
		return
	}
	writeOK(w, map[string]any{"message": "Staff updated successfully"})
}

func (s *server) deleteStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Staff not found")
		return
	}
	if err := s.store.deleteStaff(r.Context(), id); err != nil {
		s.storeError(w, r, "Staff", err)
		return
	}
	writeOK(w, map[string]any{"message": "Staff deleted successfully"})
}

func (s *server) toggleStaffStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Staff not found")
		return
	}
	status, err := s.store.toggleStaffStatus(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "Staff", err)
		return
	}
	writeOK(w, map[string]any{"message": "Staff status changed to " + status, "status": status})
}

func (s *server) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.listGroups(r.Context(), queryID(r, "client"))
	if err != nil {
		s.fail(w, r, "list groups", err)
		return
	}
	writeOK(w, map[string]any{"groups": groups})
}

type createGroupRequest struct {
	ClientID int64  `json:"client_id"`
	Name     string `json:"name"`
}

func (s *server) createGroup(w http.ResponseWriter, r *http.Request) {
	var in createGroupRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.ClientID <= 0 {
		writeError(w, http.StatusBadRequest, "Client and group name are required")
		return
	}
	group, err := s.store.createGroup(r.Context(), in.ClientID, in.Name)
	if err != nil {
		s.storeError(w, r, "Group", err)
		return
	}
	writeOK(w, map[string]any{"message": "Group created successfully", "group": group})
}

func (s *server) groupTables(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if err := s.store.groupExists(r.Context(), id); err != nil {
		s.storeError(w, r, "Group", err)
		return
	}
	tables, err := s.store.groupTables(r.Context(), id)
	if err != nil {
		s.fail(w, r, "list tables", err)
		return
	}
	writeOK(w, map[string]any{"tables": tables})
}

func (s *server) createTable(w http.ResponseWriter, r *http.Request) {
	group, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	var in adminapi.TableInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name, fields, err := schema.Validate(in.Name, in.Fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, sentence(err))
		return
	}
	table, err := s.store.createTable(r.Context(), group, name, fields)
	if err != nil {
		s.storeError(w, r, "Group", err)
		return
	}
	writeOK(w, map[string]any{"message": "Table created successfully", "table": table})
}

func (s *server) getTable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}
	table, err := s.store.getTable(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "Table", err)
		return
	}
	writeOK(w, map[string]any{"table": table})
}

func (s *server) updateTable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}
	var in adminapi.TableInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name, fields, err := schema.Validate(in.Name, in.Fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, sentence(err))
		return
	}
	if err := s.store.updateTable(r.Context(), id, name, fields); err != nil {
		s.storeError(w, r, "Table", err)
		return
	}
	writeOK(w, map[string]any{"message": "Table updated successfully"})
}

func (s *server) deleteTable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}
	if err := s.store.deleteTable(r.Context(), id); err != nil {
		s.storeError(w, r, "Table", err)
		return
	}
	writeOK(w, map[string]any{"message": "Table deleted successfully"})
}

func (s *server) toggleTableStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}
	active, err := s.store.toggleTableStatus(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "Table", err)
		return
	}
	msg := "Table deactivated"
	if active {
		msg = "Table activated"
	}
	writeOK(w, map[string]any{"message": msg, "is_active": active})
}

// sentence capitalizes an error for display.
func sentence(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
