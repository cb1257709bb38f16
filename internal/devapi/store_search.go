package devapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/schema"
)

const searchLimitPerKind = 10

var searchKinds = []string{"client", "staff", "table", "card"}

func validSearchFilter(filter string) bool {
	if filter == "" || filter == "all" {
		return true
	}
	for _, k := range searchKinds {
		if k == filter {
			return true
		}
	}
	return false
}

// searchAll looks for q across every entity kind, or only filter's kind.
// Result URLs point at the dashboard page that highlights the hit.
func (s *store) searchAll(ctx context.Context, q, filter string) ([]adminapi.SearchResult, error) {
	pattern := "%" + likeEscape(q) + "%"
	wants := func(kind string) bool { return filter == "" || filter == "all" || filter == kind }
	out := []adminapi.SearchResult{}

	if wants("client") {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, email, phone, status FROM clients
			WHERE name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\'
			ORDER BY name COLLATE NOCASE LIMIT ?`, pattern, pattern, pattern, searchLimitPerKind)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int64
			var name, email, phone, status string
			if err := rows.Scan(&id, &name, &email, &phone, &status); err != nil {
				rows.Close()
				return nil, err
			}
			field, value := firstContaining(q, [][2]string{{"name", name}, {"email", email}, {"phone", phone}})
			out = append(out, adminapi.SearchResult{
				Type: "client", ID: id, Title: name, Subtitle: email,
				MatchedField: field, MatchedValue: value, Status: status, Icon: "building",
				URL: "/clients?" + url.Values{"highlight": {fmt.Sprint(id)}}.Encode(),
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if wants("staff") {
		rows, err := s.db.QueryContext(ctx, `
			SELECT s.id, s.client_id, s.name, s.email, s.phone, s.status, c.name FROM staff s
			JOIN clients c ON c.id = s.client_id
			WHERE s.name LIKE ? ESCAPE '\' OR s.email LIKE ? ESCAPE '\' OR s.phone LIKE ? ESCAPE '\'
			ORDER BY s.name COLLATE NOCASE LIMIT ?`, pattern, pattern, pattern, searchLimitPerKind)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id, client int64
			var name, email, phone, status, clientName string
			if err := rows.Scan(&id, &client, &name, &email, &phone, &status, &clientName); err != nil {
				rows.Close()
				return nil, err
			}
			field, value := firstContaining(q, [][2]string{{"name", name}, {"email", email}, {"phone", phone}})
			out = append(out, adminapi.SearchResult{
				Type: "staff", ID: id, Title: name, Subtitle: clientName,
				MatchedField: field, MatchedValue: value, Status: status, Icon: "user",
				URL: "/staff?" + url.Values{"client": {fmt.Sprint(client)}, "highlight": {fmt.Sprint(id)}}.Encode(),
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if wants("table") {
		rows, err := s.db.QueryContext(ctx, `
			SELECT t.id, t.group_id, t.name, t.is_active, g.client_id, g.name FROM card_tables t
			JOIN card_groups g ON g.id = t.group_id
			WHERE t.name LIKE ? ESCAPE '\'
			ORDER BY t.name COLLATE NOCASE LIMIT ?`, pattern, searchLimitPerKind)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id, group, client int64
			var name, groupName string
			var active int
			if err := rows.Scan(&id, &group, &name, &active, &client, &groupName); err != nil {
				rows.Close()
				return nil, err
			}
			status := "active"
			if active == 0 {
				status = "inactive"
			}
			out = append(out, adminapi.SearchResult{
				Type: "table", ID: id, Title: name, Subtitle: groupName,
				MatchedField: "name", MatchedValue: name, Status: status, Icon: "table",
				URL: "/tables?" + url.Values{
					"client": {fmt.Sprint(client)}, "group": {fmt.Sprint(group)}, "highlight": {fmt.Sprint(id)},
				}.Encode(),
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if wants("card") {
		rows, err := s.db.QueryContext(ctx, `
			SELECT c.id, c.table_id, c.field_data, c.status, t.name, t.fields FROM cards c
			JOIN card_tables t ON t.id = c.table_id
			WHERE c.field_data LIKE ? ESCAPE '\'
			ORDER BY c.id LIMIT ?`, pattern, searchLimitPerKind*5)
		if err != nil {
			return nil, err
		}
		found := 0
		for rows.Next() && found < searchLimitPerKind {
			var id, table int64
			var rawData, status, tableName, rawFields string
			if err := rows.Scan(&id, &table, &rawData, &status, &tableName, &rawFields); err != nil {
				rows.Close()
				return nil, err
			}
			var data map[string]string
			var fields []schema.Field
			_ = json.Unmarshal([]byte(rawData), &data)
			_ = json.Unmarshal([]byte(rawFields), &fields)
			field, value, ok := matchField(data, schema.Names(fields, false), strings.ToLower(q))
			if !ok {
				continue
			}
			found++
			out = append(out, adminapi.SearchResult{
				Type: "card", ID: id, Title: data[schema.DisplayField(fields)], Subtitle: tableName,
				MatchedField: field, MatchedValue: value, Status: status, Icon: "id-card",
				URL: "/cards?" + url.Values{
					"table": {fmt.Sprint(table)}, "tab": {status}, "highlight": {fmt.Sprint(id)},
				}.Encode(),
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func firstContaining(q string, pairs [][2]string) (string, string) {
	needle := strings.ToLower(q)
	for _, p := range pairs {
		if strings.Contains(strings.ToLower(p[1]), needle) {
			return p[0], p[1]
		}
	}
	return "", ""
}
