package devapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/schema"
)

var errDuplicateName = errors.New("duplicate name")

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

const clientColumns = `id, name, email, phone, address, city, state, pincode, status, permissions, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (adminapi.Client, error) {
	var c adminapi.Client
	var perms string
	var created, updated int64
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.City, &c.State, &c.Pincode, &c.Status, &perms, &created, &updated)
	if err != nil {
		return c, err
	}
	c.Permissions = decodePermissions(perms)
	c.CreatedAt = stamp(created)
	c.UpdatedAt = stamp(updated)
	return c, nil
}

func (s *store) listClients(ctx context.Context) ([]adminapi.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []adminapi.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *store) getClient(ctx context.Context, id int64) (*adminapi.Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *store) createClient(ctx context.Context, in adminapi.ClientInput) (*adminapi.Client, error) {
	now := s.now().Unix()
	var id int64
	err := withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO clients (name, email, phone, address, city, state, pincode, status, permissions, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)`,
			in.Name, in.Email, in.Phone, in.Address, in.City, in.State, in.Pincode, encodePermissions(in.Permissions), now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if isUniqueViolation(err) {
		return nil, errDuplicateName
	}
	if err != nil {
		return nil, err
	}
	return s.getClient(ctx, id)
}

func (s *store) updateClient(ctx context.Context, id int64, in adminapi.ClientInput) error {
	err := affectedOrNotFound(s.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, email = ?, phone = ?, address = ?, city = ?, state = ?, pincode = ?, permissions = ?, updated_at = ?
		WHERE id = ?`,
		in.Name, in.Email, in.Phone, in.Address, in.City, in.State, in.Pincode, encodePermissions(in.Permissions), s.now().Unix(), id))
	if isUniqueViolation(err) {
		return errDuplicateName
	}
	return err
}

func (s *store) deleteClient(ctx context.Context, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id))
}

// toggleClientStatus flips active/inactive and returns the new status.
func (s *store) toggleClientStatus(ctx context.Context, id int64) (string, error) {
	return s.toggleStatus(ctx, "clients", id)
}

func (s *store) toggleStatus(ctx context.Context, table string, id int64) (string, error) {
	var status string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errNotFound
			}
			return err
		}
		if status == "active" {
			status = "inactive"
		} else {
			status = "active"
		}
		_, err := tx.ExecContext(ctx, `UPDATE `+table+` SET status = ? WHERE id = ?`, status, id)
		return err
	})
	return status, err
}

const staffColumns = `id, client_id, name, email, phone, address, department, designation, status, permissions, created_at`

func scanStaff(row interface{ Scan(...any) error }) (adminapi.Staff, error) {
	var st adminapi.Staff
	var perms string
	var created int64
	err := row.Scan(&st.ID, &st.ClientID, &st.Name, &st.Email, &st.Phone, &st.Address, &st.Department, &st.Designation, &st.Status, &perms, &created)
	if err != nil {
		return st, err
	}
	st.Permissions = decodePermissions(perms)
	st.CreatedAt = stamp(created)
	return st, nil
}

// listStaff returns staff of client, or every staff member when client is 0.
func (s *store) listStaff(ctx context.Context, client int64) ([]adminapi.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff`
	var args []any
	if client > 0 {
		query += ` WHERE client_id = ?`
		args = append(args, client)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY name COLLATE NOCASE`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []adminapi.Staff{}
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *store) getStaff(ctx context.Context, id int64) (*adminapi.Staff, error) {
	st, err := scanStaff(s.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *store) createStaff(ctx context.Context, in adminapi.StaffInput) (*adminapi.Staff, error) {
	if _, err := s.getClient(ctx, in.ClientID); err != nil {
		return nil, err
	}
	var id int64
	err := withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO staff (client_id, name, email, phone, address, department, designation, status, permissions, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?, ?)`,
			in.ClientID, in.Name, in.Email, in.Phone, in.Address, in.Department, in.Designation, encodePermissions(in.Permissions), s.now().Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.getStaff(ctx, id)
}

func (s *store) updateStaff(ctx context.Context, id int64, in adminapi.StaffInput) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `
		UPDATE staff SET name = ?, email = ?, phone = ?, address = ?, department = ?, designation = ?, permissions = ?
		WHERE id = ?`,
		in.Name, in.Email, in.Phone, in.Address, in.Department, in.Designation, encodePermissions(in.Permissions), id))
}

func (s *store) deleteStaff(ctx context.Context, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `DELETE FROM staff WHERE id = ?`, id))
}

func (s *store) toggleStaffStatus(ctx context.Context, id int64) (string, error) {
	return s.toggleStatus(ctx, "staff", id)
}

// listGroups returns client's groups, or every group when client is 0.
func (s *store) listGroups(ctx context.Context, client int64) ([]adminapi.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.client_id, g.name, COUNT(t.id)
		FROM card_groups g LEFT JOIN card_tables t ON t.group_id = g.id
		WHERE ? = 0 OR g.client_id = ?
		GROUP BY g.id
		ORDER BY g.name COLLATE NOCASE`, client, client)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []adminapi.Group{}
	for rows.Next() {
		var g adminapi.Group
		if err := rows.Scan(&g.ID, &g.ClientID, &g.Name, &g.TableCount); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *store) createGroup(ctx context.Context, client int64, name string) (*adminapi.Group, error) {
	if _, err := s.getClient(ctx, client); err != nil {
		return nil, err
	}
	var id int64
	err := withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO card_groups (client_id, name, created_at) VALUES (?, ?, ?)`, client, name, s.now().Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if isUniqueViolation(err) {
		return nil, errDuplicateName
	}
	if err != nil {
		return nil, err
	}
	return &adminapi.Group{ID: id, ClientID: client, Name: name}, nil
}

func (s *store) groupExists(ctx context.Context, id int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM card_groups WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound
	}
	return err
}

const tableSelect = `
	SELECT t.id, t.group_id, t.name, t.fields, t.is_active, t.created_at, t.updated_at, COUNT(c.id)
	FROM card_tables t LEFT JOIN cards c ON c.table_id = t.id`

func scanTable(row interface{ Scan(...any) error }) (adminapi.Table, error) {
	var t adminapi.Table
	var fields string
	var active int
	var created, updated int64
	if err := row.Scan(&t.ID, &t.GroupID, &t.Name, &fields, &active, &created, &updated, &t.CardCount); err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(fields), &t.Fields); err != nil {
		return t, err
	}
	t.FieldCount = len(t.Fields)
	t.IsActive = active == 1
	t.CreatedAt = stamp(created)
	t.UpdatedAt = stamp(updated)
	return t, nil
}

func (s *store) groupTables(ctx context.Context, group int64) ([]adminapi.Table, error) {
	rows, err := s.db.QueryContext(ctx, tableSelect+` WHERE t.group_id = ? GROUP BY t.id ORDER BY t.name COLLATE NOCASE`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []adminapi.Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *store) getTable(ctx context.Context, id int64) (*adminapi.Table, error) {
	t, err := scanTable(s.db.QueryRowContext(ctx, tableSelect+` WHERE t.id = ? GROUP BY t.id`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *store) createTable(ctx context.Context, group int64, name string, fields []schema.Field) (*adminapi.Table, error) {
	if err := s.groupExists(ctx, group); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	var id int64
	err = withRetry(func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO card_tables (group_id, name, fields, is_active, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
			group, name, string(raw), now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.getTable(ctx, id)
}

func (s *store) updateTable(ctx context.Context, id int64, name string, fields []schema.Field) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`UPDATE card_tables SET name = ?, fields = ?, updated_at = ? WHERE id = ?`,
		name, string(raw), s.now().Unix(), id))
}

func (s *store) deleteTable(ctx context.Context, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `DELETE FROM card_tables WHERE id = ?`, id))
}

func (s *store) toggleTableStatus(ctx context.Context, id int64) (bool, error) {
	var active int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT is_active FROM card_tables WHERE id = ?`, id).Scan(&active); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errNotFound
			}
			return err
		}
		active = 1 - active
		_, err := tx.ExecContext(ctx, `UPDATE card_tables SET is_active = ?, updated_at = ? WHERE id = ?`, active, s.now().Unix(), id)
		return err
	})
	return active == 1, err
}
