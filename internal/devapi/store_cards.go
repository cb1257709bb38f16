package devapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/cardflow"
)

const cardColumns = `id, table_id, field_data, status, created_at, updated_at`

func scanCard(row interface{ Scan(...any) error }) (adminapi.Card, error) {
	var c adminapi.Card
	var data, status string
	var created, updated int64
	if err := row.Scan(&c.ID, &c.TableID, &data, &status, &created, &updated); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(data), &c.FieldData); err != nil {
		return c, err
	}
	c.Status = cardflow.Status(status)
	c.CreatedAt = stamp(created)
	c.UpdatedAt = stamp(updated)
	return c, nil
}

func collectCards(rows *sql.Rows) ([]adminapi.Card, error) {
	defer rows.Close()
	out := []adminapi.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func encodeFieldData(data map[string]string) (string, error) {
	if data == nil {
		data = map[string]string{}
	}
	raw, err := json.Marshal(data)
	return string(raw), err
}

// listCards returns one page of a table's cards in id order, and the total
// the filter matches. An empty status lists every card.
func (s *store) listCards(ctx context.Context, table int64, status cardflow.Status, offset, limit int) ([]adminapi.Card, int, error) {
	where := `WHERE table_id = ?`
	args := []any{table}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, string(status))
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	cards, err := collectCards(rows)
	return cards, total, err
}

func (s *store) statusCounts(ctx context.Context, table int64) (adminapi.StatusCounts, error) {
	var counts adminapi.StatusCounts
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM cards WHERE table_id = ? GROUP BY status`, table)
	if err != nil {
		return counts, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, err
		}
		switch cardflow.Status(status) {
		case cardflow.Pending:
			counts.Pending = n
		case cardflow.Verified:
			counts.Verified = n
		case cardflow.Pool:
			counts.Pool = n
		case cardflow.Approved:
			counts.Approved = n
		case cardflow.Download:
			counts.Download = n
		case cardflow.Reprint:
			counts.Reprint = n
		}
		counts.Total += n
	}
	return counts, rows.Err()
}

func (s *store) allCardIDs(ctx context.Context, table int64, status cardflow.Status) ([]int64, error) {
	query := `SELECT id FROM cards WHERE table_id = ?`
	args := []any{table}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// cardsByIDs returns the table's cards among ids, or every card in status
// when ids is empty.
func (s *store) cardsByIDs(ctx context.Context, table int64, status cardflow.Status, ids []int64) ([]adminapi.Card, error) {
	if len(ids) == 0 {
		cards, _, err := s.listCards(ctx, table, status, 0, -1)
		return cards, err
	}
	args := append([]any{table}, idArgs(ids)...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE table_id = ? AND id IN (`+placeholders(len(ids))+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	return collectCards(rows)
}

func (s *store) getCard(ctx context.Context, id int64) (*adminapi.Card, error) {
	c, err := scanCard(s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *store) createCard(ctx context.Context, table int64, data map[string]string) (*adminapi.Card, error) {
	raw, err := encodeFieldData(data)
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	var id int64
	err = withRetry(func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO cards (table_id, field_data, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			table, raw, string(cardflow.Pending), now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.getCard(ctx, id)
}

// insertCards adds rows as pending cards in one transaction.
func (s *store) insertCards(ctx context.Context, table int64, rows []map[string]string) error {
	now := s.now().Unix()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO cards (table_id, field_data, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, data := range rows {
			raw, err := encodeFieldData(data)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, table, raw, string(cardflow.Pending), now, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// setFieldData replaces a card's whole field map.
func (s *store) setFieldData(ctx context.Context, id int64, data map[string]string) error {
	raw, err := encodeFieldData(data)
	if err != nil {
		return err
	}
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`UPDATE cards SET field_data = ?, updated_at = ? WHERE id = ?`, raw, s.now().Unix(), id))
}

// updateCard merges data over the card's current fields.
func (s *store) updateCard(ctx context.Context, id int64, data map[string]string) error {
	card, err := s.getCard(ctx, id)
	if err != nil {
		return err
	}
	merged := map[string]string(card.FieldData)
	if merged == nil {
		merged = map[string]string{}
	}
	for k, v := range data {
		merged[k] = v
	}
	return s.setFieldData(ctx, id, merged)
}

func (s *store) updateCardField(ctx context.Context, id int64, field, value string) error {
	return s.updateCard(ctx, id, map[string]string{field: value})
}

func (s *store) deleteCard(ctx context.Context, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id))
}

func (s *store) setCardStatus(ctx context.Context, id int64, status cardflow.Status) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`UPDATE cards SET status = ?, updated_at = ? WHERE id = ?`, string(status), s.now().Unix(), id))
}

func (s *store) bulkStatus(ctx context.Context, table int64, ids []int64, status cardflow.Status) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{string(status), s.now().Unix(), table}, idArgs(ids)...)
	res, err := s.db.ExecContext(ctx,
		`UPDATE cards SET status = ?, updated_at = ? WHERE table_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *store) bulkDelete(ctx context.Context, table int64, ids []int64, all bool) (int, error) {
	var res sql.Result
	var err error
	switch {
	case all:
		res, err = s.db.ExecContext(ctx, `DELETE FROM cards WHERE table_id = ?`, table)
	case len(ids) == 0:
		return 0, nil
	default:
		args := append([]any{table}, idArgs(ids)...)
		res, err = s.db.ExecContext(ctx, `DELETE FROM cards WHERE table_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// searchCards finds cards of table with a field containing q, ignoring
// case. Hits report the first matching field in fieldOrder.
func (s *store) searchCards(ctx context.Context, table int64, q string, fieldOrder []string, displayField string, limit int) ([]adminapi.CardHit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE table_id = ? AND field_data LIKE ? ESCAPE '\' ORDER BY id`,
		table, "%"+likeEscape(q)+"%")
	if err != nil {
		return nil, err
	}
	cards, err := collectCards(rows)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(q)
	hits := []adminapi.CardHit{}
	for _, c := range cards {
		field, value, ok := matchField(c.FieldData, fieldOrder, needle)
		if !ok {
			continue
		}
		hits = append(hits, adminapi.CardHit{
			ID:           c.ID,
			DisplayName:  c.FieldData[displayField],
			Status:       c.Status,
			MatchedField: field,
			MatchedValue: value,
		})
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func matchField(data map[string]string, order []string, needle string) (string, string, bool) {
	seen := make(map[string]bool, len(order))
	for _, f := range order {
		seen[f] = true
		if strings.Contains(strings.ToLower(data[f]), needle) {
			return f, data[f], true
		}
	}
	var rest []string
	for f := range data {
		if !seen[f] {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	for _, f := range rest {
		if strings.Contains(strings.ToLower(data[f]), needle) {
			return f, data[f], true
		}
	}
	return "", "", false
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
