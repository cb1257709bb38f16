package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/cardflow"
)

const (
	// CardBatchSize is how many cards one list call asks for.
	CardBatchSize = 100
	// EagerCardLoad is how many cards are fetched before the list is shown.
	EagerCardLoad = 200
	// MinSearchLength is the shortest query the card search accepts.
	MinSearchLength = 2
)

// ListCards fetches one batch of a table's cards in status.
func (c *API) ListCards(ctx context.Context, s Session, table int64, status cardflow.Status, offset, limit int) (*CardPage, error) {
	if limit <= 0 {
		limit = CardBatchSize
	}
	v := url.Values{}
	if status != "" {
		v.Set("status", string(status))
	}
	v.Set("offset", strconv.Itoa(offset))
	v.Set("limit", strconv.Itoa(limit))

	var page CardPage
	if err := c.getJSON(ctx, s, query(pathID("/api/table/%d/cards/", table), v), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// LoadCards follows has_more until max cards are loaded; max <= 0 loads
// everything. The last page's counts and table are returned with the
// combined cards.
func (c *API) LoadCards(ctx context.Context, s Session, table int64, status cardflow.Status, max int) (*CardPage, error) {
	var out CardPage
	offset := 0
	for {
		page, err := c.ListCards(ctx, s, table, status, offset, CardBatchSize)
		if err != nil {
			return nil, err
		}
		out.Cards = append(out.Cards, page.Cards...)
		out.TotalCount = page.TotalCount
		out.StatusCounts = page.StatusCounts
		out.Table = page.Table
		out.HasMore = page.HasMore
		offset += len(page.Cards)
		if !page.HasMore || len(page.Cards) == 0 {
			break
		}
		if max > 0 && offset >= max {
			break
		}
	}
	c.logger.Debug("cards loaded",
		zap.Int64("table", table),
		zap.String("status", string(status)),
		zap.Int("loaded", len(out.Cards)),
		zap.Int("total", out.TotalCount),
	)
	return &out, nil
}

func (c *API) AllCardIDs(ctx context.Context, s Session, table int64, status cardflow.Status) ([]int64, error) {
	v := url.Values{}
	if status != "" {
		v.Set("status", string(status))
	}
	var payload struct {
		IDs []int64 `json:"card_ids"`
	}
	if err := c.getJSON(ctx, s, query(pathID("/api/table/%d/cards/all-ids/", table), v), &payload); err != nil {
		return nil, err
	}
	return payload.IDs, nil
}

func (c *API) StatusCounts(ctx context.Context, s Session, table int64) (StatusCounts, error) {
	var payload struct {
		StatusCounts StatusCounts `json:"status_counts"`
	}
	err := c.getJSON(ctx, s, pathID("/api/table/%d/status-counts/", table), &payload)
	return payload.StatusCounts, err
}

func (c *API) GetCard(ctx context.Context, s Session, id int64) (*Card, error) {
	var payload struct {
		Card Card `json:"card"`
	}
	if err := c.getJSON(ctx, s, pathID("/api/card/%d/", id), &payload); err != nil {
		return nil, err
	}
	return &payload.Card, nil
}

func (c *API) CreateCard(ctx context.Context, s Session, table int64, data map[string]string) (*Card, string, error) {
	var payload struct {
		Message string `json:"message"`
		Card    Card   `json:"card"`
	}
	in := map[string]any{"field_data": data}
	if err := c.postJSON(ctx, s, pathID("/api/table/%d/card/create/", table), in, &payload); err != nil {
		return nil, "", err
	}
	return &payload.Card, payload.Message, nil
}

func (c *API) UpdateCard(ctx context.Context, s Session, id int64, data map[string]string) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/card/%d/update/", id), map[string]any{"field_data": data}, &msg)
	return msg.Message, err
}

// UpdateCardField changes a single field in place.
func (c *API) UpdateCardField(ctx context.Context, s Session, id int64, field, value string) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/card/%d/update-field/", id), map[string]string{"field": field, "value": value}, &msg)
	return msg.Message, err
}

func (c *API) DeleteCard(ctx context.Context, s Session, id int64) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/card/%d/delete/", id), nil, &msg)
	return msg.Message, err
}

func (c *API) SetCardStatus(ctx context.Context, s Session, id int64, status cardflow.Status) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/card/%d/status/", id), map[string]string{"status": string(status)}, &msg)
	return msg.Message, err
}

func (c *API) BulkStatus(ctx context.Context, s Session, table int64, ids []int64, status cardflow.Status) (int, error) {
	var payload struct {
		UpdatedCount int `json:"updated_count"`
	}
	in := map[string]any{"card_ids": ids, "status": string(status)}
	err := c.postJSON(ctx, s, pathID("/api/table/%d/cards/bulk-status/", table), in, &payload)
	return payload.UpdatedCount, err
}

// BulkDelete permanently removes ids, or every card of the table when all
// is set.
func (c *API) BulkDelete(ctx context.Context, s Session, table int64, ids []int64, all bool) (int, error) {
	in := map[string]any{"card_ids": ids}
	if all {
		in = map[string]any{"delete_all": true}
	}
	var payload struct {
		DeletedCount int `json:"deleted_count"`
	}
	err := c.postJSON(ctx, s, pathID("/api/table/%d/cards/bulk-delete/", table), in, &payload)
	return payload.DeletedCount, err
}

var ErrNoCards = errors.New("no cards selected")

// Transition performs a workflow action on cards currently in from. One
// card goes through the single-card endpoint, several through the bulk
// endpoints, and a permanent delete through bulk-delete. It returns how many
// cards the server changed.
func (c *API) Transition(ctx context.Context, s Session, table int64, from cardflow.Status, action cardflow.Action, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, ErrNoCards
	}
	to, removed, err := cardflow.Target(action, from)
	if err != nil {
		return 0, err
	}
	if removed {
		return c.BulkDelete(ctx, s, table, ids, false)
	}
	if len(ids) == 1 {
		if _, err := c.SetCardStatus(ctx, s, ids[0], to); err != nil {
			return 0, err
		}
		return 1, nil
	}
	return c.BulkStatus(ctx, s, table, ids, to)
}

// SearchCards looks through every status of a table. Queries shorter than
// MinSearchLength return no hits without a request.
func (c *API) SearchCards(ctx context.Context, s Session, table int64, q string) ([]CardHit, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < MinSearchLength {
		return nil, nil
	}
	var payload struct {
		Results []CardHit `json:"results"`
	}
	path := query(pathID("/api/table/%d/cards/search/", table), url.Values{"q": {q}})
	if err := c.getJSON(ctx, s, path, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// GlobalSearch searches clients, staff, tables and cards. filter narrows
// to one kind; empty means all.
func (c *API) GlobalSearch(ctx context.Context, s Session, q, filter string) ([]SearchResult, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < MinSearchLength {
		return nil, nil
	}
	v := url.Values{"q": {q}}
	if filter != "" && filter != "all" {
		v.Set("filter", filter)
	}
	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.getJSON(ctx, s, query("/api/global-search/", v), &payload); err != nil {
		return nil, fmt.Errorf("global search: %w", err)
	}
	return payload.Results, nil
}
