package devapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/cardflow"
	"github.com/phillip-england/cardsuite/internal/schema"
)

const (
	defaultCardLimit = adminapi.CardBatchSize
	maxCardLimit     = 500
	cardSearchLimit  = 50
)

// parseStatusParam accepts the workflow statuses and reprint. Blank means
// no filter.
func parseStatusParam(raw string) (cardflow.Status, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", true
	}
	if cardflow.Status(raw) == cardflow.Reprint {
		return cardflow.Reprint, true
	}
	return cardflow.ParseStatus(raw)
}

// withPhoto fills Card.Photo from the table's first image field.
func withPhoto(cards []adminapi.Card, fields []schema.Field) []adminapi.Card {
	images := schema.ImageFields(fields)
	if len(images) == 0 {
		return cards
	}
	for i := range cards {
		cards[i].Photo = cards[i].FieldData[images[0]]
	}
	return cards
}

// upperValues trims and upper-cases every non-image value.
func upperValues(data map[string]string, fields []schema.Field) map[string]string {
	images := make(map[string]bool)
	for _, f := range schema.ImageFields(fields) {
		images[f] = true
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		v = strings.TrimSpace(v)
		if !images[k] {
			v = strings.ToUpper(v)
		}
		out[k] = v
	}
	return out
}

func (s *server) tableFromPath(w http.ResponseWriter, r *http.Request) (*adminapi.Table, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return nil, false
	}
	table, err := s.store.getTable(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "Table", err)
		return nil, false
	}
	return table, true
}

func (s *server) cardFromPath(w http.ResponseWriter, r *http.Request) (*adminapi.Card, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Card not found")
		return nil, false
	}
	card, err := s.store.getCard(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "Card", err)
		return nil, false
	}
	return card, true
}

func (s *server) listCards(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	status, ok := parseStatusParam(r.URL.Query().Get("status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultCardLimit
	}
	if limit > maxCardLimit {
		limit = maxCardLimit
	}

	cards, total, err := s.store.listCards(r.Context(), table.ID, status, offset, limit)
	if err != nil {
		s.fail(w, r, "list cards", err)
		return
	}
	counts, err := s.store.statusCounts(r.Context(), table.ID)
	if err != nil {
		s.fail(w, r, "count cards", err)
		return
	}
	writeOK(w, map[string]any{
		"cards":         withPhoto(cards, table.Fields),
		"has_more":      offset+len(cards) < total,
		"total_count":   total,
		"status_counts": counts,
		"table":         table,
	})
}

func (s *server) allCardIDs(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	status, ok := parseStatusParam(r.URL.Query().Get("status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	ids, err := s.store.allCardIDs(r.Context(), table.ID, status)
	if err != nil {
		s.fail(w, r, "list card ids", err)
		return
	}
	writeOK(w, map[string]any{"card_ids": ids, "count": len(ids)})
}

func (s *server) searchCards(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(q)) < adminapi.MinSearchLength {
		writeOK(w, map[string]any{"results": []adminapi.CardHit{}})
		return
	}
	hits, err := s.store.searchCards(r.Context(), table.ID, q,
		schema.Names(table.Fields, false), schema.DisplayField(table.Fields), cardSearchLimit)
	if err != nil {
		s.fail(w, r, "search cards", err)
		return
	}
	writeOK(w, map[string]any{"results": hits, "query": q})
}

func (s *server) statusCounts(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	counts, err := s.store.statusCounts(r.Context(), table.ID)
	if err != nil {
		s.fail(w, r, "count cards", err)
		return
	}
	writeOK(w, map[string]any{"status_counts": counts})
}

type cardRequest struct {
	FieldData map[string]string `json:"field_data"`
}

func (s *server) createCard(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	if !table.IsActive {
		writeError(w, http.StatusBadRequest, "Table is inactive")
		return
	}
	var in cardRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	data := upperValues(in.FieldData, table.Fields)
	empty := true
	for _, v := range data {
		if v != "" {
			empty = false
			break
		}
	}
	if empty {
		writeError(w, http.StatusBadRequest, "At least one field is required")
		return
	}
	card, err := s.store.createCard(r.Context(), table.ID, data)
	if err != nil {
		s.fail(w, r, "create card", err)
		return
	}
	s.logger.Debug("card created", zap.Int64("table", table.ID), zap.Int64("card", card.ID))
	writeOK(w, map[string]any{"message": "Card created successfully", "card": withPhoto([]adminapi.Card{*card}, table.Fields)[0]})
}

type idsRequest struct {
	CardIDs   []int64 `json:"card_ids"`
	Status    string  `json:"status"`
	DeleteAll bool    `json:"delete_all"`
}

func (s *server) bulkStatus(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	var in idsRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, ok := parseStatusParam(in.Status)
	if !ok || status == "" {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if len(in.CardIDs) == 0 {
		writeError(w, http.StatusBadRequest, "No cards selected")
		return
	}
	n, err := s.store.bulkStatus(r.Context(), table.ID, in.CardIDs, status)
	if err != nil {
		s.fail(w, r, "bulk status", err)
		return
	}
	writeOK(w, map[string]any{
		"message":       fmt.Sprintf("%d card(s) moved to %s", n, status),
		"updated_count": n,
	})
}

func (s *server) bulkDelete(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	var in idsRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !in.DeleteAll && len(in.CardIDs) == 0 {
		writeError(w, http.StatusBadRequest, "No cards selected")
		return
	}
	n, err := s.store.bulkDelete(r.Context(), table.ID, in.CardIDs, in.DeleteAll)
	if err != nil {
		s.fail(w, r, "bulk delete", err)
		return
	}
	writeOK(w, map[string]any{
		"message":       fmt.Sprintf("%d card(s) permanently deleted", n),
		"deleted_count": n,
	})
}

func (s *server) getCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.cardFromPath(w, r)
	if !ok {
		return
	}
	table, err := s.store.getTable(r.Context(), card.TableID)
	if err != nil {
		s.storeError(w, r, "Table", err)
		return
	}
	writeOK(w, map[string]any{"card": withPhoto([]adminapi.Card{*card}, table.Fields)[0]})
}

func (s *server) updateCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.cardFromPath(w, r)
	if !ok {
		return
	}
	table, err := s.store.getTable(r.Context(), card.TableID)
	if err != nil {
		s.storeError(w, r, "Table", err)
		return
	}
	var in cardRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.store.updateCard(r.Context(), card.ID, upperValues(in.FieldData, table.Fields)); err != nil {
		s.storeError(w, r, "Card", err)
		return
	}
	writeOK(w, map[string]any{"message": "Card updated successfully"})
}

type fieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *server) updateCardField(w http.ResponseWriter, r *http.Request) {
	card, ok := s.cardFromPath(w, r)
	if !ok {
		return
	}
	table, err := s.store.getTable(r.Context(), card.TableID)
	if err != nil {
		s.storeError(w, r, "Table", err)
		return
	}
	var in fieldRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	known := false
	for _, f := range table.Fields {
		if f.Name == in.Field {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusBadRequest, "Unknown field "+in.Field)
		return
	}
	data := upperValues(map[string]string{in.Field: in.Value}, table.Fields)
	if err := s.store.updateCardField(r.Context(), card.ID, in.Field, data[in.Field]); err != nil {
		s.storeError(w, r, "Card", err)
		return
	}
	writeOK(w, map[string]any{"message": in.Field + " updated", "value": data[in.Field]})
}

func (s *server) deleteCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.cardFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.deleteCard(r.Context(), card.ID); err != nil {
		s.storeError(w, r, "Card", err)
		return
	}
	writeOK(w, map[string]any{"message": "Card permanently deleted"})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *server) setCardStatus(w http.ResponseWriter, r *http.Request) {
	card, ok := s.cardFromPath(w, r)
	if !ok {
		return
	}
	var in statusRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, ok := parseStatusParam(in.Status)
	if !ok || status == "" {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if err := s.store.setCardStatus(r.Context(), card.ID, status); err != nil {
		s.storeError(w, r, "Card", err)
		return
	}
	writeOK(w, map[string]any{"message": "Card moved to " + status.Label(), "status": status})
}

func (s *server) globalSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	filter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("filter")))
	if !validSearchFilter(filter) {
		writeError(w, http.StatusBadRequest, "Invalid filter")
		return
	}
	if len([]rune(q)) < adminapi.MinSearchLength {
		writeOK(w, map[string]any{"results": []adminapi.SearchResult{}})
		return
	}
	results, err := s.store.searchAll(r.Context(), q, filter)
	if err != nil {
		s.fail(w, r, "global search", err)
		return
	}
	writeOK(w, map[string]any{"results": results, "query": q})
}
