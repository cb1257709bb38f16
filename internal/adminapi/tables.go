package adminapi

import (
	"context"
	"net/url"
	"strconv"
)

// ListGroups returns the card groups of client, or all groups when client
// is zero.
func (c *API) ListGroups(ctx context.Context, s Session, client int64) ([]Group, error) {
	v := url.Values{}
	if client > 0 {
		v.Set("client", strconv.FormatInt(client, 10))
	}
	var payload struct {
		Groups []Group `json:"groups"`
	}
	if err := c.getJSON(ctx, s, query("/api/groups/", v), &payload); err != nil {
		return nil, err
	}
	return payload.Groups, nil
}

func (c *API) CreateGroup(ctx context.Context, s Session, client int64, name string) (*Group, string, error) {
	var payload struct {
		Message string `json:"message"`
		Group   Group  `json:"group"`
	}
	in := map[string]any{"client_id": client, "name": name}
	if err := c.postJSON(ctx, s, "/api/group/create/", in, &payload); err != nil {
		return nil, "", err
	}
	return &payload.Group, payload.Message, nil
}

func (c *API) GroupTables(ctx context.Context, s Session, group int64) ([]Table, error) {
	var payload struct {
		Tables []Table `json:"tables"`
	}
	if err := c.getJSON(ctx, s, pathID("/api/group/%d/tables/", group), &payload); err != nil {
		return nil, err
	}
	return payload.Tables, nil
}

func (c *API) CreateTable(ctx context.Context, s Session, group int64, in TableInput) (*Table, string, error) {
	var payload struct {
		Message string `json:"message"`
		Table   Table  `json:"table"`
	}
	if err := c.postJSON(ctx, s, pathID("/api/group/%d/table/create/", group), in, &payload); err != nil {
		return nil, "", err
	}
	return &payload.Table, payload.Message, nil
}

func (c *API) GetTable(ctx context.Context, s Session, id int64) (*Table, error) {
	var payload struct {
		Table Table `json:"table"`
	}
	if err := c.getJSON(ctx, s, pathID("/api/table/%d/", id), &payload); err != nil {
		return nil, err
	}
	return &payload.Table, nil
}

func (c *API) UpdateTable(ctx context.Context, s Session, id int64, in TableInput) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/table/%d/update/", id), in, &msg)
	return msg.Message, err
}

func (c *API) DeleteTable(ctx context.Context, s Session, id int64) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/table/%d/delete/", id), nil, &msg)
	return msg.Message, err
}

// ToggleTableStatus flips a table's active flag and returns the new value.
func (c *API) ToggleTableStatus(ctx context.Context, s Session, id int64) (bool, string, error) {
	var payload struct {
		Message  string `json:"message"`
		IsActive bool   `json:"is_active"`
	}
	err := c.postJSON(ctx, s, pathID("/api/table/%d/toggle-status/", id), nil, &payload)
	return payload.IsActive, payload.Message, err
}
