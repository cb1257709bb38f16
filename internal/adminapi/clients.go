package adminapi

import (
	"context"
	"net/url"
	"strconv"
)

func (c *API) ListClients(ctx context.Context, s Session) ([]Client, error) {
	var payload struct {
		Clients []Client `json:"clients"`
	}
	if err := c.getJSON(ctx, s, "/api/clients/", &payload); err != nil {
		return nil, err
	}
	return payload.Clients, nil
}

func (c *API) GetClient(ctx context.Context, s Session, id int64) (*Client, error) {
	var payload struct {
		Client Client `json:"client"`
	}
	if err := c.getJSON(ctx, s, pathID("/api/client/%d/", id), &payload); err != nil {
		return nil, err
	}
	return &payload.Client, nil
}

func (c *API) CreateClient(ctx context.Context, s Session, in ClientInput) (*Client, string, error) {
	var payload struct {
		Message string `json:"message"`
		Client  Client `json:"client"`
	}
	if err := c.postJSON(ctx, s, "/api/client/create/", in, &payload); err != nil {
		return nil, "", err
	}
	return &payload.Client, payload.Message, nil
}

func (c *API) UpdateClient(ctx context.Context, s Session, id int64, in ClientInput) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/client/%d/update/", id), in, &msg)
	return msg.Message, err
}

func (c *API) DeleteClient(ctx context.Context, s Session, id int64) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/client/%d/delete/", id), nil, &msg)
	return msg.Message, err
}

// ToggleClientStatus flips a client between active and inactive and
// returns the new status.
func (c *API) ToggleClientStatus(ctx context.Context, s Session, id int64) (string, string, error) {
	var payload struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	err := c.postJSON(ctx, s, pathID("/api/client/%d/toggle-status/", id), nil, &payload)
	return payload.Status, payload.Message, err
}

func (c *API) ClientStaff(ctx context.Context, s Session, id int64) ([]Staff, error) {
	var payload struct {
		Staff []Staff `json:"staff"`
	}
	if err := c.getJSON(ctx, s, pathID("/api/client/%d/staff/", id), &payload); err != nil {
		return nil, err
	}
	return payload.Staff, nil
}

// ListStaff returns every staff member, or only those of client when it is
// non-zero.
func (c *API) ListStaff(ctx context.Context, s Session, client int64) ([]Staff, error) {
	v := url.Values{}
	if client > 0 {
		v.Set("client", strconv.FormatInt(client, 10))
	}
	var payload struct {
		Staff []Staff `json:"staff"`
	}
	if err := c.getJSON(ctx, s, query("/api/staff/", v), &payload); err != nil {
		return nil, err
	}
	return payload.Staff, nil
}

func (c *API) GetStaff(ctx context.Context, s Session, id int64) (*Staff, error) {
	var payload struct {
		Staff Staff `json:"staff"`
	}
	if err := c.getJSON(ctx, s, pathID("/api/staff/%d/", id), &payload); err != nil {
		return nil, err
	}
	return &payload.Staff, nil
}

func (c *API) CreateStaff(ctx context.Context, s Session, in StaffInput) (*Staff, string, error) {
	var payload struct {
		Message string `json:"message"`
		Staff   Staff  `json:"staff"`
	}
	if err := c.postJSON(ctx, s, "/api/staff/create/", in, &payload); err != nil {
		return nil, "", err
	}
	return &payload.Staff, payload.Message, nil
}

func (c *API) UpdateStaff(ctx context.Context, s Session, id int64, in StaffInput) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/staff/%d/update/", id), in, &msg)
	return msg.Message, err
}

func (c *API) DeleteStaff(ctx context.Context, s Session, id int64) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, pathID("/api/staff/%d/delete/", id), nil, &msg)
	return msg.Message, err
}

func (c *API) ToggleStaffStatus(ctx context.Context, s Session, id int64) (string, string, error) {
	var payload struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	err := c.postJSON(ctx, s, pathID("/api/staff/%d/toggle-status/", id), nil, &payload)
	return payload.Status, payload.Message, err
}
