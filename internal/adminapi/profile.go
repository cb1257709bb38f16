package adminapi

import "context"

func (c *API) Profile(ctx context.Context, s Session) (*Profile, error) {
	var payload struct {
		Profile Profile `json:"profile"`
	}
	if err := c.getJSON(ctx, s, "/api/profile/", &payload); err != nil {
		return nil, err
	}
	return &payload.Profile, nil
}

func (c *API) UpdateProfile(ctx context.Context, s Session, in ProfileInput) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, "/api/profile/update/", in, &msg)
	return msg.Message, err
}

func (c *API) ChangePassword(ctx context.Context, s Session, in PasswordChange) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, "/api/profile/change-password/", in, &msg)
	return msg.Message, err
}

// UploadProfileImage sends the image as multipart field "image" and
// returns the stored image URL.
func (c *API) UploadProfileImage(ctx context.Context, s Session, image Attachment) (string, string, error) {
	var payload struct {
		Message  string `json:"message"`
		ImageURL string `json:"image_url"`
	}
	err := c.postMultipart(ctx, s, "/api/profile/upload-image/", map[string]Attachment{"image": image}, nil, nil, &payload)
	return payload.ImageURL, payload.Message, err
}

func (c *API) RemoveProfileImage(ctx context.Context, s Session) (string, error) {
	var msg Message
	err := c.postJSON(ctx, s, "/api/profile/remove-image/", nil, &msg)
	return msg.Message, err
}
