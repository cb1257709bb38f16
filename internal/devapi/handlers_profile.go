package devapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/photo"
	"github.com/phillip-england/cardsuite/internal/security"
)

func profileOf(u *userRecord) adminapi.Profile {
	p := adminapi.Profile{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Email:    u.Email,
		Phone:    u.Phone,
		Role:     u.Role,
	}
	if u.Image != "" {
		p.ImageURL = "/media/" + u.Image
	}
	return p
}

func (s *server) profile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeOK(w, map[string]any{"profile": profileOf(user)})
}

func (s *server) updateProfile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var in adminapi.ProfileInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if err := s.store.updateProfile(r.Context(), user.ID, in); err != nil {
		s.storeError(w, r, "Profile", err)
		return
	}
	writeOK(w, map[string]any{"message": "Profile updated successfully"})
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var in adminapi.PasswordChange
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Current == "" || in.New == "" {
		writeError(w, http.StatusBadRequest, "All password fields are required")
		return
	}
	if in.New != in.Confirm {
		writeError(w, http.StatusBadRequest, "New passwords do not match")
		return
	}
	hash, err := s.store.passwordHash(r.Context(), user.ID)
	if err != nil {
		s.storeError(w, r, "Profile", err)
		return
	}
	if !security.VerifyPassword(in.Current, hash) {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	newHash, err := security.HashPassword(in.New)
	if err != nil {
		writeError(w, http.StatusBadRequest, sentence(err))
		return
	}
	if err := s.store.setPasswordHash(r.Context(), user.ID, newHash); err != nil {
		s.storeError(w, r, "Profile", err)
		return
	}
	writeOK(w, map[string]any{"message": "Password changed successfully"})
}

func (s *server) uploadProfileImage(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if !s.parseUpload(w, r) {
		return
	}
	raw, _, err := readPart(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Please select an image")
		return
	}
	if int64(len(raw)) > s.cfg.MaxPhotoBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Image is too large")
		return
	}
	png, err := photo.ProfileImage(raw)
	if err != nil {
		if errors.Is(err, photo.ErrUnsupported) {
			writeError(w, http.StatusBadRequest, sentence(err))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid image")
		return
	}
	name := fmt.Sprintf("profile/%d-%s.png", user.ID, uuid.NewString())
	if err := s.store.putMedia(r.Context(), name, "image/png", png); err != nil {
		s.fail(w, r, "store profile image", err)
		return
	}
	if err := s.store.setUserImage(r.Context(), user.ID, name); err != nil {
		s.storeError(w, r, "Profile", err)
		return
	}
	if user.Image != "" {
		_ = s.store.deleteMedia(r.Context(), user.Image)
	}
	writeOK(w, map[string]any{"message": "Profile image updated", "image_url": "/media/" + name})
}

func (s *server) removeProfileImage(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user.Image == "" {
		writeError(w, http.StatusBadRequest, "No profile image to remove")
		return
	}
	if err := s.store.setUserImage(r.Context(), user.ID, ""); err != nil {
		s.storeError(w, r, "Profile", err)
		return
	}
	_ = s.store.deleteMedia(r.Context(), user.Image)
	writeOK(w, map[string]any{"message": "Profile image removed"})
}
