package dashboard

import (
	"net/http"
	"strings"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/photo"
	"github.com/phillip-england/cardsuite/internal/security"
	"github.com/phillip-england/cardsuite/internal/toast"
)

type profileData struct {
	layout
	Profile   adminapi.Profile
	MinLength int
}

func (s *server) profilePage(w http.ResponseWriter, r *http.Request) {
	p, err := s.api.Profile(r.Context(), sessionOf(r))
	if err != nil {
		s.loadFailed(w, r, "profile", err)
		return
	}
	s.render(w, "profile.html", profileData{
		layout:    s.layoutFor(r, "Profile", "profile"),
		Profile:   *p,
		MinLength: security.MinPasswordLength,
	})
}

func (s *server) updateProfile(w http.ResponseWriter, r *http.Request) {
	in := adminapi.ProfileInput{
		Name:  strings.TrimSpace(r.FormValue("name")),
		Email: strings.TrimSpace(r.FormValue("email")),
		Phone: strings.TrimSpace(r.FormValue("phone")),
	}
	if in.Name == "" {
		s.finish(w, r, "/profile", toast.Error("Name is required"))
		return
	}
	msg, err := s.api.UpdateProfile(r.Context(), sessionOf(r), in)
	if err != nil {
		s.failed(w, r, "/profile", err, "Unable to update profile")
		return
	}
	s.finish(w, r, "/profile", toast.Success(orDefault(msg, "Profile updated")))
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	in := adminapi.PasswordChange{
		Current: r.FormValue("current_password"),
		New:     r.FormValue("new_password"),
		Confirm: r.FormValue("confirm_password"),
	}
	switch {
	case in.Current == "" || in.New == "" || in.Confirm == "":
		s.finish(w, r, "/profile", toast.Error("All password fields are required"))
		return
	case in.New != in.Confirm:
		s.finish(w, r, "/profile", toast.Error("New passwords do not match"))
		return
	case len(in.New) < security.MinPasswordLength:
		s.finish(w, r, "/profile", toast.Error("New password is too short"))
		return
	}
	msg, err := s.api.ChangePassword(r.Context(), sessionOf(r), in)
	if err != nil {
		s.failed(w, r, "/profile", err, "Unable to change password")
		return
	}
	s.finish(w, r, "/profile", toast.Success(orDefault(msg, "Password changed")))
}

// uploadProfileImage checks the upload decodes as a photo before handing
// it to the admin API, which crops and stores it.
func (s *server) uploadProfileImage(w http.ResponseWriter, r *http.Request) {
	img, err := readPart(r, "image")
	if err != nil {
		s.finish(w, r, "/profile", toast.Error("Please select an image"))
		return
	}
	if _, err := photo.Check(img.Data); err != nil {
		s.finish(w, r, "/profile", toast.FromError(err, "Invalid image"))
		return
	}
	_, msg, err := s.api.UploadProfileImage(r.Context(), sessionOf(r), img)
	if err != nil {
		s.failed(w, r, "/profile", err, "Unable to upload image")
		return
	}
	s.finish(w, r, "/profile", toast.Success(orDefault(msg, "Profile image updated")))
}

func (s *server) removeProfileImage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.api.RemoveProfileImage(r.Context(), sessionOf(r))
	if err != nil {
		s.failed(w, r, "/profile", err, "Unable to remove image")
		return
	}
	s.finish(w, r, "/profile", toast.Success(orDefault(msg, "Profile image removed")))
}
