package dashboard

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/drawer"
	"github.com/phillip-england/cardsuite/internal/toast"
)

type loginData struct {
	layout
	Username string
}

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	if sess := adminapi.SessionFromRequest(r); sess.Valid() {
		if _, err := s.api.Profile(r.Context(), sess); err == nil {
			http.Redirect(w, r, "/clients", http.StatusFound)
			return
		}
	}
	data := loginData{layout: s.layoutFor(r, "Login", ""), Username: r.URL.Query().Get("username")}
	s.render(w, "login.html", data)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=Invalid+form+submission", http.StatusSeeOther)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	back := "/login?username=" + url.QueryEscape(username)
	if username == "" || password == "" {
		s.finish(w, r, back, toast.Error("Username and password are required"))
		return
	}

	_, cookies, err := s.api.Login(r.Context(), username, password)
	if err != nil {
		var apiErr *adminapi.APIError
		if !errors.As(err, &apiErr) {
			s.logger.Warn("login failed", zap.Error(err))
			s.finish(w, r, back, toast.Error("Authentication service unavailable"))
			return
		}
		s.finish(w, r, back, toast.FromError(err, "Invalid credentials"))
		return
	}

	for _, ck := range cookies {
		if ck.Name != adminapi.SessionCookieName && ck.Name != adminapi.CSRFCookieName {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     "/",
			MaxAge:   ck.MaxAge,
			HttpOnly: ck.Name == adminapi.SessionCookieName,
			Secure:   s.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	s.logger.Info("dashboard login", zap.String("username", username))
	s.finish(w, r, "/clients", toast.Success("Welcome back"))
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	if err := s.api.Logout(r.Context(), sess); err != nil && !errors.Is(err, adminapi.ErrUnauthorized) {
		s.logger.Warn("admin api logout failed", zap.Error(err))
	}
	s.picks.forget(sess.ID)
	for _, name := range []string{adminapi.SessionCookieName, adminapi.CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:    name,
			Value:   "",
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Unix(0, 0),
		})
	}
	s.finish(w, r, "/login", toast.Info("You have been logged out"))
}

// toggleSidebar flips the sidebarCollapsed preference cookie.
func (s *server) toggleSidebar(w http.ResponseWriter, r *http.Request) {
	collapsed := false
	if c, err := r.Cookie(sidebarCookieName); err == nil {
		collapsed = c.Value == "true"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sidebarCookieName,
		Value:    strconv.FormatBool(!collapsed),
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.SecureCookies,
	})
	http.Redirect(w, r, returnTo(r, "/clients"), http.StatusSeeOther)
}

func (s *server) media(w http.ResponseWriter, r *http.Request) {
	file, err := s.api.Media(r.Context(), sessionOf(r), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, adminapi.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.loadFailed(w, r, "image", err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(file.Data)
}

// answerConfirm runs or discards the action behind a confirm modal.
func (s *server) answerConfirm(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.FormValue("token"))
	owner := sessionOf(r).ID
	fallback := returnTo(r, "/clients")
	if r.FormValue("decision") != "confirm" {
		reason := drawer.CloseReason(r.FormValue("reason"))
		if reason == "" {
			reason = drawer.CloseButton
		}
		if p, ok := s.confirms.Dismiss(token, owner, reason); ok && p.Return != "" {
			fallback = p.Return
		}
		http.Redirect(w, r, fallback, http.StatusSeeOther)
		return
	}

	ctx := withHubID(r.Context(), r.FormValue("hub_id"))
	p, msg, err := s.confirms.Confirm(ctx, token, owner)
	if errors.Is(err, drawer.ErrNoPending) {
		s.finish(w, r, fallback, toast.Info("That confirmation has expired"))
		return
	}
	target := p.Return
	if target == "" {
		target = fallback
	}
	if err != nil {
		s.failed(w, r, target, err, "Action failed")
		return
	}
	s.finish(w, r, target, toast.Success(msg))
}
