// Package devapi is a self-contained stand-in for the admin API the
// dashboard talks to, backed by a SQLite file. It serves the same JSON
// envelope and routes so the dashboard can run end to end locally.
package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/envutil"
	"github.com/phillip-england/cardsuite/internal/logging"
	"github.com/phillip-england/cardsuite/internal/middleware"
	"github.com/phillip-england/cardsuite/internal/security"
)

type contextKey string

const (
	userContextKey    contextKey = "user"
	sessionContextKey contextKey = "session"
)

type Config struct {
	Addr           string
	DBPath         string
	AdminUsername  string
	AdminPassword  string
	SessionTTL     time.Duration
	MaxUploadBytes int64
	MaxPhotoBytes  int64
}

func DefaultConfigFromEnv() Config {
	return Config{
		Addr:           envutil.Or("DEVAPI_ADDR", ":8081"),
		DBPath:         envutil.Or("DEVAPI_DB_PATH", "cardsuite.db"),
		AdminUsername:  envutil.Or("ADMIN_USERNAME", ""),
		AdminPassword:  envutil.Or("ADMIN_PASSWORD", ""),
		SessionTTL:     envutil.Duration("SESSION_TTL", 12*time.Hour),
		MaxUploadBytes: envutil.Int64("MAX_UPLOAD_BYTES", 100<<20),
		MaxPhotoBytes:  envutil.Int64("MAX_PHOTO_BYTES", 10<<20),
	}
}

func (c *Config) applyDefaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 12 * time.Hour
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 100 << 20
	}
	if c.MaxPhotoBytes <= 0 {
		c.MaxPhotoBytes = 10 << 20
	}
}

type server struct {
	store  *store
	cfg    Config
	logger *zap.Logger
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	logger = logging.OrNop(logger).Named("devapi")
	handler, closeStore, err := Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("url", "http://localhost"+cfg.Addr), zap.String("db", cfg.DBPath))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Open prepares the database and returns the API handler along with a
// func that closes the database.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (http.Handler, func() error, error) {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil, nil, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required")
	}
	cfg.applyDefaults()
	logger = logging.OrNop(logger)

	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := st.ensureAdminUser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("ensure admin user: %w", err)
	}
	s := &server{store: st, cfg: cfg, logger: logger}
	return s.routes(), st.Close, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, s.requireAdmin, s.csrfProtect)
	}

	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("POST /api/auth/login/{$}", s.login)
	mux.Handle("POST /api/auth/logout/{$}", authed(s.logout))

	mux.Handle("GET /api/clients/{$}", authed(s.listClients))
	mux.Handle("POST /api/client/create/{$}", authed(s.createClient))
	mux.Handle("GET /api/client/{id}/{$}", authed(s.getClient))
	mux.Handle("POST /api/client/{id}/update/{$}", authed(s.updateClient))
	mux.Handle("POST /api/client/{id}/delete/{$}", authed(s.deleteClient))
	mux.Handle("POST /api/client/{id}/toggle-status/{$}", authed(s.toggleClientStatus))
	mux.Handle("GET /api/client/{id}/staff/{$}", authed(s.clientStaff))

	mux.Handle("GET /api/staff/{$}", authed(s.listStaff))
	mux.Handle("POST /api/staff/create/{$}", authed(s.createStaff))
	mux.Handle("GET /api/staff/{id}/{$}", authed(s.getStaff))
	mux.Handle("POST /api/staff/{id}/update/{$}", authed(s.updateStaff))
	mux.Handle("POST /api/staff/{id}/delete/{$}", authed(s.deleteStaff))
	mux.Handle("POST /api/staff/{id}/toggle-status/{$}", authed(s.toggleStaffStatus))

	mux.Handle("GET /api/groups/{$}", authed(s.listGroups))
	mux.Handle("POST /api/group/create/{$}", authed(s.createGroup))
	mux.Handle("GET /api/group/{id}/tables/{$}", authed(s.groupTables))
	mux.Handle("POST /api/group/{id}/table/create/{$}", authed(s.createTable))

	mux.Handle("GET /api/table/{id}/{$}", authed(s.getTable))
	mux.Handle("POST /api/table/{id}/update/{$}", authed(s.updateTable))
	mux.Handle("POST /api/table/{id}/delete/{$}", authed(s.deleteTable))
	mux.Handle("POST /api/table/{id}/toggle-status/{$}", authed(s.toggleTableStatus))
	mux.Handle("GET /api/table/{id}/cards/{$}", authed(s.listCards))
	mux.Handle("GET /api/table/{id}/cards/all-ids/{$}", authed(s.allCardIDs))
	mux.Handle("GET /api/table/{id}/cards/search/{$}", authed(s.searchCards))
	mux.Handle("GET /api/table/{id}/status-counts/{$}", authed(s.statusCounts))
	mux.Handle("POST /api/table/{id}/card/create/{$}", authed(s.createCard))
	mux.Handle("POST /api/table/{id}/cards/bulk-status/{$}", authed(s.bulkStatus))
	mux.Handle("POST /api/table/{id}/cards/bulk-delete/{$}", authed(s.bulkDelete))
	mux.Handle("POST /api/table/{id}/cards/bulk-upload/{$}", authed(s.bulkUpload))
	mux.Handle("POST /api/table/{id}/cards/reupload-images/{$}", authed(s.reuploadImages))
	mux.Handle("POST /api/table/{id}/cards/download-images/{$}", authed(s.download(adminapi.DownloadImages)))
	mux.Handle("POST /api/table/{id}/cards/download-docx/{$}", authed(s.download(adminapi.DownloadDocx)))
	mux.Handle("POST /api/table/{id}/cards/download-xlsx/{$}", authed(s.download(adminapi.DownloadXLSX)))

	mux.Handle("GET /api/card/{id}/{$}", authed(s.getCard))
	mux.Handle("POST /api/card/{id}/update/{$}", authed(s.updateCard))
	mux.Handle("POST /api/card/{id}/update-field/{$}", authed(s.updateCardField))
	mux.Handle("POST /api/card/{id}/delete/{$}", authed(s.deleteCard))
	mux.Handle("POST /api/card/{id}/status/{$}", authed(s.setCardStatus))

	mux.Handle("GET /api/profile/{$}", authed(s.profile))
	mux.Handle("POST /api/profile/update/{$}", authed(s.updateProfile))
	mux.Handle("POST /api/profile/change-password/{$}", authed(s.changePassword))
	mux.Handle("POST /api/profile/upload-image/{$}", authed(s.uploadProfileImage))
	mux.Handle("POST /api/profile/remove-image/{$}", authed(s.removeProfileImage))

	mux.Handle("GET /api/global-search/{$}", authed(s.globalSearch))
	mux.Handle("GET /media/{name...}", authed(s.media))

	return middleware.Chain(
		mux,
		middleware.Recover(s.logger),
		middleware.RequestLogger(s.logger),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'"}),
	)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, hash, err := s.store.lookupUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.fail(w, r, "authentication failed", err)
		return
	}
	if !user.IsAdmin || !security.VerifyPassword(req.Password, hash) {
		s.logger.Info("login rejected", zap.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	sessionID := uuid.NewString()
	csrfToken, err := security.RandomToken(32)
	if err != nil {
		s.fail(w, r, "authentication failed", err)
		return
	}
	expires := s.store.now().Add(s.cfg.SessionTTL)
	if err := s.store.createSession(r.Context(), sessionID, user.ID, csrfToken, expires); err != nil {
		s.fail(w, r, "authentication failed", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     adminapi.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		Expires:  expires,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     adminapi.CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		Expires:  expires,
	})
	s.logger.Info("login", zap.String("username", user.Username))
	writeOK(w, map[string]any{"message": "Login successful", "username": user.Username})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if sess := sessionFromContext(r.Context()); sess != nil {
		_ = s.store.deleteSession(r.Context(), sess.ID)
	}
	expireCookie(w, adminapi.SessionCookieName)
	expireCookie(w, adminapi.CSRFCookieName)
	writeOK(w, map[string]any{"message": "Logged out"})
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(adminapi.SessionCookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		sess, user, err := s.store.lookupSession(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, errNotFound) {
				expireCookie(w, adminapi.SessionCookieName)
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			s.fail(w, r, "session check failed", err)
			return
		}
		if !user.IsAdmin {
			expireCookie(w, adminapi.SessionCookieName)
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		ctx = context.WithValue(ctx, userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		sess := sessionFromContext(r.Context())
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		token := strings.TrimSpace(r.Header.Get(adminapi.CSRFHeaderName))
		if token == "" || token != sess.CSRFToken {
			writeError(w, http.StatusForbidden, "CSRF validation failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) *userRecord {
	record, _ := ctx.Value(userContextKey).(*userRecord)
	return record
}

func sessionFromContext(ctx context.Context) *sessionRecord {
	record, _ := ctx.Value(sessionContextKey).(*sessionRecord)
	return record
}

func expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func queryID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get(name)), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// fail logs err and answers with a generic 500.
func (s *server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Something went wrong, please try again")
}

// storeError maps store failures onto responses.
func (s *server) storeError(w http.ResponseWriter, r *http.Request, noun string, err error) {
	switch {
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, noun+" not found")
	case errors.Is(err, errDuplicateName):
		writeError(w, http.StatusConflict, noun+" with this name already exists")
	default:
		s.fail(w, r, "store "+strings.ToLower(noun), err)
	}
}

func writeOK(w http.ResponseWriter, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["success"] = true
	writeJSON(w, http.StatusOK, payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
