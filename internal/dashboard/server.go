// Package dashboard is the admin web UI. It renders server-side pages over
// the admin API and keeps selection, drawer and confirm state for each
// browser session.
package dashboard

import (
	"context"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/drawer"
	"github.com/phillip-england/cardsuite/internal/envutil"
	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/livehub"
	"github.com/phillip-england/cardsuite/internal/logging"
	"github.com/phillip-england/cardsuite/internal/middleware"
	"github.com/phillip-england/cardsuite/internal/security"
	"github.com/phillip-england/cardsuite/internal/toast"
)

const (
	sidebarCookieName = "sidebarCollapsed"
	csrfFieldName     = "gorilla.csrf.Token"

	// refreshCoalesce folds a burst of mutations on one topic into a
	// single refresh event.
	refreshCoalesce = 150 * time.Millisecond
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

type Config struct {
	Addr           string
	APIBaseURL     string
	CSRFKey        string
	SecureCookies  bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	APITimeout     time.Duration
	MaxUploadBytes int64
}

func DefaultConfigFromEnv() Config {
	return Config{
		Addr:           envutil.Or("DASHBOARD_ADDR", ":3000"),
		APIBaseURL:     envutil.Or("ADMIN_API_BASE_URL", "http://localhost:8081"),
		CSRFKey:        envutil.Or("CSRF_KEY", ""),
		SecureCookies:  envutil.Bool("SECURE_COOKIES", false),
		ReadTimeout:    envutil.Duration("DASHBOARD_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   envutil.Duration("DASHBOARD_WRITE_TIMEOUT", 5*time.Minute),
		APITimeout:     envutil.Duration("ADMIN_API_TIMEOUT", 5*time.Minute),
		MaxUploadBytes: envutil.Int64("MAX_UPLOAD_BYTES", 100<<20),
	}
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = "http://localhost:8081"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 5 * time.Minute
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 100 << 20
	}
}

type server struct {
	cfg      Config
	api      *adminapi.API
	hub      *livehub.Hub
	confirms *drawer.Confirms
	picks    *pickStore
	pages    map[string]*template.Template
	logger   *zap.Logger
	now      func() time.Time

	refreshMu  sync.Mutex
	refreshers map[string]*listview.Debouncer
}

// Run serves the dashboard until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	logger = logging.OrNop(logger).Named("dashboard")
	handler, closeHub, err := New(cfg, logger)
	if err != nil {
		return err
	}
	defer closeHub()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", zap.String("url", "http://localhost"+cfg.Addr), zap.String("api", cfg.APIBaseURL))
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

// New builds the dashboard handler and a func that disconnects every open
// websocket.
func New(cfg Config, logger *zap.Logger) (http.Handler, func(), error) {
	cfg.applyDefaults()
	logger = logging.OrNop(logger)

	pages, err := parsePages()
	if err != nil {
		return nil, nil, err
	}
	key := cfg.CSRFKey
	if key == "" {
		key, err = security.RandomToken(32)
		if err != nil {
			return nil, nil, fmt.Errorf("generate csrf key: %w", err)
		}
		logger.Warn("CSRF_KEY is not set; forms will not survive a restart")
	}
	sum := sha256.Sum256([]byte(key))

	s := &server{
		cfg:      cfg,
		api:      adminapi.New(cfg.APIBaseURL, &http.Client{Timeout: cfg.APITimeout}, logger.Named("adminapi")),
		hub:      livehub.NewHub(logger.Named("livehub")),
		confirms: drawer.NewConfirms(15 * time.Minute),
		picks:    newPickStore(12 * time.Hour),
		pages:    pages,
		logger:   logger,
		now:      time.Now,

		refreshers: make(map[string]*listview.Debouncer),
	}

	protect := csrf.Protect(sum[:],
		csrf.Secure(cfg.SecureCookies),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.FieldName(csrfFieldName),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailed)),
	)
	return middleware.Chain(
		s.routes(),
		middleware.Recover(logger),
		middleware.RequestLogger(logger),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: contentSecurityPolicy}),
		s.limitBody,
		s.markPlaintext,
		protect,
	), s.close, nil
}

// close cancels pending refreshes and disconnects every websocket.
func (s *server) close() {
	s.refreshMu.Lock()
	for _, d := range s.refreshers {
		d.Stop()
	}
	s.refreshMu.Unlock()
	s.hub.Close()
}

var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"style-src 'self' 'unsafe-inline'",
	"img-src 'self' data:",
	"script-src 'self'",
	"connect-src 'self'",
	"frame-ancestors 'none'",
}, "; ")

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, s.requireSession)
	}

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("GET /login", s.loginPage)
	mux.HandleFunc("POST /login", s.login)
	mux.Handle("POST /logout", authed(s.logout))
	mux.Handle("POST /sidebar", authed(s.toggleSidebar))
	mux.Handle("GET /{$}", authed(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/clients", http.StatusFound)
	}))

	mux.Handle("GET /clients", authed(s.clientsPage))
	mux.Handle("POST /clients/save", authed(s.saveClient))
	mux.Handle("POST /clients/toggle", authed(s.toggleClient))
	mux.Handle("POST /clients/delete", authed(s.deleteClient))

	mux.Handle("GET /staff", authed(s.staffPage))
	mux.Handle("POST /staff/save", authed(s.saveStaff))
	mux.Handle("POST /staff/toggle", authed(s.toggleStaff))
	mux.Handle("POST /staff/delete", authed(s.deleteStaff))

	mux.Handle("GET /tables", authed(s.tablesPage))
	mux.Handle("POST /groups/create", authed(s.createGroup))
	mux.Handle("POST /tables/editor", authed(s.editTableFields))
	mux.Handle("POST /tables/save", authed(s.saveTable))
	mux.Handle("POST /tables/toggle", authed(s.toggleTable))
	mux.Handle("POST /tables/delete", authed(s.deleteTable))
	mux.Handle("GET /tables/template", authed(s.tableTemplate))

	mux.Handle("GET /cards", authed(s.cardsPage))
	mux.Handle("GET /cards/search", authed(s.searchCards))
	mux.Handle("POST /cards/select", authed(s.selectCards))
	mux.Handle("POST /cards/action", authed(s.cardAction))
	mux.Handle("POST /cards/save", authed(s.saveCard))
	mux.Handle("POST /cards/upload", authed(s.inspectUpload))
	mux.Handle("POST /cards/reupload", authed(s.reuploadImages))
	mux.Handle("POST /cards/download", authed(s.downloadCards))

	mux.Handle("POST /confirm", authed(s.answerConfirm))

	mux.Handle("GET /profile", authed(s.profilePage))
	mux.Handle("POST /profile/update", authed(s.updateProfile))
	mux.Handle("POST /profile/password", authed(s.changePassword))
	mux.Handle("POST /profile/image", authed(s.uploadProfileImage))
	mux.Handle("POST /profile/image/remove", authed(s.removeProfileImage))

	mux.Handle("GET /search", authed(s.searchPage))
	mux.Handle("GET /media/{name...}", authed(s.media))
	mux.Handle("GET /ws", authed(s.hub.ServeHTTP))

	return mux
}

type contextKey string

const sessionContextKey contextKey = "session"

// requireSession sends browsers without admin API cookies to the login
// page. The API itself decides whether the session is still good.
func (s *server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := adminapi.SessionFromRequest(r)
		if !sess.Valid() {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionOf(r *http.Request) adminapi.Session {
	sess, _ := r.Context().Value(sessionContextKey).(adminapi.Session)
	return sess
}

func (s *server) markPlaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.SecureCookies {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) csrfFailed(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("csrf check failed", zap.String("path", r.URL.Path), zap.Error(csrf.FailureReason(r)))
	http.Error(w, "Your form has expired. Reload the page and try again.", http.StatusForbidden)
}

// layout is what every page template gets.
type layout struct {
	Title      string
	Nav        string
	CSRFField  template.HTML
	Toast      *toast.Toast
	Confirm    *drawer.Prompt
	Collapsed  bool
	Topic      string
	Self       string
	DebounceMS int
}

func (s *server) layoutFor(r *http.Request, title, nav string) layout {
	l := layout{
		Title:      title,
		Nav:        nav,
		CSRFField:  csrf.TemplateField(r),
		Self:       r.URL.RequestURI(),
		DebounceMS: int(listview.SearchDebounce / time.Millisecond),
	}
	if t, ok := toast.FromQuery(r.URL.Query()); ok {
		l.Toast = &t
	}
	if p, ok := s.confirms.Lookup(r.URL.Query().Get("confirm"), sessionOf(r).ID); ok {
		l.Confirm = &p
	}
	if c, err := r.Cookie(sidebarCookieName); err == nil && c.Value == "true" {
		l.Collapsed = true
	}
	return l
}

func (s *server) render(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.logger.Error("unknown page template", zap.String("page", page))
		http.Error(w, "template render failed", http.StatusInternalServerError)
		return
	}
	if err := renderHTMLTemplate(w, tmpl, data); err != nil {
		s.logger.Error("template render failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "template render failed", http.StatusInternalServerError)
	}
}

// loadFailed answers a page whose data could not be fetched. An expired
// session goes back to login.
func (s *server) loadFailed(w http.ResponseWriter, r *http.Request, what string, err error) {
	if errors.Is(err, adminapi.ErrUnauthorized) {
		http.Redirect(w, r, "/login?error="+url.QueryEscape("Session expired, please log in again"), http.StatusFound)
		return
	}
	if errors.Is(err, adminapi.ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	s.logger.Warn("page load failed", zap.String("path", r.URL.Path), zap.String("what", what), zap.Error(err))
	http.Error(w, "unable to load "+what, http.StatusBadGateway)
}

// finish redirects after a form post, carrying the outcome as a toast.
func (s *server) finish(w http.ResponseWriter, r *http.Request, target string, t toast.Toast) {
	if t.Kind == toast.KindError {
		s.logger.Debug("action failed", zap.String("path", r.URL.Path), zap.String("message", t.Message))
	}
	http.Redirect(w, r, toast.Redirect(target, t), http.StatusSeeOther)
}

// failed is finish for an API error. An expired session goes to login.
func (s *server) failed(w http.ResponseWriter, r *http.Request, target string, err error, fallback string) {
	if errors.Is(err, adminapi.ErrUnauthorized) {
		http.Redirect(w, r, "/login?error="+url.QueryEscape("Session expired, please log in again"), http.StatusSeeOther)
		return
	}
	s.finish(w, r, target, toast.FromError(err, fallback))
}

// returnTo reads the form's return path, only accepting local paths.
func returnTo(r *http.Request, fallback string) string {
	raw := strings.TrimSpace(r.FormValue("return"))
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	q := u.Query()
	for _, k := range []string{"message", "error", "info", "confirm"} {
		q.Del(k)
	}
	u.RawQuery = q.Encode()
	return u.RequestURI()
}

// withParams rewrites target's query. An empty value removes the key.
func withParams(target string, kv ...string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			q.Del(kv[i])
			continue
		}
		q.Set(kv[i], kv[i+1])
	}
	u.RawQuery = q.Encode()
	return u.RequestURI()
}

func formID(r *http.Request, name string) int64 {
	return parseID(r.FormValue(name))
}

func queryID(r *http.Request, name string) int64 {
	return parseID(r.URL.Query().Get(name))
}

func idString(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// refresh tells open tabs on topic to re-fetch.
func (s *server) refresh(topic string) {
	s.refreshMu.Lock()
	d, ok := s.refreshers[topic]
	if !ok {
		d = listview.NewDebouncer(refreshCoalesce)
		s.refreshers[topic] = d
	}
	s.refreshMu.Unlock()
	d.Trigger(func() {
		n := s.hub.Publish(topic, livehub.Event{Type: livehub.EventRefresh, Topic: topic})
		s.logger.Debug("refresh published", zap.String("topic", topic), zap.Int("clients", n))
	})
}
