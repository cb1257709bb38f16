// Package adminapi is a typed client for the admin REST API that owns
// clients, staff, tables and cards.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	SessionCookieName = "sessionid"
	CSRFCookieName    = "csrftoken"
	CSRFHeaderName    = "X-CSRFToken"
)

var (
	ErrUnauthorized = errors.New("authentication required")
	ErrNotFound     = errors.New("not found")
)

// APIError is a failure reported by the admin API. Message is shown to the
// user verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api: %d %s", e.Status, e.Message)
}

func (e *APIError) UserMessage() string { return e.Message }

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Session is the browser's admin API credentials, forwarded on each call.
type Session struct {
	ID   string
	CSRF string
}

func (s Session) Valid() bool { return s.ID != "" }

// SessionFromRequest reads the admin API cookies off a dashboard request.
func SessionFromRequest(r *http.Request) Session {
	var s Session
	if c, err := r.Cookie(SessionCookieName); err == nil {
		s.ID = c.Value
	}
	if c, err := r.Cookie(CSRFCookieName); err == nil {
		s.CSRF = c.Value
	}
	return s
}

func (s Session) apply(req *http.Request) {
	var parts []string
	if s.ID != "" {
		parts = append(parts, SessionCookieName+"="+s.ID)
	}
	if s.CSRF != "" {
		parts = append(parts, CSRFCookieName+"="+s.CSRF)
		req.Header.Set(CSRFHeaderName, s.CSRF)
	}
	if len(parts) > 0 {
		req.Header.Set("Cookie", strings.Join(parts, "; "))
	}
}

// API talks to the admin API on behalf of one dashboard process. Calls
// carry the caller's Session.
type API struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *API) BaseURL() string { return c.baseURL }

type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

func (c *API) newRequest(ctx context.Context, s Session, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	s.apply(req)
	return req, nil
}

// getJSON issues a GET and decodes the envelope into out.
func (c *API) getJSON(ctx context.Context, s Session, path string, out any) error {
	req, err := c.newRequest(ctx, s, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

// postJSON issues a POST with payload as JSON. A nil payload sends {}.
func (c *API) postJSON(ctx context.Context, s Session, path string, payload, out any) error {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}
	req, err := c.newRequest(ctx, s, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *API) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("admin api unreachable", zap.String("path", req.URL.Path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	return decodeEnvelope(resp.StatusCode, raw, out)
}

func decodeEnvelope(status int, raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= http.StatusBadRequest {
			return &APIError{Status: status, Message: http.StatusText(status)}
		}
		return fmt.Errorf("decode admin api response: %w", err)
	}
	if status >= http.StatusBadRequest || (env.Success != nil && !*env.Success) {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = http.StatusText(status)
		}
		if status < http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		return &APIError{Status: status, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode admin api payload: %w", err)
	}
	return nil
}

// Message is the success text the admin API attaches to mutations.
type Message struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a session. The returned cookies are the
// admin API's Set-Cookie headers, ready to hand to the browser.
func (c *API) Login(ctx context.Context, username, password string) (Session, []*http.Cookie, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Session{}, nil, fmt.Errorf("encode login: %w", err)
	}
	req, err := c.newRequest(ctx, Session{}, http.MethodPost, "/api/auth/login/", bytes.NewReader(body))
	if err != nil {
		return Session{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, nil, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("admin api login response unreadable", zap.Error(err))
		return Session{}, nil, fmt.Errorf("read login response: %w", err)
	}
	if err := decodeEnvelope(resp.StatusCode, raw, nil); err != nil {
		return Session{}, nil, err
	}

	var s Session
	cookies := resp.Cookies()
	for _, ck := range cookies {
		switch ck.Name {
		case SessionCookieName:
			s.ID = ck.Value
		case CSRFCookieName:
			s.CSRF = ck.Value
		}
	}
	if !s.Valid() {
		return Session{}, nil, errors.New("login: admin api did not return a session")
	}
	return s, cookies, nil
}

func (c *API) Logout(ctx context.Context, s Session) error {
	return c.postJSON(ctx, s, "/api/auth/logout/", nil, nil)
}

func pathID(format string, id int64) string {
	return fmt.Sprintf(format, id)
}

func query(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}
