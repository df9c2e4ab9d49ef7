package igclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gramtrack/internal/logging"
)

// Session holds the cookie state reused between runs so we do not log in on
// every invocation. It is persisted as <dir>/<username>_session.json.
type Session struct {
	Username string            `json:"username"`
	UserID   string            `json:"user_id"`
	Cookies  map[string]string `json:"cookies"`

	path string
}

// NewSession loads a stored session for username from dir, or returns an
// empty one if no file exists.
func NewSession(username, dir string) *Session {
	s := &Session{Username: username, Cookies: map[string]string{}}
	if dir == "" {
		dir = "session"
	}
	s.path = filepath.Join(dir, username+"_session.json")
	if b, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(b, s); err != nil {
			logging.Error("session_load_failed", map[string]any{"path": s.path, "error": err.Error()})
			s.UserID = ""
			s.Cookies = map[string]string{}
		}
	}
	return s
}

// Apply attaches the session cookies to an outgoing request.
func (s *Session) Apply(req *http.Request) {
	if len(s.Cookies) == 0 {
		return
	}
	parts := make([]string, 0, len(s.Cookies))
	for k, v := range s.Cookies {
		parts = append(parts, k+"="+v)
	}
	req.Header.Set("Cookie", strings.Join(parts, "; "))
	if tok, ok := s.Cookies["csrftoken"]; ok {
		req.Header.Set("X-CSRFToken", tok)
	}
}

// absorb records cookies from a login response.
func (s *Session) absorb(resp *http.Response) {
	for _, c := range resp.Cookies() {
		if c.Value != "" {
			s.Cookies[c.Name] = c.Value
		}
	}
}

// dump persists the session next to other sessions for this account.
func (s *Session) dump() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}

// Login performs a username/password login and persists the new session.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return errors.New("igclient: missing credentials")
	}
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)
	u := c.baseURL + "/accounts/login/"
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("igclient: login status %d", resp.StatusCode)
	}
	var raw struct {
		LoggedInUser struct {
			PK string `json:"pk"`
		} `json:"logged_in_user"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return err
	}
	if raw.LoggedInUser.PK == "" {
		return errors.New("igclient: login rejected")
	}
	c.session.UserID = raw.LoggedInUser.PK
	c.session.absorb(resp)
	if err := c.session.dump(); err != nil {
		logging.Error("session_dump_failed", map[string]any{"error": err.Error()})
	}
	logging.Info("login_ok", map[string]any{"username": c.username, "user_id": c.session.UserID})
	return nil
}

// EnsureSession reuses the stored session when it still works, otherwise logs
// in again. Mirrors the stored-session-then-login flow of the upstream client.
func (c *Client) EnsureSession(ctx context.Context) error {
	if c.session.UserID != "" {
		if _, err := c.fetchListOnce(ctx, "following", 1); err == nil {
			return nil
		} else if !errors.Is(err, ErrAuth) {
			return err
		}
		logging.Info("session_stale", map[string]any{"username": c.username})
	}
	return c.Login(ctx)
}
