package igclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	c := New("user", "pw", t.TempDir())
	c.baseURL = ts.URL
	c.httpClient = ts.Client()
	c.maxAttempts = 3
	c.baseBackoff = 10 * time.Millisecond
	return c
}

func writePage(w http.ResponseWriter, users []AccountUser, next string) {
	_ = json.NewEncoder(w).Encode(listPage{Users: users, NextMaxID: next, Status: "ok"})
}

func TestFetchFollowersPagination(t *testing.T) {
	pages := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		switch r.URL.Query().Get("max_id") {
		case "":
			writePage(w, []AccountUser{{PK: "1", Username: "a"}, {PK: "2", Username: "b"}}, "cursor-2")
		case "cursor-2":
			writePage(w, []AccountUser{{PK: "3", Username: "c"}}, "")
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("max_id"))
		}
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	c.session.UserID = "me"
	got, err := c.FetchFollowers(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].PK != "3" {
		t.Fatalf("depaginated list: %+v", got)
	}
	if pages != 2 {
		t.Fatalf("pages fetched: %d", pages)
	}
}

func TestFetchListLimitStopsPaging(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, []AccountUser{{PK: "1"}, {PK: "2"}, {PK: "3"}}, "more")
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	c.session.UserID = "me"
	got, err := c.FetchFollowing(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("limit: %d", len(got))
	}
}

func TestFetchListReloginOnce(t *testing.T) {
	logins := 0
	authorized := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			logins++
			authorized = true
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s3cr3t"})
			fmt.Fprint(w, `{"logged_in_user":{"pk":"me"},"status":"ok"}`)
			return
		}
		if !authorized {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writePage(w, []AccountUser{{PK: "1", Username: "a"}}, "")
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	c.session.UserID = "stale"
	got, err := c.FetchFollowers(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("list after relogin: %+v", got)
	}
	if logins != 1 {
		t.Fatalf("exactly one relogin expected, got %d", logins)
	}
	if c.session.Cookies["sessionid"] != "s3cr3t" {
		t.Fatalf("session cookies not absorbed: %+v", c.session.Cookies)
	}
}

func TestFetchListAuthFailureAfterReloginSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"status":"fail"}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	c.session.UserID = "stale"
	if _, err := c.FetchFollowers(context.Background(), 0); err == nil {
		t.Fatal("rejected relogin must surface")
	}
}

func TestDoWithRetryHandles429(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	resp, err := c.doWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestFetchProfileMapping(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("username"); got != "alice" {
			t.Errorf("username param: %q", got)
		}
		fmt.Fprint(w, `{"user":{"pk":"9","username":"alice","full_name":"Alice A",
			"biography":"hi","external_url":"https://a.example","is_private":true,
			"is_verified":false,"follower_count":42,"following_count":7,"media_count":3},"status":"ok"}`)
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	p, err := c.FetchProfile(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "9" || p.Website != "https://a.example" || !p.IsPrivate || p.FollowersCount != 42 {
		t.Fatalf("profile mapping: %+v", p)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewSession("user", dir)
	s.UserID = "me"
	s.Cookies["sessionid"] = "abc"
	if err := s.dump(); err != nil {
		t.Fatal(err)
	}
	loaded := NewSession("user", dir)
	if loaded.UserID != "me" || loaded.Cookies["sessionid"] != "abc" {
		t.Fatalf("session round trip: %+v", loaded)
	}
}

func TestEnsureSessionReusesValidSession(t *testing.T) {
	logins := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			logins++
			fmt.Fprint(w, `{"logged_in_user":{"pk":"me"},"status":"ok"}`)
			return
		}
		writePage(w, []AccountUser{{PK: "1"}}, "")
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	c.session.UserID = "me"
	if err := c.EnsureSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	if logins != 0 {
		t.Fatalf("valid session must be reused, got %d logins", logins)
	}
}
