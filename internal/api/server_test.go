package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gramtrack/internal/config"
	"gramtrack/internal/igclient"
	"gramtrack/internal/model"
	"gramtrack/internal/report"
	"gramtrack/internal/store/reportdb"
)

type fakeSource struct {
	followers []igclient.AccountUser
	following []igclient.AccountUser
	profiles  map[string]model.Profile
	profileFetches int
}

func (f *fakeSource) FetchFollowers(ctx context.Context, limit int) ([]igclient.AccountUser, error) {
	return f.followers, nil
}

func (f *fakeSource) FetchFollowing(ctx context.Context, limit int) ([]igclient.AccountUser, error) {
	return f.following, nil
}

func (f *fakeSource) FetchProfile(ctx context.Context, username string) (model.Profile, error) {
	f.profileFetches++
	p, ok := f.profiles[username]
	if !ok {
		return model.Profile{}, errors.New("profile not found")
	}
	return p, nil
}

func newTestServer(t *testing.T, src *fakeSource) (*Server, *reportdb.ReportRepository) {
	t.Helper()
	db, err := reportdb.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	cfg := config.Default()
	cfg.Report.NotFollowingBackExceptions = []string{"Bestie"}
	store := reportdb.NewReportRepository(db)
	cache := reportdb.NewProfileCacheRepository(db)
	return New(cfg, store, cache, src, time.UTC), store
}

func doReq(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeSource{})
	rec, _ := doReq(t, s, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("body: %v", body)
	}
}

func TestLatestReportNotFound(t *testing.T) {
	s, _ := newTestServer(t, &fakeSource{})
	rec, env := doReq(t, s, http.MethodGet, "/api/reports/latest")
	if rec.Code != http.StatusNotFound || env.Success {
		t.Fatalf("want 404 envelope, got %d %+v", rec.Code, env)
	}
}

func TestGenerateThenFetchReports(t *testing.T) {
	src := &fakeSource{
		followers: []igclient.AccountUser{{PK: "u1", Username: "one"}},
		following: []igclient.AccountUser{{PK: "u1", Username: "one"}, {PK: "u2", Username: "two"}},
	}
	s, _ := newTestServer(t, src)

	rec, env := doReq(t, s, http.MethodPost, "/api/reports/generate")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("generate: %d %+v", rec.Code, env)
	}
	if env.Message != "Report generated successfully" {
		t.Fatalf("message: %q", env.Message)
	}

	rec, env = doReq(t, s, http.MethodGet, "/api/reports/latest")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("latest: %d %+v", rec.Code, env)
	}

	rec, env = doReq(t, s, http.MethodGet, "/api/reports?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("reports: %d", rec.Code)
	}
	items, ok := env.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("reports data: %+v", env.Data)
	}
}

func TestFollowersEndpointNormalizes(t *testing.T) {
	src := &fakeSource{
		followers: []igclient.AccountUser{{PK: "u1", Username: "one", FullName: "Full one"}},
	}
	s, _ := newTestServer(t, src)
	rec, env := doReq(t, s, http.MethodGet, "/api/followers")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("followers: %d %+v", rec.Code, env)
	}
	if env.Count == nil || *env.Count != 1 {
		t.Fatalf("count: %+v", env.Count)
	}
	b, _ := json.Marshal(env.Data)
	var users []model.User
	if err := json.Unmarshal(b, &users); err != nil {
		t.Fatal(err)
	}
	if users[0].ID != "u1" || users[0].FullName != "Full one" {
		t.Fatalf("normalized user: %+v", users[0])
	}
}

func TestUserDetailsCacheAside(t *testing.T) {
	src := &fakeSource{
		profiles: map[string]model.Profile{
			"alice": {ID: "9", Username: "alice", FollowersCount: 42},
		},
	}
	s, _ := newTestServer(t, src)

	rec, env := doReq(t, s, http.MethodGet, "/api/user/alice")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("first lookup: %d %+v", rec.Code, env)
	}
	if src.profileFetches != 1 {
		t.Fatalf("fetches after miss: %d", src.profileFetches)
	}

	// second lookup is served from the cache
	rec, env = doReq(t, s, http.MethodGet, "/api/user/alice")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("second lookup: %d %+v", rec.Code, env)
	}
	if src.profileFetches != 1 {
		t.Fatalf("cache hit must not fetch: %d", src.profileFetches)
	}
}

func TestUserDetailsRelationshipFromLatestReport(t *testing.T) {
	src := &fakeSource{
		profiles: map[string]model.Profile{"mutual": {ID: "m", Username: "mutual"}},
	}
	s, store := newTestServer(t, src)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rep := report.Build(
		[]model.User{{ID: "m", Username: "mutual"}},
		[]model.User{{ID: "m", Username: "mutual"}},
		day,
	)
	if err := store.Save(context.Background(), rep); err != nil {
		t.Fatal(err)
	}

	rec, env := doReq(t, s, http.MethodGet, "/api/user/mutual")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	b, _ := json.Marshal(env.Data)
	var details struct {
		RelationshipStatus struct {
			IsFollowingUs  bool `json:"is_following_us"`
			WeAreFollowing bool `json:"we_are_following"`
			IsMutual       bool `json:"is_mutual"`
		} `json:"relationship_status"`
	}
	if err := json.Unmarshal(b, &details); err != nil {
		t.Fatal(err)
	}
	rs := details.RelationshipStatus
	if !rs.IsFollowingUs || !rs.WeAreFollowing || !rs.IsMutual {
		t.Fatalf("relationship: %+v", rs)
	}
}

func TestNotFollowingBack(t *testing.T) {
	s, store := newTestServer(t, &fakeSource{})
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rep := report.Build(
		[]model.User{{ID: "f", Username: "fan"}},
		[]model.User{
			{ID: "f", Username: "fan"},        // mutual, excluded
			{ID: "x", Username: "celeb"},      // following only, listed
			{ID: "b", Username: "bestie"},     // following only, but configured exception
		},
		day,
	)
	if err := store.Save(context.Background(), rep); err != nil {
		t.Fatal(err)
	}

	rec, env := doReq(t, s, http.MethodGet, "/api/not-following-back")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status: %d %+v", rec.Code, env)
	}
	b, _ := json.Marshal(env.Data)
	var rows []struct {
		Username     string `json:"username"`
		InstagramURL string `json:"instagram_url"`
	}
	if err := json.Unmarshal(b, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Username != "celeb" {
		t.Fatalf("rows: %+v", rows)
	}
	if rows[0].InstagramURL != "https://www.instagram.com/celeb/" {
		t.Fatalf("url: %s", rows[0].InstagramURL)
	}
}

func TestNotFollowingBackNoReports(t *testing.T) {
	s, _ := newTestServer(t, &fakeSource{})
	rec, env := doReq(t, s, http.MethodGet, "/api/not-following-back")
	if rec.Code != http.StatusNotFound || env.Success {
		t.Fatalf("want 404, got %d %+v", rec.Code, env)
	}
}
