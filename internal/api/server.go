// Package api exposes the report store and the account source over HTTP for
// the frontend. Handlers reply with a {success, data, ...} JSON envelope.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"gramtrack/internal/config"
	"gramtrack/internal/igclient"
	"gramtrack/internal/jobs"
	"gramtrack/internal/logging"
	"gramtrack/internal/metrics"
	"gramtrack/internal/model"
	"gramtrack/internal/snapshot"
)

// ReportStore is what the handlers need from the report repository.
type ReportStore interface {
	jobs.ReportStore
	FindRecent(ctx context.Context, limit int) ([]model.Report, error)
}

// ProfileCache is the cache-aside store behind the user detail endpoint.
type ProfileCache interface {
	FindByUsername(ctx context.Context, username string) (*model.ProfileCacheEntry, error)
	Upsert(ctx context.Context, username string, p model.Profile, ttlDays int) (*model.ProfileCacheEntry, error)
}

// Server holds the collaborators, injected at startup.
type Server struct {
	cfg    config.Config
	store  ReportStore
	cache  ProfileCache
	source igclient.Source
	loc    *time.Location
}

func New(cfg config.Config, store ReportStore, cache ProfileCache, source igclient.Source, loc *time.Location) *Server {
	return &Server{cfg: cfg, store: store, cache: cache, source: source, loc: loc}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/followers", s.handleFollowers)
	r.Get("/api/following", s.handleFollowing)
	r.Get("/api/reports", s.handleReports)
	r.Get("/api/reports/latest", s.handleLatestReport)
	r.Post("/api/reports/generate", s.handleGenerateReport)
	r.Get("/api/user/{username}", s.handleUserDetails)
	r.Get("/api/not-following-back", s.handleNotFollowingBack)
	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logging.Info("api_listen", map[string]any{"addr": addr})
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeCounted(w http.ResponseWriter, data any, count int) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Count: &count})
}

func limitParam(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) fetchList(w http.ResponseWriter, r *http.Request,
	fetch func(ctx context.Context, limit int) ([]igclient.AccountUser, error)) {
	raw, err := fetch(r.Context(), limitParam(r, 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	users, err := snapshot.Normalize(raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeCounted(w, users, len(users))
}

func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request) {
	s.fetchList(w, r, s.source.FetchFollowers)
}

func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	s.fetchList(w, r, s.source.FetchFollowing)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.FindRecent(r.Context(), limitParam(r, 10))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeData(w, reports)
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.FindLatest(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rep == nil {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "No reports found"})
		return
	}
	writeData(w, rep)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	deps := jobs.Deps{Store: s.store, Source: s.source, Loc: s.loc}
	rep, err := jobs.RunDailyReport(r.Context(), deps, jobs.Options{Force: force})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rep, Message: "Report generated successfully"})
}

func (s *Server) handleUserDetails(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	ctx := r.Context()

	if cached, err := s.cache.FindByUsername(ctx, username); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	} else if cached != nil {
		metrics.IncProfileCache("hit")
		writeData(w, s.withRelationship(ctx, cached.Profile))
		return
	}
	metrics.IncProfileCache("miss")

	profile, err := s.source.FetchProfile(ctx, username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := s.cache.Upsert(ctx, username, profile, s.cfg.Cache.ProfileTTLDays); err != nil {
		logging.Error("profile_cache_upsert_failed", map[string]any{"username": username, "error": err.Error()})
	}
	writeData(w, s.withRelationship(ctx, profile))
}

type userDetails struct {
	model.Profile
	RelationshipStatus relationshipStatus `json:"relationship_status"`
}

type relationshipStatus struct {
	IsFollowingUs  bool `json:"is_following_us"`
	WeAreFollowing bool `json:"we_are_following"`
	IsMutual       bool `json:"is_mutual"`
}

// withRelationship annotates a profile with its tags from the latest report.
func (s *Server) withRelationship(ctx context.Context, p model.Profile) userDetails {
	out := userDetails{Profile: p}
	rep, err := s.store.FindLatest(ctx, nil)
	if err != nil || rep == nil {
		return out
	}
	if u, ok := rep.UserByUsername(p.Username); ok {
		out.RelationshipStatus = relationshipStatus{
			IsFollowingUs:  u.HasType(model.TypeFollower),
			WeAreFollowing: u.HasType(model.TypeFollowing),
			IsMutual:       u.IsMutual(),
		}
	}
	return out
}

type notFollowingBackRow struct {
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
	InstagramURL  string `json:"instagram_url"`
}

func (s *Server) handleNotFollowingBack(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.FindLatest(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rep == nil {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "No reports found"})
		return
	}
	excluded := make(map[string]bool, len(s.cfg.Report.NotFollowingBackExceptions))
	for _, name := range s.cfg.Report.NotFollowingBackExceptions {
		excluded[strings.ToLower(strings.TrimSpace(name))] = true
	}
	rows := []notFollowingBackRow{}
	for _, u := range rep.NonMutualFollowing() {
		username := strings.TrimSpace(u.Username)
		if excluded[strings.ToLower(username)] {
			continue
		}
		rows = append(rows, notFollowingBackRow{
			Username:      username,
			FullName:      u.FullName,
			ProfilePicURL: u.ProfilePicURL,
			InstagramURL:  "https://www.instagram.com/" + username + "/",
		})
	}
	writeCounted(w, rows, len(rows))
}
