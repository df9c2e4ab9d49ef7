package igclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"gramtrack/internal/model"
	"golang.org/x/time/rate"
)

// AccountUser is the raw profile record returned by the upstream API for
// follower/following listings. The snapshot normalizer converts these into
// canonical users.
type AccountUser struct {
	PK            string `json:"pk"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
}

// Source is the account data source consumed by the daily report job.
// Listings are returned de-paginated.
type Source interface {
	FetchFollowers(ctx context.Context, limit int) ([]AccountUser, error)
	FetchFollowing(ctx context.Context, limit int) ([]AccountUser, error)
	FetchProfile(ctx context.Context, username string) (model.Profile, error)
}

// ErrAuth marks responses that indicate the session is no longer valid.
var ErrAuth = errors.New("igclient: authentication required")

// Client talks to the Instagram private web API with a cookie session.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration

	username string
	password string
	session  *Session
}

// New creates a client for the given account. The session is loaded from
// sessionDir if present; Login must be called before fetching if no valid
// session exists.
func New(username, password, sessionDir string) *Client {
	return &Client{
		baseURL:     "https://i.instagram.com/api/v1",
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("IG_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("IG_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
		username:    username,
		password:    password,
		session:     NewSession(username, sessionDir),
	}
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Instagram 289.0.0.77.109 Android")
	c.session.Apply(req)
}

// UserID returns the authenticated account's id, empty until logged in.
func (c *Client) UserID() string { return c.session.UserID }

type listPage struct {
	Users     []AccountUser `json:"users"`
	NextMaxID string        `json:"next_max_id"`
	Status    string        `json:"status"`
}

// FetchFollowers returns the complete follower list. limit <= 0 means all.
func (c *Client) FetchFollowers(ctx context.Context, limit int) ([]AccountUser, error) {
	return c.fetchList(ctx, "followers", limit)
}

// FetchFollowing returns the complete following list. limit <= 0 means all.
func (c *Client) FetchFollowing(ctx context.Context, limit int) ([]AccountUser, error) {
	return c.fetchList(ctx, "following", limit)
}

// fetchList pages through a friendship listing using max_id cursors. On an
// auth failure it re-logs in once and restarts; a second failure surfaces.
func (c *Client) fetchList(ctx context.Context, kind string, limit int) ([]AccountUser, error) {
	out, err := c.fetchListOnce(ctx, kind, limit)
	if errors.Is(err, ErrAuth) {
		if lerr := c.Login(ctx); lerr != nil {
			return nil, lerr
		}
		return c.fetchListOnce(ctx, kind, limit)
	}
	return out, err
}

func (c *Client) fetchListOnce(ctx context.Context, kind string, limit int) ([]AccountUser, error) {
	if c.session.UserID == "" {
		return nil, ErrAuth
	}
	var out []AccountUser
	maxID := ""
	for {
		u := fmt.Sprintf("%s/friendships/%s/%s/?count=100", c.baseURL, url.PathEscape(c.session.UserID), kind)
		if maxID != "" {
			u += "&max_id=" + url.QueryEscape(maxID)
		}
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		c.auth(req)
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.doWithRetry(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			_ = resp.Body.Close()
			return nil, ErrAuth
		}
		if resp.StatusCode >= 400 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("ig api status %d", resp.StatusCode)
		}
		var page listPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, page.Users...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if page.NextMaxID == "" {
			return out, nil
		}
		maxID = page.NextMaxID
	}
}

// FetchProfile returns the extended profile of one account by username.
func (c *Client) FetchProfile(ctx context.Context, username string) (model.Profile, error) {
	var out model.Profile
	if username == "" {
		return out, errors.New("empty username")
	}
	u := fmt.Sprintf("%s/users/web_profile_info/?username=%s", c.baseURL, url.QueryEscape(username))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return out, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("ig api status %d", resp.StatusCode)
	}
	var raw struct {
		User struct {
			PK            string `json:"pk"`
			Username      string `json:"username"`
			FullName      string `json:"full_name"`
			ProfilePicURL string `json:"profile_pic_url"`
			Biography     string `json:"biography"`
			ExternalURL   string `json:"external_url"`
			IsPrivate     bool   `json:"is_private"`
			IsVerified    bool   `json:"is_verified"`
			FollowerCount int    `json:"follower_count"`
			FollowingCount int   `json:"following_count"`
			MediaCount    int    `json:"media_count"`
		} `json:"user"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	out = model.Profile{
		ID:             raw.User.PK,
		Username:       raw.User.Username,
		FullName:       raw.User.FullName,
		ProfilePicURL:  raw.User.ProfilePicURL,
		Biography:      raw.User.Biography,
		Website:        raw.User.ExternalURL,
		IsPrivate:      raw.User.IsPrivate,
		IsVerified:     raw.User.IsVerified,
		FollowersCount: raw.User.FollowerCount,
		FollowingCount: raw.User.FollowingCount,
		MediaCount:     raw.User.MediaCount,
	}
	return out, nil
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
