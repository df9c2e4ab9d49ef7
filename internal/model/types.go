package model

import "time"

// Relationship tags carried by a report row.
const (
	TypeFollower  = "follower"
	TypeFollowing = "following"
)

// User is the canonical shape of one account as seen in a snapshot.
// Field names are the stored-document compatibility surface; do not rename.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
}

// TaggedUser is a User annotated with its relationship to the tracked account.
type TaggedUser struct {
	User
	Type []string `json:"type"`
}

// HasType reports whether t carries the given relationship tag.
func (t TaggedUser) HasType(typ string) bool {
	for _, v := range t.Type {
		if v == typ {
			return true
		}
	}
	return false
}

// IsMutual reports whether the user both follows and is followed.
func (t TaggedUser) IsMutual() bool {
	return t.HasType(TypeFollower) && t.HasType(TypeFollowing)
}

// Stats summarizes the deltas between a report and its predecessor.
type Stats struct {
	NewFollowersCount  int    `json:"new_followers_count"`
	LostFollowersCount int    `json:"lost_followers_count"`
	NewFollowingCount  int    `json:"new_following_count"`
	UnfollowedCount    int    `json:"unfollowed_count"`
	NetFollowerChange  int    `json:"net_follower_change"`
	NetFollowingChange int    `json:"net_following_change"`
	PreviousReportDate string `json:"previous_report_date"`
}

// Report is one day's follower/following snapshot plus the diff against the
// previous report. Immutable once the diff fields are filled in.
type Report struct {
	ID           string       `json:"id"`
	GeneratedAt  time.Time    `json:"generated_at"`
	NumFollowers int          `json:"num_followers"`
	NumFollowing int          `json:"num_following"`
	Users        []TaggedUser `json:"users"`

	NewFollowers  []string `json:"new_followers"`
	LostFollowers []string `json:"lost_followers"`
	NewFollowing  []string `json:"new_following"`
	Unfollowed    []string `json:"unfollowed"`

	// Stats is nil on the first report (no predecessor to diff against).
	Stats *Stats `json:"stats,omitempty"`
}

// UsersByType returns all users carrying the given tag.
func (r *Report) UsersByType(typ string) []TaggedUser {
	var out []TaggedUser
	for _, u := range r.Users {
		if u.HasType(typ) {
			out = append(out, u)
		}
	}
	return out
}

// UserIDsByType returns the id set of users carrying the given tag.
func (r *Report) UserIDsByType(typ string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, u := range r.Users {
		if u.HasType(typ) && u.ID != "" {
			out[u.ID] = struct{}{}
		}
	}
	return out
}

// MutualUsers returns users who follow and are followed back.
func (r *Report) MutualUsers() []TaggedUser {
	var out []TaggedUser
	for _, u := range r.Users {
		if u.IsMutual() {
			out = append(out, u)
		}
	}
	return out
}

// NonMutualFollowers returns users who follow us but we do not follow back.
func (r *Report) NonMutualFollowers() []TaggedUser {
	var out []TaggedUser
	for _, u := range r.Users {
		if u.HasType(TypeFollower) && !u.HasType(TypeFollowing) {
			out = append(out, u)
		}
	}
	return out
}

// NonMutualFollowing returns users we follow who do not follow us back.
func (r *Report) NonMutualFollowing() []TaggedUser {
	var out []TaggedUser
	for _, u := range r.Users {
		if u.HasType(TypeFollowing) && !u.HasType(TypeFollower) {
			out = append(out, u)
		}
	}
	return out
}

// UserByID looks up a report row by id.
func (r *Report) UserByID(id string) (TaggedUser, bool) {
	for _, u := range r.Users {
		if u.ID == id {
			return u, true
		}
	}
	return TaggedUser{}, false
}

// UserByUsername looks up a report row by username.
func (r *Report) UserByUsername(username string) (TaggedUser, bool) {
	for _, u := range r.Users {
		if u.Username == username {
			return u, true
		}
	}
	return TaggedUser{}, false
}

// Profile is the extended view of one account, fetched on demand.
type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	ProfilePicURL  string `json:"profile_pic_url"`
	Biography      string `json:"biography"`
	Website        string `json:"website"`
	IsPrivate      bool   `json:"is_private"`
	IsVerified     bool   `json:"is_verified"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
	MediaCount     int    `json:"media_count"`
}

// ProfileCacheEntry is a Profile with an expiry; stale entries read as absent.
type ProfileCacheEntry struct {
	Profile
	ExpireAt time.Time `json:"expire_at"`
}

// Expired reports whether the entry is stale at the given instant.
func (e ProfileCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpireAt)
}
