// Package report builds daily follower/following reports and computes the
// deltas between consecutive reports.
package report

import (
	"time"

	"gramtrack/internal/model"
	"gramtrack/internal/timeutil"
)

// Build merges the two snapshots into one deduplicated, tagged report. An id
// present in both inputs yields a single row carrying both tags. Row order is
// first-seen order across followers then following; it carries no ranking.
func Build(followers, following []model.User, generatedAt time.Time) model.Report {
	followerIDs := idSet(followers)
	followingIDs := idSet(following)

	index := make(map[string]int, len(followers)+len(following))
	users := make([]model.TaggedUser, 0, len(followers)+len(following))
	for _, u := range append(append([]model.User{}, followers...), following...) {
		if _, seen := index[u.ID]; seen {
			continue
		}
		index[u.ID] = len(users)
		users = append(users, model.TaggedUser{User: u})
	}
	for i := range users {
		if _, ok := followerIDs[users[i].ID]; ok {
			users[i].Type = append(users[i].Type, model.TypeFollower)
		}
		if _, ok := followingIDs[users[i].ID]; ok {
			users[i].Type = append(users[i].Type, model.TypeFollowing)
		}
	}

	return model.Report{
		ID:            timeutil.DayKey(generatedAt),
		GeneratedAt:   generatedAt,
		NumFollowers:  len(followers),
		NumFollowing:  len(following),
		Users:         users,
		NewFollowers:  []string{},
		LostFollowers: []string{},
		NewFollowing:  []string{},
		Unfollowed:    []string{},
	}
}

func idSet(users []model.User) map[string]struct{} {
	s := make(map[string]struct{}, len(users))
	for _, u := range users {
		s[u.ID] = struct{}{}
	}
	return s
}
