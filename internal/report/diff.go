package report

import (
	"sort"

	"gramtrack/internal/model"
)

// Diff fills current's delta fields and stats from the previous report. The
// delta base sets are the tag-derived id sets of each report, not the raw
// snapshot counts. A nil previous is the first-report case: deltas stay empty
// and stats stays nil. Diff performs no I/O; persisting the result is the
// caller's job.
func Diff(current *model.Report, previous *model.Report) {
	if previous == nil {
		return
	}
	currF := current.UserIDsByType(model.TypeFollower)
	prevF := previous.UserIDsByType(model.TypeFollower)
	currG := current.UserIDsByType(model.TypeFollowing)
	prevG := previous.UserIDsByType(model.TypeFollowing)

	current.NewFollowers = subtract(currF, prevF)
	current.LostFollowers = subtract(prevF, currF)
	current.NewFollowing = subtract(currG, prevG)
	current.Unfollowed = subtract(prevG, currG)

	current.Stats = &model.Stats{
		NewFollowersCount:  len(current.NewFollowers),
		LostFollowersCount: len(current.LostFollowers),
		NewFollowingCount:  len(current.NewFollowing),
		UnfollowedCount:    len(current.Unfollowed),
		NetFollowerChange:  len(current.NewFollowers) - len(current.LostFollowers),
		NetFollowingChange: len(current.NewFollowing) - len(current.Unfollowed),
		PreviousReportDate: previous.GeneratedAt.Format("2006-01-02"),
	}
}

// subtract returns a - b as a sorted id slice. Sorting makes repeated runs
// over the same snapshots produce byte-identical documents.
func subtract(a, b map[string]struct{}) []string {
	out := make([]string, 0)
	for id := range a {
		if _, ok := b[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
