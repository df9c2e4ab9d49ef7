package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"gramtrack/internal/model"
)

// Render writes a human-readable summary of the report to w. With useColor
// false all ANSI sequences are suppressed (for files and dumb terminals).
func Render(r model.Report, w io.Writer, useColor bool) {
	title := color.New(color.FgCyan, color.Bold)
	section := color.New(color.FgYellow, color.Bold)
	gain := color.New(color.FgGreen)
	loss := color.New(color.FgRed)
	if !useColor {
		for _, c := range []*color.Color{title, section, gain, loss} {
			c.DisableColor()
		}
	}

	_, _ = title.Fprintf(w, "Follower Report - %s\n", r.GeneratedAt.Format("2006-01-02"))
	fmt.Fprintln(w, strings.Repeat("-", 50))

	renderIDs := func(c *color.Color, heading string, ids []string) {
		if len(ids) == 0 {
			return
		}
		_, _ = section.Fprintf(w, "\n%s:\n", heading)
		for _, id := range ids {
			if u, ok := r.UserByID(id); ok {
				_, _ = c.Fprintf(w, "  - %s (%s)\n", u.Username, u.FullName)
			} else {
				_, _ = c.Fprintf(w, "  - %s\n", id)
			}
		}
	}
	renderIDs(loss, "Lost Followers", r.LostFollowers)
	renderIDs(gain, "New Followers", r.NewFollowers)
	renderIDs(loss, "You Unfollowed", r.Unfollowed)
	renderIDs(gain, "You Started Following", r.NewFollowing)

	_, _ = section.Fprintf(w, "\nSummary:\n")
	fmt.Fprintf(w, "  Total Followers: %d\n", r.NumFollowers)
	fmt.Fprintf(w, "  Total Following: %d\n", r.NumFollowing)
	fmt.Fprintf(w, "  Mutuals: %d\n", len(r.MutualUsers()))
	if r.Stats != nil {
		fmt.Fprintf(w, "  Net follower change since %s: %+d\n", r.Stats.PreviousReportDate, r.Stats.NetFollowerChange)
		fmt.Fprintf(w, "  Net following change since %s: %+d\n", r.Stats.PreviousReportDate, r.Stats.NetFollowingChange)
	}
}
