// Package snapshot converts raw upstream profile records into the canonical
// user shape the report pipeline operates on.
package snapshot

import (
	"errors"
	"fmt"

	"gramtrack/internal/igclient"
	"gramtrack/internal/model"
)

// ErrMissingID marks a record without an identifier. Such a user cannot be
// deduplicated or diffed, so the whole batch fails rather than dropping it.
var ErrMissingID = errors.New("snapshot: record missing id")

// Normalize maps raw account records to canonical users. Absent optional
// fields become empty strings so downstream string handling stays total.
func Normalize(raw []igclient.AccountUser) ([]model.User, error) {
	out := make([]model.User, 0, len(raw))
	for i, r := range raw {
		if r.PK == "" {
			return nil, fmt.Errorf("%w (record %d, username %q)", ErrMissingID, i, r.Username)
		}
		out = append(out, model.User{
			ID:            r.PK,
			Username:      r.Username,
			FullName:      r.FullName,
			ProfilePicURL: r.ProfilePicURL,
		})
	}
	return out, nil
}
