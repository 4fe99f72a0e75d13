package postgres

import (
	"time"

	"github.com/user/storewatch/internal/entity"
)

// nextFirstDead returns the first_dead_date to store when a store moves
// from prev to next. It is stamped on the edge into DEAD, cleared on the
// edge out of DEAD and otherwise carried over, so repeated DEAD results
// keep the start of the episode.
func nextFirstDead(prev entity.Status, prevFirstDead *time.Time, next entity.Status, now time.Time) *time.Time {
	switch {
	case next == entity.StatusDead && prev != entity.StatusDead:
		return &now
	case next != entity.StatusDead && prev == entity.StatusDead:
		return nil
	default:
		return prevFirstDead
	}
}

// newlyDeadURLs keeps the URLs of transitions into DEAD, once each, in
// input order.
func newlyDeadURLs(changes []entity.StatusChange) []string {
	seen := make(map[string]struct{})
	urls := []string{}
	for _, c := range changes {
		if c.ToStatus != entity.StatusDead {
			continue
		}
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}
		urls = append(urls, c.URL)
	}
	return urls
}
