package storage

import (
	"time"

	"github.com/deusflow/newswire/internal/news"
)

// LastPublished returns the newest parseable publish time among records.
// It reports false when no record carries a valid timestamp.
func LastPublished(records []news.Record) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, r := range records {
		if !r.HasPublished() {
			continue
		}
		if !found || r.PublishedAt.After(latest) {
			latest = r.PublishedAt
			found = true
		}
	}
	return latest, found
}
