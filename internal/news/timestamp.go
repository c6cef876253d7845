package news

import (
	"strings"
	"time"
)

// timeLayouts covers what the news APIs, RSS feeds and older CSV exports emit.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02",
}

// ParseTime parses a publish timestamp in any supported layout and returns it in UTC.
// Blank or unrecognized input returns false.
func ParseTime(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// SetPublished fills PublishedAt from raw, keeping raw when it does not parse.
func (a *Article) SetPublished(raw string) {
	if t, ok := ParseTime(raw); ok {
		a.PublishedAt = t
		a.PublishedRaw = ""
		return
	}
	a.PublishedAt = time.Time{}
	a.PublishedRaw = strings.TrimSpace(raw)
}

// PublishedString is the persisted form of the publish time.
func (a Article) PublishedString() string {
	if a.HasPublished() {
		return a.PublishedAt.UTC().Format(time.RFC3339Nano)
	}
	return a.PublishedRaw
}
