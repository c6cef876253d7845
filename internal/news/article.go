// Package news holds the article and record types shared by the fetchers,
// the deduplication engine and the state store.
package news

import (
	"strings"
	"time"
)

// Article is a single item returned by a source. Any field may be blank.
type Article struct {
	Title    string
	URL      string
	Summary  string
	FullText string
	// PublishedAt is zero when the source gave no date or an unparseable one.
	PublishedAt time.Time
	// PublishedRaw keeps the source value when it could not be parsed, so it
	// survives a round trip through the store.
	PublishedRaw string
	Source       string
}

// Key is the identity of a persisted record.
type Key struct {
	Title string
	URL   string
}

// KeyOf returns the identity key of an article: exact title and url after trimming.
func KeyOf(a Article) Key {
	return Key{Title: strings.TrimSpace(a.Title), URL: strings.TrimSpace(a.URL)}
}

// CombinedText joins the fields used for similarity comparison.
func (a Article) CombinedText() string {
	return a.Title + " " + a.Summary + " " + a.FullText
}

// HasPublished reports whether the article carries a parsed publish time.
func (a Article) HasPublished() bool {
	return !a.PublishedAt.IsZero()
}

// Field is a passthrough column carried by a record.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is an article persisted in the store together with its delivery state.
type Record struct {
	Article
	Delivered bool
	// Extra holds columns the store does not interpret, in file order.
	Extra []Field
}

// Key returns the record identity key.
func (r Record) Key() Key {
	return KeyOf(r.Article)
}

// ExtraValue looks up a passthrough column.
func (r Record) ExtraValue(name string) (string, bool) {
	for _, f := range r.Extra {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Unsent returns the records that still need delivery, in order.
func Unsent(records []Record) []int {
	var idx []int
	for i, r := range records {
		if !r.Delivered {
			idx = append(idx, i)
		}
	}
	return idx
}
