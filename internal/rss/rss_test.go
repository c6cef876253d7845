package rss

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deusflow/newswire/internal/news"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Kolkata Times</title>
  <item>
    <title>India real estate demand climbs</title>
    <link>https://kt.example/1</link>
    <description>Developers report record bookings.</description>
    <pubDate>Wed, 03 Jan 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Cricket final tonight</title>
    <link>https://kt.example/2</link>
    <description>Tickets sold out.</description>
    <pubDate>Wed, 03 Jan 2024 11:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Budget preview</title>
    <link>https://kt.example/3</link>
    <description>What the INDIA PROPERTY MARKET expects.</description>
  </item>
</channel>
</rss>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReaderFiltersByKeywords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sampleFeed)
	}))
	defer srv.Close()

	keywords := []string{"India real estate", "India property market"}
	r := NewReader([]string{srv.URL, srv.URL + "/broken-but-200"}, keywords, 5*time.Second, quietLogger())

	got, err := r.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	// Both URLs serve the same feed.
	if len(got) != 4 {
		t.Fatalf("expected 4 matching entries, got %d: %+v", len(got), got)
	}
	first := got[0]
	if first.Source != "Kolkata Times" || first.URL != "https://kt.example/1" {
		t.Fatalf("unexpected article %+v", first)
	}
	if !first.PublishedAt.Equal(time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("PublishedAt = %v", first.PublishedAt)
	}
	if got[1].HasPublished() {
		t.Fatalf("entry without a date should have no publish time: %+v", got[1])
	}

	single, err := r.Fetch(context.Background(), "india real estate")
	if err != nil {
		t.Fatal(err)
	}
	if len(single) != 2 {
		t.Fatalf("expected 2 entries for a single keyword, got %d", len(single))
	}
}

func TestReaderSkipsFailingFeeds(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleFeed)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer bad.Close()

	r := NewReader([]string{bad.URL, good.URL}, []string{"cricket"}, 5*time.Second, quietLogger())
	got, err := r.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Cricket final tonight" {
		t.Fatalf("unexpected articles %+v", got)
	}

	onlyBad := NewReader([]string{bad.URL}, []string{"cricket"}, 5*time.Second, quietLogger())
	if _, err := onlyBad.Fetch(context.Background(), ""); err == nil {
		t.Fatal("expected error when every feed fails")
	}
}

func TestMatches(t *testing.T) {
	a := news.Article{Title: "Kolkata flats", Summary: "Prices in India Real Estate rise"}
	if !Matches(a, []string{"india real estate"}) {
		t.Fatal("expected case-insensitive match in summary")
	}
	if Matches(a, []string{"", "  "}) {
		t.Fatal("blank keywords never match")
	}
}

func TestLoadFeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(path, []byte("feeds:\n  - https://a.example/rss\n  - https://b.example/rss\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	feeds, err := LoadFeeds(path)
	if err != nil {
		t.Fatalf("LoadFeeds() error = %v", err)
	}
	if len(feeds) != 2 || feeds[1] != "https://b.example/rss" {
		t.Fatalf("unexpected feeds %v", feeds)
	}
}
