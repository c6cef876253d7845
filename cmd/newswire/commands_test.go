package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deusflow/newswire/internal/metrics"
)

func writeConfig(t *testing.T, store string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newswire.yaml")
	body := "keywords: [\"India housing\"]\nstore:\n  backend: csv\n  path: " + store + "\nlogging:\n  level: error\n  format: text\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRecordsAndCursor(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "articles.csv")
	csv := "\ufefftitle,url,summary,full_text,publishedAt,source,delivered\n" +
		"Old,https://a/1,,,2024-01-01T00:00:00Z,Times,True\n" +
		"New,https://a/2,,,2024-01-03T00:00:00Z,Times,False\n" +
		"Odd,https://a/3,,,not a date,Times,False\n"
	if err := os.WriteFile(store, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, store)
	envFile := filepath.Join(dir, "missing.env")

	out, err := execute(t, "--config", cfg, "--env-file", envFile, "cursor")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if strings.TrimSpace(out) != "2024-01-03T00:00:00Z" {
		t.Fatalf("cursor output %q", out)
	}

	out, err = execute(t, "--config", cfg, "--env-file", envFile, "records", "--unsent")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if strings.Contains(out, "Old") || !strings.Contains(out, "New") || !strings.Contains(out, "not a date") {
		t.Fatalf("unexpected records output:\n%s", out)
	}
	if !strings.Contains(out, "3 records, 2 pending delivery") {
		t.Fatalf("missing summary line:\n%s", out)
	}
}

func TestCursorEmptyStore(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, filepath.Join(dir, "articles.csv"))
	out, err := execute(t, "--config", cfg, "--env-file", filepath.Join(dir, "missing.env"), "cursor")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "none" {
		t.Fatalf("cursor output %q", out)
	}
}

func TestHealthHandler(t *testing.T) {
	m := metrics.New()
	rec := httptest.NewRecorder()
	healthHandler(m)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	m.SetError("store locked")
	rec = httptest.NewRecorder()
	healthHandler(m)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "error" || body["last_error"] != "store locked" {
		t.Fatalf("unexpected body %v", body)
	}
}
