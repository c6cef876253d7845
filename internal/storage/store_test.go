package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/news"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCSVStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.csv")
	return New(NewCSVBackend(path, "", quietLogger()), path+".lock", time.Second, quietLogger()), path
}

func TestStoreUpdateMergesAndPersists(t *testing.T) {
	ctx := context.Background()
	store, _ := newCSVStore(t)

	batch := []news.Article{article("a", "u1", 1), article("b", "u2", 2)}
	err := store.Update(ctx, func(tx *Tx) error {
		tx.Replace(Merge(tx.Records(), batch))
		tx.Records()[0].Delivered = true
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.Records(ctx)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(got) != 2 || !got[0].Delivered || got[0].Title != "a" {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestStoreUpdateErrorSkipsFinalWrite(t *testing.T) {
	ctx := context.Background()
	store, _ := newCSVStore(t)
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx *Tx) error {
		tx.Replace(Merge(nil, []news.Article{article("a", "u1", 1)}))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want %v", err, boom)
	}
	got, err := store.Records(ctx)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing persisted, got %+v", got)
	}
}

func TestStoreCommitCheckpoints(t *testing.T) {
	ctx := context.Background()
	store, path := newCSVStore(t)
	boom := errors.New("crash after first delivery")

	err := store.Update(ctx, func(tx *Tx) error {
		tx.Replace(Merge(nil, []news.Article{article("a", "u1", 1), article("b", "u2", 2)}))
		tx.Records()[0].Delivered = true
		if err := tx.Commit(); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := NewCSVBackend(path, "", quietLogger()).Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0].Delivered || got[1].Delivered {
		t.Fatalf("checkpoint not persisted: %+v", got)
	}
}

func TestStoreUpdateWritesAfterCancel(t *testing.T) {
	for _, commit := range []bool{true, false} {
		ctx, cancel := context.WithCancel(context.Background())
		store, path := newCSVStore(t)

		err := store.Update(ctx, func(tx *Tx) error {
			tx.Replace(Merge(nil, []news.Article{article("a", "u1", 1)}))
			tx.Records()[0].Delivered = true
			cancel()
			if commit {
				return tx.Commit()
			}
			return nil
		})
		if err != nil {
			t.Fatalf("commit=%v: Update() error = %v", commit, err)
		}

		got, err := NewCSVBackend(path, "", quietLogger()).Load(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || !got[0].Delivered {
			t.Fatalf("commit=%v: work before cancel was lost: %+v", commit, got)
		}
	}
}

func TestStoreUpdateFailsWhenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.csv")
	store := New(NewCSVBackend(path, "", quietLogger()), path+".lock", 150*time.Millisecond, quietLogger())

	holder := flock.New(path + ".lock")
	ok, err := holder.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer holder.Unlock()

	err = store.Update(context.Background(), func(*Tx) error {
		t.Fatal("callback must not run without the lock")
		return nil
	})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Update() error = %v, want ErrLocked", err)
	}
}

func TestStoreLastPublished(t *testing.T) {
	ctx := context.Background()
	store, _ := newCSVStore(t)

	if _, ok, err := store.LastPublished(ctx); err != nil || ok {
		t.Fatalf("missing store: ok=%v err=%v", ok, err)
	}

	var invalid news.Article
	invalid.Title, invalid.URL = "c", "u3"
	invalid.SetPublished("invalid")
	err := store.Update(ctx, func(tx *Tx) error {
		tx.Replace(Merge(nil, []news.Article{article("a", "u1", 1), article("b", "u2", 3), invalid}))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.LastPublished(ctx)
	if err != nil || !ok || !got.Equal(at(3)) {
		t.Fatalf("LastPublished() = %v, %v, %v", got, ok, err)
	}
}

func TestStoreCursorKeepsSubSeconds(t *testing.T) {
	ctx := context.Background()
	store, _ := newCSVStore(t)

	published := time.Date(2024, 1, 3, 10, 0, 0, 500_000_000, time.UTC)
	a := article("a", "u1", 0)
	a.PublishedAt = published
	if err := store.Update(ctx, func(tx *Tx) error {
		tx.Replace(Merge(nil, []news.Article{a}))
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.LastPublished(ctx)
	if err != nil || !ok || !got.Equal(published) {
		t.Fatalf("LastPublished() = %v, %v, %v; want %v", got, ok, err, published)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := Open(ctx, config.StoreConfig{
		Backend:     config.BackendSQLite,
		Path:        filepath.Join(dir, "state.db"),
		LockTimeout: time.Second,
	}, quietLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	first := Merge(nil, []news.Article{article("a", "u1", 1), article("b", "u2", 0)})
	first[0].Delivered = true
	first[1].Extra = []news.Field{{Name: "category", Value: "housing"}}
	first[1].PublishedRaw = "not a date"

	if err := store.Update(ctx, func(tx *Tx) error { tx.Replace(first); return nil }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := store.Records(ctx)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if !reflect.DeepEqual(got, first) {
		t.Fatalf("round trip mismatch:\n got = %+v\nwant = %+v", got, first)
	}

	// A second save replaces rather than appends.
	if err := store.Update(ctx, func(tx *Tx) error { tx.Replace(tx.Records()[:1]); return nil }); err != nil {
		t.Fatal(err)
	}
	got, err = store.Records(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record after replace, got %d", len(got))
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.StoreConfig{Backend: "redis"}, quietLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
