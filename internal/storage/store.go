// Package storage persists article records and their delivery state.
//
// A Store pairs a Backend (CSV file, SQLite or PostgreSQL) with an advisory
// file lock so that concurrent runs never interleave a read-modify-write of
// the collection.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"github.com/deusflow/newswire/internal/news"
)

// ErrLocked is returned when the store lock could not be acquired in time.
var ErrLocked = errors.New("store is locked by another run")

// Backend reads and replaces the whole record collection.
type Backend interface {
	// Load returns all records in stored order. A store that does not exist
	// yet is empty, not an error.
	Load(ctx context.Context) ([]news.Record, error)
	// Save replaces the stored collection with records.
	Save(ctx context.Context, records []news.Record) error
	Close() error
}

const (
	lockRetryDelay = 100 * time.Millisecond
	// saveTimeout bounds writes, which run even after the caller's ctx is done.
	saveTimeout = 30 * time.Second
)

// Store serializes access to a Backend with a lock file.
type Store struct {
	backend     Backend
	lockPath    string
	lockTimeout time.Duration
	logger      *slog.Logger
}

// New wraps backend with the lock at lockPath. A zero timeout waits until ctx is done.
func New(backend Backend, lockPath string, lockTimeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:     backend,
		lockPath:    lockPath,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// Tx is the locked view of the collection handed to Update callbacks.
type Tx struct {
	ctx     context.Context
	backend Backend
	records []news.Record
	commits int
}

// Records returns the current working collection. Callers may modify
// elements in place.
func (tx *Tx) Records() []news.Record {
	return tx.records
}

// Replace swaps the working collection.
func (tx *Tx) Replace(records []news.Record) {
	tx.records = records
}

// Commit writes the working collection without releasing the lock. It
// still writes when the Update context is already cancelled.
func (tx *Tx) Commit() error {
	ctx, cancel := saveContext(tx.ctx)
	defer cancel()
	if err := tx.backend.Save(ctx, tx.records); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	tx.commits++
	return nil
}

// Update runs fn against the locked collection and writes the result.
// Nothing is written when fn returns an error, but earlier Commits stay.
// Cancelling ctx while fn runs does not stop the writes, so work done before
// the cancellation is kept.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	lock := flock.New(s.lockPath)
	if err := s.acquire(ctx, lock.TryLockContext); err != nil {
		return err
	}
	defer s.release(lock)

	records, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	tx := &Tx{ctx: ctx, backend: s.backend, records: records}
	if err := fn(tx); err != nil {
		return err
	}
	saveCtx, cancel := saveContext(ctx)
	defer cancel()
	if err := s.backend.Save(saveCtx, tx.records); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	s.logger.Debug("store updated", "records", len(tx.records), "checkpoints", tx.commits)
	return nil
}

// Records returns a snapshot of the collection under a shared lock.
func (s *Store) Records(ctx context.Context) ([]news.Record, error) {
	lock := flock.New(s.lockPath)
	if err := s.acquire(ctx, lock.TryRLockContext); err != nil {
		return nil, err
	}
	defer s.release(lock)

	records, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return records, nil
}

// LastPublished returns the newest valid publish time in the store.
func (s *Store) LastPublished(ctx context.Context) (time.Time, bool, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	t, ok := LastPublished(records)
	return t, ok, nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func saveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
}

func (s *Store) acquire(ctx context.Context, try func(context.Context, time.Duration) (bool, error)) error {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	ok, err := try(ctx, lockRetryDelay)
	if ok {
		return nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquire store lock %s: %w", s.lockPath, err)
	}
	return fmt.Errorf("%w: %s", ErrLocked, s.lockPath)
}

func (s *Store) release(lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		s.logger.Warn("failed to release store lock", "lock", s.lockPath, "error", err)
	}
}
