// Package badger provides the BadgerHold-backed market-data cache store.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// gcDiscardRatio is the value-log garbage ratio that triggers a rewrite.
const gcDiscardRatio = 0.5

// Store wraps a BadgerHold database connection and implements
// interfaces.CacheStore over models.CacheEntry records.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

var _ interfaces.CacheStore = (*Store)(nil)

// NewStore creates a new BadgerHold store at the given directory path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory %s: %w", path, err)
	}

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(path).WithLogger(nil)

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", path).Msg("BadgerHold cache store opened")

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// DB returns the underlying badgerhold store.
func (s *Store) DB() *badgerhold.Store {
	return s.db
}

// Get returns the cached entry for key.
func (s *Store) Get(_ context.Context, key string) (*models.CacheEntry, bool, error) {
	var entry models.CacheEntry
	if err := s.db.Get(key, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache key '%s': %w", key, err)
	}
	return &entry, true, nil
}

// Set inserts or replaces an entry.
func (s *Store) Set(_ context.Context, entry *models.CacheEntry) error {
	if err := s.db.Upsert(entry.Key, entry); err != nil {
		return fmt.Errorf("failed to set cache key '%s': %w", entry.Key, err)
	}
	return nil
}

// Delete removes an entry. A missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Delete(key, models.CacheEntry{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete cache key '%s': %w", key, err)
	}
	return nil
}

// Purge removes entries stored before the cutoff, then gives badger a chance
// to reclaim value-log space.
func (s *Store) Purge(_ context.Context, before time.Time) (int, error) {
	query := badgerhold.Where("StoredAt").Lt(before)
	n, err := s.db.Count(&models.CacheEntry{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired cache entries: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.db.DeleteMatching(&models.CacheEntry{}, query); err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}
	s.collectGarbage()
	return int(n), nil
}

// CountKind returns the number of stored entries of one kind.
func (s *Store) CountKind(kind string) (int, error) {
	n, err := s.db.Count(&models.CacheEntry{}, badgerhold.Where("Kind").Eq(kind).Index("Kind"))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s entries: %w", kind, err)
	}
	return int(n), nil
}

func (s *Store) collectGarbage() {
	err := s.db.Badger().RunValueLogGC(gcDiscardRatio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
		s.logger.Debug().Err(err).Msg("Badger value log GC failed")
	}
}

// Close closes the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
