package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// CacheStore is a backing store for the market-data cache.
type CacheStore interface {
	// Get returns the entry for key; found is false when absent
	Get(ctx context.Context, key string) (entry *models.CacheEntry, found bool, err error)

	// Set inserts or replaces an entry
	Set(ctx context.Context, entry *models.CacheEntry) error

	// Delete removes an entry; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Purge removes entries stored before the cutoff and returns how many were removed
	Purge(ctx context.Context, before time.Time) (int, error)

	// Close releases resources
	Close() error
}
