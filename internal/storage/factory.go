// Package storage provides the market-data cache backing stores.
package storage

import (
	"fmt"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/storage/badger"
)

// Backend type constants.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
)

// NewCacheStore creates a cache store based on the configuration.
// Supported backends: "memory" (default), "file", "badger".
func NewCacheStore(logger *common.Logger, config common.CacheStoreConfig) (interfaces.CacheStore, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendFile:
		return NewFileStore(logger, config.Path)

	case BackendBadger:
		return badger.NewStore(logger, config.Path)

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, file, badger)", backend)
	}
}
