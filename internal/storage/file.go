package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// FileStore keeps one JSON file per cache entry under basePath/<kind>/.
type FileStore struct {
	basePath string
	logger   *common.Logger
}

// cacheKinds defines the directory layout under basePath.
var cacheKinds = []string{
	models.CacheKindQuote,
	models.CacheKindPrices,
	models.CacheKindFX,
	models.CacheKindDividend,
	models.CacheKindNews,
}

// otherKind holds entries whose kind is not one of cacheKinds.
const otherKind = "other"

// NewFileStore creates a FileStore and ensures all kind directories exist.
func NewFileStore(logger *common.Logger, basePath string) (*FileStore, error) {
	fs := &FileStore{basePath: basePath, logger: logger}
	for _, kind := range append(cacheKinds, otherKind) {
		dir := filepath.Join(basePath, kind)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	logger.Debug().Str("path", basePath).Msg("File cache store opened")
	return fs, nil
}

// sanitizeKey makes a key safe for use as a filename.
// Replaces /, \, : with _ and collapses ".." to "_" to prevent path traversal.
// Preserves single dots (safe in filenames, common in tickers like 7203.T).
func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_", "?", "_", "*", "_", "|", "_")
	return r.Replace(key)
}

// kindOf recovers the entry kind from a "<kind>:" key prefix.
func kindOf(key string) string {
	if kind, _, ok := strings.Cut(key, ":"); ok {
		for _, k := range cacheKinds {
			if k == kind {
				return kind
			}
		}
	}
	return otherKind
}

func (fs *FileStore) filePath(key string) string {
	return filepath.Join(fs.basePath, kindOf(key), sanitizeKey(key)+".json")
}

func (fs *FileStore) Get(_ context.Context, key string) (*models.CacheEntry, bool, error) {
	path := fs.filePath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// a torn or foreign file is a miss; the next Set overwrites it
		fs.logger.Warn().Str("path", path).Err(err).Msg("Discarding unreadable cache file")
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set writes the entry atomically: temp file in the same directory, then rename.
func (fs *FileStore) Set(_ context.Context, entry *models.CacheEntry) error {
	target := fs.filePath(entry.Key)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(fs.filePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache key '%s': %w", key, err)
	}
	return nil
}

// Purge removes entries stored before the cutoff. Unreadable files and stray
// temp files are removed too.
func (fs *FileStore) Purge(ctx context.Context, before time.Time) (int, error) {
	count := 0
	for _, kind := range append(cacheKinds, otherKind) {
		dir := filepath.Join(fs.basePath, kind)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return count, fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			name := e.Name()
			path := filepath.Join(dir, name)
			if strings.HasPrefix(name, ".tmp-") {
				os.Remove(path)
				continue
			}
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var entry models.CacheEntry
			if err := json.Unmarshal(data, &entry); err != nil || entry.StoredAt.Before(before) {
				if os.Remove(path) == nil {
					count++
				}
			}
		}
	}
	return count, nil
}

func (fs *FileStore) Close() error { return nil }
