package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is a cached market-data payload. Value holds the JSON encoding
// of the cached result.
type CacheEntry struct {
	Key      string          `json:"key" badgerhold:"key"`
	Kind     string          `json:"kind" badgerholdIndex:"Kind"`
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// Cache data kinds. Each kind has an independent TTL.
const (
	CacheKindQuote    = "quote"
	CacheKindPrices   = "prices"
	CacheKindFX       = "fx"
	CacheKindDividend = "dividends"
	CacheKindNews     = "news"
)
