// Package common provides shared utilities for Folio
package common

import "time"

// Default freshness TTLs per market-data kind
const (
	FreshnessQuote        = 5 * time.Minute
	FreshnessPriceHistory = 5 * time.Minute
	FreshnessFX           = 1 * time.Hour
	FreshnessDividends    = 1 * time.Hour
	FreshnessNews         = 10 * time.Minute
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	return IsFreshAt(updated, ttl, time.Now())
}

// IsFreshAt is IsFresh against an explicit clock reading.
func IsFreshAt(updated time.Time, ttl time.Duration, now time.Time) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
