package core

import (
	"fmt"
	"time"

	"LendLedger/internal/observability"

	lru "github.com/hashicorp/golang-lru"
)

// IdempotencyChecker implements two-tier deduplication
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *lru.Cache

	// Tier 2: Postgres (injected via interface)
	dbChecker DBIdempotencyChecker

	metrics *observability.Metrics
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(commandType string, idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) *IdempotencyChecker {
	ic := &IdempotencyChecker{dbChecker: dbChecker, metrics: metrics}
	cache, err := lru.NewWithEvict(capacity, ic.onEvict)
	if err != nil {
		panic(fmt.Sprintf("FATAL: idempotency lru: %v", err))
	}
	ic.lru = cache
	return ic
}

func compositeKey(commandType, idempotencyKey string) string {
	return commandType + ":" + idempotencyKey
}

func (ic *IdempotencyChecker) onEvict(key, value interface{}) {
	if ic.metrics != nil {
		ic.metrics.DedupLRUEvictions.Inc()
	}
}

// IsDuplicate checks if a command has been processed (two-tier lookup)
func (ic *IdempotencyChecker) IsDuplicate(commandType string, idempotencyKey string) bool {
	key := compositeKey(commandType, idempotencyKey)

	// Tier 1: LRU check (hot path)
	if ic.lru.Contains(key) {
		ic.recordDuplicate(commandType, "lru")
		return true
	}

	// Tier 2: Postgres check (cold path)
	if ic.dbChecker == nil {
		return false
	}
	start := time.Now()
	isDup, err := ic.dbChecker.IsDuplicate(commandType, idempotencyKey)
	if ic.metrics != nil {
		ic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// A DB outage must not block processing; assume not duplicate.
		if ic.metrics != nil {
			ic.metrics.DedupTier2Errors.Inc()
		}
		return false
	}
	if isDup {
		ic.recordDuplicate(commandType, "postgres")
		ic.add(key)
		return true
	}
	return false
}

// MarkProcessed adds key to LRU after successful processing
func (ic *IdempotencyChecker) MarkProcessed(commandType string, idempotencyKey string) {
	ic.add(compositeKey(commandType, idempotencyKey))
}

// WarmFromKeys loads composite keys (oldest first) into the LRU, e.g. the
// keys saved with a snapshot.
func (ic *IdempotencyChecker) WarmFromKeys(keys []string) {
	for _, key := range keys {
		ic.add(key)
	}
}

// Keys returns the cached composite keys from oldest to newest.
func (ic *IdempotencyChecker) Keys() []string {
	raw := ic.lru.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	return keys
}

// Size returns current number of entries
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Len()
}

func (ic *IdempotencyChecker) add(key string) {
	ic.lru.Add(key, struct{}{})
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Len()))
	}
}

func (ic *IdempotencyChecker) recordDuplicate(commandType, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(commandType, tier).Inc()
	}
}
