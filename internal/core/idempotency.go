package core

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type idempotencyKeyCtx struct{}

// WithIdempotencyKey attaches a caller-supplied dedup key to ctx. Mutating
// operations run under a key are rejected with DUPLICATE_OPERATION when the
// same operation type already committed with it.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

func idempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// IdempotencyChecker implements two-tier deduplication
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *IdempotencyLRU

	// Tier 2: Postgres (injected via interface)
	dbChecker DBIdempotencyChecker

	duplicates  map[string]int64 // tier -> count
	tier2Errors int64
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(opType string, idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:        NewIdempotencyLRU(capacity),
		dbChecker:  dbChecker,
		duplicates: make(map[string]int64),
	}
}

func compositeKey(opType, key string) string {
	return fmt.Sprintf("%s:%s", opType, key)
}

// IsDuplicate checks both tiers and returns the tier that matched.
func (ic *IdempotencyChecker) IsDuplicate(opType string, idempotencyKey string) (bool, string) {
	key := compositeKey(opType, idempotencyKey)

	if ic.lru.Contains(key) {
		ic.duplicates["lru"]++
		return true, "lru"
	}

	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(opType, idempotencyKey)
		if err != nil {
			// A failing lookup must not block operations; treat as new.
			ic.tier2Errors++
			return false, ""
		}
		if isDup {
			ic.duplicates["postgres"]++
			ic.lru.Add(key)
			return true, "postgres"
		}
	}
	return false, ""
}

// MarkProcessed adds key to LRU after a commit
func (ic *IdempotencyChecker) MarkProcessed(opType string, idempotencyKey string) {
	ic.lru.Add(compositeKey(opType, idempotencyKey))
}

// Duplicates returns how many duplicates each tier caught.
func (ic *IdempotencyChecker) Duplicates(tier string) int64 {
	return ic.duplicates[tier]
}

func (ic *IdempotencyChecker) Tier2Errors() int64 {
	return ic.tier2Errors
}

// --- LRU ---

// IdempotencyLRU is an LRU cache for composite idempotency keys.
// Not thread-safe; only accessed under the engine lock.
type IdempotencyLRU struct {
	cache     *simplelru.LRU[string, struct{}]
	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity < 1 {
		capacity = 1
	}
	lru := &IdempotencyLRU{}
	// NewLRU only fails for a non-positive size.
	lru.cache, _ = simplelru.NewLRU[string, struct{}](capacity, func(string, struct{}) {
		lru.evictions++
	})
	return lru
}

// Contains reports whether key was seen and marks it recently used.
func (lru *IdempotencyLRU) Contains(key string) bool {
	_, ok := lru.cache.Get(key)
	return ok
}

func (lru *IdempotencyLRU) Add(key string) {
	lru.cache.Add(key, struct{}{})
}

// WarmFromKeys loads composite keys, oldest first, so a restart does not
// fall through to Postgres for recent operations.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		lru.Add(key)
	}
}

// Keys returns the cached keys from oldest to newest.
func (lru *IdempotencyLRU) Keys() []string {
	return lru.cache.Keys()
}

func (lru *IdempotencyLRU) Size() int {
	return lru.cache.Len()
}

func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
