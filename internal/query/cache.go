package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrFetchDisabled indicates the policy gate rejected a fetch and no cached
// value exists to fall back on.
var ErrFetchDisabled = errors.New("query.fetch_disabled")

const janitorSweepInterval = time.Minute

// Key addresses one cache entry: resource name plus variant.
type Key string

// NewKey joins key parts into a single cache key.
func NewKey(parts ...string) Key {
	return Key(strings.Join(parts, "/"))
}

// Policy bounds one resource's caching behavior.
type Policy struct {
	// StaleTime is how long a fetched value is served without refetching.
	StaleTime time.Duration
	// GCTime evicts an entry after this long without readers; zero disables.
	GCTime time.Duration
	// Retry is the number of additional fetch attempts after a failure.
	Retry int
	// Enabled gates fetching; a nil predicate always allows.
	Enabled func() bool
}

// Snapshot is a point-in-time view of one cache entry.
type Snapshot struct {
	Value         any
	HasValue      bool
	IsLoading     bool
	LastFetchedAt time.Time
	Err           error
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by the wall clock.
func NewSystemClock() Clock {
	return systemClock{}
}

type entry struct {
	value         any
	hasValue      bool
	isLoading     bool
	lastFetchedAt time.Time
	fetchErr      error
	invalidated   bool
	generation    uint64
	lastAccess    time.Time
	gcTime        time.Duration
}

// Cache is a generic read-through request cache. Concurrent reads of one key
// share a single in-flight fetch; failed fetches preserve the last known good
// value and surface the error on the entry.
type Cache struct {
	mutex       sync.Mutex
	entries     map[Key]*entry
	flight      singleflight.Group
	clock       Clock
	logger      *zap.Logger
	janitorStop chan struct{}
	janitorDone chan struct{}
}

// NewCache constructs a cache and starts its eviction janitor.
func NewCache(logger *zap.Logger, clock Clock) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	cache := &Cache{
		entries:     make(map[Key]*entry),
		clock:       clock,
		logger:      logger,
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go cache.janitorLoop()
	return cache
}

// Close stops the eviction janitor.
func (cache *Cache) Close() {
	select {
	case <-cache.janitorStop:
		return
	default:
	}
	close(cache.janitorStop)
	<-cache.janitorDone
}

// Get returns the cached value for key, fetching through fetch when the entry
// is missing, stale, or invalidated. The policy's Enabled gate suppresses
// fetching entirely; a gated read still serves a cached value when one exists.
func (cache *Cache) Get(ctx context.Context, key Key, policy Policy, fetch func(ctx context.Context) (any, error)) (any, error) {
	now := cache.clock.Now()

	cache.mutex.Lock()
	cacheEntry := cache.ensureLocked(key, policy)
	cacheEntry.lastAccess = now

	if policy.Enabled != nil && !policy.Enabled() {
		if cacheEntry.hasValue {
			value := cacheEntry.value
			cache.mutex.Unlock()
			return value, nil
		}
		cache.mutex.Unlock()
		return nil, ErrFetchDisabled
	}

	if cacheEntry.hasValue && !cacheEntry.invalidated && now.Sub(cacheEntry.lastFetchedAt) < policy.StaleTime {
		value := cacheEntry.value
		cache.mutex.Unlock()
		return value, nil
	}
	cacheEntry.isLoading = true
	startGeneration := cacheEntry.generation
	cache.mutex.Unlock()

	result, fetchErr, _ := cache.flight.Do(string(key), func() (any, error) {
		return cache.fetchWithRetry(ctx, key, policy, fetch, startGeneration)
	})

	if fetchErr != nil {
		cache.mutex.Lock()
		stale := cache.ensureLocked(key, policy)
		if stale.hasValue {
			value := stale.value
			cache.mutex.Unlock()
			return value, fetchErr
		}
		cache.mutex.Unlock()
		return nil, fetchErr
	}
	return result, nil
}

// Invalidate marks the given entries stale so the next read refetches. The
// generation bump keeps the mark sticky against a fetch already in flight.
func (cache *Cache) Invalidate(keys ...Key) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	for _, key := range keys {
		if cacheEntry, found := cache.entries[key]; found {
			cacheEntry.invalidated = true
			cacheEntry.generation++
		}
	}
}

// InvalidateAll marks every entry stale.
func (cache *Cache) InvalidateAll() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	for _, cacheEntry := range cache.entries {
		cacheEntry.invalidated = true
		cacheEntry.generation++
	}
}

// SnapshotOf returns the entry state for key.
func (cache *Cache) SnapshotOf(key Key) Snapshot {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cacheEntry, found := cache.entries[key]
	if !found {
		return Snapshot{}
	}
	return Snapshot{
		Value:         cacheEntry.value,
		HasValue:      cacheEntry.hasValue,
		IsLoading:     cacheEntry.isLoading,
		LastFetchedAt: cacheEntry.lastFetchedAt,
		Err:           cacheEntry.fetchErr,
	}
}

func (cache *Cache) fetchWithRetry(ctx context.Context, key Key, policy Policy, fetch func(ctx context.Context) (any, error), startGeneration uint64) (any, error) {
	attempts := policy.Retry + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		value, fetchErr := fetch(ctx)
		if fetchErr == nil {
			cache.commitValue(key, policy, value, startGeneration)
			return value, nil
		}
		lastErr = fetchErr
		cache.logger.Warn("resource fetch attempt failed",
			zap.String("code", "query.fetch_attempt"),
			zap.String("key", string(key)),
			zap.Int("attempt", attempt+1),
			zap.Error(fetchErr),
		)
	}
	cache.commitError(key, policy, lastErr)
	return nil, lastErr
}

func (cache *Cache) commitValue(key Key, policy Policy, value any, startGeneration uint64) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cacheEntry := cache.ensureLocked(key, policy)
	cacheEntry.value = value
	cacheEntry.hasValue = true
	cacheEntry.isLoading = false
	cacheEntry.lastFetchedAt = cache.clock.Now()
	cacheEntry.fetchErr = nil
	// An Invalidate issued while this fetch was in flight bumped the
	// generation; the entry must stay stale so the next read refetches.
	if cacheEntry.generation == startGeneration {
		cacheEntry.invalidated = false
	}
}

func (cache *Cache) commitError(key Key, policy Policy, fetchErr error) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cacheEntry := cache.ensureLocked(key, policy)
	cacheEntry.isLoading = false
	cacheEntry.fetchErr = fetchErr
}

func (cache *Cache) ensureLocked(key Key, policy Policy) *entry {
	cacheEntry, found := cache.entries[key]
	if !found {
		cacheEntry = &entry{lastAccess: cache.clock.Now()}
		cache.entries[key] = cacheEntry
	}
	if policy.GCTime > 0 {
		cacheEntry.gcTime = policy.GCTime
	}
	return cacheEntry
}

func (cache *Cache) janitorLoop() {
	defer close(cache.janitorDone)
	ticker := time.NewTicker(janitorSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cache.janitorStop:
			return
		case <-ticker.C:
			cache.sweep()
		}
	}
}

// sweep evicts entries that have had no readers within their gc window.
func (cache *Cache) sweep() {
	now := cache.clock.Now()
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	for key, cacheEntry := range cache.entries {
		if cacheEntry.gcTime > 0 && !cacheEntry.isLoading && now.Sub(cacheEntry.lastAccess) > cacheEntry.gcTime {
			delete(cache.entries, key)
		}
	}
}
