package persist

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory auth record store intended for tests and dev.
type MemoryStore struct {
	mutex     sync.Mutex
	bySubject map[string]Record
	ttl       time.Duration
	clock     Clock
}

// NewMemoryStore creates a new in-memory store with the given retention
// window; a non-positive ttl falls back to DefaultRecordTTL.
func NewMemoryStore(ttl time.Duration, clock Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryStore{
		bySubject: make(map[string]Record),
		ttl:       ttl,
		clock:     clock,
	}
}

// Save writes or overwrites the record for its subject.
func (store *MemoryStore) Save(ctx context.Context, record Record) error {
	if record.Subject == "" {
		return fmt.Errorf("auth_store.save: %w", ErrEmptySubject)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record.SavedAtUnix = store.clock.Now().Unix()
	store.bySubject[record.Subject] = record
	return nil
}

// Load returns the record for the subject. Expired records are purged and
// reported as ErrRecordExpired.
func (store *MemoryStore) Load(ctx context.Context, subject string) (Record, error) {
	if subject == "" {
		return Record{}, fmt.Errorf("auth_store.load: %w", ErrEmptySubject)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, found := store.bySubject[subject]
	if !found {
		return Record{}, fmt.Errorf("auth_store.load: %w", ErrRecordNotFound)
	}
	if store.expired(record) {
		delete(store.bySubject, subject)
		return Record{}, fmt.Errorf("auth_store.load: %w", ErrRecordExpired)
	}
	return record, nil
}

// Delete removes the record for the subject. Deleting an absent record is not
// an error so logout stays idempotent.
func (store *MemoryStore) Delete(ctx context.Context, subject string) error {
	if subject == "" {
		return fmt.Errorf("auth_store.delete: %w", ErrEmptySubject)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.bySubject, subject)
	return nil
}

func (store *MemoryStore) expired(record Record) bool {
	return store.clock.Now().After(time.Unix(record.SavedAtUnix, 0).Add(store.ttl))
}
