package persist

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound indicates no auth record exists for the subject.
	ErrRecordNotFound = errors.New("auth_store.not_found")
	// ErrRecordExpired indicates the record outlived its retention window.
	ErrRecordExpired = errors.New("auth_store.expired")
	// ErrEmptySubject indicates the caller supplied no subject identifier.
	ErrEmptySubject = errors.New("auth_store.empty_subject")
)

// DefaultRecordTTL is the retention window for persisted auth records.
const DefaultRecordTTL = 7 * 24 * time.Hour

// Record is the durable snapshot of an authenticated session, keyed by the
// identity-provider subject. Created on successful login, overwritten on
// refresh, deleted on logout.
type Record struct {
	Subject          string
	Token            string
	Role             string
	ProfileJSON      string
	ExternalProvider bool
	ProviderEmail    string
	SavedAtUnix      int64
}

// Store persists and retrieves auth records.
type Store interface {
	Save(ctx context.Context, record Record) error
	Load(ctx context.Context, subject string) (Record, error)
	Delete(ctx context.Context, subject string) error
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

// IsAbsent reports whether a Load error means the record should be treated as
// missing rather than as a storage failure.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrRecordExpired)
}
