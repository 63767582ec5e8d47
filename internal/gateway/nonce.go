package gateway

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNonceNotFound indicates the nonce was never issued or already consumed.
	ErrNonceNotFound = errors.New("login_nonce.not_found")
	// ErrNonceExpired indicates the nonce expired before consumption.
	ErrNonceExpired = errors.New("login_nonce.expired")
)

// NonceStore issues one-time tokens that bind a Google sign-in exchange to a
// prior request from the same client.
type NonceStore interface {
	Issue(ctx context.Context) (string, error)
	Consume(ctx context.Context, token string) error
}

type memoryNonceStore struct {
	mutex     sync.Mutex
	expiries  map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	tokenSize int
}

// NewMemoryNonceStore constructs an in-memory NonceStore with the given TTL.
func NewMemoryNonceStore(ttl time.Duration) NonceStore {
	return &memoryNonceStore{
		expiries:  make(map[string]time.Time),
		ttl:       ttl,
		now:       time.Now,
		tokenSize: 32,
	}
}

func (store *memoryNonceStore) Issue(ctx context.Context) (string, error) {
	buffer := make([]byte, store.tokenSize)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buffer)

	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.expiries[token] = store.now().Add(store.ttl)
	return token, nil
}

func (store *memoryNonceStore) Consume(ctx context.Context, token string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	defer store.purgeExpiredLocked()

	expiry, issued := store.expiries[token]
	if !issued {
		return ErrNonceNotFound
	}
	delete(store.expiries, token)
	if store.now().After(expiry) {
		return ErrNonceExpired
	}
	return nil
}

func (store *memoryNonceStore) purgeExpiredLocked() {
	if len(store.expiries) == 0 {
		return
	}
	now := store.now()
	for token, expiry := range store.expiries {
		if now.After(expiry) {
			delete(store.expiries, token)
		}
	}
}
