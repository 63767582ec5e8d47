package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoBearerToken indicates no bearer token has been recorded for a subject.
var ErrNoBearerToken = errors.New("identity.no_bearer_token")

const eventBuffer = 8

// ChannelProvider bridges externally verified identities onto an explicit
// event channel. The login surface verifies a credential, records its bearer
// token, and emits the handle; consumers read the stream through Events.
// It also serves as the scriptable provider for tests.
type ChannelProvider struct {
	mutex   sync.Mutex
	events  chan Event
	bearers map[string]string
	mintErr error
	closed  bool
}

// NewChannelProvider constructs a provider with an empty stream.
func NewChannelProvider() *ChannelProvider {
	return &ChannelProvider{
		events:  make(chan Event, eventBuffer),
		bearers: make(map[string]string),
	}
}

// Events exposes the auth-state change stream.
func (provider *ChannelProvider) Events() <-chan Event {
	return provider.events
}

// Emit publishes an auth-state change. A nil handle signals sign-out. The
// bearer token, when non-empty, becomes the token returned for the handle's
// subject until the next emission for that subject.
func (provider *ChannelProvider) Emit(handle *Handle, bearerToken string) {
	provider.mutex.Lock()
	if provider.closed {
		provider.mutex.Unlock()
		return
	}
	if handle != nil && bearerToken != "" {
		provider.bearers[handle.Subject] = bearerToken
	}
	provider.mutex.Unlock()

	copied := handle
	if handle != nil {
		clone := *handle
		copied = &clone
	}
	provider.events <- Event{Handle: copied}
}

// BearerToken returns the recorded bearer token for the handle's subject.
func (provider *ChannelProvider) BearerToken(ctx context.Context, handle Handle) (string, error) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	if provider.mintErr != nil {
		return "", provider.mintErr
	}
	bearer, found := provider.bearers[handle.Subject]
	if !found || bearer == "" {
		return "", fmt.Errorf("identity.bearer_token: %w", ErrNoBearerToken)
	}
	return bearer, nil
}

// FailBearerTokens forces BearerToken to return the given error; passing nil
// restores normal behavior. Intended for tests.
func (provider *ChannelProvider) FailBearerTokens(err error) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.mintErr = err
}

// Close ends the event stream.
func (provider *ChannelProvider) Close() {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	if provider.closed {
		return
	}
	provider.closed = true
	close(provider.events)
}
