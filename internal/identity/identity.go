package identity

import "context"

// Handle is the opaque external-identity reference carried through the
// session machine. Subject is the provider's stable unique id.
type Handle struct {
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// Event is one emission from the provider's auth-state stream. A nil Handle
// means the principal signed out at the provider.
type Event struct {
	Handle *Handle
}

// Provider is the external identity collaborator: a stream of auth-state
// changes plus a way to obtain a fresh bearer token for a handle.
type Provider interface {
	Events() <-chan Event
	BearerToken(ctx context.Context, handle Handle) (string, error)
}
