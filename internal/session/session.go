package session

import (
	"errors"
	"fmt"
)

// Status identifies which variant of the session union is active.
type Status string

const (
	// StatusLoading is the boot state before the identity provider has emitted.
	StatusLoading Status = "loading"
	// StatusUnauthenticated means no external identity is present.
	StatusUnauthenticated Status = "unauthenticated"
	// StatusEmailUnverified means an identity exists but its email is unverified.
	StatusEmailUnverified Status = "email_unverified"
	// StatusNeedsOnboarding means the identity is verified but the backend profile is incomplete.
	StatusNeedsOnboarding Status = "needs_onboarding"
	// StatusAuthenticated means role and profile were fetched successfully.
	StatusAuthenticated Status = "authenticated"
)

// Role is the backend-assigned application role.
type Role string

const (
	// RoleCliente is an end customer.
	RoleCliente Role = "cliente"
	// RoleEncargado is a business manager.
	RoleEncargado Role = "encargado"
)

// Identity is the opaque handle supplied by the external identity provider.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// Profile is the backend usuario record attached to an authenticated session.
type Profile struct {
	ID         string
	Nombre     string
	Apellido   string
	Email      string
	Telefono   string
	SucursalID int64
}

var (
	// ErrMissingIdentity indicates a variant constructor received a zero identity.
	ErrMissingIdentity = errors.New("session.missing_identity")
	// ErrMissingToken indicates a variant constructor received an empty bearer token.
	ErrMissingToken = errors.New("session.missing_token")
	// ErrMissingRole indicates an authenticated transition without a role.
	ErrMissingRole = errors.New("session.missing_role")
	// ErrMissingProfile indicates an authenticated transition without a profile.
	ErrMissingProfile = errors.New("session.missing_profile")
)

// State is a tagged union over the five session variants. Field access outside
// the owning variant yields absent values, never a leftover from a previous
// state. The zero State is StatusLoading.
type State struct {
	status            Status
	identity          *Identity
	token             string
	role              Role
	profile           *Profile
	loadedFromStorage bool
	provisional       bool
	failure           error
}

// Loading returns the boot-time state.
func Loading() State {
	return State{status: StatusLoading}
}

// Unauthenticated returns the signed-out state. hasLoadedFromStorage
// distinguishes a post-logout state from a fresh page load.
func Unauthenticated(hasLoadedFromStorage bool) State {
	return State{status: StatusUnauthenticated, loadedFromStorage: hasLoadedFromStorage}
}

// UnauthenticatedAfterFailure returns the signed-out state entered when
// profile retrieval exhausted its retries; the cause is surfaced for the UI.
func UnauthenticatedAfterFailure(cause error) State {
	return State{status: StatusUnauthenticated, loadedFromStorage: true, failure: cause}
}

// EmailUnverified returns the state for an identity whose email address the
// provider has not verified.
func EmailUnverified(identity Identity) (State, error) {
	if identity.Subject == "" {
		return State{}, fmt.Errorf("session.email_unverified: %w", ErrMissingIdentity)
	}
	return State{status: StatusEmailUnverified, identity: &identity}, nil
}

// NeedsOnboarding returns the state for a verified identity whose backend
// profile is incomplete. The bearer token is carried so the onboarding flow
// can call the backend.
func NeedsOnboarding(identity Identity, token string) (State, error) {
	if identity.Subject == "" {
		return State{}, fmt.Errorf("session.needs_onboarding: %w", ErrMissingIdentity)
	}
	if token == "" {
		return State{}, fmt.Errorf("session.needs_onboarding: %w", ErrMissingToken)
	}
	return State{status: StatusNeedsOnboarding, identity: &identity, token: token}, nil
}

// Authenticated returns the fully signed-in state. It refuses to construct a
// state with a missing role or profile.
func Authenticated(identity Identity, token string, role Role, profile Profile) (State, error) {
	if identity.Subject == "" {
		return State{}, fmt.Errorf("session.authenticated: %w", ErrMissingIdentity)
	}
	if token == "" {
		return State{}, fmt.Errorf("session.authenticated: %w", ErrMissingToken)
	}
	if role == "" {
		return State{}, fmt.Errorf("session.authenticated: %w", ErrMissingRole)
	}
	if profile.ID == "" {
		return State{}, fmt.Errorf("session.authenticated: %w", ErrMissingProfile)
	}
	return State{status: StatusAuthenticated, identity: &identity, token: token, role: role, profile: &profile}, nil
}

// Provisional marks a state as seeded from durable storage before the identity
// provider's first event has confirmed it.
func (state State) Provisional() State {
	state.provisional = true
	return state
}

// Status returns the active variant.
func (state State) Status() Status {
	if state.status == "" {
		return StatusLoading
	}
	return state.status
}

// Identity returns the provider handle, or nil when the variant carries none.
func (state State) Identity() *Identity {
	switch state.Status() {
	case StatusEmailUnverified, StatusNeedsOnboarding, StatusAuthenticated:
		return state.identity
	default:
		return nil
	}
}

// Token returns the bearer credential, or empty when the variant carries none.
func (state State) Token() string {
	switch state.Status() {
	case StatusNeedsOnboarding, StatusAuthenticated:
		return state.token
	default:
		return ""
	}
}

// Role returns the application role, or empty outside StatusAuthenticated.
func (state State) Role() Role {
	if state.Status() != StatusAuthenticated {
		return ""
	}
	return state.role
}

// Profile returns the backend record, or nil outside StatusAuthenticated.
func (state State) Profile() *Profile {
	if state.Status() != StatusAuthenticated {
		return nil
	}
	return state.profile
}

// IsLoading reports whether the session is still resolving.
func (state State) IsLoading() bool {
	return state.Status() == StatusLoading
}

// IsAuthenticated reports whether role and profile are present.
func (state State) IsAuthenticated() bool {
	return state.Status() == StatusAuthenticated
}

// AwaitingOnboarding reports whether the backend profile is incomplete.
func (state State) AwaitingOnboarding() bool {
	return state.Status() == StatusNeedsOnboarding
}

// EmailNotVerified reports whether the identity's email is unverified.
func (state State) EmailNotVerified() bool {
	return state.Status() == StatusEmailUnverified
}

// HasLoadedFromStorage reports whether an unauthenticated state followed an
// explicit logout or a completed storage read rather than a fresh boot.
func (state State) HasLoadedFromStorage() bool {
	if state.Status() != StatusUnauthenticated {
		return false
	}
	return state.loadedFromStorage
}

// IsProvisional reports whether the state was seeded from storage and still
// awaits confirmation by the identity provider.
func (state State) IsProvisional() bool {
	return state.provisional
}

// Failure returns the error that forced the session out of authentication, or
// nil. Only an unauthenticated state carries a failure.
func (state State) Failure() error {
	if state.Status() != StatusUnauthenticated {
		return nil
	}
	return state.failure
}
