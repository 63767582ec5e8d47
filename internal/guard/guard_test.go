package guard

import (
	"testing"

	"github.com/Joapozzo/loopin-gateway/internal/session"
)

func sampleIdentity() session.Identity {
	return session.Identity{
		Subject:       "sub-001",
		Email:         "cliente@example.com",
		EmailVerified: true,
		DisplayName:   "Cliente Uno",
	}
}

func authenticatedAs(t *testing.T, role session.Role) session.State {
	t.Helper()
	state, err := session.Authenticated(sampleIdentity(), "bearer-1", role, session.Profile{ID: "sub-001", Nombre: "Cliente"})
	if err != nil {
		t.Fatalf("authenticated state: %v", err)
	}
	return state
}

func needsOnboarding(t *testing.T) session.State {
	t.Helper()
	state, err := session.NeedsOnboarding(sampleIdentity(), "bearer-1")
	if err != nil {
		t.Fatalf("onboarding state: %v", err)
	}
	return state
}

func emailUnverified(t *testing.T) session.State {
	t.Helper()
	unverified := sampleIdentity()
	unverified.EmailVerified = false
	state, err := session.EmailUnverified(unverified)
	if err != nil {
		t.Fatalf("unverified state: %v", err)
	}
	return state
}

func TestEvaluateDecisionTable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		state    session.State
		policy   Policy
		expected Decision
	}{
		{
			name:     "loading waits",
			state:    session.Loading(),
			policy:   Policy{},
			expected: Decision{Kind: DecisionWait},
		},
		{
			name:     "unverified email redirects even when route allows onboarding",
			state:    emailUnverified(t),
			policy:   Policy{AllowOnboarding: true},
			expected: Decision{Kind: DecisionRedirect, Target: PathVerifyEmail},
		},
		{
			name:     "onboarding allowed passes through",
			state:    needsOnboarding(t),
			policy:   Policy{AllowOnboarding: true},
			expected: Decision{Kind: DecisionAllow},
		},
		{
			name:     "onboarding not allowed redirects to onboarding",
			state:    needsOnboarding(t),
			policy:   Policy{RequiredRole: session.RoleCliente},
			expected: Decision{Kind: DecisionRedirect, Target: PathOnboarding},
		},
		{
			name:     "unauthenticated falls back to login",
			state:    session.Unauthenticated(false),
			policy:   Policy{},
			expected: Decision{Kind: DecisionRedirect, Target: PathLogin},
		},
		{
			name:     "unauthenticated honors fallback override",
			state:    session.Unauthenticated(true),
			policy:   Policy{Fallback: "/res/login"},
			expected: Decision{Kind: DecisionRedirect, Target: "/res/login"},
		},
		{
			name:     "cliente on encargado route lands on home",
			state:    authenticatedAs(t, session.RoleCliente),
			policy:   Policy{RequiredRole: session.RoleEncargado},
			expected: Decision{Kind: DecisionRedirect, Target: PathHome},
		},
		{
			name:     "encargado on cliente route lands on dashboard",
			state:    authenticatedAs(t, session.RoleEncargado),
			policy:   Policy{RequiredRole: session.RoleCliente},
			expected: Decision{Kind: DecisionRedirect, Target: PathManagerDashboard},
		},
		{
			name:     "unknown role on restricted route lands on unauthorized",
			state:    authenticatedAs(t, session.Role("auditor")),
			policy:   Policy{RequiredRole: session.RoleCliente},
			expected: Decision{Kind: DecisionRedirect, Target: PathUnauthorized},
		},
		{
			name:     "matching role allowed",
			state:    authenticatedAs(t, session.RoleCliente),
			policy:   Policy{RequiredRole: session.RoleCliente},
			expected: Decision{Kind: DecisionAllow},
		},
		{
			name:     "authenticated without role requirement allowed",
			state:    authenticatedAs(t, session.RoleEncargado),
			policy:   Policy{},
			expected: Decision{Kind: DecisionAllow},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			decision := Evaluate(testCase.state, testCase.policy)
			if decision != testCase.expected {
				t.Fatalf("expected %+v, got %+v", testCase.expected, decision)
			}
		})
	}
}

func TestLandingFor(t *testing.T) {
	t.Parallel()

	if LandingFor(session.RoleCliente) != PathHome {
		t.Fatalf("cliente must land on home")
	}
	if LandingFor(session.RoleEncargado) != PathManagerDashboard {
		t.Fatalf("encargado must land on dashboard")
	}
	if LandingFor(session.Role("")) != PathUnauthorized {
		t.Fatalf("unknown role must land on unauthorized")
	}
}
