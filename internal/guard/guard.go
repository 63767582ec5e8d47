package guard

import (
	"github.com/Joapozzo/loopin-gateway/internal/session"
)

// Well-known gateway routes used by guard redirects.
const (
	PathLogin            = "/login"
	PathVerifyEmail      = "/verify-email"
	PathOnboarding       = "/onboarding"
	PathHome             = "/home"
	PathManagerDashboard = "/res/dashboard"
	PathUnauthorized     = "/unauthorized"
)

// DecisionKind classifies the guard's verdict for a request.
type DecisionKind string

const (
	// DecisionWait means the session is still resolving; the caller should
	// hold the request rather than allow or redirect.
	DecisionWait DecisionKind = "wait"
	// DecisionAllow passes the request through.
	DecisionAllow DecisionKind = "allow"
	// DecisionRedirect sends the principal to Decision.Target.
	DecisionRedirect DecisionKind = "redirect"
)

// Decision is the guard's verdict for one evaluation.
type Decision struct {
	Kind   DecisionKind
	Target string
}

// Policy configures how a route is protected. The zero value requires any
// authenticated principal and falls back to the login route.
type Policy struct {
	// RequiredRole, when set, restricts the route to that role.
	RequiredRole session.Role
	// AllowOnboarding lets principals who still need onboarding through.
	AllowOnboarding bool
	// Fallback overrides the redirect target for unauthenticated principals.
	Fallback string
}

// LandingFor returns the default landing route for a role.
func LandingFor(role session.Role) string {
	switch role {
	case session.RoleCliente:
		return PathHome
	case session.RoleEncargado:
		return PathManagerDashboard
	default:
		return PathUnauthorized
	}
}

// Evaluate applies the protection rules in order; the first matching rule
// wins. It is pure: re-run it whenever the session state changes.
func Evaluate(state session.State, policy Policy) Decision {
	if state.IsLoading() {
		return Decision{Kind: DecisionWait}
	}
	if state.EmailNotVerified() {
		return Decision{Kind: DecisionRedirect, Target: PathVerifyEmail}
	}
	if state.AwaitingOnboarding() {
		if policy.AllowOnboarding {
			return Decision{Kind: DecisionAllow}
		}
		return Decision{Kind: DecisionRedirect, Target: PathOnboarding}
	}
	if !state.IsAuthenticated() {
		fallback := policy.Fallback
		if fallback == "" {
			fallback = PathLogin
		}
		return Decision{Kind: DecisionRedirect, Target: fallback}
	}
	if policy.RequiredRole != "" && state.Role() != policy.RequiredRole {
		return Decision{Kind: DecisionRedirect, Target: LandingFor(state.Role())}
	}
	return Decision{Kind: DecisionAllow}
}
