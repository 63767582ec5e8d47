package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Joapozzo/loopin-gateway/internal/session"
)

// StateResolver produces the session state for the current request.
type StateResolver func(contextGin *gin.Context) session.State

// Middleware evaluates the policy against the request's session state on
// every request. A waiting session answers 503 with a retry hint so the
// client polls instead of seeing a false unauthenticated redirect.
func Middleware(resolveState StateResolver, policy Policy) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		decision := Evaluate(resolveState(contextGin), policy)
		switch decision.Kind {
		case DecisionAllow:
			contextGin.Next()
		case DecisionWait:
			contextGin.Header("Retry-After", "1")
			contextGin.AbortWithStatus(http.StatusServiceUnavailable)
		case DecisionRedirect:
			// http.Redirect would render an anchor body on GET; the guard
			// must answer with the Location header alone.
			contextGin.Header("Location", decision.Target)
			contextGin.AbortWithStatus(http.StatusSeeOther)
		default:
			contextGin.AbortWithStatus(http.StatusInternalServerError)
		}
	}
}
