package sessionvalidator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config configures the Validator.
type Config struct {
	SigningKey []byte
	Issuer     string
	CookieName string
	Clock      Clock
}

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "session_claims"

// DefaultCookieName is used when Config.CookieName is empty.
const DefaultCookieName = "loopin_session"

// Sentinel errors exposed by the validator.
var (
	ErrMissingSigningKey = errors.New("session.validator.missing_signing_key")
	ErrMissingIssuer     = errors.New("session.validator.missing_issuer")
	ErrMissingToken      = errors.New("session.validator.missing_token")
	ErrMissingCookie     = errors.New("session.validator.missing_cookie")
	ErrInvalidToken      = errors.New("session.validator.invalid_token")
	ErrInvalidIssuer     = errors.New("session.validator.invalid_issuer")
	ErrTokenExpired      = errors.New("session.validator.expired")
)

// Validator validates gateway session cookies so sibling services can admit
// requests without talking to the gateway.
type Validator struct {
	signingKey []byte
	issuer     string
	cookieName string
	clock      Clock
	parser     *jwt.Parser
}

// Claims represent the session payload embedded inside gateway cookies.
type Claims struct {
	UserEmail       string `json:"user_email"`
	UserDisplayName string `json:"user_display_name"`
	UserRole        string `json:"user_role"`
	jwt.RegisteredClaims
}

// GetPrincipal returns the principal identifier from the session. The name
// avoids shadowing jwt.RegisteredClaims.GetSubject, which must keep its
// (string, error) shape for the claims to satisfy jwt.Claims.
func (claims *Claims) GetPrincipal() string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// GetUserEmail returns the email associated with the session.
func (claims *Claims) GetUserEmail() string {
	if claims == nil {
		return ""
	}
	return claims.UserEmail
}

// GetUserDisplayName returns the display name stored in the session.
func (claims *Claims) GetUserDisplayName() string {
	if claims == nil {
		return ""
	}
	return claims.UserDisplayName
}

// GetUserRole returns the role stored in the session.
func (claims *Claims) GetUserRole() string {
	if claims == nil {
		return ""
	}
	return claims.UserRole
}

// GetExpiry returns the expiry timestamp as a plain time.Time.
func (claims *Claims) GetExpiry() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingIssuer)
	}
	validator := &Validator{
		signingKey: configuration.SigningKey,
		issuer:     configuration.Issuer,
		cookieName: configuration.CookieName,
		clock:      configuration.Clock,
	}
	if strings.TrimSpace(validator.cookieName) == "" {
		validator.cookieName = DefaultCookieName
	}
	if validator.clock == nil {
		validator.clock = systemClock{}
	}
	validator.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(validator.clock.Now),
		jwt.WithIssuer(validator.issuer),
	)
	return validator, nil
}

// ValidateToken validates the provided JWT string and returns the parsed claims.
func (validator *Validator) ValidateToken(tokenString string) (*Claims, error) {
	const operation = "session.validator.validate_token"
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%s: %w", operation, ErrMissingToken)
	}
	parsedToken, parseErr := validator.parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return validator.signingKey, nil
	})
	switch {
	case errors.Is(parseErr, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%s: %w", operation, ErrTokenExpired)
	case errors.Is(parseErr, jwt.ErrTokenInvalidIssuer):
		return nil, fmt.Errorf("%s: %w", operation, ErrInvalidIssuer)
	case parseErr != nil, parsedToken == nil, !parsedToken.Valid:
		return nil, fmt.Errorf("%s: %w", operation, ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%s: %w", operation, ErrInvalidToken)
	}
	if temporalErr := validator.checkTemporalClaims(claims); temporalErr != nil {
		return nil, fmt.Errorf("%s: %w", operation, temporalErr)
	}
	return claims, nil
}

// checkTemporalClaims re-asserts the expiry window against the configured
// clock; the parser already checked it against its own time func, but the
// clock may have advanced between the two reads.
func (validator *Validator) checkTemporalClaims(claims *Claims) error {
	current := validator.clock.Now()
	if claims.ExpiresAt != nil && current.After(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	if claims.NotBefore != nil && current.Before(claims.NotBefore.Time) {
		return ErrInvalidToken
	}
	if claims.IssuedAt != nil && current.Before(claims.IssuedAt.Time) {
		return ErrInvalidToken
	}
	return nil
}

// ValidateRequest reads the configured cookie from the request and validates it.
func (validator *Validator) ValidateRequest(request *http.Request) (*Claims, error) {
	if request == nil {
		return nil, fmt.Errorf("session.validator.validate_request: %w", ErrMissingToken)
	}
	cookie, cookieErr := request.Cookie(validator.cookieName)
	if cookieErr != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, fmt.Errorf("session.validator.validate_request: %w", ErrMissingCookie)
	}
	return validator.ValidateToken(cookie.Value)
}

// GinMiddleware returns a Gin middleware that rejects requests without a
// valid session cookie and stores the parsed claims under contextKey.
func (validator *Validator) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		claims, validateErr := validator.ValidateRequest(contextGin.Request)
		if validateErr != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set(contextKey, claims)
		contextGin.Next()
	}
}
