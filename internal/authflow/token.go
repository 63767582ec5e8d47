package authflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are embedded in the gateway's own session cookie so browser
// reloads restore the session without re-running Google sign-in.
type SessionClaims struct {
	UserEmail       string `json:"user_email"`
	UserDisplayName string `json:"user_display_name"`
	UserRole        string `json:"user_role"`
	jwt.RegisteredClaims
}

var (
	// ErrInvalidSessionToken indicates the cookie JWT failed validation.
	ErrInvalidSessionToken = errors.New("session_jwt.invalid_token")
	// ErrInvalidSessionIssuer indicates the cookie JWT was minted elsewhere.
	ErrInvalidSessionIssuer = errors.New("session_jwt.invalid_issuer")
)

// MintSessionJWT creates a signed HS256 gateway session token.
func MintSessionJWT(clock Clock, subject string, userEmail string, userDisplayName string, userRole string, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("session_jwt.mint.failure: subject must be non-empty")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserEmail:       userEmail,
		UserDisplayName: userDisplayName,
		UserRole:        userRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("session_jwt.mint: %w", signErr)
	}
	return signed, expiresAt, nil
}

// ParseSessionJWT validates a gateway session token and returns its claims.
func ParseSessionJWT(tokenString string, issuer string, signingKey []byte) (*SessionClaims, error) {
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("session_jwt.parse: %w", ErrInvalidSessionToken)
	}
	claims, ok := parsedToken.Claims.(*SessionClaims)
	if !ok || claims.Subject == "" {
		return nil, fmt.Errorf("session_jwt.parse: %w", ErrInvalidSessionToken)
	}
	if claims.Issuer != issuer {
		return nil, fmt.Errorf("session_jwt.parse: %w", ErrInvalidSessionIssuer)
	}
	return claims, nil
}
