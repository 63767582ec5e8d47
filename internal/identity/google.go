package identity

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var (
	// ErrInvalidGoogleToken indicates Google rejected the ID token.
	ErrInvalidGoogleToken = errors.New("identity.google.invalid_token")
	// ErrInvalidIssuer indicates the token was not issued by Google accounts.
	ErrInvalidIssuer = errors.New("identity.google.invalid_issuer")
	// ErrIncompleteClaims indicates the payload lacked subject or email.
	ErrIncompleteClaims = errors.New("identity.google.incomplete_claims")
)

// GoogleTokenValidator validates a raw Google ID token against an audience.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

type googleAPIValidator struct {
	validator *idtoken.Validator
}

func (wrapper googleAPIValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	return wrapper.validator.Validate(ctx, token, audience)
}

// NewGoogleTokenValidator builds a validator backed by Google's certificates.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, err
	}
	return googleAPIValidator{validator: validator}, nil
}

// GoogleVerifier turns raw Google ID tokens into identity handles. Unverified
// email addresses are not rejected here; the session machine routes them to
// its own state.
type GoogleVerifier struct {
	validator GoogleTokenValidator
	audience  string
}

// NewGoogleVerifier constructs a verifier for the given OAuth web client id.
func NewGoogleVerifier(validator GoogleTokenValidator, audience string) *GoogleVerifier {
	return &GoogleVerifier{validator: validator, audience: audience}
}

// Verify validates the raw ID token and extracts the identity handle. The raw
// token doubles as the bearer credential presented to the Loopin backend.
func (verifier *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (Handle, string, error) {
	payload, validateErr := verifier.validator.Validate(ctx, rawIDToken, verifier.audience)
	if validateErr != nil {
		return Handle{}, "", fmt.Errorf("identity.google.verify: %w", ErrInvalidGoogleToken)
	}
	issuerValue, okIssuer := payload.Claims["iss"].(string)
	if !okIssuer || (issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com") {
		return Handle{}, "", fmt.Errorf("identity.google.verify: %w", ErrInvalidIssuer)
	}
	subject, _ := payload.Claims["sub"].(string)
	email, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	displayName, _ := payload.Claims["name"].(string)
	if subject == "" || email == "" {
		return Handle{}, "", fmt.Errorf("identity.google.verify: %w", ErrIncompleteClaims)
	}
	handle := Handle{
		Subject:       subject,
		Email:         email,
		EmailVerified: emailVerified,
		DisplayName:   displayName,
	}
	return handle, rawIDToken, nil
}
