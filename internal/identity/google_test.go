package identity

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/api/idtoken"
)

type validatorResult struct {
	payload          *idtoken.Payload
	err              error
	expectedAudience string
}

type fakeGoogleValidator struct {
	results map[string]validatorResult
}

func (validator *fakeGoogleValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	result, ok := validator.results[token]
	if !ok {
		return nil, errors.New("token_not_found")
	}
	if result.expectedAudience != "" && result.expectedAudience != audience {
		return nil, errors.New("audience_mismatch")
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.payload, nil
}

func googlePayload(subject string, email string, verified bool) *idtoken.Payload {
	return &idtoken.Payload{
		Claims: map[string]interface{}{
			"iss":            "https://accounts.google.com",
			"sub":            subject,
			"email":          email,
			"email_verified": verified,
			"name":           "Cliente Uno",
		},
	}
}

func TestGoogleVerifierExtractsHandle(t *testing.T) {
	t.Parallel()

	verifier := NewGoogleVerifier(&fakeGoogleValidator{results: map[string]validatorResult{
		"valid-token": {payload: googlePayload("sub-001", "cliente@example.com", true), expectedAudience: "client-id"},
	}}, "client-id")

	handle, bearer, err := verifier.Verify(context.Background(), "valid-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.Subject != "sub-001" || handle.Email != "cliente@example.com" || !handle.EmailVerified {
		t.Fatalf("unexpected handle: %+v", handle)
	}
	if bearer != "valid-token" {
		t.Fatalf("expected raw token as bearer, got %q", bearer)
	}
}

func TestGoogleVerifierPassesThroughUnverifiedEmail(t *testing.T) {
	t.Parallel()

	verifier := NewGoogleVerifier(&fakeGoogleValidator{results: map[string]validatorResult{
		"unverified-token": {payload: googlePayload("sub-002", "nuevo@example.com", false)},
	}}, "client-id")

	handle, _, err := verifier.Verify(context.Background(), "unverified-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.EmailVerified {
		t.Fatalf("expected unverified email to pass through unverified")
	}
}

func TestGoogleVerifierRejectsForeignIssuer(t *testing.T) {
	t.Parallel()

	verifier := NewGoogleVerifier(&fakeGoogleValidator{results: map[string]validatorResult{
		"foreign-token": {payload: &idtoken.Payload{Claims: map[string]interface{}{
			"iss":   "https://evil.example.com",
			"sub":   "sub-003",
			"email": "x@example.com",
		}}},
	}}, "client-id")

	_, _, err := verifier.Verify(context.Background(), "foreign-token")
	if !errors.Is(err, ErrInvalidIssuer) {
		t.Fatalf("expected ErrInvalidIssuer, got %v", err)
	}
}

func TestGoogleVerifierRejectsIncompleteClaims(t *testing.T) {
	t.Parallel()

	verifier := NewGoogleVerifier(&fakeGoogleValidator{results: map[string]validatorResult{
		"no-email-token": {payload: &idtoken.Payload{Claims: map[string]interface{}{
			"iss": "accounts.google.com",
			"sub": "sub-004",
		}}},
	}}, "client-id")

	_, _, err := verifier.Verify(context.Background(), "no-email-token")
	if !errors.Is(err, ErrIncompleteClaims) {
		t.Fatalf("expected ErrIncompleteClaims, got %v", err)
	}
}

func TestChannelProviderRecordsBearerPerSubject(t *testing.T) {
	t.Parallel()

	provider := NewChannelProvider()
	defer provider.Close()

	handle := Handle{Subject: "sub-001", Email: "cliente@example.com", EmailVerified: true}
	provider.Emit(&handle, "bearer-1")

	event := <-provider.Events()
	if event.Handle == nil || event.Handle.Subject != "sub-001" {
		t.Fatalf("unexpected event: %+v", event)
	}

	bearer, err := provider.BearerToken(context.Background(), handle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bearer != "bearer-1" {
		t.Fatalf("expected bearer-1, got %q", bearer)
	}

	if _, missingErr := provider.BearerToken(context.Background(), Handle{Subject: "unknown"}); !errors.Is(missingErr, ErrNoBearerToken) {
		t.Fatalf("expected ErrNoBearerToken, got %v", missingErr)
	}
}

func TestChannelProviderNilHandleSignalsSignOut(t *testing.T) {
	t.Parallel()

	provider := NewChannelProvider()
	defer provider.Close()

	provider.Emit(nil, "")
	event := <-provider.Events()
	if event.Handle != nil {
		t.Fatalf("expected nil handle for sign-out event")
	}
}
