package authflow

import (
	"errors"
	"testing"
	"time"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

func TestMintSessionJWTRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	_, _, err := MintSessionJWT(fixedClock{timestamp: time.Unix(1700000000, 0)}, "", "cliente@example.com", "Cliente", "cliente", "issuer", []byte("signing-key"), time.Minute)
	if err == nil {
		t.Fatalf("expected error when subject is empty")
	}

	expected := "session_jwt.mint.failure: subject must be non-empty"
	if err.Error() != expected {
		t.Fatalf("expected error %q, got %q", expected, err.Error())
	}
}

func TestMintSessionJWTCarriesClockTimestamps(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	token, expiresAt, err := MintSessionJWT(fixedClock{timestamp: reference}, "sub-001", "cliente@example.com", "Cliente", "cliente", "issuer", []byte("signing-key"), 2*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected signed token")
	}
	expectedExpiry := reference.Add(2 * time.Minute)
	if !expiresAt.Equal(expectedExpiry) {
		t.Fatalf("expected expiry %v, got %v", expectedExpiry, expiresAt)
	}
}

func TestParseSessionJWTRoundTrip(t *testing.T) {
	t.Parallel()

	signingKey := []byte("signing-key")
	token, _, mintErr := MintSessionJWT(nil, "sub-001", "cliente@example.com", "Cliente Uno", "cliente", "loopin-gateway", signingKey, time.Hour)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}

	claims, parseErr := ParseSessionJWT(token, "loopin-gateway", signingKey)
	if parseErr != nil {
		t.Fatalf("unexpected parse error: %v", parseErr)
	}
	if claims.Subject != "sub-001" {
		t.Fatalf("expected subject sub-001, got %q", claims.Subject)
	}
	if claims.UserEmail != "cliente@example.com" || claims.UserDisplayName != "Cliente Uno" || claims.UserRole != "cliente" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseSessionJWTRejectsWrongKey(t *testing.T) {
	t.Parallel()

	token, _, mintErr := MintSessionJWT(nil, "sub-001", "cliente@example.com", "Cliente", "cliente", "loopin-gateway", []byte("signing-key"), time.Hour)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}

	_, parseErr := ParseSessionJWT(token, "loopin-gateway", []byte("other-key"))
	if !errors.Is(parseErr, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", parseErr)
	}
}

func TestParseSessionJWTRejectsForeignIssuer(t *testing.T) {
	t.Parallel()

	signingKey := []byte("signing-key")
	token, _, mintErr := MintSessionJWT(nil, "sub-001", "cliente@example.com", "Cliente", "cliente", "somewhere-else", signingKey, time.Hour)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}

	_, parseErr := ParseSessionJWT(token, "loopin-gateway", signingKey)
	if !errors.Is(parseErr, ErrInvalidSessionIssuer) {
		t.Fatalf("expected issuer error, got %v", parseErr)
	}
}

func TestParseSessionJWTRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	signingKey := []byte("signing-key")
	past := fixedClock{timestamp: time.Now().Add(-2 * time.Hour)}
	token, _, mintErr := MintSessionJWT(past, "sub-001", "cliente@example.com", "Cliente", "cliente", "loopin-gateway", signingKey, time.Hour)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}

	_, parseErr := ParseSessionJWT(token, "loopin-gateway", signingKey)
	if !errors.Is(parseErr, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", parseErr)
	}
}
