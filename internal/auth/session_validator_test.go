package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSecret = "validator-test-secret"
	testIssuer = "worklog-auth"
)

func newTestPair(t *testing.T, clock func() time.Time) (*TokenIssuer, *SessionValidator) {
	t.Helper()
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSecret),
		Issuer:        testIssuer,
		Clock:         clock,
	})
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSecret),
		Issuer:        testIssuer,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return issuer, validator
}

func TestSessionTokenRoundTrip(t *testing.T) {
	issuer, validator := newTestPair(t, nil)

	token, expiresIn, err := issuer.IssueSessionToken(SessionClaims{
		UserID:          "user-1",
		UserEmail:       "ada@example.com",
		UserDisplayName: "Ada Lovelace",
		ProjectID:       "project-1",
	})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", expiresIn)
	}

	claims, err := validator.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.UserID != "user-1" || claims.ProjectID != "project-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject to default to user id, got %s", claims.Subject)
	}
}

func TestSessionValidatorRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0).UTC()
	issuer, _ := newTestPair(t, func() time.Time { return issuedAt })
	_, validator := newTestPair(t, func() time.Time { return issuedAt.Add(time.Hour) })

	token, _, err := issuer.IssueSessionToken(SessionClaims{UserID: "user-1", ProjectID: "project-1"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSessionValidatorRejectsWrongIssuer(t *testing.T) {
	otherIssuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSecret),
		Issuer:        "someone-else",
	})
	_, validator := newTestPair(t, nil)

	token, _, err := otherIssuer.IssueSessionToken(SessionClaims{UserID: "user-1", ProjectID: "project-1"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	if _, err := validator.ValidateToken(token); err == nil {
		t.Fatalf("expected issuer mismatch to fail validation")
	}
}

func TestSessionValidatorRejectsEmptyToken(t *testing.T) {
	_, validator := newTestPair(t, nil)

	if _, err := validator.ValidateToken("   "); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestIssueRequiresProjectClaim(t *testing.T) {
	issuer, _ := newTestPair(t, nil)

	if _, _, err := issuer.IssueSessionToken(SessionClaims{UserID: "user-1"}); err == nil {
		t.Fatalf("expected missing project claim to fail issuance")
	}
}

func TestValidateRejectsTokenWithoutProjectClaim(t *testing.T) {
	_, validator := newTestPair(t, nil)

	now := time.Now().UTC()
	claims := SessionClaims{UserID: "user-1"}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    testIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrMissingSessionProject) {
		t.Fatalf("expected missing project error, got %v", err)
	}
}
