package taskqueue

import (
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestTokenSignAndVerifyRoundTrip(t *testing.T) {
	signer, err := NewTokenSigner("test-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	raw, err := signer.Sign("task-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	taskID, err := signer.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if taskID != "task-1" {
		t.Fatalf("taskID = %q, want task-1", taskID)
	}
}

func TestTokenVerifyRejectsWrongSecret(t *testing.T) {
	signer, _ := NewTokenSigner("secret-a")
	other, _ := NewTokenSigner("secret-b")

	raw, err := signer.Sign("task-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := other.Verify(raw); err != ErrInvalidTaskToken {
		t.Fatalf("verify with wrong secret: err = %v, want ErrInvalidTaskToken", err)
	}
}

func TestTokenVerifyRejectsExpired(t *testing.T) {
	signer, _ := NewTokenSigner("test-secret")
	past := time.Now().UTC().Add(-time.Hour)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "task-1",
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(past),
		ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signer.secret)
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}
	if _, err := signer.Verify(raw); err != ErrInvalidTaskToken {
		t.Fatalf("verify expired: err = %v, want ErrInvalidTaskToken", err)
	}
}

func TestTokenVerifyRejectsWrongAudience(t *testing.T) {
	signer, _ := NewTokenSigner("test-secret")
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "task-1",
		Audience:  jwt.ClaimStrings{"another-service"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signer.secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := signer.Verify(raw); err != ErrInvalidTaskToken {
		t.Fatalf("verify wrong audience: err = %v, want ErrInvalidTaskToken", err)
	}
}

func TestNewTokenSignerRequiresSecret(t *testing.T) {
	if _, err := NewTokenSigner("  "); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/tasks/create_assistant", nil)
	if _, ok := TokenFromRequest(r); ok {
		t.Fatalf("expected no token on bare request")
	}
	r.Header.Set(TaskTokenHeader, "  abc  ")
	token, ok := TokenFromRequest(r)
	if !ok || token != "abc" {
		t.Fatalf("token = (%q, %v), want (abc, true)", token, ok)
	}
}
