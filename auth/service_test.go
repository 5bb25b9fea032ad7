package auth

import (
	"errors"
	"testing"
	"time"
)

func TestService_IssueAndVerifyToken(t *testing.T) {
	svc := NewService("test-secret")

	token, err := svc.IssueToken("user-1", RoleClient)
	if err != nil {
		t.Fatalf("issue: unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("issue: expected token, got empty string")
	}

	id, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: unexpected error: %v", err)
	}
	if id.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", id.UserID)
	}
	if id.Role != RoleClient {
		t.Fatalf("expected role %s, got %s", RoleClient, id.Role)
	}
	if id.CanArbitrate() {
		t.Fatal("client must not carry arbitration capability")
	}
}

func TestService_AdminCanArbitrate(t *testing.T) {
	svc := NewService("test-secret")
	token, err := svc.IssueToken("admin-1", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !id.CanArbitrate() {
		t.Fatal("admin must carry arbitration capability")
	}
}

func TestService_IssueValidation(t *testing.T) {
	svc := NewService("test-secret")
	if _, err := svc.IssueToken("", RoleClient); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := svc.IssueToken("user-1", Role("superuser")); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestService_VerifyRejectsForgedToken(t *testing.T) {
	svc := NewService("test-secret")
	other := NewService("other-secret")

	token, err := other.IssueToken("user-1", RoleAgent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.VerifyToken(token); err == nil {
		t.Fatal("expected verification failure for foreign signature")
	}
	if _, err := svc.VerifyToken("not-a-token"); err == nil {
		t.Fatal("expected verification failure for garbage")
	}
}

func TestService_VerifyRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService("test-secret").
		WithTTL(time.Hour).
		WithClock(func() time.Time { return issuedAt })

	token, err := svc.IssueToken("user-1", RoleAgent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.VerifyToken(token); err != nil {
		t.Fatalf("verify before expiry: %v", err)
	}

	svc.WithClock(func() time.Time { return issuedAt.Add(2 * time.Hour) })
	if _, err := svc.VerifyToken(token); err == nil {
		t.Fatal("expected verification failure after expiry")
	}
}

func TestService_VerifyArbiterKey(t *testing.T) {
	hash, err := HashArbiterKey("arbiter-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	svc := NewService("test-secret").WithArbiterKeyHash(hash)

	if err := svc.VerifyArbiterKey("arbiter-secret"); err != nil {
		t.Fatalf("verify: unexpected error: %v", err)
	}
	if err := svc.VerifyArbiterKey("wrong"); !errors.Is(err, ErrInvalidArbiterKey) {
		t.Fatalf("expected ErrInvalidArbiterKey, got %v", err)
	}
	if err := svc.VerifyArbiterKey(""); !errors.Is(err, ErrInvalidArbiterKey) {
		t.Fatalf("expected ErrInvalidArbiterKey for empty key, got %v", err)
	}

	bare := NewService("test-secret")
	if err := bare.VerifyArbiterKey("arbiter-secret"); !errors.Is(err, ErrInvalidArbiterKey) {
		t.Fatalf("expected rejection with no hash configured, got %v", err)
	}
}
