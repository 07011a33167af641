package auth

import (
	"errors"
	"testing"
	"time"

	"galleria/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenManager(t *testing.T, ttl time.Duration) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager(testSecret, "galleria", ttl)
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}
	return manager
}

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenManager("too-short", "galleria", time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	manager := newTestTokenManager(t, time.Hour)
	user := models.User{ID: "user-1", Username: "alice", Email: "alice@example.com", Roles: []string{"reader"}}

	signed, expiresAt, err := manager.Issue(user)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining < 55*time.Minute || remaining > time.Hour {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	subject, err := manager.Validate(signed)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if subject != user.ID {
		t.Fatalf("subject = %q, want %q", subject, user.ID)
	}
}

func TestValidateRejectsMissingToken(t *testing.T) {
	manager := newTestTokenManager(t, time.Hour)
	if _, err := manager.Validate("  "); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Validate error = %v, want ErrNoCredential", err)
	}
}

func TestValidateRejectsForgedToken(t *testing.T) {
	manager := newTestTokenManager(t, time.Hour)
	other, err := NewTokenManager("ffffffffffffffffffffffffffffffff", "galleria", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}
	signed, _, err := other.Issue(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := manager.Validate(signed); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Validate error = %v, want ErrInvalidCredential", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	manager := newTestTokenManager(t, time.Hour)
	manager.ttl = -time.Minute
	signed, _, err := manager.Issue(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	manager.ttl = time.Hour
	if _, err := manager.Validate(signed); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Validate error = %v, want ErrInvalidCredential", err)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	other, err := NewTokenManager(testSecret, "someone-else", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}
	signed, _, err := other.Issue(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	manager := newTestTokenManager(t, time.Hour)
	if _, err := manager.Validate(signed); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Validate error = %v, want ErrInvalidCredential", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	manager := newTestTokenManager(t, time.Hour)
	if _, err := manager.Validate("not-a-token"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Validate error = %v, want ErrInvalidCredential", err)
	}
}
