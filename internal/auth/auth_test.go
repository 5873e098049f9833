package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/examhall/internal/model"
)

func TestIssueAndVerify(t *testing.T) {
	tokens, err := NewTokens("secret", 0)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	if tokens.TTL() != DefaultTokenTTL {
		t.Errorf("TTL = %v, want %v", tokens.TTL(), DefaultTokenTTL)
	}

	signed, err := tokens.Issue(model.User{Username: "ann", Role: model.UserRoleStudent})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "ann" || claims.Role != model.UserRoleStudent {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	tokens, _ := NewTokens("secret", time.Minute)
	other, _ := NewTokens("other", time.Minute)
	good, _ := tokens.Issue(model.User{Username: "ann", Role: model.UserRoleAdmin})
	foreign, _ := other.Issue(model.User{Username: "ann", Role: model.UserRoleAdmin})

	expired, _ := NewTokens("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	stale, _ := expired.Issue(model.User{Username: "ann"})

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "ann"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", foreign},
		{"expired", stale},
		{"tampered", good[:len(good)-2] + "xx"},
		{"unsigned", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tokens.Verify(tt.token); !errors.Is(err, model.ErrUnauthorized) {
				t.Errorf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	if _, err := NewTokens("", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "Correct horse") {
		t.Error("expected mismatch")
	}

	if _, err := HashPassword("short"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("short password: expected validation error, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 80)); !errors.Is(err, model.ErrValidation) {
		t.Errorf("long password: expected validation error, got %v", err)
	}
}
