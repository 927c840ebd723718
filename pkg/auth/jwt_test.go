package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
)

func testManager(ttl time.Duration) *JWTManager {
	return NewJWTManager(config.JWTConfig{
		Secret:         "test-secret-test-secret-test-secret",
		AccessTokenTTL: ttl,
		Issuer:         "epicheck-test",
	})
}

func TestAccessToken_RoundTrip(t *testing.T) {
	m := testManager(time.Minute)
	in := &domain.Claims{UserID: uuid.New(), Email: "doc@example.com", Role: domain.RoleDoctor}

	pair, err := m.GenerateAccessToken(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("expected Bearer token type, got %q", pair.TokenType)
	}

	out, err := m.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if out.UserID != in.UserID || out.Role != in.Role || out.Email != in.Email {
		t.Errorf("claims mismatch: got %+v, want %+v", out, in)
	}
}

func TestAccessToken_Expired(t *testing.T) {
	m := testManager(-time.Minute)

	pair, err := m.GenerateAccessToken(&domain.Claims{UserID: uuid.New(), Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := m.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAccessToken_WrongSecretOrIssuer(t *testing.T) {
	pair, err := testManager(time.Minute).GenerateAccessToken(&domain.Claims{UserID: uuid.New(), Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name string
		cfg  config.JWTConfig
	}{
		{"other secret", config.JWTConfig{Secret: "another-secret-another-secret-xx", Issuer: "epicheck-test"}},
		{"other issuer", config.JWTConfig{Secret: "test-secret-test-secret-test-secret", Issuer: "someone-else"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewJWTManager(tt.cfg).ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}
