package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/testutil"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/auth"
)

func TestIssueToken(t *testing.T) {
	db := testutil.NewDB(t)
	jwt := auth.NewJWTManager(config.JWTConfig{Secret: "test-secret-test-secret-test-secret", Issuer: "epicheck-test", AccessTokenTTL: time.Minute})
	svc := NewTokenService(repository.NewProfileRepository(db), jwt, zap.NewNop())

	doctor := testutil.CreateProfile(t, db, domain.RoleDoctor, domain.ProfileApproved)
	rejected := testutil.CreateProfile(t, db, domain.RoleDoctor, domain.ProfileRejected)
	suspended := testutil.CreateProfile(t, db, domain.RoleUser, domain.ProfileActive)
	if err := db.Model(suspended).Update("is_suspended", true).Error; err != nil {
		t.Fatalf("suspending: %v", err)
	}

	pair, err := svc.IssueToken(context.Background(), doctor.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := jwt.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.UserID != doctor.ID || claims.Role != domain.RoleDoctor || claims.Email != doctor.Email {
		t.Errorf("unexpected claims: %+v", claims)
	}

	tests := []struct {
		name string
		id   uuid.UUID
		kind error
	}{
		{"unknown profile", uuid.New(), ErrNotFound},
		{"rejected profile", rejected.ID, ErrForbidden},
		{"suspended profile", suspended.ID, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IssueToken(context.Background(), tt.id)
			requireKind(t, err, tt.kind)
		})
	}

	if _, err := svc.IssueToken(context.Background(), rejected.ID); !errors.Is(err, ErrProfileRejected) {
		t.Errorf("expected ErrProfileRejected in chain, got %v", err)
	}
}
