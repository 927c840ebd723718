package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
)

var ErrProfileRejected = errors.New("profile was rejected")

type TokenIssuer interface {
	GenerateAccessToken(claims *domain.Claims) (*domain.TokenPair, error)
}

// TokenService mints access tokens for existing profiles. End users sign in
// at the identity provider; this covers operators and service accounts.
type TokenService struct {
	profiles ProfileRepository
	issuer   TokenIssuer
	log      *zap.Logger
}

func NewTokenService(profiles ProfileRepository, issuer TokenIssuer, log *zap.Logger) *TokenService {
	return &TokenService{profiles: profiles, issuer: issuer, log: log.Named("tokens")}
}

// IssueToken signs a token carrying the profile's stored email and role.
// Suspended and rejected profiles are refused.
func (s *TokenService) IssueToken(ctx context.Context, profileID uuid.UUID) (*domain.TokenPair, error) {
	p, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, withKind(ErrNotFound, err)
		}
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	if p.IsSuspended {
		return nil, fmt.Errorf("%w: account suspended", ErrForbidden)
	}
	if p.Status == domain.ProfileRejected {
		return nil, withKind(ErrForbidden, ErrProfileRejected)
	}

	pair, err := s.issuer.GenerateAccessToken(&domain.Claims{
		UserID: p.ID,
		Email:  p.Email,
		Role:   p.Role,
	})
	if err != nil {
		s.log.Error("failed to sign access token", zap.Error(err))
		return nil, fmt.Errorf("signing token: %w", err)
	}

	s.log.Info("access token issued",
		zap.String("user_id", p.ID.String()),
		zap.String("role", string(p.Role)),
		zap.Time("expires_at", pair.ExpiresAt),
	)
	return pair, nil
}
