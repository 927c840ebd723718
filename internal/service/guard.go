package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
)

type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
}

// RoleGuard resolves the caller behind a verified token to a live profile.
// The role inside the token is not trusted; every check uses the stored
// profile so suspensions and approvals take effect immediately.
type RoleGuard struct {
	profiles ProfileRepository
}

func NewRoleGuard(profiles ProfileRepository) *RoleGuard {
	return &RoleGuard{profiles: profiles}
}

// Authenticate returns the caller's profile. Missing identity or an unknown
// or deleted profile is Unauthorized; a suspended account is Forbidden.
func (g *RoleGuard) Authenticate(ctx context.Context, claims *domain.Claims) (*domain.Profile, error) {
	if claims == nil || claims.UserID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	p, err := g.profiles.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, withKind(ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("resolving caller profile: %w", err)
	}

	if p.IsSuspended {
		return nil, fmt.Errorf("%w: account suspended", ErrForbidden)
	}
	return p, nil
}

func (g *RoleGuard) RequireRole(ctx context.Context, claims *domain.Claims, roles ...domain.Role) (*domain.Profile, error) {
	p, err := g.Authenticate(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(roles, p.Role) {
		return nil, ErrForbidden
	}
	return p, nil
}

// RequireDoctor additionally requires the doctor's verification to be approved.
func (g *RoleGuard) RequireDoctor(ctx context.Context, claims *domain.Claims) (*domain.Profile, error) {
	p, err := g.RequireRole(ctx, claims, domain.RoleDoctor)
	if err != nil {
		return nil, err
	}
	if !p.IsApprovedDoctor() {
		return nil, fmt.Errorf("%w: doctor is not approved", ErrForbidden)
	}
	return p, nil
}

func (g *RoleGuard) RequireAdmin(ctx context.Context, claims *domain.Claims) (*domain.Profile, error) {
	return g.RequireRole(ctx, claims, domain.RoleAdmin)
}

func (g *RoleGuard) RequireSupportOrAdmin(ctx context.Context, claims *domain.Claims) (*domain.Profile, error) {
	return g.RequireRole(ctx, claims, domain.RoleSupport, domain.RoleAdmin)
}
