package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/assignment"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

const selfClaimReason = "self_claim"

type AssignmentService struct {
	cases       skincase.Repository
	assignments assignment.Repository
	profiles    ProfileRepository
	guard       *RoleGuard
	auditSvc    *AuditService
	notifier    *NotificationService
	metrics     *metrics.Collector
	log         *zap.Logger
}

func NewAssignmentService(
	cases skincase.Repository,
	assignments assignment.Repository,
	profiles ProfileRepository,
	guard *RoleGuard,
	auditSvc *AuditService,
	notifier *NotificationService,
	m *metrics.Collector,
	log *zap.Logger,
) *AssignmentService {
	return &AssignmentService{
		cases:       cases,
		assignments: assignments,
		profiles:    profiles,
		guard:       guard,
		auditSvc:    auditSvc,
		notifier:    notifier,
		metrics:     m,
		log:         log.Named("assignment"),
	}
}

// AssignCase puts a doctor on an unassigned case. A case that already has a
// doctor, including one assigned concurrently, is a Conflict.
func (s *AssignmentService) AssignCase(ctx context.Context, claims *domain.Claims, cmd *assignment.AssignCommand) (*skincase.Case, error) {
	admin, err := s.guard.RequireAdmin(ctx, claims)
	if err != nil {
		return nil, err
	}

	c, err := s.assignableCase(ctx, cmd.CaseID)
	if err != nil {
		return nil, err
	}
	if c.AssignedDoctorID != nil {
		return nil, classify(assignment.ErrAlreadyAssigned)
	}
	if err := s.requireEligibleDoctor(ctx, cmd.DoctorID); err != nil {
		return nil, err
	}

	a := &assignment.CaseAssignment{
		CaseID:     c.ID,
		DoctorID:   cmd.DoctorID,
		AssignedBy: admin.ID,
		Source:     assignment.SourceAdmin,
		Reason:     strings.TrimSpace(cmd.Reason),
	}
	if err := s.assignments.Assign(ctx, a); err != nil {
		if errors.Is(err, assignment.ErrAlreadyAssigned) {
			s.metrics.CASConflicts.WithLabelValues("assign").Inc()
		}
		return nil, classify(err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       actorOf(admin),
		Action:      domain.ActionCaseAssigned,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata:    map[string]any{"doctor_id": cmd.DoctorID.String(), "reason": a.Reason},
	})
	s.notifyDoctor(ctx, cmd.DoctorID, c.ID)

	s.log.Info("case assigned",
		zap.String("case_id", c.ID.String()),
		zap.String("doctor_id", cmd.DoctorID.String()),
		zap.String("assigned_by", admin.ID.String()),
	)

	out, err := s.cases.GetByID(ctx, c.ID)
	return out, classify(err)
}

// ReassignCase replaces the current doctor. The case must currently be
// assigned and not Closed.
func (s *AssignmentService) ReassignCase(ctx context.Context, claims *domain.Claims, cmd *assignment.AssignCommand) (*skincase.Case, error) {
	admin, err := s.guard.RequireAdmin(ctx, claims)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, classify(assignment.ErrReasonRequired)
	}

	c, err := s.assignableCase(ctx, cmd.CaseID)
	if err != nil {
		return nil, err
	}
	if c.AssignedDoctorID == nil {
		return nil, classify(assignment.ErrNotAssigned)
	}
	previous := *c.AssignedDoctorID
	if previous == cmd.DoctorID {
		return nil, classify(assignment.ErrSameDoctor)
	}
	if err := s.requireEligibleDoctor(ctx, cmd.DoctorID); err != nil {
		return nil, err
	}

	a := &assignment.CaseAssignment{
		CaseID:     c.ID,
		DoctorID:   cmd.DoctorID,
		AssignedBy: admin.ID,
		Source:     assignment.SourceReassign,
		Reason:     reason,
	}
	if err := s.assignments.Reassign(ctx, previous, a); err != nil {
		if errors.Is(err, assignment.ErrAlreadyAssigned) {
			s.metrics.CASConflicts.WithLabelValues("reassign").Inc()
		}
		return nil, classify(err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       actorOf(admin),
		Action:      domain.ActionCaseReassigned,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata: map[string]any{
			"from_doctor_id": previous.String(),
			"to_doctor_id":   cmd.DoctorID.String(),
			"reason":         reason,
		},
	})
	s.notifyDoctor(ctx, cmd.DoctorID, c.ID)

	out, err := s.cases.GetByID(ctx, c.ID)
	return out, classify(err)
}

// ClaimNextCase assigns the oldest waiting case to the calling doctor. It
// makes a single attempt: when there is no candidate or another doctor wins
// the race, ok is false and err is nil.
func (s *AssignmentService) ClaimNextCase(ctx context.Context, claims *domain.Claims) (c *skincase.Case, ok bool, err error) {
	doctor, err := s.guard.RequireDoctor(ctx, claims)
	if err != nil {
		return nil, false, err
	}

	candidate, err := s.cases.OldestClaimable(ctx)
	if err != nil {
		if errors.Is(err, skincase.ErrCaseNotFound) {
			s.metrics.ClaimsTotal.WithLabelValues("empty").Inc()
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("selecting claimable case: %w", err)
	}

	won, err := s.assignments.Claim(ctx, &assignment.CaseAssignment{
		CaseID:     candidate.ID,
		DoctorID:   doctor.ID,
		AssignedBy: doctor.ID,
		Source:     assignment.SourceSelfClaim,
		Reason:     selfClaimReason,
	})
	if err != nil {
		return nil, false, fmt.Errorf("claiming case: %w", err)
	}
	if !won {
		s.metrics.ClaimsTotal.WithLabelValues("lost").Inc()
		s.metrics.CASConflicts.WithLabelValues("claim").Inc()
		return nil, false, nil
	}
	s.metrics.ClaimsTotal.WithLabelValues("claimed").Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       actorOf(doctor),
		Action:      domain.ActionCaseClaimed,
		TargetTable: caseTable,
		TargetID:    candidate.ID.String(),
	})

	c, err = s.cases.GetByID(ctx, candidate.ID)
	if err != nil {
		return nil, false, classify(err)
	}
	return c, true, nil
}

func (s *AssignmentService) ListDoctorCases(ctx context.Context, claims *domain.Claims, page, pageSize int) (*skincase.PagedCases, error) {
	doctor, err := s.guard.RequireDoctor(ctx, claims)
	if err != nil {
		return nil, err
	}
	q := &skincase.ListCasesQuery{AssignedDoctorID: &doctor.ID, Page: page, PageSize: pageSize}
	normalizePage(q)
	return s.cases.List(ctx, q)
}

func (s *AssignmentService) assignableCase(ctx context.Context, caseID uuid.UUID) (*skincase.Case, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, classify(err)
	}
	if c.Status == skincase.StatusClosed {
		return nil, classify(assignment.ErrCaseNotAssignable)
	}
	return c, nil
}

func (s *AssignmentService) requireEligibleDoctor(ctx context.Context, doctorID uuid.UUID) error {
	p, err := s.profiles.GetByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return classify(assignment.ErrDoctorNotEligible)
		}
		return fmt.Errorf("loading doctor profile: %w", err)
	}
	if !p.IsApprovedDoctor() || p.IsSuspended {
		return classify(assignment.ErrDoctorNotEligible)
	}
	return nil
}

func (s *AssignmentService) notifyDoctor(ctx context.Context, doctorID, caseID uuid.UUID) {
	s.notifier.Notify(ctx, Notice{
		UserID:    doctorID,
		Kind:      notification.KindCaseAssigned,
		Title:     "New case assigned",
		Message:   "A case has been assigned to you for review.",
		ActionURL: caseURL(caseID),
	})
}
