package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

const maxReviewNoteLen = 5000

type ReviewService struct {
	cases    skincase.Repository
	reviews  review.Repository
	guard    *RoleGuard
	auditSvc *AuditService
	notifier *NotificationService
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewReviewService(
	cases skincase.Repository,
	reviews review.Repository,
	guard *RoleGuard,
	auditSvc *AuditService,
	notifier *NotificationService,
	m *metrics.Collector,
	log *zap.Logger,
) *ReviewService {
	return &ReviewService{
		cases:    cases,
		reviews:  reviews,
		guard:    guard,
		auditSvc: auditSvc,
		notifier: notifier,
		metrics:  m,
		log:      log.Named("review"),
	}
}

// ReviewCase records the assigned doctor's decision. Approved and Rejected
// close the case; NeedsMoreInfo leaves it Reviewed with the same doctor.
func (s *ReviewService) ReviewCase(ctx context.Context, claims *domain.Claims, cmd *review.SubmitReviewCommand) (*skincase.Case, error) {
	doctor, err := s.guard.RequireDoctor(ctx, claims)
	if err != nil {
		return nil, err
	}

	if !cmd.Decision.IsValid() {
		return nil, classify(review.ErrInvalidDecision)
	}
	note := strings.TrimSpace(cmd.Note)
	if len(note) > maxReviewNoteLen {
		return nil, newValidationError(fmt.Sprintf("note must be at most %d characters", maxReviewNoteLen))
	}

	c, err := s.cases.GetByID(ctx, cmd.CaseID)
	if err != nil {
		return nil, classify(err)
	}
	if !c.IsAssignedTo(doctor.ID) {
		return nil, fmt.Errorf("%w: case is not assigned to this doctor", ErrForbidden)
	}
	if c.Status != skincase.StatusReviewed {
		return nil, classify(review.ErrNotReviewable)
	}

	exists, err := s.reviews.Exists(ctx, c.ID, doctor.ID)
	if err != nil {
		return nil, fmt.Errorf("checking existing review: %w", err)
	}
	if exists {
		return nil, classify(review.ErrAlreadyReviewed)
	}

	next := cmd.Decision.NextStatus()
	rv := &review.DoctorReview{
		CaseID:   c.ID,
		DoctorID: doctor.ID,
		Decision: cmd.Decision,
		Note:     note,
	}
	if err := s.reviews.Record(ctx, rv, next); err != nil {
		if errors.Is(err, skincase.ErrStatusConflict) || errors.Is(err, review.ErrAlreadyReviewed) {
			s.metrics.CASConflicts.WithLabelValues("review").Inc()
		}
		return nil, classify(err)
	}
	s.metrics.CaseTransitions.WithLabelValues(string(skincase.StatusReviewed), string(next)).Inc()
	s.metrics.ReviewsTotal.WithLabelValues(string(cmd.Decision)).Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       actorOf(doctor),
		Action:      domain.ActionCaseReviewed,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata: map[string]any{
			"review_id":   rv.ID.String(),
			"decision":    string(cmd.Decision),
			"next_status": string(next),
		},
	})
	s.notifier.Notify(ctx, Notice{
		UserID:    c.OwnerID,
		Kind:      notification.KindCaseReviewed,
		Title:     "Doctor review available",
		Message:   reviewMessage(cmd.Decision),
		ActionURL: caseURL(c.ID),
	})

	s.log.Info("case reviewed",
		zap.String("case_id", c.ID.String()),
		zap.String("doctor_id", doctor.ID.String()),
		zap.String("decision", string(cmd.Decision)),
	)

	out, err := s.cases.GetByID(ctx, c.ID)
	return out, classify(err)
}

func reviewMessage(d review.Decision) string {
	if d == review.DecisionNeedsMoreInfo {
		return "Your doctor needs more information about your case."
	}
	return "A doctor has reviewed your case."
}
