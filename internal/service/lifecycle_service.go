package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/inference"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

var ErrProcessingTimedOut = errors.New("case was stuck in processing past the timeout")

const maxFailureReasonLen = 500

type InferenceGateway interface {
	Predict(ctx context.Context, imagePath string) (*inference.Result, error)
}

// LifecycleService drives a case through analysis. Analysis is a two-step
// saga: the case is reserved with a Submitted → Processing CAS, inference
// runs without holding anything, and a second CAS from Processing either
// completes the case or compensates back to Submitted / ProcessingFailed.
type LifecycleService struct {
	cases    skincase.Repository
	gateway  InferenceGateway
	guard    *RoleGuard
	auditSvc *AuditService
	notifier *NotificationService
	cfg      config.LifecycleConfig
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewLifecycleService(
	cases skincase.Repository,
	gateway InferenceGateway,
	guard *RoleGuard,
	auditSvc *AuditService,
	notifier *NotificationService,
	cfg config.LifecycleConfig,
	m *metrics.Collector,
	log *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		cases:    cases,
		gateway:  gateway,
		guard:    guard,
		auditSvc: auditSvc,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		log:      log.Named("lifecycle"),
	}
}

// AnalyzeCase runs AI analysis on one of the caller's Submitted cases.
func (s *LifecycleService) AnalyzeCase(ctx context.Context, claims *domain.Claims, caseID uuid.UUID) (*skincase.Case, error) {
	owner, err := s.guard.Authenticate(ctx, claims)
	if err != nil {
		return nil, err
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, classify(err)
	}
	if !c.IsOwnedBy(owner.ID) {
		return nil, classify(skincase.ErrCaseNotFound)
	}

	return s.analyze(ctx, c, actorOf(owner))
}

func (s *LifecycleService) analyze(ctx context.Context, c *skincase.Case, by actor) (*skincase.Case, error) {
	if c.Status == skincase.StatusProcessing {
		return nil, withKind(ErrConflict, skincase.ErrAlreadyProcessing)
	}
	if c.Status != skincase.StatusSubmitted {
		return nil, withKind(ErrInvalidState, fmt.Errorf("case is %s, analysis requires %s", c.Status, skincase.StatusSubmitted))
	}

	reserve, err := skincase.NewTransition(skincase.StatusSubmitted, skincase.StatusProcessing, nil)
	if err != nil {
		return nil, classify(err)
	}
	if err := s.cases.TransitionStatus(ctx, c.ID, reserve); err != nil {
		if errors.Is(err, skincase.ErrStatusConflict) {
			s.metrics.CASConflicts.WithLabelValues("analyze_reserve").Inc()
			return nil, withKind(ErrConflict, skincase.ErrAlreadyProcessing)
		}
		return nil, err
	}
	s.recordTransition(skincase.StatusSubmitted, skincase.StatusProcessing)

	// The case is now committed to this attempt; a client disconnect must
	// not strand it in Processing.
	ctx = context.WithoutCancel(ctx)

	// Re-read under the reservation so retry_count is authoritative. Without
	// it a later compensation could write a stale count, so the attempt is
	// handed back uncounted instead.
	fresh, err := s.cases.GetByID(ctx, c.ID)
	if err != nil {
		s.log.Error("failed to reload reserved case",
			zap.String("case_id", c.ID.String()),
			zap.Error(err),
		)
		s.release(ctx, c.ID)
		return nil, fmt.Errorf("reloading reserved case: %w", err)
	}
	c = fresh

	img, err := s.cases.LatestImage(ctx, c.ID)
	if err != nil {
		if errors.Is(err, skincase.ErrImageMissing) {
			s.release(ctx, c.ID)
			return nil, classify(err)
		}
		return nil, s.fail(ctx, c, by, err)
	}

	res, err := s.predict(ctx, c.ID, img.StoragePath)
	if err != nil {
		return nil, s.fail(ctx, c, by, err)
	}

	severity, risk := skincase.ScoreConfidence(res.Confidence)
	p := &skincase.Prediction{
		CaseID:          c.ID,
		ModelVersion:    res.ModelVersion,
		PrimaryLabel:    res.PrimaryLabel,
		Confidence:      res.Confidence,
		SecondaryLabels: res.SecondaryLabels,
		SeverityScore:   severity,
		RiskLevel:       risk,
	}
	if err := s.cases.CompleteAnalysis(ctx, p); err != nil {
		if errors.Is(err, skincase.ErrStatusConflict) {
			// The sweeper compensated this attempt while inference ran.
			s.metrics.CASConflicts.WithLabelValues("analyze_complete").Inc()
			return nil, withKind(ErrConflict, err)
		}
		return nil, err
	}
	s.recordTransition(skincase.StatusProcessing, skincase.StatusReviewed)

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       by,
		Action:      domain.ActionAIAnalysisComplete,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata: map[string]any{
			"prediction_id": p.ID.String(),
			"label":         p.PrimaryLabel,
			"confidence":    p.Confidence,
			"risk_level":    string(p.RiskLevel),
		},
	})
	s.notifier.Notify(ctx, Notice{
		UserID:    c.OwnerID,
		Kind:      notification.KindAICompleted,
		Title:     "Analysis complete",
		Message:   "Your case has been analyzed and is waiting for a doctor.",
		ActionURL: caseURL(c.ID),
	})

	s.log.Info("case analyzed",
		zap.String("case_id", c.ID.String()),
		zap.String("label", p.PrimaryLabel),
		zap.Float64("confidence", p.Confidence),
	)

	out, err := s.cases.GetByID(ctx, c.ID)
	return out, classify(err)
}

func (s *LifecycleService) predict(ctx context.Context, caseID uuid.UUID, imagePath string) (*inference.Result, error) {
	ctx, span := otel.Tracer("epicheck/service").Start(ctx, "inference.Predict")
	defer span.End()
	span.SetAttributes(attribute.String("case.id", caseID.String()))

	start := time.Now()
	res, err := s.gateway.Predict(ctx, imagePath)
	if err == nil {
		err = inference.Validate(res)
	}

	outcome := "success"
	switch {
	case errors.Is(err, inference.ErrInvalidOutput):
		outcome = "invalid_output"
	case err != nil:
		outcome = "unavailable"
	}
	s.metrics.InferenceDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return res, nil
}

// release hands a reserved case back without counting an attempt.
func (s *LifecycleService) release(ctx context.Context, caseID uuid.UUID) {
	t, _ := skincase.NewTransition(skincase.StatusProcessing, skincase.StatusSubmitted, nil)
	if err := s.cases.TransitionStatus(ctx, caseID, t); err != nil {
		s.log.Warn("failed to release reserved case", zap.String("case_id", caseID.String()), zap.Error(err))
		return
	}
	s.recordTransition(skincase.StatusProcessing, skincase.StatusSubmitted)
}

// fail compensates a failed attempt and returns the caller-facing error:
// DependencyFailure while retries remain, RetryExhausted once they are used up.
func (s *LifecycleService) fail(ctx context.Context, c *skincase.Case, by actor, cause error) error {
	next, err := s.compensate(ctx, c, by, cause, time.Time{})
	if err != nil {
		if errors.Is(err, skincase.ErrStatusConflict) {
			s.metrics.CASConflicts.WithLabelValues("analyze_compensate").Inc()
			return withKind(ErrDependencyFailure, cause)
		}
		return err
	}
	if next == skincase.StatusProcessingFailed {
		return withKind(ErrRetryExhausted, cause)
	}
	return withKind(ErrDependencyFailure, cause)
}

// compensate applies the failure edge out of Processing for c and records it.
// staleBefore, when set, only matches rows untouched since then.
func (s *LifecycleService) compensate(ctx context.Context, c *skincase.Case, by actor, cause error, staleBefore time.Time) (skincase.Status, error) {
	retries := c.RetryCount + 1
	next := skincase.StatusSubmitted
	if retries >= s.cfg.MaxRetries {
		next = skincase.StatusProcessingFailed
	}

	reason := cause.Error()
	if len(reason) > maxFailureReasonLen {
		reason = reason[:maxFailureReasonLen]
	}

	t, err := skincase.NewTransition(skincase.StatusProcessing, next, map[string]any{
		"retry_count":         retries,
		"last_failure_reason": reason,
	})
	if err != nil {
		return "", err
	}
	t.StaleBefore = staleBefore

	if err := s.cases.TransitionStatus(ctx, c.ID, t); err != nil {
		return "", err
	}
	s.recordTransition(skincase.StatusProcessing, next)

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       by,
		Action:      domain.ActionAIAnalysisFailed,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata: map[string]any{
			"reason":      reason,
			"retry_count": retries,
			"next_status": string(next),
		},
	})

	if next != skincase.StatusProcessingFailed {
		s.log.Warn("case analysis failed, will retry",
			zap.String("case_id", c.ID.String()),
			zap.Int("retry_count", retries),
			zap.Error(cause),
		)
		return next, nil
	}

	s.metrics.RetryExhaustedTotal.Inc()
	s.log.Error("case analysis retry limit exhausted",
		zap.String("case_id", c.ID.String()),
		zap.Int("retry_count", retries),
		zap.Error(cause),
	)
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       by,
		Action:      domain.ActionAIRetryExhausted,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata:    map[string]any{"retry_count": retries, "reason": reason},
	})
	s.notifier.Notify(ctx, Notice{
		UserID:    c.OwnerID,
		Kind:      notification.KindAIFailed,
		Title:     "Analysis failed",
		Message:   "We could not analyze your case. Our support team has been notified.",
		ActionURL: caseURL(c.ID),
	})
	return next, nil
}

func (s *LifecycleService) recordTransition(from, to skincase.Status) {
	s.metrics.CaseTransitions.WithLabelValues(string(from), string(to)).Inc()
}
