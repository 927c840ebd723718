package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

const caseTable = "skin_cases"

type CaseService struct {
	cases    skincase.Repository
	guard    *RoleGuard
	auditSvc *AuditService
	notifier *NotificationService
	uploads  config.UploadConfig
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewCaseService(
	cases skincase.Repository,
	guard *RoleGuard,
	auditSvc *AuditService,
	notifier *NotificationService,
	uploads config.UploadConfig,
	m *metrics.Collector,
	log *zap.Logger,
) *CaseService {
	return &CaseService{
		cases:    cases,
		guard:    guard,
		auditSvc: auditSvc,
		notifier: notifier,
		uploads:  uploads,
		metrics:  m,
		log:      log,
	}
}

func (s *CaseService) CreateCase(ctx context.Context, claims *domain.Claims, cmd *skincase.CreateCaseCommand) (*skincase.Case, error) {
	owner, err := s.guard.RequireRole(ctx, claims, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	symptoms := normalizeSymptoms(cmd.Symptoms)
	c := &skincase.Case{
		OwnerID:     owner.ID,
		Description: strings.TrimSpace(cmd.Description),
		Status:      skincase.StatusSubmitted,
	}

	if err := s.cases.Create(ctx, c, symptoms); err != nil {
		s.log.Error("failed to create case", zap.Error(err))
		return nil, fmt.Errorf("creating case: %w", err)
	}
	s.metrics.CasesCreatedTotal.Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       actorOf(owner),
		Action:      domain.ActionCaseCreated,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata:    map[string]any{"symptom_count": len(symptoms)},
	})
	s.notifier.Notify(ctx, Notice{
		UserID:    owner.ID,
		Kind:      notification.KindCaseSubmitted,
		Title:     "Case submitted",
		Message:   "Your case has been created. Upload a photo and request an analysis when ready.",
		ActionURL: caseURL(c.ID),
	})

	s.log.Info("case created",
		zap.String("case_id", c.ID.String()),
		zap.String("owner_id", owner.ID.String()),
	)
	return c, nil
}

// AttachImage records an uploaded image for a Submitted case. The bytes are
// already in object storage; only the reference is stored.
func (s *CaseService) AttachImage(ctx context.Context, claims *domain.Claims, caseID uuid.UUID, cmd *skincase.AttachImageCommand) (*skincase.CaseFile, error) {
	owner, c, err := s.ownedCase(ctx, claims, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != skincase.StatusSubmitted {
		return nil, classify(skincase.ErrNotEditable)
	}

	var errs []string
	if strings.TrimSpace(cmd.StoragePath) == "" {
		errs = append(errs, "storage_path is required")
	}
	if !slices.Contains(s.uploads.AllowedImageTypes, cmd.ContentType) {
		errs = append(errs, fmt.Sprintf("content_type must be one of %s", strings.Join(s.uploads.AllowedImageTypes, ", ")))
	}
	if cmd.SizeBytes <= 0 || cmd.SizeBytes > s.uploads.MaxImageBytes() {
		errs = append(errs, fmt.Sprintf("size_bytes must be between 1 and %d", s.uploads.MaxImageBytes()))
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs, cause: skincase.ErrInvalidImage}
	}

	f := &skincase.CaseFile{
		CaseID:      c.ID,
		StoragePath: strings.TrimSpace(cmd.StoragePath),
		ContentType: cmd.ContentType,
		SizeBytes:   cmd.SizeBytes,
	}
	if err := s.cases.AddImage(ctx, f); err != nil {
		return nil, fmt.Errorf("recording case image: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       actorOf(owner),
		Action:      domain.ActionCaseImageUploaded,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata:    map[string]any{"file_id": f.ID.String(), "content_type": f.ContentType, "size_bytes": f.SizeBytes},
	})
	return f, nil
}

func (s *CaseService) AddSymptoms(ctx context.Context, claims *domain.Claims, caseID uuid.UUID, codes []string) error {
	owner, c, err := s.ownedCase(ctx, claims, caseID)
	if err != nil {
		return err
	}
	if c.Status != skincase.StatusSubmitted {
		return classify(skincase.ErrNotEditable)
	}

	symptoms := normalizeSymptoms(codes)
	if len(symptoms) == 0 {
		return classify(skincase.ErrNoSymptoms)
	}

	if err := s.cases.AddSymptoms(ctx, c.ID, symptoms); err != nil {
		return fmt.Errorf("adding symptoms: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       actorOf(owner),
		Action:      domain.ActionCaseSymptomsAdded,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata:    map[string]any{"symptoms": symptoms},
	})
	return nil
}

// GetCase is readable by the owner, the assigned doctor, and admin/support.
func (s *CaseService) GetCase(ctx context.Context, claims *domain.Claims, caseID uuid.UUID) (*skincase.Details, error) {
	if _, err := s.readableCase(ctx, claims, caseID); err != nil {
		return nil, err
	}
	d, err := s.cases.GetDetails(ctx, caseID)
	return d, classify(err)
}

func (s *CaseService) ListPredictions(ctx context.Context, claims *domain.Claims, caseID uuid.UUID) ([]*skincase.Prediction, error) {
	if _, err := s.readableCase(ctx, claims, caseID); err != nil {
		return nil, err
	}
	return s.cases.ListPredictions(ctx, caseID)
}

func (s *CaseService) ListCases(ctx context.Context, claims *domain.Claims, page, pageSize int) (*skincase.PagedCases, error) {
	owner, err := s.guard.Authenticate(ctx, claims)
	if err != nil {
		return nil, err
	}
	q := &skincase.ListCasesQuery{OwnerID: &owner.ID, Page: page, PageSize: pageSize}
	normalizePage(q)
	return s.cases.List(ctx, q)
}

// ListFailedCases is the operator queue of cases that exhausted their retries.
func (s *CaseService) ListFailedCases(ctx context.Context, claims *domain.Claims, page, pageSize int) (*skincase.PagedCases, error) {
	if _, err := s.guard.RequireSupportOrAdmin(ctx, claims); err != nil {
		return nil, err
	}
	status := skincase.StatusProcessingFailed
	q := &skincase.ListCasesQuery{Status: &status, OldestFirst: true, Page: page, PageSize: pageSize}
	normalizePage(q)
	return s.cases.List(ctx, q)
}

func (s *CaseService) DeleteCase(ctx context.Context, claims *domain.Claims, caseID uuid.UUID) error {
	owner, c, err := s.ownedCase(ctx, claims, caseID)
	if err != nil {
		return err
	}
	// The store refuses a Processing case in the same update, so an analysis
	// reserved after the read above still wins.
	if err := s.cases.SoftDelete(ctx, c.ID, owner.ID); err != nil {
		return classify(err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:       actorOf(owner),
		Action:      domain.ActionCaseDeleted,
		TargetTable: caseTable,
		TargetID:    c.ID.String(),
		Metadata:    map[string]any{"status": string(c.Status)},
	})
	return nil
}

// ownedCase loads a case owned by the caller. Someone else's case is
// reported as not found.
func (s *CaseService) ownedCase(ctx context.Context, claims *domain.Claims, caseID uuid.UUID) (*domain.Profile, *skincase.Case, error) {
	caller, err := s.guard.Authenticate(ctx, claims)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, nil, classify(err)
	}
	if !c.IsOwnedBy(caller.ID) {
		return nil, nil, classify(skincase.ErrCaseNotFound)
	}
	return caller, c, nil
}

func (s *CaseService) readableCase(ctx context.Context, claims *domain.Claims, caseID uuid.UUID) (*skincase.Case, error) {
	caller, err := s.guard.Authenticate(ctx, claims)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, classify(err)
	}

	switch {
	case c.IsOwnedBy(caller.ID):
	case caller.Role == domain.RoleAdmin || caller.Role == domain.RoleSupport:
	case caller.IsApprovedDoctor() && c.IsAssignedTo(caller.ID):
	default:
		return nil, ErrForbidden
	}
	return c, nil
}

func normalizeSymptoms(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code != "" && !slices.Contains(out, code) {
			out = append(out, code)
		}
	}
	return out
}

func normalizePage(q *skincase.ListCasesQuery) {
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
}

func caseURL(id uuid.UUID) string {
	return "/cases/" + id.String()
}
