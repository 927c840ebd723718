package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/inference"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/testutil"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

type fakeGateway struct {
	mu     sync.Mutex
	result *inference.Result
	err    error
	delay  time.Duration
	calls  int
}

func (g *fakeGateway) Predict(ctx context.Context, imagePath string) (*inference.Result, error) {
	g.mu.Lock()
	g.calls++
	res, err, delay := g.result, g.err, g.delay
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	out := *res
	return &out, nil
}

func (g *fakeGateway) succeed(label string, confidence float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.result = &inference.Result{PrimaryLabel: label, Confidence: confidence, ModelVersion: "test-v1"}
	g.err = nil
}

func (g *fakeGateway) failWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.result = nil
	g.err = err
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixture struct {
	t   *testing.T
	db  *gorm.DB
	cfg config.LifecycleConfig

	gateway  *fakeGateway
	guard    *RoleGuard
	audit    *AuditService
	notifier *NotificationService

	cases       *CaseService
	lifecycle   *LifecycleService
	assignments *AssignmentService
	reviews     *ReviewService
	sweeper     *Sweeper

	flushOnce sync.Once
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	log := zap.NewNop()
	m := metrics.NewCollector("epicheck_test", prometheus.NewRegistry())
	cfg := config.LifecycleConfig{
		MaxRetries:        3,
		ProcessingTimeout: 10 * time.Minute,
		SweepInterval:     time.Minute,
		SweepBatch:        50,
		SweepConcurrency:  4,
	}
	uploads := config.UploadConfig{MaxImageSizeMB: 5, AllowedImageTypes: []string{"image/jpeg", "image/png"}}

	caseRepo := repository.NewCaseRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	f := &fixture{t: t, db: db, cfg: cfg, gateway: &fakeGateway{}}
	f.gateway.succeed("melanoma", 0.91)

	f.guard = NewRoleGuard(profileRepo)
	f.audit = NewAuditService(repository.NewAuditRepository(db), nil, m, log)
	f.notifier = NewNotificationService(repository.NewNotificationRepository(db), profileRepo, f.guard, nil, m, log)

	f.cases = NewCaseService(caseRepo, f.guard, f.audit, f.notifier, uploads, m, log)
	f.lifecycle = NewLifecycleService(caseRepo, f.gateway, f.guard, f.audit, f.notifier, cfg, m, log)
	f.assignments = NewAssignmentService(caseRepo, repository.NewAssignmentRepository(db), profileRepo, f.guard, f.audit, f.notifier, m, log)
	f.reviews = NewReviewService(caseRepo, repository.NewReviewRepository(db), f.guard, f.audit, f.notifier, m, log)
	f.sweeper = NewSweeper(caseRepo, f.lifecycle, cfg, log)

	t.Cleanup(f.flush)
	return f
}

// flush drains the async audit and notification workers. Nothing may be
// logged or notified afterwards.
func (f *fixture) flush() {
	f.flushOnce.Do(func() {
		f.audit.Shutdown()
		f.notifier.Shutdown()
	})
}

func (f *fixture) user() *domain.Profile {
	return testutil.CreateProfile(f.t, f.db, domain.RoleUser, domain.ProfileActive)
}

func (f *fixture) doctor() *domain.Profile {
	return testutil.CreateProfile(f.t, f.db, domain.RoleDoctor, domain.ProfileApproved)
}

func (f *fixture) admin() *domain.Profile {
	return testutil.CreateProfile(f.t, f.db, domain.RoleAdmin, domain.ProfileActive)
}

// submittedWithImage seeds a Submitted case with an uploaded image.
func (f *fixture) submittedWithImage(owner *domain.Profile) *skincase.Case {
	c := testutil.SeedCase(f.t, f.db, &skincase.Case{OwnerID: owner.ID})
	testutil.SeedImage(f.t, f.db, c.ID)
	return c
}

func (f *fixture) reviewedCase(owner *domain.Profile, createdAt time.Time) *skincase.Case {
	conf := 0.7
	return testutil.SeedCase(f.t, f.db, &skincase.Case{
		CreatedAt:      createdAt,
		OwnerID:        owner.ID,
		Status:         skincase.StatusReviewed,
		AIPrimaryLabel: "eczema",
		AIConfidence:   &conf,
		RiskLevel:      skincase.RiskMedium,
	})
}

func (f *fixture) reload(c *skincase.Case) *skincase.Case {
	return testutil.ReloadCase(f.t, f.db, c.ID)
}

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected error kind %v, got %v", kind, err)
	}
}
