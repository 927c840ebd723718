package service

import (
	"context"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/assignment"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/testutil"
)

func (f *fixture) assignedCase(owner, doctor *domain.Profile) *skincase.Case {
	conf := 0.6
	return testutil.SeedCase(f.t, f.db, &skincase.Case{
		OwnerID:          owner.ID,
		Status:           skincase.StatusReviewed,
		AssignedDoctorID: &doctor.ID,
		AIPrimaryLabel:   "psoriasis",
		AIConfidence:     &conf,
		RiskLevel:        skincase.RiskMedium,
	})
}

func TestReviewCase_Decisions(t *testing.T) {
	tests := []struct {
		decision     review.Decision
		wantStatus   skincase.Status
		wantReviewed bool
	}{
		{review.DecisionApproved, skincase.StatusClosed, true},
		{review.DecisionRejected, skincase.StatusClosed, true},
		{review.DecisionNeedsMoreInfo, skincase.StatusReviewed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			f := newFixture(t)
			owner := f.user()
			doctor := f.doctor()
			c := f.assignedCase(owner, doctor)

			got, err := f.reviews.ReviewCase(context.Background(), testutil.Claims(doctor), &review.SubmitReviewCommand{
				CaseID:   c.ID,
				Decision: tt.decision,
				Note:     "  looks consistent with the photo  ",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, got.Status)
			}
			if got.Reviewed != tt.wantReviewed || got.ReviewedByDoctorID == nil || *got.ReviewedByDoctorID != doctor.ID {
				t.Errorf("review attribution not recorded: %+v", got)
			}
			if got.ReviewedAt == nil {
				t.Error("expected reviewed_at to be set")
			}

			var rv review.DoctorReview
			if err := f.db.Where("case_id = ?", c.ID).First(&rv).Error; err != nil {
				t.Fatalf("loading review: %v", err)
			}
			if rv.Note != "looks consistent with the photo" || rv.Decision != tt.decision {
				t.Errorf("unexpected stored review: %+v", rv)
			}

			f.flush()
			if n := testutil.Count(t, f.db, &notification.Notification{}, "user_id = ? AND kind = ?", owner.ID, notification.KindCaseReviewed); n != 1 {
				t.Errorf("expected owner notification, got %d", n)
			}
		})
	}
}

func TestReviewCase_SecondReviewConflicts(t *testing.T) {
	f := newFixture(t)
	doctor := f.doctor()
	c := f.assignedCase(f.user(), doctor)
	claims := testutil.Claims(doctor)

	if _, err := f.reviews.ReviewCase(context.Background(), claims, &review.SubmitReviewCommand{
		CaseID: c.ID, Decision: review.DecisionNeedsMoreInfo, Note: "need a closer photo",
	}); err != nil {
		t.Fatalf("first review: %v", err)
	}

	_, err := f.reviews.ReviewCase(context.Background(), claims, &review.SubmitReviewCommand{
		CaseID: c.ID, Decision: review.DecisionApproved,
	})
	requireKind(t, err, ErrConflict)

	var reviews []review.DoctorReview
	if err := f.db.Where("case_id = ?", c.ID).Find(&reviews).Error; err != nil {
		t.Fatalf("loading reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Decision != review.DecisionNeedsMoreInfo {
		t.Fatalf("original review must be unchanged, got %+v", reviews)
	}
	if got := f.reload(c); got.Status != skincase.StatusReviewed {
		t.Errorf("expected case to stay reviewed, got %s", got.Status)
	}
}

func TestReviewCase_Rejections(t *testing.T) {
	f := newFixture(t)
	owner := f.user()
	doctor := f.doctor()
	other := f.doctor()
	assigned := f.assignedCase(owner, doctor)
	closed := testutil.SeedCase(t, f.db, &skincase.Case{OwnerID: owner.ID, Status: skincase.StatusClosed, AssignedDoctorID: &doctor.ID})
	unapproved := testutil.CreateProfile(t, f.db, domain.RoleDoctor, domain.ProfilePending)

	long := make([]byte, maxReviewNoteLen+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name   string
		claims *domain.Claims
		cmd    review.SubmitReviewCommand
		kind   error
	}{
		{"owner cannot review", testutil.Claims(owner), review.SubmitReviewCommand{CaseID: assigned.ID, Decision: review.DecisionApproved}, ErrForbidden},
		{"unapproved doctor", testutil.Claims(unapproved), review.SubmitReviewCommand{CaseID: assigned.ID, Decision: review.DecisionApproved}, ErrForbidden},
		{"not assigned", testutil.Claims(other), review.SubmitReviewCommand{CaseID: assigned.ID, Decision: review.DecisionApproved}, ErrForbidden},
		{"unknown decision", testutil.Claims(doctor), review.SubmitReviewCommand{CaseID: assigned.ID, Decision: "maybe"}, ErrValidation},
		{"note too long", testutil.Claims(doctor), review.SubmitReviewCommand{CaseID: assigned.ID, Decision: review.DecisionApproved, Note: string(long)}, ErrValidation},
		{"closed case", testutil.Claims(doctor), review.SubmitReviewCommand{CaseID: closed.ID, Decision: review.DecisionApproved}, ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reviews.ReviewCase(context.Background(), tt.claims, &tt.cmd)
			requireKind(t, err, tt.kind)
		})
	}

	if n := testutil.Count(t, f.db, &review.DoctorReview{}, "case_id = ?", assigned.ID); n != 0 {
		t.Errorf("rejected reviews must not be stored, got %d", n)
	}
}

func TestReviewCase_AfterReassignment(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	d1, d2 := f.doctor(), f.doctor()
	c := f.reviewedCase(f.user(), time.Now())
	ctx := context.Background()

	if _, err := f.assignments.AssignCase(ctx, testutil.Claims(admin), &assignment.AssignCommand{CaseID: c.ID, DoctorID: d1.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.reviews.ReviewCase(ctx, testutil.Claims(d1), &review.SubmitReviewCommand{CaseID: c.ID, Decision: review.DecisionNeedsMoreInfo}); err != nil {
		t.Fatalf("first review: %v", err)
	}
	if _, err := f.assignments.ReassignCase(ctx, testutil.Claims(admin), &assignment.AssignCommand{CaseID: c.ID, DoctorID: d2.ID, Reason: "second opinion"}); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	_, err := f.reviews.ReviewCase(ctx, testutil.Claims(d1), &review.SubmitReviewCommand{CaseID: c.ID, Decision: review.DecisionApproved})
	requireKind(t, err, ErrForbidden)

	got, err := f.reviews.ReviewCase(ctx, testutil.Claims(d2), &review.SubmitReviewCommand{CaseID: c.ID, Decision: review.DecisionApproved})
	if err != nil {
		t.Fatalf("second doctor review: %v", err)
	}
	if got.Status != skincase.StatusClosed {
		t.Errorf("expected closed, got %s", got.Status)
	}
}
