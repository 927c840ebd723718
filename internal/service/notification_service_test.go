package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/testutil"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

func TestNotify_DropsInvalidAndUnknownRecipients(t *testing.T) {
	f := newFixture(t)
	user := f.user()
	ctx := context.Background()

	f.notifier.Notify(ctx, Notice{UserID: user.ID, Kind: "carrier_pigeon", Title: "x", Message: "y"})
	f.notifier.Notify(ctx, Notice{UserID: user.ID, Kind: notification.KindSystem, Title: " ", Message: "y"})
	f.notifier.Notify(ctx, Notice{UserID: uuid.New(), Kind: notification.KindSystem, Title: "x", Message: "y"})
	f.notifier.Notify(ctx, Notice{UserID: user.ID, Kind: notification.KindSystem, Title: "Maintenance", Message: "Tonight at 2am"})
	f.flush()

	if n := testutil.Count(t, f.db, &notification.Notification{}, "1 = 1"); n != 1 {
		t.Fatalf("expected only the valid notice to be stored, got %d", n)
	}
}

func TestListAndMarkRead(t *testing.T) {
	f := newFixture(t)
	user := f.user()
	other := f.user()
	ctx := context.Background()

	for _, title := range []string{"first", "second"} {
		f.notifier.Notify(ctx, Notice{UserID: user.ID, Kind: notification.KindSystem, Title: title, Message: "body"})
	}
	f.flush()

	all, err := f.notifier.ListNotifications(ctx, testutil.Claims(user), false, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(all))
	}

	err = f.notifier.MarkRead(ctx, testutil.Claims(other), all[0].ID)
	requireKind(t, err, ErrNotFound)

	if err := f.notifier.MarkRead(ctx, testutil.Claims(user), all[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unread, err := f.notifier.ListNotifications(ctx, testutil.Claims(user), true, 0)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 || unread[0].ID == all[0].ID {
		t.Fatalf("expected the other notification to remain unread, got %+v", unread)
	}

	mine, err := f.notifier.ListNotifications(ctx, testutil.Claims(other), false, 0)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(mine) != 0 {
		t.Errorf("notifications leaked to another user: %d", len(mine))
	}
}

func TestShutdown_LaterSendsAreDropped(t *testing.T) {
	db := testutil.NewDB(t)
	m := metrics.NewCollector("epicheck_test", prometheus.NewRegistry())
	profiles := repository.NewProfileRepository(db)
	audit := NewAuditService(repository.NewAuditRepository(db), nil, m, zap.NewNop())
	notifier := NewNotificationService(repository.NewNotificationRepository(db), profiles, NewRoleGuard(profiles), nil, m, zap.NewNop())
	user := testutil.CreateProfile(t, db, domain.RoleUser, domain.ProfileActive)

	audit.Shutdown()
	notifier.Shutdown()
	// A second shutdown, as from a deferred Close, is harmless.
	audit.Shutdown()
	notifier.Shutdown()

	ctx := context.Background()
	audit.LogAsync(ctx, AuditEntry{Actor: systemActor, Action: domain.ActionCaseCreated, TargetTable: "skin_cases", TargetID: uuid.NewString()})
	notifier.Notify(ctx, Notice{UserID: user.ID, Kind: notification.KindSystem, Title: "late", Message: "after shutdown"})

	if got := promtest.ToFloat64(m.AuditBufferDropped); got != 1 {
		t.Errorf("expected one dropped audit entry, got %v", got)
	}
	if got := promtest.ToFloat64(m.NotificationBufferDropped); got != 1 {
		t.Errorf("expected one dropped notification, got %v", got)
	}
	if n := testutil.Count(t, db, &notification.Notification{}, "user_id = ?", user.ID); n != 0 {
		t.Errorf("nothing may be stored after shutdown, got %d", n)
	}
}
