// Package testutil builds real gorm stores on in-memory SQLite so tests
// exercise the same conditional updates the service runs in production.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/database"
)

// NewDB returns a migrated, private in-memory database. A single connection
// keeps every goroutine on the same database and serializes transactions.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), database.Options(zap.NewNop(), time.Second))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

func CreateProfile(t *testing.T, db *gorm.DB, role domain.Role, status domain.ProfileStatus) *domain.Profile {
	t.Helper()

	p := &domain.Profile{
		Email:    uuid.NewString() + "@example.com",
		FullName: string(role) + " test",
		Role:     role,
		Status:   status,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("creating profile: %v", err)
	}
	return p
}

func Claims(p *domain.Profile) *domain.Claims {
	return &domain.Claims{UserID: p.ID, Email: p.Email, Role: p.Role}
}

// SeedCase inserts c as-is, bypassing the lifecycle, so tests can start
// from any status.
func SeedCase(t *testing.T, db *gorm.DB, c *skincase.Case) *skincase.Case {
	t.Helper()

	if c.Status == "" {
		c.Status = skincase.StatusSubmitted
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seeding case: %v", err)
	}
	return c
}

func SeedImage(t *testing.T, db *gorm.DB, caseID uuid.UUID) *skincase.CaseFile {
	t.Helper()

	f := &skincase.CaseFile{
		CaseID:      caseID,
		StoragePath: "cases/" + caseID.String() + "/lesion.jpg",
		ContentType: "image/jpeg",
		SizeBytes:   1024,
	}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("seeding image: %v", err)
	}
	return f
}

// Backdate makes a case look untouched since at.
func Backdate(t *testing.T, db *gorm.DB, caseID uuid.UUID, at time.Time) {
	t.Helper()

	if err := db.Model(&skincase.Case{}).Where("id = ?", caseID).UpdateColumn("updated_at", at).Error; err != nil {
		t.Fatalf("backdating case: %v", err)
	}
}

func ReloadCase(t *testing.T, db *gorm.DB, id uuid.UUID) *skincase.Case {
	t.Helper()

	var c skincase.Case
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("reloading case: %v", err)
	}
	return &c
}

func Count(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()

	var n int64
	if err := db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("counting: %v", err)
	}
	return n
}
