package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/assignment"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

// Options returns the gorm configuration shared by every dialect. Unique
// violations are translated to gorm.ErrDuplicatedKey.
func Options(log *zap.Logger, slowQueryThreshold time.Duration) *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError:       true,
		DisableAutomaticPing: false,
	}
}

func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := Options(log, cfg.SlowQueryThreshold)
	gormCfg.PrepareStmt = true

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DNS(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Models() []any {
	return []any{
		&domain.Profile{},
		&domain.AuditLog{},
		&skincase.Case{},
		&skincase.Prediction{},
		&skincase.CaseFile{},
		&skincase.CaseSymptom{},
		&assignment.CaseAssignment{},
		&review.DoctorReview{},
		&notification.Notification{},
	}
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		createIndexes(db, log)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// createIndexes adds the partial indexes the hot queries rely on. Failures
// are logged; the service still works without them, only slower.
func createIndexes(db *gorm.DB, log *zap.Logger) {
	indexes := []struct {
		name  string
		query string
	}{
		{
			name:  "idx_skin_cases_claim_queue",
			query: `CREATE INDEX IF NOT EXISTS idx_skin_cases_claim_queue ON skin_cases (created_at) WHERE deleted_at IS NULL AND status = 'reviewed' AND assigned_doctor_id IS NULL`,
		},
		{
			name:  "idx_skin_cases_stuck_processing",
			query: `CREATE INDEX IF NOT EXISTS idx_skin_cases_stuck_processing ON skin_cases (updated_at) WHERE deleted_at IS NULL AND status = 'processing'`,
		},
		{
			name:  "idx_skin_cases_retryable",
			query: `CREATE INDEX IF NOT EXISTS idx_skin_cases_retryable ON skin_cases (updated_at) WHERE deleted_at IS NULL AND status = 'submitted' AND retry_count > 0`,
		},
		{
			name:  "idx_notifications_unread",
			query: `CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications (user_id, created_at DESC) WHERE is_read = false`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			log.Warn("failed to create index", zap.String("index", idx.name), zap.Error(err))
		}
	}
}
