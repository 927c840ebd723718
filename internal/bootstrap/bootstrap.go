package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	v1 "github.com/dmehra2102/prod-golang-projects/epicheck/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/inference"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/service"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/events"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/tlsconfig"
)

// App holds the wired service graph shared by the HTTP server, the CLI
// sweep command and the scheduled sweeper function.
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Metrics *metrics.Collector
	Log     *zap.Logger

	Audit         *service.AuditService
	Notifications *service.NotificationService
	Cases         *service.CaseService
	Lifecycle     *service.LifecycleService
	Assignments   *service.AssignmentService
	Reviews       *service.ReviewService
	Sweeper       *service.Sweeper

	closers []func() error
}

// New connects to the database and the optional brokers and builds every
// service. reg receives the application metrics.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log *zap.Logger) (*App, error) {
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		DB:      db,
		Metrics: metrics.NewCollector(cfg.App.Name, reg),
		Log:     log,
	}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	gatewayOpts, err := inferenceOptions(cfg.Inference)
	if err != nil {
		a.Close()
		return nil, err
	}
	gateway := inference.NewGateway(cfg.Inference, log, gatewayOpts...)

	// Typed nils must not leak into the service interfaces.
	var stream service.AuditStream
	if len(cfg.Kafka.Brokers) > 0 {
		s := events.NewAuditStream(cfg.Kafka)
		a.closers = append(a.closers, s.Close)
		stream = s
		log.Info("audit stream enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.AuditTopic))
	}

	var publisher service.NotificationPublisher
	if cfg.Redis.Addr != "" {
		p, err := events.NewNotificationPublisher(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting notification publisher: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		publisher = p
		log.Info("realtime notifications enabled", zap.String("redis", cfg.Redis.Addr), zap.String("channel", cfg.Redis.Channel))
	}

	caseRepo := repository.NewCaseRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	guard := service.NewRoleGuard(profileRepo)

	a.Audit = service.NewAuditService(repository.NewAuditRepository(db), stream, a.Metrics, log)
	a.Notifications = service.NewNotificationService(repository.NewNotificationRepository(db), profileRepo, guard, publisher, a.Metrics, log)
	a.Cases = service.NewCaseService(caseRepo, guard, a.Audit, a.Notifications, cfg.Uploads, a.Metrics, log)
	a.Lifecycle = service.NewLifecycleService(caseRepo, gateway, guard, a.Audit, a.Notifications, cfg.Lifecycle, a.Metrics, log)
	a.Assignments = service.NewAssignmentService(caseRepo, repository.NewAssignmentRepository(db), profileRepo, guard, a.Audit, a.Notifications, a.Metrics, log)
	a.Reviews = service.NewReviewService(caseRepo, repository.NewReviewRepository(db), guard, a.Audit, a.Notifications, a.Metrics, log)
	a.Sweeper = service.NewSweeper(caseRepo, a.Lifecycle, cfg.Lifecycle, log)

	return a, nil
}

func inferenceOptions(cfg config.InferenceConfig) ([]inference.Option, error) {
	if cfg.CAFile == "" && cfg.ClientCertFile == "" {
		return nil, nil
	}
	tlsCfg, err := tlsconfig.Client(cfg.CAFile, cfg.ClientCertFile, cfg.ClientKeyFile)
	if err != nil {
		return nil, fmt.Errorf("inference tls: %w", err)
	}
	return []inference.Option{inference.WithTLS(tlsCfg)}, nil
}

// Router builds the HTTP API on top of the service graph.
func (a *App) Router(metricsHandler http.Handler) http.Handler {
	return v1.NewRouter(v1.RouterConfig{
		ServiceName:    a.Config.App.Name,
		CORS:           a.Config.CORS,
		RateLimit:      a.Config.RateLimit,
		Tokens:         auth.NewJWTManager(a.Config.JWT),
		Metrics:        a.Metrics,
		MetricsHandler: metricsHandler,
		Ready:          a.Ping,
		Log:            a.Log,
		Cases:          v1.NewCaseHandler(a.Cases, a.Lifecycle, a.Reviews),
		Doctor:         v1.NewDoctorHandler(a.Assignments),
		Admin:          v1.NewAdminHandler(a.Cases, a.Assignments),
		Notifications:  v1.NewNotificationHandler(a.Notifications),
	})
}

func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close drains the async workers, then releases connections in reverse
// order of acquisition.
func (a *App) Close() error {
	if a.Audit != nil {
		a.Audit.Shutdown()
	}
	if a.Notifications != nil {
		a.Notifications.Shutdown()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
