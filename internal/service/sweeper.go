package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

// Sweeper recovers cases left behind by crashed or failed analyses:
// Processing rows older than the processing timeout are compensated as a
// failed attempt, and Submitted rows with retries left are re-analyzed.
// ProcessingFailed cases are never touched.
type Sweeper struct {
	cases     skincase.Repository
	lifecycle *LifecycleService
	cfg       config.LifecycleConfig
	log       *zap.Logger
	now       func() time.Time
}

type SweepReport struct {
	Compensated int
	Exhausted   int
	Reanalyzed  int
	Retried     int
	Failed      int
}

func NewSweeper(cases skincase.Repository, lifecycle *LifecycleService, cfg config.LifecycleConfig, log *zap.Logger) *Sweeper {
	return &Sweeper{
		cases:     cases,
		lifecycle: lifecycle,
		cfg:       cfg,
		log:       log.Named("sweeper"),
		now:       time.Now,
	}
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	if err := s.compensateStuck(ctx, report); err != nil {
		return report, err
	}
	if err := s.retrySubmitted(ctx, report); err != nil {
		return report, err
	}

	if *report != (SweepReport{}) {
		s.log.Info("sweep completed",
			zap.Int("compensated", report.Compensated),
			zap.Int("exhausted", report.Exhausted),
			zap.Int("reanalyzed", report.Reanalyzed),
			zap.Int("retried", report.Retried),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

func (s *Sweeper) compensateStuck(ctx context.Context, report *SweepReport) error {
	cutoff := s.now().Add(-s.cfg.ProcessingTimeout)
	stuck, err := s.cases.ListStuckProcessing(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return err
	}

	for _, c := range stuck {
		next, err := s.lifecycle.compensate(ctx, c, systemActor, ErrProcessingTimedOut, cutoff)
		switch {
		case errors.Is(err, skincase.ErrStatusConflict):
			// Completed or compensated by someone else since the listing.
		case err != nil:
			s.log.Error("failed to compensate stuck case", zap.String("case_id", c.ID.String()), zap.Error(err))
			report.Failed++
		case next == skincase.StatusProcessingFailed:
			report.Exhausted++
		default:
			report.Compensated++
		}
	}
	return nil
}

func (s *Sweeper) retrySubmitted(ctx context.Context, report *SweepReport) error {
	retryable, err := s.cases.ListRetryable(ctx, s.cfg.MaxRetries, s.cfg.SweepBatch)
	if err != nil {
		return err
	}

	var reanalyzed, retried, exhausted, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.SweepConcurrency, 1))
	for _, c := range retryable {
		g.Go(func() error {
			_, err := s.lifecycle.analyze(gctx, c, systemActor)
			switch {
			case err == nil:
				reanalyzed.Add(1)
			case errors.Is(err, ErrDependencyFailure):
				retried.Add(1)
			case errors.Is(err, ErrRetryExhausted):
				exhausted.Add(1)
			case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState):
				// A user or another sweeper got there first.
			default:
				failed.Add(1)
				s.log.Warn("sweeper re-analysis failed", zap.String("case_id", c.ID.String()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Reanalyzed += int(reanalyzed.Load())
	report.Retried += int(retried.Load())
	report.Exhausted += int(exhausted.Load())
	report.Failed += int(failed.Load())
	return nil
}
