package main

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/bootstrap"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/service"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/logger"
)

// The app is built on the first invocation and reused while the execution
// environment stays warm.
var (
	initOnce sync.Once
	app      *bootstrap.App
	initErr  error
)

func load(ctx context.Context) (*bootstrap.App, error) {
	initOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		log, err := logger.New(cfg.Log, cfg.App)
		if err != nil {
			initErr = err
			return
		}
		app, initErr = bootstrap.New(ctx, cfg, prometheus.NewRegistry(), log)
	})
	return app, initErr
}

// handler runs one recovery sweep per scheduled EventBridge event.
func handler(ctx context.Context, event events.CloudWatchEvent) (*service.SweepReport, error) {
	a, err := load(ctx)
	if err != nil {
		return nil, err
	}

	report, err := a.Sweeper.Sweep(ctx)
	if err != nil {
		a.Log.Error("scheduled sweep failed", zap.String("event_id", event.ID), zap.Error(err))
		return nil, err
	}

	a.Log.Info("scheduled sweep finished",
		zap.String("event_id", event.ID),
		zap.Int("compensated", report.Compensated),
		zap.Int("exhausted", report.Exhausted),
		zap.Int("reanalyzed", report.Reanalyzed),
		zap.Int("retried", report.Retried),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func main() {
	lambda.Start(handler)
}
