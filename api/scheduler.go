/*
scheduler.go - Automated alert generation

PURPOSE:
  Periodically regenerates alerts for every draft period of every
  condominium, so overdue payments and new variances surface without anyone
  pressing "generate". Closed periods are skipped: their alerts were
  produced while they were open.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Alert generation is idempotent (dedup key), so overlapping runs and
    manual generation never duplicate alerts
  - One failing period is logged and skipped; the run continues

CONFIGURATION:
  - CheckInterval: How often to check (config scheduler.interval, default 1h)
  - Enabled: Whether scheduler is active (config scheduler.enabled)

USAGE:
  scheduler := NewAlertScheduler(handler.Forecast, handler.Reconcile, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - execution.go: GenerateAlerts endpoint (manual generation)
  - reconcile/alerts.go: Alert rules
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/reconcile"
	"go.uber.org/zap"
)

// AlertScheduler generates alerts for open periods on a ticker.
type AlertScheduler struct {
	Forecast      *forecast.Service
	Reconcile     *reconcile.Service
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// SchedulerRun counts what one pass did.
type SchedulerRun struct {
	Periods int
	Created int
	Skipped int
	Failed  int
}

// NewAlertScheduler creates a new scheduler.
func NewAlertScheduler(f *forecast.Service, rc *reconcile.Service, logger *zap.Logger) *AlertScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertScheduler{
		Forecast:      f,
		Reconcile:     rc,
		Logger:        logger.Named("scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (s *AlertScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Logger.Info("scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *AlertScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("scheduler stopped")
	}
}

func (s *AlertScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one pass over every draft period.
func (s *AlertScheduler) RunNow(ctx context.Context) SchedulerRun {
	var run SchedulerRun

	condos, err := s.Forecast.ListCondominiums(ctx)
	if err != nil {
		s.Logger.Error("list condominiums", zap.Error(err))
		return run
	}

	for _, condo := range condos {
		periods, err := s.Forecast.ListPeriods(ctx, condo.ID)
		if err != nil {
			s.Logger.Error("list periods", zap.String("condominium_id", condo.ID), zap.Error(err))
			continue
		}
		for _, p := range periods {
			if p.IsClosed() {
				continue
			}
			if ctx.Err() != nil {
				return run
			}
			run.Periods++

			result, err := s.Reconcile.GenerateAlerts(ctx, p.ID)
			if err != nil {
				run.Failed++
				s.Logger.Error("generate alerts",
					zap.String("period_id", p.ID),
					zap.String("competence", p.Label()),
					zap.Error(err))
				continue
			}
			run.Created += len(result.Created)
			run.Skipped += result.SkippedDuplicates
		}
	}

	if run.Created > 0 || run.Failed > 0 {
		s.Logger.Info("scheduler pass completed",
			zap.Int("periods", run.Periods),
			zap.Int("created", run.Created),
			zap.Int("skipped", run.Skipped),
			zap.Int("failed", run.Failed))
	}
	return run
}
