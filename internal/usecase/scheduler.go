package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/ports"
)

const staleRefreshMessage = "refresh timed out"

// SweeperConfig tunes the reconciliation thresholds.
type SweeperConfig struct {
	StuckAfter     time.Duration
	RefreshTimeout time.Duration
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Dispatched     int `json:"dispatched"`
	DispatchFailed int `json:"dispatch_failed"`
	Reconciled     int `json:"reconciled"`
	TimedOut       int `json:"timed_out"`
}

// Sweeper wires the cron-like driver with due-schedule dispatch and stuck-scan
// reconciliation.
type Sweeper struct {
	driver       ports.Scheduler
	orchestrator *Orchestrator
	store        ports.Store
	logger       *slog.Logger
	now          func() time.Time
	cfg          SweeperConfig

	running sync.WaitGroup
}

// NewSweeper returns a helper to start/stop recurring sweeps.
func NewSweeper(driver ports.Scheduler, orchestrator *Orchestrator, cfg SweeperConfig) *Sweeper {
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 30 * time.Minute
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 90 * time.Second
	}
	return &Sweeper{
		driver:       driver,
		orchestrator: orchestrator,
		store:        orchestrator.store,
		logger:       orchestrator.logger.With("component", "sweeper"),
		now:          orchestrator.now,
		cfg:          cfg,
	}
}

// Start registers the sweep with the provided scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.Sweep(ctx)
		if err != nil {
			s.logger.Error("sweep failed", "trigger", trigger, "error", err)
			return
		}
		s.logger.Info("sweep finished", "trigger", trigger,
			"dispatched", report.Dispatched,
			"dispatch_failed", report.DispatchFailed,
			"reconciled", report.Reconciled,
			"timed_out", report.TimedOut,
		)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler and waits for refreshes
// it launched.
func (s *Sweeper) Stop(ctx context.Context) error {
	var err error
	if s.driver != nil {
		err = s.driver.Stop(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// Wait blocks until every refresh launched by DispatchDue has finished.
func (s *Sweeper) Wait() {
	s.running.Wait()
}

// Sweep dispatches due schedules and reconciles stuck work concurrently.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var (
		report                    SweepReport
		dispatchErr, reconcileErr error
		g                         errgroup.Group
	)

	g.Go(func() error {
		defer recoverTask(s.logger, "dispatch due schedules", &dispatchErr)
		report.Dispatched, report.DispatchFailed, dispatchErr = s.DispatchDue(ctx)
		return nil
	})
	g.Go(func() error {
		defer recoverTask(s.logger, "reconcile stuck scans", &reconcileErr)
		report.Reconciled, report.TimedOut, reconcileErr = s.ReconcileStuck(ctx)
		return nil
	})
	_ = g.Wait()

	return report, errors.Join(dispatchErr, reconcileErr)
}

// DispatchDue starts a refresh for every enabled schedule whose next run has
// passed. A schedule is claimed before its audit row is written, so overlapping
// sweeps dispatch it once. Each refresh runs in the background; a claimed
// schedule that cannot start still gets a failed audit row.
func (s *Sweeper) DispatchDue(ctx context.Context) (dispatched, failed int, err error) {
	now := s.now()
	due, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("list due schedules: %w", err)
	}

	for _, sched := range due {
		logger := s.logger.With("schedule_id", sched.ID, "scan_id", sched.ScanID)
		scheduleID := sched.ID

		claimed, err := s.store.ClaimScheduleRun(ctx, sched, now)
		if err != nil {
			logger.Error("claim schedule failed", "error", err)
			failed++
			continue
		}
		if !claimed {
			logger.Debug("schedule already claimed by another sweep")
			continue
		}

		log, err := s.store.CreateRefreshLog(ctx, domain.RefreshLog{
			ScanID:      sched.ScanID,
			ScheduleID:  &scheduleID,
			TriggeredBy: domain.TriggerScheduled,
			Status:      domain.RefreshRunning,
			StartedAt:   now,
		})
		if err != nil {
			logger.Error("create refresh log failed", "error", err)
			failed++
			continue
		}

		run, err := s.orchestrator.BeginRefresh(ctx, RefreshRequest{
			ScanID:     sched.ScanID,
			Trigger:    domain.TriggerScheduled,
			ScheduleID: &scheduleID,
			Log:        &log,
		})
		if err != nil {
			logger.Warn("scheduled refresh not started", "error", err)
			s.orchestrator.finishLog(ctx, log.ID, domain.RefreshOutcome{
				Status:      domain.RefreshFailed,
				Error:       err.Error(),
				CompletedAt: s.now(),
			})
			failed++
			continue
		}

		dispatched++
		s.running.Add(1)
		go func(ctx context.Context) {
			defer s.running.Done()
			defer recoverTask(logger, "scheduled refresh", nil)
			s.orchestrator.ExecuteRefresh(ctx, run)
		}(context.WithoutCancel(ctx))
	}
	return dispatched, failed, nil
}

// ReconcileStuck force-completes scans left running past StuckAfter and fails
// refresh logs that never finished. A second pass over the same data changes nothing.
func (s *Sweeper) ReconcileStuck(ctx context.Context) (reconciled, timedOut int, err error) {
	now := s.now()
	var errs []error

	stuck, err := s.store.ListStuckScans(ctx, now.Add(-s.cfg.StuckAfter))
	if err != nil {
		errs = append(errs, fmt.Errorf("list stuck scans: %w", err))
	}
	for _, scan := range stuck {
		changed, err := s.store.ForceCompleteScan(ctx, scan.ID, now)
		if err != nil {
			s.logger.Error("force complete failed", "scan_id", scan.ID, "error", err)
			errs = append(errs, fmt.Errorf("force complete %s: %w", scan.ID, err))
			continue
		}
		if changed {
			reconciled++
			s.logger.Warn("stuck scan force-completed", "scan_id", scan.ID, "updated_at", scan.UpdatedAt)
		}
	}

	timedOut, err = s.store.FailStaleRefreshLogs(ctx, now.Add(-s.cfg.RefreshTimeout), staleRefreshMessage)
	if err != nil {
		errs = append(errs, fmt.Errorf("fail stale refresh logs: %w", err))
	}
	return reconciled, timedOut, errors.Join(errs...)
}
