package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/ports"
)

const progressRefresh = 10

// RefreshRequest starts an incremental refresh. Log is set when the caller
// already created the audit row, as the sweeper does.
type RefreshRequest struct {
	ScanID     string
	Trigger    domain.RefreshTrigger
	ScheduleID *string
	Log        *domain.RefreshLog
}

// RefreshRun is a refresh that holds its scan's lease and waits for ExecuteRefresh.
type RefreshRun struct {
	Scan    domain.Scan
	Log     domain.RefreshLog
	lease   ports.Lease
	started time.Time
}

func refreshLeaseKey(scanID string) string {
	return "scan-refresh:" + scanID
}

// Refresh runs an incremental refresh synchronously.
func (o *Orchestrator) Refresh(ctx context.Context, req RefreshRequest) (domain.RefreshLog, error) {
	run, err := o.BeginRefresh(ctx, req)
	if err != nil {
		return domain.RefreshLog{}, err
	}
	return o.ExecuteRefresh(ctx, run), nil
}

// BeginRefresh takes the scan's lease, checks the scan is completed, opens the
// audit row and moves the scan to running. On error nothing stays held.
func (o *Orchestrator) BeginRefresh(ctx context.Context, req RefreshRequest) (_ *RefreshRun, err error) {
	lease, err := o.acquire(ctx, req.ScanID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			o.release(lease, req.ScanID)
		}
	}()

	scan, err := o.store.GetScan(ctx, req.ScanID)
	if err != nil {
		return nil, fmt.Errorf("load scan %s: %w", req.ScanID, err)
	}
	if scan.Status != domain.ScanCompleted {
		return nil, fmt.Errorf("%w: scan %s is %s", ErrScanNotRefreshable, scan.ID, scan.Status)
	}

	started := o.now()
	var log domain.RefreshLog
	if req.Log != nil {
		log = *req.Log
	} else {
		trigger := req.Trigger
		if trigger == "" {
			trigger = domain.TriggerManual
		}
		log, err = o.store.CreateRefreshLog(ctx, domain.RefreshLog{
			ScanID:      scan.ID,
			ScheduleID:  req.ScheduleID,
			TriggeredBy: trigger,
			Status:      domain.RefreshRunning,
			StartedAt:   started,
		})
		if err != nil {
			return nil, fmt.Errorf("create refresh log: %w", err)
		}
	}

	if err = o.store.UpdateScanProgress(ctx, scan.ID, domain.ScanRunning, domain.StageRefresh, progressRefresh); err != nil {
		o.finishLog(ctx, log.ID, domain.RefreshOutcome{Status: domain.RefreshFailed, Error: err.Error(), CompletedAt: o.now()})
		return nil, fmt.Errorf("mark scan running: %w", err)
	}

	o.logger.Info("refresh started", "scan_id", scan.ID, "refresh_log_id", log.ID, "trigger", log.TriggeredBy)
	return &RefreshRun{Scan: scan, Log: log, lease: lease, started: started}, nil
}

// ExecuteRefresh discovers news not stored yet, regenerates insights and alerts,
// appends them and adds the delta to the scan counters. Competitors are reused.
// The returned log reflects the final audit state.
func (o *Orchestrator) ExecuteRefresh(ctx context.Context, run *RefreshRun) domain.RefreshLog {
	defer o.release(run.lease, run.Scan.ID)
	scan := run.Scan
	logger := o.logger.With("scan_id", scan.ID, "refresh_log_id", run.Log.ID)

	var stageErrs []error

	stored, err := o.store.ListCompetitors(ctx, scan.ID)
	if err != nil {
		logger.Warn("list competitors failed", "error", err)
		stageErrs = append(stageErrs, fmt.Errorf("list competitors: %w", err))
	}
	knownTitles, err := o.store.ListNewsTitles(ctx, scan.ID)
	if err != nil {
		logger.Warn("list news titles failed", "error", err)
		stageErrs = append(stageErrs, fmt.Errorf("list news titles: %w", err))
	}

	var fresh []domain.RawNewsItem
	o.stage(logger, "discover news", func() {
		fresh = newTitles(o.discoverNews(ctx, scan.Industry), knownTitles)
	})
	logger.Info("refresh news collected", "new_news", len(fresh))

	var analysis analysisResult
	o.stage(logger, domain.StageAnalyze, func() {
		analysis = o.analyzeRefresh(ctx, scan.Industry, rawFromStored(stored), fresh)
	})
	for _, err := range analysis.errs {
		logger.Warn("analysis degraded", "error", err)
	}
	stageErrs = append(stageErrs, analysis.errs...)

	var written WriteResult
	o.stage(logger, domain.StagePersist, func() {
		written = o.writer.Write(ctx, scan.ID, ResultSet{
			Alerts:   analysis.alerts,
			Insights: analysis.insights,
			News:     buildNews(scan.ID, fresh),
		}, stored)
	})
	stageErrs = append(stageErrs, written.Errs...)

	refreshedAt := o.now()
	if err := o.store.ApplyRefresh(ctx, scan.ID, written.Counts, refreshedAt); err != nil {
		logger.Error("apply refresh failed", "error", err)
		stageErrs = append(stageErrs, fmt.Errorf("apply refresh: %w", err))
	}

	outcome := domain.RefreshOutcome{
		Status:      domain.RefreshSuccess,
		NewAlerts:   written.Counts.Alerts,
		NewInsights: written.Counts.Insights,
		NewNews:     written.Counts.News,
		CompletedAt: refreshedAt,
	}
	if len(stageErrs) > 0 {
		outcome.Status = domain.RefreshFailed
		outcome.Error = errors.Join(stageErrs...).Error()
	}
	o.finishLog(ctx, run.Log.ID, outcome)

	logger.Info("refresh finished",
		"status", outcome.Status,
		"new_alerts", outcome.NewAlerts,
		"new_insights", outcome.NewInsights,
		"new_news", outcome.NewNews,
		"duration", refreshedAt.Sub(run.started),
	)

	o.publishDigest(ctx, scan.Industry, written.Alerts)

	log := run.Log
	log.Status = outcome.Status
	log.NewAlertsCount = outcome.NewAlerts
	log.NewInsightsCount = outcome.NewInsights
	log.NewNewsCount = outcome.NewNews
	log.ErrorMessage = outcome.Error
	log.CompletedAt = &refreshedAt
	return log
}

func (o *Orchestrator) acquire(ctx context.Context, scanID string) (ports.Lease, error) {
	if o.locker == nil {
		return nil, nil
	}
	lease, err := o.locker.Acquire(ctx, refreshLeaseKey(scanID), o.cfg.LeaseTTL)
	if errors.Is(err, ports.ErrLeaseHeld) {
		return nil, fmt.Errorf("%w: scan %s", ErrRefreshInProgress, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire refresh lease: %w", err)
	}
	return lease, nil
}

// release uses a fresh context so a cancelled request still frees the lease.
func (o *Orchestrator) release(lease ports.Lease, scanID string) {
	if lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		o.logger.Warn("release refresh lease failed", "scan_id", scanID, "error", err)
	}
}

func (o *Orchestrator) finishLog(ctx context.Context, id string, outcome domain.RefreshOutcome) {
	if id == "" {
		return
	}
	if err := o.store.FinishRefreshLog(ctx, id, outcome); err != nil {
		o.logger.Error("finish refresh log failed", "refresh_log_id", id, "error", err)
	}
}

// newTitles drops items whose exact title is already stored for the scan.
func newTitles(items []domain.RawNewsItem, known []string) []domain.RawNewsItem {
	seen := make(map[string]struct{}, len(known))
	for _, t := range known {
		seen[t] = struct{}{}
	}
	out := make([]domain.RawNewsItem, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Title]; ok {
			continue
		}
		seen[it.Title] = struct{}{}
		out = append(out, it)
	}
	return out
}

func rawFromStored(stored []domain.Competitor) []domain.RawCompetitor {
	out := make([]domain.RawCompetitor, 0, len(stored))
	for _, c := range stored {
		out = append(out, domain.RawCompetitor{
			Name:        c.Name,
			Domain:      c.Domain,
			Description: c.Description,
			Position:    c.MarketPosition,
		})
	}
	return out
}
