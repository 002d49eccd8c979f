package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/schedule"
)

const (
	schedulesTable   = "scan_schedules"
	refreshLogsTable = "refresh_logs"
)

// UpsertSchedule creates or replaces the schedule of a scan keyed by scan_id.
func (s *Store) UpsertSchedule(ctx context.Context, sched domain.ScanSchedule) (domain.ScanSchedule, error) {
	now := s.stamp()
	if sched.Timezone == "" {
		sched.Timezone = "UTC"
	}
	body := map[string]any{
		"scan_id":      sched.ScanID,
		"user_id":      sched.UserID,
		"frequency":    sched.Frequency,
		"day_of_week":  sched.DayOfWeek,
		"day_of_month": sched.DayOfMonth,
		"hour":         sched.Hour,
		"minute":       sched.Minute,
		"timezone":     sched.Timezone,
		"enabled":      sched.Enabled,
		"next_run_at":  nil,
		"updated_at":   ts(now),
	}
	if sched.Enabled {
		next, err := schedule.NextRun(sched, now)
		if err != nil {
			return domain.ScanSchedule{}, fmt.Errorf("compute next run: %w", err)
		}
		body["next_run_at"] = ts(next)
	}

	var rows []domain.ScanSchedule
	query := url.Values{"on_conflict": {"scan_id"}}
	if err := s.request(ctx, http.MethodPost, schedulesTable, query, body, preferUpsert, &rows); err != nil {
		return domain.ScanSchedule{}, fmt.Errorf("upsert schedule: %w", err)
	}
	if len(rows) == 0 {
		return domain.ScanSchedule{}, fmt.Errorf("upsert schedule: empty representation")
	}
	return rows[0], nil
}

// ListDueSchedules returns enabled schedules whose next run is at or before now.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]domain.ScanSchedule, error) {
	query := url.Values{
		"enabled":     {"eq.true"},
		"next_run_at": {"lte." + ts(now)},
		"order":       {"next_run_at.asc"},
	}
	var rows []domain.ScanSchedule
	if err := s.request(ctx, http.MethodGet, schedulesTable, query, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	return rows, nil
}

// ClaimScheduleRun stamps last_run_at and advances next_run_at past at. The PATCH
// filters on the observed next_run_at, so only one concurrent caller gets a row back.
func (s *Store) ClaimScheduleRun(ctx context.Context, sched domain.ScanSchedule, at time.Time) (bool, error) {
	if sched.NextRunAt == nil {
		return false, nil
	}
	next, err := schedule.NextRun(sched, at)
	if err != nil {
		return false, fmt.Errorf("compute next run: %w", err)
	}
	query := url.Values{
		"id":          {eq(sched.ID)},
		"enabled":     {"eq.true"},
		"next_run_at": {eq(ts(*sched.NextRunAt))},
	}
	body := map[string]any{
		"last_run_at": ts(at),
		"next_run_at": ts(next),
		"updated_at":  ts(s.stamp()),
	}
	var rows []domain.ScanSchedule
	if err := s.request(ctx, http.MethodPatch, schedulesTable, query, body, preferRepresentation, &rows); err != nil {
		return false, fmt.Errorf("claim schedule %s: %w", sched.ID, err)
	}
	return len(rows) > 0, nil
}

// CreateRefreshLog inserts a running log entry.
func (s *Store) CreateRefreshLog(ctx context.Context, log domain.RefreshLog) (domain.RefreshLog, error) {
	if log.Status == "" {
		log.Status = domain.RefreshRunning
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = s.stamp()
	}
	var rows []domain.RefreshLog
	if err := s.request(ctx, http.MethodPost, refreshLogsTable, nil, log, preferRepresentation, &rows); err != nil {
		return domain.RefreshLog{}, fmt.Errorf("insert refresh log: %w", err)
	}
	if len(rows) == 0 {
		return domain.RefreshLog{}, fmt.Errorf("insert refresh log: empty representation")
	}
	return rows[0], nil
}

// FinishRefreshLog records the outcome of a refresh.
func (s *Store) FinishRefreshLog(ctx context.Context, id string, outcome domain.RefreshOutcome) error {
	body := map[string]any{
		"status":             outcome.Status,
		"completed_at":       ts(outcome.CompletedAt),
		"new_alerts_count":   outcome.NewAlerts,
		"new_insights_count": outcome.NewInsights,
		"new_news_count":     outcome.NewNews,
		"error_message":      outcome.Error,
	}
	var rows []domain.RefreshLog
	if err := s.request(ctx, http.MethodPatch, refreshLogsTable, url.Values{"id": {eq(id)}}, body, preferRepresentation, &rows); err != nil {
		return fmt.Errorf("finish refresh log %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("refresh log %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRefreshLogs returns the newest logs of a scan first.
func (s *Store) ListRefreshLogs(ctx context.Context, scanID string, limit int) ([]domain.RefreshLog, error) {
	query := url.Values{"scan_id": {eq(scanID)}, "order": {"started_at.desc"}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	rows := []domain.RefreshLog{}
	if err := s.request(ctx, http.MethodGet, refreshLogsTable, query, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("query refresh logs: %w", err)
	}
	return rows, nil
}

// FailStaleRefreshLogs fails logs still running since before startedBefore.
func (s *Store) FailStaleRefreshLogs(ctx context.Context, startedBefore time.Time, message string) (int, error) {
	query := url.Values{
		"status":     {eq(string(domain.RefreshRunning))},
		"started_at": {"lt." + ts(startedBefore)},
	}
	body := map[string]any{
		"status":        domain.RefreshFailed,
		"error_message": message,
		"completed_at":  ts(s.stamp()),
	}
	var rows []domain.RefreshLog
	if err := s.request(ctx, http.MethodPatch, refreshLogsTable, query, body, preferRepresentation, &rows); err != nil {
		return 0, fmt.Errorf("fail stale refresh logs: %w", err)
	}
	return len(rows), nil
}
