package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/schedule"
)

var scheduleColumns = []string{
	"id", "scan_id", "user_id", "frequency", "day_of_week", "day_of_month", "hour", "minute",
	"timezone", "enabled", "next_run_at", "last_run_at", "created_at", "updated_at",
}

var refreshLogColumns = []string{
	"id", "scan_id", "schedule_id", "triggered_by", "status", "started_at", "completed_at",
	"new_alerts_count", "new_insights_count", "new_news_count", "error_message",
}

// UpsertSchedule creates or replaces the schedule of a scan and computes its next run.
func (s *Store) UpsertSchedule(ctx context.Context, sched domain.ScanSchedule) (domain.ScanSchedule, error) {
	now := s.stamp()
	if sched.Timezone == "" {
		sched.Timezone = "UTC"
	}
	var nextRun *time.Time
	if sched.Enabled {
		next, err := schedule.NextRun(sched, now)
		if err != nil {
			return domain.ScanSchedule{}, fmt.Errorf("compute next run: %w", err)
		}
		nextRun = &next
	}

	b := sq.Insert("scan_schedules").Columns(
		"id", "scan_id", "user_id", "frequency", "day_of_week", "day_of_month", "hour", "minute",
		"timezone", "enabled", "next_run_at", "created_at", "updated_at",
	).Values(
		uuid.NewString(), sched.ScanID, sched.UserID, string(sched.Frequency),
		nullableInt(sched.DayOfWeek), nullableInt(sched.DayOfMonth), sched.Hour, sched.Minute,
		sched.Timezone, sched.Enabled, formatTimePtr(nextRun), formatTime(now), formatTime(now),
	).Suffix(`ON CONFLICT (scan_id) DO UPDATE SET
		user_id = excluded.user_id,
		frequency = excluded.frequency,
		day_of_week = excluded.day_of_week,
		day_of_month = excluded.day_of_month,
		hour = excluded.hour,
		minute = excluded.minute,
		timezone = excluded.timezone,
		enabled = excluded.enabled,
		next_run_at = excluded.next_run_at,
		updated_at = excluded.updated_at`)

	if _, err := s.exec(ctx, b); err != nil {
		return domain.ScanSchedule{}, fmt.Errorf("upsert schedule: %w", err)
	}

	row, err := s.queryRow(ctx, sq.Select(scheduleColumns...).From("scan_schedules").Where(sq.Eq{"scan_id": sched.ScanID}))
	if err != nil {
		return domain.ScanSchedule{}, err
	}
	stored, err := scanSchedule(row)
	if err != nil {
		return domain.ScanSchedule{}, notFound(err, "schedule for scan", sched.ScanID)
	}
	return stored, nil
}

// ListDueSchedules returns enabled schedules whose next run is at or before now.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]domain.ScanSchedule, error) {
	rows, err := s.query(ctx, sq.Select(scheduleColumns...).From("scan_schedules").
		Where(sq.Eq{"enabled": true}).
		Where(sq.NotEq{"next_run_at": nil}).
		Where(sq.LtOrEq{"next_run_at": formatTime(now)}).
		OrderBy("next_run_at"))
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// ClaimScheduleRun stamps last_run_at and advances next_run_at past at, guarded
// by the next_run_at the caller observed.
func (s *Store) ClaimScheduleRun(ctx context.Context, sched domain.ScanSchedule, at time.Time) (bool, error) {
	if sched.NextRunAt == nil {
		return false, nil
	}
	next, err := schedule.NextRun(sched, at)
	if err != nil {
		return false, fmt.Errorf("compute next run: %w", err)
	}

	n, err := s.exec(ctx, sq.Update("scan_schedules").
		Set("last_run_at", formatTime(at)).
		Set("next_run_at", formatTime(next)).
		Set("updated_at", formatTime(s.stamp())).
		Where(sq.Eq{"id": sched.ID, "enabled": true, "next_run_at": formatTime(*sched.NextRunAt)}))
	if err != nil {
		return false, fmt.Errorf("claim schedule %s: %w", sched.ID, err)
	}
	return n > 0, nil
}

// CreateRefreshLog inserts a running log entry.
func (s *Store) CreateRefreshLog(ctx context.Context, log domain.RefreshLog) (domain.RefreshLog, error) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Status == "" {
		log.Status = domain.RefreshRunning
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = s.stamp()
	}
	var scheduleID any
	if log.ScheduleID != nil {
		scheduleID = *log.ScheduleID
	}

	_, err := s.exec(ctx, sq.Insert("refresh_logs").Columns(refreshLogColumns...).Values(
		log.ID, log.ScanID, scheduleID, string(log.TriggeredBy), string(log.Status),
		formatTime(log.StartedAt), formatTimePtr(log.CompletedAt),
		log.NewAlertsCount, log.NewInsightsCount, log.NewNewsCount, log.ErrorMessage,
	))
	if err != nil {
		return domain.RefreshLog{}, fmt.Errorf("insert refresh log: %w", err)
	}
	return log, nil
}

// FinishRefreshLog records the outcome of a refresh.
func (s *Store) FinishRefreshLog(ctx context.Context, id string, outcome domain.RefreshOutcome) error {
	n, err := s.exec(ctx, sq.Update("refresh_logs").
		Set("status", string(outcome.Status)).
		Set("completed_at", formatTime(outcome.CompletedAt)).
		Set("new_alerts_count", outcome.NewAlerts).
		Set("new_insights_count", outcome.NewInsights).
		Set("new_news_count", outcome.NewNews).
		Set("error_message", outcome.Error).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("finish refresh log %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("refresh log %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRefreshLogs returns the newest logs of a scan first.
func (s *Store) ListRefreshLogs(ctx context.Context, scanID string, limit int) ([]domain.RefreshLog, error) {
	b := sq.Select(refreshLogColumns...).From("refresh_logs").
		Where(sq.Eq{"scan_id": scanID}).
		OrderBy("started_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query refresh logs: %w", err)
	}
	defer rows.Close()

	out := []domain.RefreshLog{}
	for rows.Next() {
		var (
			log                    domain.RefreshLog
			scheduleID, completed  sql.NullString
			trigger, status, start string
		)
		if err := rows.Scan(&log.ID, &log.ScanID, &scheduleID, &trigger, &status, &start, &completed,
			&log.NewAlertsCount, &log.NewInsightsCount, &log.NewNewsCount, &log.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan refresh log: %w", err)
		}
		if scheduleID.Valid {
			id := scheduleID.String
			log.ScheduleID = &id
		}
		log.TriggeredBy = domain.RefreshTrigger(trigger)
		log.Status = domain.RefreshStatus(status)
		log.StartedAt = parseTime(start)
		log.CompletedAt = parseTimePtr(completed)
		out = append(out, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// FailStaleRefreshLogs fails logs still running since before startedBefore.
func (s *Store) FailStaleRefreshLogs(ctx context.Context, startedBefore time.Time, message string) (int, error) {
	n, err := s.exec(ctx, sq.Update("refresh_logs").
		Set("status", string(domain.RefreshFailed)).
		Set("error_message", message).
		Set("completed_at", formatTime(s.stamp())).
		Where(sq.Eq{"status": string(domain.RefreshRunning)}).
		Where(sq.Lt{"started_at": formatTime(startedBefore)}))
	if err != nil {
		return 0, fmt.Errorf("fail stale refresh logs: %w", err)
	}
	return int(n), nil
}

func scanSchedule(row rowScanner) (domain.ScanSchedule, error) {
	var (
		sched                domain.ScanSchedule
		frequency            string
		dow, dom             sql.NullInt64
		nextRun, lastRun     sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&sched.ID, &sched.ScanID, &sched.UserID, &frequency, &dow, &dom, &sched.Hour, &sched.Minute,
		&sched.Timezone, &sched.Enabled, &nextRun, &lastRun, &createdAt, &updatedAt)
	if err != nil {
		return domain.ScanSchedule{}, err
	}
	sched.Frequency = domain.Frequency(frequency)
	sched.DayOfWeek = intPtr(dow)
	sched.DayOfMonth = intPtr(dom)
	sched.NextRunAt = parseTimePtr(nextRun)
	sched.LastRunAt = parseTimePtr(lastRun)
	sched.CreatedAt = parseTime(createdAt)
	sched.UpdatedAt = parseTime(updatedAt)
	return sched, nil
}
