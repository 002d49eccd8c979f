package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"RivalScanner/internal/domain"
)

var scanColumns = []string{
	"id", "user_id", "industry", "company_name", "company_url", "status", "stage", "progress",
	"competitors_count", "alerts_count", "insights_count", "news_count",
	"duration_seconds", "refresh_count", "created_at", "updated_at", "completed_at", "last_refreshed_at",
}

// CreateScan inserts a scan, assigning an id and timestamps when absent.
func (s *Store) CreateScan(ctx context.Context, scan domain.Scan) (domain.Scan, error) {
	now := s.stamp()
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.Status == "" {
		scan.Status = domain.ScanPending
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = now
	}
	scan.UpdatedAt = now

	_, err := s.exec(ctx, sq.Insert("scans").Columns(scanColumns...).Values(
		scan.ID, scan.UserID, scan.Industry, scan.CompanyName, scan.CompanyURL,
		string(scan.Status), scan.Stage, scan.Progress,
		scan.CompetitorsCount, scan.AlertsCount, scan.InsightsCount, scan.NewsCount,
		scan.DurationSeconds, scan.RefreshCount,
		formatTime(scan.CreatedAt), formatTime(scan.UpdatedAt),
		formatTimePtr(scan.CompletedAt), formatTimePtr(scan.LastRefreshedAt),
	))
	if err != nil {
		return domain.Scan{}, fmt.Errorf("insert scan: %w", err)
	}
	return scan, nil
}

// GetScan loads a scan by id.
func (s *Store) GetScan(ctx context.Context, id string) (domain.Scan, error) {
	row, err := s.queryRow(ctx, sq.Select(scanColumns...).From("scans").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Scan{}, err
	}
	scan, err := scanScan(row)
	if err != nil {
		return domain.Scan{}, notFound(err, "scan", id)
	}
	return scan, nil
}

// UpdateScanProgress records the current stage of a running pipeline.
func (s *Store) UpdateScanProgress(ctx context.Context, id string, status domain.ScanStatus, stage string, progress int) error {
	return s.updateScan(ctx, id, sq.Update("scans").
		Set("status", string(status)).
		Set("stage", stage).
		Set("progress", progress).
		Set("updated_at", formatTime(s.stamp())))
}

// CompleteScan writes the final status and counters in a single update.
func (s *Store) CompleteScan(ctx context.Context, id string, counts domain.ScanCounts, durationSeconds float64, completedAt time.Time) error {
	return s.updateScan(ctx, id, sq.Update("scans").
		Set("status", string(domain.ScanCompleted)).
		Set("stage", domain.StageComplete).
		Set("progress", 100).
		Set("competitors_count", counts.Competitors).
		Set("alerts_count", counts.Alerts).
		Set("insights_count", counts.Insights).
		Set("news_count", counts.News).
		Set("duration_seconds", durationSeconds).
		Set("completed_at", formatTime(completedAt)).
		Set("updated_at", formatTime(s.stamp())))
}

// FailScan marks a scan failed.
func (s *Store) FailScan(ctx context.Context, id string, at time.Time) error {
	return s.updateScan(ctx, id, sq.Update("scans").
		Set("status", string(domain.ScanFailed)).
		Set("updated_at", formatTime(at)))
}

// ApplyRefresh adds the refresh delta to the counters and returns the scan to completed.
func (s *Store) ApplyRefresh(ctx context.Context, id string, delta domain.ScanCounts, refreshedAt time.Time) error {
	return s.updateScan(ctx, id, sq.Update("scans").
		Set("status", string(domain.ScanCompleted)).
		Set("stage", domain.StageComplete).
		Set("progress", 100).
		Set("competitors_count", sq.Expr("competitors_count + ?", delta.Competitors)).
		Set("alerts_count", sq.Expr("alerts_count + ?", delta.Alerts)).
		Set("insights_count", sq.Expr("insights_count + ?", delta.Insights)).
		Set("news_count", sq.Expr("news_count + ?", delta.News)).
		Set("refresh_count", sq.Expr("refresh_count + 1")).
		Set("last_refreshed_at", formatTime(refreshedAt)).
		Set("updated_at", formatTime(s.stamp())))
}

// ListStuckScans returns running scans not updated since updatedBefore.
func (s *Store) ListStuckScans(ctx context.Context, updatedBefore time.Time) ([]domain.Scan, error) {
	rows, err := s.query(ctx, sq.Select(scanColumns...).From("scans").
		Where(sq.Eq{"status": string(domain.ScanRunning)}).
		Where(sq.Lt{"updated_at": formatTime(updatedBefore)}).
		OrderBy("updated_at"))
	if err != nil {
		return nil, fmt.Errorf("query stuck scans: %w", err)
	}
	defer rows.Close()

	var out []domain.Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// ForceCompleteScan completes a scan only while it is still running.
func (s *Store) ForceCompleteScan(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, sq.Update("scans").
		Set("status", string(domain.ScanCompleted)).
		Set("stage", domain.StageComplete).
		Set("progress", 100).
		Set("completed_at", formatTime(at)).
		Set("updated_at", formatTime(at)).
		Where(sq.Eq{"id": id, "status": string(domain.ScanRunning)}))
	if err != nil {
		return false, fmt.Errorf("force complete scan %s: %w", id, err)
	}
	return n > 0, nil
}

// DeleteScan removes a scan; child rows cascade.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	n, err := s.exec(ctx, sq.Delete("scans").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) updateScan(ctx context.Context, id string, b sq.UpdateBuilder) error {
	n, err := s.exec(ctx, b.Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update scan %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (domain.Scan, error) {
	var (
		scan                         domain.Scan
		status, createdAt, updatedAt string
		completedAt, lastRefreshedAt sql.NullString
	)
	err := row.Scan(
		&scan.ID, &scan.UserID, &scan.Industry, &scan.CompanyName, &scan.CompanyURL,
		&status, &scan.Stage, &scan.Progress,
		&scan.CompetitorsCount, &scan.AlertsCount, &scan.InsightsCount, &scan.NewsCount,
		&scan.DurationSeconds, &scan.RefreshCount,
		&createdAt, &updatedAt, &completedAt, &lastRefreshedAt,
	)
	if err != nil {
		return domain.Scan{}, err
	}
	scan.Status = domain.ScanStatus(status)
	scan.CreatedAt = parseTime(createdAt)
	scan.UpdatedAt = parseTime(updatedAt)
	scan.CompletedAt = parseTimePtr(completedAt)
	scan.LastRefreshedAt = parseTimePtr(lastRefreshedAt)
	return scan, nil
}
