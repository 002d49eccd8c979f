package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"RivalScanner/internal/domain"
)

const scansTable = "scans"

// CreateScan inserts a scan and returns the stored row.
func (s *Store) CreateScan(ctx context.Context, scan domain.Scan) (domain.Scan, error) {
	now := s.stamp()
	if scan.Status == "" {
		scan.Status = domain.ScanPending
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = now
	}
	scan.UpdatedAt = now

	var rows []domain.Scan
	if err := s.request(ctx, http.MethodPost, scansTable, nil, scan, preferRepresentation, &rows); err != nil {
		return domain.Scan{}, fmt.Errorf("insert scan: %w", err)
	}
	if len(rows) == 0 {
		return domain.Scan{}, fmt.Errorf("insert scan: empty representation")
	}
	return rows[0], nil
}

// GetScan loads a scan by id.
func (s *Store) GetScan(ctx context.Context, id string) (domain.Scan, error) {
	var rows []domain.Scan
	query := url.Values{"id": {eq(id)}, "select": {"*"}}
	if err := s.request(ctx, http.MethodGet, scansTable, query, nil, "", &rows); err != nil {
		return domain.Scan{}, fmt.Errorf("load scan %s: %w", id, err)
	}
	if len(rows) == 0 {
		return domain.Scan{}, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return rows[0], nil
}

// UpdateScanProgress records the current stage of a running pipeline.
func (s *Store) UpdateScanProgress(ctx context.Context, id string, status domain.ScanStatus, stage string, progress int) error {
	return s.patchScan(ctx, id, map[string]any{
		"status":     status,
		"stage":      stage,
		"progress":   progress,
		"updated_at": ts(s.stamp()),
	})
}

// CompleteScan writes the final status and counters in a single update.
func (s *Store) CompleteScan(ctx context.Context, id string, counts domain.ScanCounts, durationSeconds float64, completedAt time.Time) error {
	return s.patchScan(ctx, id, map[string]any{
		"status":            domain.ScanCompleted,
		"stage":             domain.StageComplete,
		"progress":          100,
		"competitors_count": counts.Competitors,
		"alerts_count":      counts.Alerts,
		"insights_count":    counts.Insights,
		"news_count":        counts.News,
		"duration_seconds":  durationSeconds,
		"completed_at":      ts(completedAt),
		"updated_at":        ts(s.stamp()),
	})
}

// FailScan marks a scan failed.
func (s *Store) FailScan(ctx context.Context, id string, at time.Time) error {
	return s.patchScan(ctx, id, map[string]any{
		"status":     domain.ScanFailed,
		"updated_at": ts(at),
	})
}

// ApplyRefresh reads the counters and writes them back incremented. Callers hold
// the per-scan refresh lease, so the read-modify-write has a single writer.
func (s *Store) ApplyRefresh(ctx context.Context, id string, delta domain.ScanCounts, refreshedAt time.Time) error {
	scan, err := s.GetScan(ctx, id)
	if err != nil {
		return err
	}
	total := scan.Counts().Add(delta)
	return s.patchScan(ctx, id, map[string]any{
		"status":            domain.ScanCompleted,
		"stage":             domain.StageComplete,
		"progress":          100,
		"competitors_count": total.Competitors,
		"alerts_count":      total.Alerts,
		"insights_count":    total.Insights,
		"news_count":        total.News,
		"refresh_count":     scan.RefreshCount + 1,
		"last_refreshed_at": ts(refreshedAt),
		"updated_at":        ts(s.stamp()),
	})
}

// ListStuckScans returns running scans not updated since updatedBefore.
func (s *Store) ListStuckScans(ctx context.Context, updatedBefore time.Time) ([]domain.Scan, error) {
	query := url.Values{
		"status":     {eq(string(domain.ScanRunning))},
		"updated_at": {"lt." + ts(updatedBefore)},
		"order":      {"updated_at.asc"},
	}
	var rows []domain.Scan
	if err := s.request(ctx, http.MethodGet, scansTable, query, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("query stuck scans: %w", err)
	}
	return rows, nil
}

// ForceCompleteScan completes a scan only while it is still running.
func (s *Store) ForceCompleteScan(ctx context.Context, id string, at time.Time) (bool, error) {
	query := url.Values{"id": {eq(id)}, "status": {eq(string(domain.ScanRunning))}}
	body := map[string]any{
		"status":       domain.ScanCompleted,
		"stage":        domain.StageComplete,
		"progress":     100,
		"completed_at": ts(at),
		"updated_at":   ts(at),
	}
	var rows []domain.Scan
	if err := s.request(ctx, http.MethodPatch, scansTable, query, body, preferRepresentation, &rows); err != nil {
		return false, fmt.Errorf("force complete scan %s: %w", id, err)
	}
	return len(rows) > 0, nil
}

// DeleteScan removes a scan; child rows cascade in the database.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	var rows []domain.Scan
	if err := s.request(ctx, http.MethodDelete, scansTable, url.Values{"id": {eq(id)}}, nil, preferRepresentation, &rows); err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) patchScan(ctx context.Context, id string, body map[string]any) error {
	var rows []domain.Scan
	if err := s.request(ctx, http.MethodPatch, scansTable, url.Values{"id": {eq(id)}}, body, preferRepresentation, &rows); err != nil {
		return fmt.Errorf("update scan %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
