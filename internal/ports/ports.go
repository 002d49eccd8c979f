package ports

import (
	"context"
	"errors"
	"time"

	"RivalScanner/internal/domain"
)

// ErrLeaseHeld is returned by a Locker when another holder owns the key.
var ErrLeaseHeld = errors.New("lease already held")

// CompetitorDiscoverer finds companies competing in an industry.
// Provider failures are logged by the adapter and yield an empty slice.
type CompetitorDiscoverer interface {
	DiscoverCompetitors(ctx context.Context, industry string, limit int) []domain.RawCompetitor
}

// NewsDiscoverer finds recent stories about an industry; same failure contract.
type NewsDiscoverer interface {
	Name() string
	DiscoverNews(ctx context.Context, industry string, limit int) []domain.RawNewsItem
}

// TextAnalyzer is the generic text-generation backend used by the analysis stage.
// Unlike discovery, failures surface as errors.
type TextAnalyzer interface {
	Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// ScanRepository owns the scan rows.
type ScanRepository interface {
	CreateScan(ctx context.Context, scan domain.Scan) (domain.Scan, error)
	GetScan(ctx context.Context, id string) (domain.Scan, error)
	UpdateScanProgress(ctx context.Context, id string, status domain.ScanStatus, stage string, progress int) error
	// CompleteScan writes status, counters and duration in one update.
	CompleteScan(ctx context.Context, id string, counts domain.ScanCounts, durationSeconds float64, completedAt time.Time) error
	FailScan(ctx context.Context, id string, at time.Time) error
	// ApplyRefresh adds delta to the counters, bumps refresh_count and returns the scan to completed.
	ApplyRefresh(ctx context.Context, id string, delta domain.ScanCounts, refreshedAt time.Time) error
	ListStuckScans(ctx context.Context, updatedBefore time.Time) ([]domain.Scan, error)
	// ForceCompleteScan completes a scan only if it is still running; false means nothing changed.
	ForceCompleteScan(ctx context.Context, id string, at time.Time) (bool, error)
	DeleteScan(ctx context.Context, id string) error
}

// ResultRepository owns the child rows of a scan.
type ResultRepository interface {
	InsertCompetitors(ctx context.Context, items []domain.Competitor) ([]domain.Competitor, error)
	InsertAlerts(ctx context.Context, items []domain.Alert) ([]domain.Alert, error)
	InsertInsights(ctx context.Context, items []domain.Insight) ([]domain.Insight, error)
	InsertNews(ctx context.Context, items []domain.NewsItem) ([]domain.NewsItem, error)
	ListCompetitors(ctx context.Context, scanID string) ([]domain.Competitor, error)
	ListNewsTitles(ctx context.Context, scanID string) ([]string, error)
}

// ScheduleRepository owns recurring schedules.
type ScheduleRepository interface {
	UpsertSchedule(ctx context.Context, schedule domain.ScanSchedule) (domain.ScanSchedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]domain.ScanSchedule, error)
	// ClaimScheduleRun advances next_run_at past at only while it still equals
	// sched.NextRunAt; false means another sweep already claimed this run.
	ClaimScheduleRun(ctx context.Context, sched domain.ScanSchedule, at time.Time) (bool, error)
}

// RefreshLogRepository owns the refresh audit trail.
type RefreshLogRepository interface {
	CreateRefreshLog(ctx context.Context, log domain.RefreshLog) (domain.RefreshLog, error)
	FinishRefreshLog(ctx context.Context, id string, outcome domain.RefreshOutcome) error
	ListRefreshLogs(ctx context.Context, scanID string, limit int) ([]domain.RefreshLog, error)
	// FailStaleRefreshLogs marks logs still running since before startedBefore as failed.
	FailStaleRefreshLogs(ctx context.Context, startedBefore time.Time, message string) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	ScanRepository
	ResultRepository
	ScheduleRepository
	RefreshLogRepository
}

// Lease is a held single-writer lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases; Acquire returns ErrLeaseHeld instead of waiting.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Notifier streams digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when sweeps execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
