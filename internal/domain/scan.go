package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition reports a scan status change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid scan status transition")

// ScanStatus enumerates scan lifecycle states.
type ScanStatus string

const (
	ScanPending   ScanStatus = "pending"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// Stage names persisted on the scan row while the pipeline runs.
const (
	StageQueued   = "queued"
	StageCollect  = "collect"
	StageAnalyze  = "analyze"
	StagePersist  = "persist"
	StageComplete = "complete"
	StageRefresh  = "refresh"
)

// Scan is the root aggregate of one research run for an industry.
type Scan struct {
	ID               string     `json:"id,omitempty"`
	UserID           string     `json:"user_id"`
	Industry         string     `json:"industry"`
	CompanyName      string     `json:"company_name,omitempty"`
	CompanyURL       string     `json:"company_url,omitempty"`
	Status           ScanStatus `json:"status"`
	Stage            string     `json:"stage,omitempty"`
	Progress         int        `json:"progress"`
	CompetitorsCount int        `json:"competitors_count"`
	AlertsCount      int        `json:"alerts_count"`
	InsightsCount    int        `json:"insights_count"`
	NewsCount        int        `json:"news_count"`
	DurationSeconds  float64    `json:"duration_seconds"`
	RefreshCount     int        `json:"refresh_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	LastRefreshedAt  *time.Time `json:"last_refreshed_at,omitempty"`
}

// Counts returns the scan's aggregate counters.
func (s Scan) Counts() ScanCounts {
	return ScanCounts{
		Competitors: s.CompetitorsCount,
		Alerts:      s.AlertsCount,
		Insights:    s.InsightsCount,
		News:        s.NewsCount,
	}
}

// ScanCounts groups the per-type counters written together on completion.
type ScanCounts struct {
	Competitors int `json:"competitors"`
	Alerts      int `json:"alerts"`
	Insights    int `json:"insights"`
	News        int `json:"news"`
}

// Add sums two sets of counters.
func (c ScanCounts) Add(other ScanCounts) ScanCounts {
	return ScanCounts{
		Competitors: c.Competitors + other.Competitors,
		Alerts:      c.Alerts + other.Alerts,
		Insights:    c.Insights + other.Insights,
		News:        c.News + other.News,
	}
}

// CanTransition reports whether a scan may move from one status to another.
// completed -> running is the transient re-entry used by refreshes.
func CanTransition(from, to ScanStatus) bool {
	switch from {
	case ScanPending:
		return to == ScanRunning || to == ScanFailed
	case ScanRunning:
		return to == ScanCompleted || to == ScanFailed
	case ScanCompleted:
		return to == ScanRunning
	default:
		return false
	}
}

// ValidateTransition wraps CanTransition into an error.
func ValidateTransition(from, to ScanStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
