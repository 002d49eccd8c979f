package domain

import "time"

// Frequency of a recurring refresh.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ScanSchedule drives recurring refreshes; a scan has at most one.
// NextRunAt is computed scheduler-side and never guessed by the orchestrator.
type ScanSchedule struct {
	ID         string     `json:"id,omitempty"`
	ScanID     string     `json:"scan_id" validate:"required"`
	UserID     string     `json:"user_id"`
	Frequency  Frequency  `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	DayOfWeek  *int       `json:"day_of_week,omitempty" validate:"omitempty,min=0,max=6"`
	DayOfMonth *int       `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	Hour       int        `json:"hour" validate:"min=0,max=23"`
	Minute     int        `json:"minute" validate:"min=0,max=59"`
	Timezone   string     `json:"timezone"`
	Enabled    bool       `json:"enabled"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RefreshTrigger says who started a refresh.
type RefreshTrigger string

const (
	TriggerManual    RefreshTrigger = "manual"
	TriggerScheduled RefreshTrigger = "scheduled"
)

// RefreshStatus is the RefreshLog lifecycle.
type RefreshStatus string

const (
	RefreshRunning RefreshStatus = "running"
	RefreshSuccess RefreshStatus = "success"
	RefreshFailed  RefreshStatus = "failed"
)

// RefreshLog audits one refresh execution independently of the scan status.
type RefreshLog struct {
	ID               string         `json:"id,omitempty"`
	ScanID           string         `json:"scan_id"`
	ScheduleID       *string        `json:"schedule_id,omitempty"`
	TriggeredBy      RefreshTrigger `json:"triggered_by"`
	Status           RefreshStatus  `json:"status"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	NewAlertsCount   int            `json:"new_alerts_count"`
	NewInsightsCount int            `json:"new_insights_count"`
	NewNewsCount     int            `json:"new_news_count"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

// RefreshOutcome is written to a RefreshLog when its refresh ends.
type RefreshOutcome struct {
	Status      RefreshStatus
	NewAlerts   int
	NewInsights int
	NewNews     int
	Error       string
	CompletedAt time.Time
}
