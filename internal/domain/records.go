package domain

import (
	"strings"
	"time"
)

// ActivityLevel describes how active a competitor currently is.
type ActivityLevel string

const (
	ActivityLow    ActivityLevel = "low"
	ActivityMedium ActivityLevel = "medium"
	ActivityHigh   ActivityLevel = "high"
)

// DefaultThreatScore is assigned when competitor analysis yields nothing.
const DefaultThreatScore = 5.0

// RawCompetitor is a discovery result before analysis.
type RawCompetitor struct {
	Name        string
	Domain      string
	Description string
	Position    string
}

// DerivedScore ranks a discovered competitor without an analysis call:
// market position dominates, discovery order breaks ties.
func (r RawCompetitor) DerivedScore(index int) float64 {
	base := 10.0 - float64(index)*0.5
	if base < 3 {
		base = 3
	}
	switch pos := strings.ToLower(r.Position); {
	case strings.Contains(pos, "leader"):
		base += 3
	case strings.Contains(pos, "challenger"):
		base += 2
	case strings.Contains(pos, "emerging"), strings.Contains(pos, "startup"):
		base += 1
	}
	return base
}

// CompetitorScore is one entry of the competitor analysis output.
type CompetitorScore struct {
	Name          string
	ThreatScore   float64
	ActivityLevel ActivityLevel
	EmployeeCount *int
	Description   string
}

// Competitor belongs to exactly one scan; name is the dedup key within it.
type Competitor struct {
	ID             string        `json:"id,omitempty"`
	ScanID         string        `json:"scan_id"`
	Name           string        `json:"name"`
	Domain         string        `json:"domain,omitempty"`
	Description    string        `json:"description"`
	MarketPosition string        `json:"market_position,omitempty"`
	ThreatScore    float64       `json:"threat_score"`
	ActivityLevel  ActivityLevel `json:"activity_level"`
	EmployeeCount  *int          `json:"employee_count,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// RawNewsItem is a discovery result before persistence.
type RawNewsItem struct {
	Title          string
	Summary        string
	Source         string
	URL            string
	PublishedAt    time.Time
	RelevanceScore float64
	Tags           []string
}

// NewsItem is a stored story; title is the dedup key within a collection batch.
type NewsItem struct {
	ID             string    `json:"id,omitempty"`
	ScanID         string    `json:"scan_id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Source         string    `json:"source,omitempty"`
	SourceURL      string    `json:"source_url,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
	RelevanceScore float64   `json:"relevance_score"`
	Tags           []string  `json:"tags"`
	Archived       bool      `json:"archived"`
	// Read is tracked by clients and never persisted.
	Read      bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertPriority ranks alerts for the dashboard.
type AlertPriority string

const (
	PriorityCritical  AlertPriority = "critical"
	PriorityAttention AlertPriority = "attention"
	PriorityInfo      AlertPriority = "info"
)

// AlertCategory classifies what an alert is about.
type AlertCategory string

const (
	CategoryFunding AlertCategory = "funding"
	CategoryProduct AlertCategory = "product"
	CategoryHiring  AlertCategory = "hiring"
	CategoryNews    AlertCategory = "news"
	CategoryMarket  AlertCategory = "market"
	CategoryOther   AlertCategory = "other"
)

// Alert belongs to a scan and optionally references one competitor.
type Alert struct {
	ID           string        `json:"id,omitempty"`
	ScanID       string        `json:"scan_id"`
	CompetitorID *string       `json:"competitor_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Priority     AlertPriority `json:"priority"`
	Category     AlertCategory `json:"category"`
	Read         bool          `json:"is_read"`
	Archived     bool          `json:"archived"`
	CreatedAt    time.Time     `json:"created_at"`
}

// InsightType classifies strategic insights.
type InsightType string

const (
	InsightThreat         InsightType = "threat"
	InsightOpportunity    InsightType = "opportunity"
	InsightTrend          InsightType = "trend"
	InsightRecommendation InsightType = "recommendation"
)

// Impact is shared by insights.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Insight is a strategic observation generated for a scan.
type Insight struct {
	ID          string      `json:"id,omitempty"`
	ScanID      string      `json:"scan_id"`
	Type        InsightType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Confidence  float64     `json:"confidence"`
	Impact      Impact      `json:"impact"`
	ActionItems []string    `json:"action_items"`
	Archived    bool        `json:"archived"`
	CreatedAt   time.Time   `json:"created_at"`
}
