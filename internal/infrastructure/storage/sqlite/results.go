package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"RivalScanner/internal/domain"
)

// InsertCompetitors stores competitors and returns them with ids assigned.
func (s *Store) InsertCompetitors(ctx context.Context, items []domain.Competitor) ([]domain.Competitor, error) {
	if len(items) == 0 {
		return []domain.Competitor{}, nil
	}
	now := s.stamp()
	b := sq.Insert("competitors").Columns(
		"id", "scan_id", "name", "domain", "description", "market_position",
		"threat_score", "activity_level", "employee_count", "created_at",
	)
	out := make([]domain.Competitor, len(items))
	for i, c := range items {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = now
		b = b.Values(c.ID, c.ScanID, c.Name, c.Domain, c.Description, c.MarketPosition,
			c.ThreatScore, string(c.ActivityLevel), nullableInt(c.EmployeeCount), formatTime(c.CreatedAt))
		out[i] = c
	}
	if _, err := s.exec(ctx, b); err != nil {
		return nil, fmt.Errorf("insert competitors: %w", err)
	}
	return out, nil
}

// InsertAlerts stores alerts and returns them with ids assigned.
func (s *Store) InsertAlerts(ctx context.Context, items []domain.Alert) ([]domain.Alert, error) {
	if len(items) == 0 {
		return []domain.Alert{}, nil
	}
	now := s.stamp()
	b := sq.Insert("alerts").Columns(
		"id", "scan_id", "competitor_id", "title", "description", "priority", "category",
		"is_read", "archived", "created_at",
	)
	out := make([]domain.Alert, len(items))
	for i, a := range items {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CreatedAt = now
		var competitorID any
		if a.CompetitorID != nil {
			competitorID = *a.CompetitorID
		}
		b = b.Values(a.ID, a.ScanID, competitorID, a.Title, a.Description, string(a.Priority),
			string(a.Category), a.Read, a.Archived, formatTime(a.CreatedAt))
		out[i] = a
	}
	if _, err := s.exec(ctx, b); err != nil {
		return nil, fmt.Errorf("insert alerts: %w", err)
	}
	return out, nil
}

// InsertInsights stores insights and returns them with ids assigned.
func (s *Store) InsertInsights(ctx context.Context, items []domain.Insight) ([]domain.Insight, error) {
	if len(items) == 0 {
		return []domain.Insight{}, nil
	}
	now := s.stamp()
	b := sq.Insert("insights").Columns(
		"id", "scan_id", "type", "title", "description", "confidence", "impact",
		"action_items", "archived", "created_at",
	)
	out := make([]domain.Insight, len(items))
	for i, in := range items {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		if in.ActionItems == nil {
			in.ActionItems = []string{}
		}
		in.CreatedAt = now
		actions, err := json.Marshal(in.ActionItems)
		if err != nil {
			return nil, fmt.Errorf("encode action items: %w", err)
		}
		b = b.Values(in.ID, in.ScanID, string(in.Type), in.Title, in.Description, in.Confidence,
			string(in.Impact), string(actions), in.Archived, formatTime(in.CreatedAt))
		out[i] = in
	}
	if _, err := s.exec(ctx, b); err != nil {
		return nil, fmt.Errorf("insert insights: %w", err)
	}
	return out, nil
}

// InsertNews stores news items and returns them with ids assigned.
func (s *Store) InsertNews(ctx context.Context, items []domain.NewsItem) ([]domain.NewsItem, error) {
	if len(items) == 0 {
		return []domain.NewsItem{}, nil
	}
	now := s.stamp()
	b := sq.Insert("news_items").Columns(
		"id", "scan_id", "title", "summary", "source", "source_url", "published_at",
		"relevance_score", "tags", "archived", "created_at",
	)
	out := make([]domain.NewsItem, len(items))
	for i, n := range items {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.Tags == nil {
			n.Tags = []string{}
		}
		n.CreatedAt = now
		tags, err := json.Marshal(n.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		b = b.Values(n.ID, n.ScanID, n.Title, n.Summary, n.Source, n.SourceURL, formatTime(n.PublishedAt),
			n.RelevanceScore, string(tags), n.Archived, formatTime(n.CreatedAt))
		out[i] = n
	}
	if _, err := s.exec(ctx, b); err != nil {
		return nil, fmt.Errorf("insert news: %w", err)
	}
	return out, nil
}

// ListCompetitors returns the competitors of a scan in insertion order.
func (s *Store) ListCompetitors(ctx context.Context, scanID string) ([]domain.Competitor, error) {
	rows, err := s.query(ctx, sq.Select(
		"id", "scan_id", "name", "domain", "description", "market_position",
		"threat_score", "activity_level", "employee_count", "created_at",
	).From("competitors").Where(sq.Eq{"scan_id": scanID}).OrderBy("created_at", "rowid"))
	if err != nil {
		return nil, fmt.Errorf("query competitors: %w", err)
	}
	defer rows.Close()

	out := []domain.Competitor{}
	for rows.Next() {
		var (
			c         domain.Competitor
			activity  string
			employees sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.ScanID, &c.Name, &c.Domain, &c.Description, &c.MarketPosition,
			&c.ThreatScore, &activity, &employees, &createdAt); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		c.ActivityLevel = domain.ActivityLevel(activity)
		c.EmployeeCount = intPtr(employees)
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// ListNewsTitles returns every stored news title of a scan.
func (s *Store) ListNewsTitles(ctx context.Context, scanID string) ([]string, error) {
	rows, err := s.query(ctx, sq.Select("title").From("news_items").Where(sq.Eq{"scan_id": scanID}))
	if err != nil {
		return nil, fmt.Errorf("query news titles: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		out = append(out, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
