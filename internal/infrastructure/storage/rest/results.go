package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"RivalScanner/internal/domain"
)

// InsertCompetitors stores competitors and returns them with ids assigned.
func (s *Store) InsertCompetitors(ctx context.Context, items []domain.Competitor) ([]domain.Competitor, error) {
	if len(items) == 0 {
		return []domain.Competitor{}, nil
	}
	now := s.stamp()
	for i := range items {
		items[i].CreatedAt = now
	}
	var rows []domain.Competitor
	if err := s.request(ctx, http.MethodPost, "competitors", nil, items, preferRepresentation, &rows); err != nil {
		return nil, fmt.Errorf("insert competitors: %w", err)
	}
	return rows, nil
}

// InsertAlerts stores alerts and returns them with ids assigned.
func (s *Store) InsertAlerts(ctx context.Context, items []domain.Alert) ([]domain.Alert, error) {
	if len(items) == 0 {
		return []domain.Alert{}, nil
	}
	now := s.stamp()
	for i := range items {
		items[i].CreatedAt = now
	}
	var rows []domain.Alert
	if err := s.request(ctx, http.MethodPost, "alerts", nil, items, preferRepresentation, &rows); err != nil {
		return nil, fmt.Errorf("insert alerts: %w", err)
	}
	return rows, nil
}

// InsertInsights stores insights and returns them with ids assigned.
func (s *Store) InsertInsights(ctx context.Context, items []domain.Insight) ([]domain.Insight, error) {
	if len(items) == 0 {
		return []domain.Insight{}, nil
	}
	now := s.stamp()
	for i := range items {
		items[i].CreatedAt = now
		if items[i].ActionItems == nil {
			items[i].ActionItems = []string{}
		}
	}
	var rows []domain.Insight
	if err := s.request(ctx, http.MethodPost, "insights", nil, items, preferRepresentation, &rows); err != nil {
		return nil, fmt.Errorf("insert insights: %w", err)
	}
	return rows, nil
}

// InsertNews stores news items and returns them with ids assigned.
func (s *Store) InsertNews(ctx context.Context, items []domain.NewsItem) ([]domain.NewsItem, error) {
	if len(items) == 0 {
		return []domain.NewsItem{}, nil
	}
	now := s.stamp()
	for i := range items {
		items[i].CreatedAt = now
		if items[i].Tags == nil {
			items[i].Tags = []string{}
		}
	}
	var rows []domain.NewsItem
	if err := s.request(ctx, http.MethodPost, "news_items", nil, items, preferRepresentation, &rows); err != nil {
		return nil, fmt.Errorf("insert news: %w", err)
	}
	return rows, nil
}

// ListCompetitors returns the competitors of a scan in insertion order.
func (s *Store) ListCompetitors(ctx context.Context, scanID string) ([]domain.Competitor, error) {
	query := url.Values{"scan_id": {eq(scanID)}, "order": {"created_at.asc"}}
	rows := []domain.Competitor{}
	if err := s.request(ctx, http.MethodGet, "competitors", query, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("query competitors: %w", err)
	}
	return rows, nil
}

// ListNewsTitles returns every stored news title of a scan.
func (s *Store) ListNewsTitles(ctx context.Context, scanID string) ([]string, error) {
	query := url.Values{"scan_id": {eq(scanID)}, "select": {"title"}}
	var rows []struct {
		Title string `json:"title"`
	}
	if err := s.request(ctx, http.MethodGet, "news_items", query, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("query news titles: %w", err)
	}
	titles := make([]string, 0, len(rows))
	for _, r := range rows {
		titles = append(titles, r.Title)
	}
	return titles, nil
}
