package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/normalize"
	"RivalScanner/internal/ports"
)

// ResultSet is everything one run produced for persistence.
type ResultSet struct {
	Competitors []domain.Competitor
	Alerts      []normalize.AlertDraft
	Insights    []domain.Insight
	News        []domain.NewsItem
}

// WriteResult reports what was actually stored.
type WriteResult struct {
	Counts domain.ScanCounts
	Alerts []domain.Alert
	Errs   []error
}

// Writer maps results to rows. Each entity write is independent: a failure is
// logged, its count stays 0 and the remaining writes still run.
type Writer struct {
	repo   ports.ResultRepository
	logger *slog.Logger
}

// NewWriter builds a writer over the result repository.
func NewWriter(repo ports.ResultRepository, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{repo: repo, logger: logger}
}

// Write stores competitors first so alerts can link to them, then alerts,
// insights and news. known lists competitors already stored for the scan.
func (w *Writer) Write(ctx context.Context, scanID string, set ResultSet, known []domain.Competitor) WriteResult {
	var res WriteResult
	logger := w.logger.With("scan_id", scanID)

	linkable := append([]domain.Competitor(nil), known...)
	if len(set.Competitors) > 0 {
		stored, err := w.repo.InsertCompetitors(ctx, withScanID(set.Competitors, scanID, func(c *domain.Competitor, id string) { c.ScanID = id }))
		if err != nil {
			res.fail(logger, "competitors", err)
		} else {
			res.Counts.Competitors = len(stored)
			linkable = append(linkable, stored...)
		}
	}

	if len(set.Alerts) > 0 {
		alerts := linkAlerts(scanID, set.Alerts, linkable)
		stored, err := w.repo.InsertAlerts(ctx, alerts)
		if err != nil {
			res.fail(logger, "alerts", err)
		} else {
			res.Counts.Alerts = len(stored)
			res.Alerts = stored
		}
	}

	if len(set.Insights) > 0 {
		stored, err := w.repo.InsertInsights(ctx, withScanID(set.Insights, scanID, func(in *domain.Insight, id string) { in.ScanID = id }))
		if err != nil {
			res.fail(logger, "insights", err)
		} else {
			res.Counts.Insights = len(stored)
		}
	}

	if len(set.News) > 0 {
		stored, err := w.repo.InsertNews(ctx, withScanID(set.News, scanID, func(n *domain.NewsItem, id string) { n.ScanID = id }))
		if err != nil {
			res.fail(logger, "news", err)
		} else {
			res.Counts.News = len(stored)
		}
	}

	return res
}

func (r *WriteResult) fail(logger *slog.Logger, entity string, err error) {
	logger.Error("write failed", "entity", entity, "error", err)
	r.Errs = append(r.Errs, fmt.Errorf("write %s: %w", entity, err))
}

func withScanID[T any](items []T, scanID string, set func(*T, string)) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := range out {
		set(&out[i], scanID)
	}
	return out
}

// linkAlerts references a competitor only when the alert mentions it by name or
// the model attributed it to that exact name; otherwise the link stays null.
func linkAlerts(scanID string, drafts []normalize.AlertDraft, competitors []domain.Competitor) []domain.Alert {
	// longest names first so "Epic Games" wins over "Epic"
	ordered := make([]domain.Competitor, 0, len(competitors))
	for _, c := range competitors {
		if c.ID != "" && strings.TrimSpace(c.Name) != "" {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i].Name) > len(ordered[j].Name) })

	out := make([]domain.Alert, 0, len(drafts))
	for _, d := range drafts {
		alert := d.Alert
		alert.ScanID = scanID
		alert.CompetitorID = nil

		text := strings.ToLower(alert.Title + " " + alert.Description)
		attributed := strings.ToLower(strings.TrimSpace(d.Competitor))
		for _, c := range ordered {
			name := strings.ToLower(c.Name)
			if strings.Contains(text, name) || attributed == name {
				id := c.ID
				alert.CompetitorID = &id
				break
			}
		}
		out = append(out, alert)
	}
	return out
}
