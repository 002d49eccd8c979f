package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/normalize"
)

const (
	insightCompetitors = 5
	insightHeadlines   = 10
	alertNewsItems     = 15
	fallbackAlerts     = 5
)

var errNoAnalyzer = errors.New("text analyzer is not configured")

type analysisResult struct {
	scores   []domain.CompetitorScore
	insights []domain.Insight
	alerts   []normalize.AlertDraft
	errs     []error
}

// analyzeFull issues scoring, insight and alert generation concurrently and
// waits for all three before returning.
func (o *Orchestrator) analyzeFull(ctx context.Context, industry string, competitors []domain.RawCompetitor, news []domain.RawNewsItem) analysisResult {
	var (
		res                            analysisResult
		scoreErr, insightErr, alertErr error
		g                              errgroup.Group
	)

	g.Go(func() error {
		defer recoverTask(o.logger, "score competitors", &scoreErr)
		res.scores, scoreErr = o.scoreCompetitors(ctx, industry, competitors)
		return nil
	})
	g.Go(func() error {
		defer recoverTask(o.logger, "generate insights", &insightErr)
		res.insights, insightErr = o.generateInsights(ctx, industry, competitors, news)
		return nil
	})
	g.Go(func() error {
		defer recoverTask(o.logger, "generate alerts", &alertErr)
		res.alerts, alertErr = o.generateAlerts(ctx, industry, news, competitorNames(competitors))
		return nil
	})
	_ = g.Wait()

	res.errs = compactErrors(scoreErr, insightErr, alertErr)
	return res
}

// analyzeRefresh regenerates insights and alerts from new news and stored competitors.
func (o *Orchestrator) analyzeRefresh(ctx context.Context, industry string, competitors []domain.RawCompetitor, news []domain.RawNewsItem) analysisResult {
	var (
		res                  analysisResult
		insightErr, alertErr error
		g                    errgroup.Group
	)

	g.Go(func() error {
		defer recoverTask(o.logger, "generate insights", &insightErr)
		res.insights, insightErr = o.generateInsights(ctx, industry, competitors, news)
		return nil
	})
	g.Go(func() error {
		defer recoverTask(o.logger, "generate alerts", &alertErr)
		res.alerts, alertErr = o.generateAlerts(ctx, industry, news, competitorNames(competitors))
		return nil
	})
	_ = g.Wait()

	res.errs = compactErrors(insightErr, alertErr)
	return res
}

func (o *Orchestrator) analyze(ctx context.Context, prompt string) (string, error) {
	if o.analyzer == nil {
		return "", errNoAnalyzer
	}
	if err := o.analysisPace.Wait(ctx); err != nil {
		return "", fmt.Errorf("analysis pacing: %w", err)
	}
	return o.analyzer.Analyze(ctx, prompt, o.cfg.MaxTokens, o.cfg.Temperature)
}

// scoreCompetitors returns nil scores on failure; competitors then keep the defaults.
func (o *Orchestrator) scoreCompetitors(ctx context.Context, industry string, competitors []domain.RawCompetitor) ([]domain.CompetitorScore, error) {
	if len(competitors) == 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Score the following competitors in the %s industry.\n", industry)
	b.WriteString(`Return ONLY a JSON array with one object per company: "name", "threat_score" (0-10), "activity_level" (low, medium or high), "employee_count" (integer estimate), "description" (one sentence).`)
	b.WriteString("\n\nCompanies:\n")
	for _, c := range competitors {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}

	raw, err := o.analyze(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("score competitors: %w", err)
	}
	return o.normalizer.Scores(raw), nil
}

func (o *Orchestrator) generateInsights(ctx context.Context, industry string, competitors []domain.RawCompetitor, news []domain.RawNewsItem) ([]domain.Insight, error) {
	if len(competitors) == 0 && len(news) == 0 {
		return nil, nil
	}
	top := topCompetitors(competitors, insightCompetitors)
	headlines := recentNews(news, insightHeadlines)

	var b strings.Builder
	fmt.Fprintf(&b, "Generate strategic insights for a company operating in the %s industry.\n", industry)
	b.WriteString(`Return ONLY a JSON array of 3 to 5 objects: "type" (threat, opportunity, trend or recommendation), "title", "description", "confidence" (0-1), "impact" (low, medium or high), "action_items" (array of short strings).`)
	b.WriteString("\n\nTop competitors:\n")
	for _, c := range top {
		fmt.Fprintf(&b, "- %s (%s)\n", c.Name, positionOrUnknown(c.Position))
	}
	b.WriteString("\nRecent headlines:\n")
	for _, n := range headlines {
		fmt.Fprintf(&b, "- %s\n", n.Title)
	}

	raw, err := o.analyze(ctx, b.String())
	if err != nil {
		return fallbackInsights(industry, top), fmt.Errorf("generate insights: %w", err)
	}
	return o.normalizer.Insights(raw), nil
}

func (o *Orchestrator) generateAlerts(ctx context.Context, industry string, news []domain.RawNewsItem, competitors []string) ([]normalize.AlertDraft, error) {
	if len(news) == 0 {
		return nil, nil
	}
	items := recentNews(news, alertNewsItems)

	var b strings.Builder
	fmt.Fprintf(&b, "Generate competitive alerts for the %s industry from the news below.\n", industry)
	b.WriteString(`Return ONLY a JSON array: "title", "description", "priority" (critical, attention or info), "category" (funding, product, hiring, news, market or other), "competitor" (company name or empty).`)
	if len(competitors) > 0 {
		fmt.Fprintf(&b, "\n\nTracked competitors: %s", strings.Join(competitors, ", "))
	}
	b.WriteString("\n\nNews:\n")
	for _, n := range items {
		fmt.Fprintf(&b, "- %s: %s\n", n.Title, n.Summary)
	}

	raw, err := o.analyze(ctx, b.String())
	if err != nil {
		return fallbackAlertDrafts(items), fmt.Errorf("generate alerts: %w", err)
	}
	return o.normalizer.Alerts(raw), nil
}

// topCompetitors orders by derived score, keeping discovery order on ties.
func topCompetitors(competitors []domain.RawCompetitor, n int) []domain.RawCompetitor {
	type ranked struct {
		c     domain.RawCompetitor
		score float64
	}
	all := make([]ranked, len(competitors))
	for i, c := range competitors {
		all[i] = ranked{c: c, score: c.DerivedScore(i)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	if len(all) > n {
		all = all[:n]
	}
	out := make([]domain.RawCompetitor, len(all))
	for i, r := range all {
		out[i] = r.c
	}
	return out
}

func recentNews(news []domain.RawNewsItem, n int) []domain.RawNewsItem {
	sorted := make([]domain.RawNewsItem, len(news))
	copy(sorted, news)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PublishedAt.After(sorted[j].PublishedAt) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func fallbackInsights(industry string, top []domain.RawCompetitor) []domain.Insight {
	names := make([]string, 0, len(top))
	for _, c := range top {
		names = append(names, c.Name)
	}
	desc := fmt.Sprintf("Competitive activity in %s continues.", industry)
	if len(names) > 0 {
		desc = fmt.Sprintf("The %s landscape is led by %s.", industry, strings.Join(names, ", "))
	}
	return []domain.Insight{{
		Type:        domain.InsightTrend,
		Title:       normalize.Truncate(fmt.Sprintf("%s market overview", industry), normalize.MaxTitleLen),
		Description: normalize.Truncate(desc, normalize.MaxTextLen),
		Confidence:  0.5,
		Impact:      domain.ImpactMedium,
		ActionItems: []string{"Review competitor positioning", "Track upcoming announcements"},
	}}
}

var alertKeywords = []struct {
	words    []string
	category domain.AlertCategory
	priority domain.AlertPriority
}{
	{[]string{"acquire", "acquisition", "merger", "lawsuit", "breach", "recall"}, domain.CategoryMarket, domain.PriorityCritical},
	{[]string{"raise", "raises", "funding", "series", "ipo", "valuation"}, domain.CategoryFunding, domain.PriorityAttention},
	{[]string{"launch", "launches", "release", "unveil", "announce"}, domain.CategoryProduct, domain.PriorityAttention},
	{[]string{"hire", "hiring", "layoff", "layoffs", "appoint", "ceo"}, domain.CategoryHiring, domain.PriorityAttention},
	{[]string{"partner", "partnership", "expand", "expansion"}, domain.CategoryMarket, domain.PriorityInfo},
}

// fallbackAlertDrafts classifies recent headlines by keyword when alert generation fails.
func fallbackAlertDrafts(news []domain.RawNewsItem) []normalize.AlertDraft {
	if len(news) > fallbackAlerts {
		news = news[:fallbackAlerts]
	}
	out := make([]normalize.AlertDraft, 0, len(news))
	for _, n := range news {
		category, priority := domain.CategoryNews, domain.PriorityInfo
		text := strings.ToLower(n.Title + " " + n.Summary)
	match:
		for _, rule := range alertKeywords {
			for _, w := range rule.words {
				if strings.Contains(text, w) {
					category, priority = rule.category, rule.priority
					break match
				}
			}
		}
		out = append(out, normalize.AlertDraft{Alert: domain.Alert{
			Title:       n.Title,
			Description: n.Summary,
			Priority:    priority,
			Category:    category,
		}})
	}
	return out
}

func competitorNames(competitors []domain.RawCompetitor) []string {
	names := make([]string, 0, len(competitors))
	for _, c := range competitors {
		names = append(names, c.Name)
	}
	return names
}

func positionOrUnknown(p string) string {
	if p == "" {
		return "position unknown"
	}
	return p
}

func compactErrors(errs ...error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
