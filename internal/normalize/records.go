package normalize

import (
	"strings"

	"RivalScanner/internal/domain"
)

const (
	defaultConfidence = 0.7
	defaultRelevance  = 0.5
)

// Competitors parses a discovery response. Records without name and
// description are dropped; names dedupe case-insensitively, first seen wins.
func (n *Normalizer) Competitors(raw string) []domain.RawCompetitor {
	records := n.Records(raw)
	items := make([]domain.RawCompetitor, 0, len(records))
	for _, rec := range records {
		items = append(items, domain.RawCompetitor{
			Name:        pickString(rec, aliasName),
			Domain:      cleanDomain(pickString(rec, aliasDomain)),
			Description: pickString(rec, aliasDescription),
			Position:    pickString(rec, aliasPosition),
		})
	}
	return CleanCompetitors(items)
}

// CleanCompetitors validates, truncates and dedupes discovered competitors.
func CleanCompetitors(items []domain.RawCompetitor) []domain.RawCompetitor {
	out := make([]domain.RawCompetitor, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		name := Truncate(item.Name, MaxTitleLen)
		desc := Truncate(item.Description, MaxTextLen)
		if name == "" || desc == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, domain.RawCompetitor{
			Name:        name,
			Domain:      cleanDomain(item.Domain),
			Description: desc,
			Position:    Truncate(item.Position, MaxTitleLen),
		})
	}
	return out
}

// News parses a news discovery response.
func (n *Normalizer) News(raw string) []domain.RawNewsItem {
	records := n.Records(raw)
	now := n.now().UTC()
	items := make([]domain.RawNewsItem, 0, len(records))
	for _, rec := range records {
		relevance, ok := pickFloat(rec, aliasRelevance)
		if !ok {
			relevance = defaultRelevance
		}
		items = append(items, domain.RawNewsItem{
			Title:          pickString(rec, aliasTitle),
			Summary:        pickString(rec, aliasSummary),
			Source:         pickString(rec, aliasSource),
			URL:            pickString(rec, aliasURL),
			PublishedAt:    ParseDate(pickString(rec, aliasDate), now),
			RelevanceScore: relevance,
			Tags:           pickStrings(rec, aliasTags),
		})
	}
	return CleanNews(items)
}

// CleanNews validates, truncates and dedupes news. Titles dedupe
// case-sensitively, unlike competitor names.
func CleanNews(items []domain.RawNewsItem) []domain.RawNewsItem {
	out := make([]domain.RawNewsItem, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		title := Truncate(item.Title, MaxTitleLen)
		summary := Truncate(item.Summary, MaxTextLen)
		if title == "" || summary == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}

		relevance := item.RelevanceScore
		switch {
		case relevance > 10:
			relevance /= 100
		case relevance > 1:
			relevance /= 10
		}
		item.Title = title
		item.Summary = summary
		item.Source = Truncate(item.Source, MaxTitleLen)
		item.RelevanceScore = clamp(relevance, 0, 1)
		out = append(out, item)
	}
	return out
}

// Scores parses the competitor analysis response.
func (n *Normalizer) Scores(raw string) []domain.CompetitorScore {
	records := n.Records(raw)
	out := make([]domain.CompetitorScore, 0, len(records))
	seen := map[string]struct{}{}
	for _, rec := range records {
		name := Truncate(pickString(rec, aliasName), MaxTitleLen)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		threat, ok := pickFloat(rec, aliasThreat)
		if !ok {
			threat = domain.DefaultThreatScore
		}
		out = append(out, domain.CompetitorScore{
			Name:          name,
			ThreatScore:   clamp(threat, 0, 10),
			ActivityLevel: ActivityLevel(pickString(rec, aliasActivity)),
			EmployeeCount: pickCount(rec, aliasEmployees),
			Description:   Truncate(pickString(rec, aliasDescription), MaxTextLen),
		})
	}
	return out
}

// AlertDraft is an alert plus the competitor name the model attributed it to.
type AlertDraft struct {
	Alert      domain.Alert
	Competitor string
}

// Alerts parses the alert generation response.
func (n *Normalizer) Alerts(raw string) []AlertDraft {
	records := n.Records(raw)
	out := make([]AlertDraft, 0, len(records))
	for _, rec := range records {
		title := Truncate(pickString(rec, aliasTitle), MaxTitleLen)
		desc := Truncate(pickString(rec, aliasDescription), MaxTextLen)
		if title == "" || desc == "" {
			continue
		}
		out = append(out, AlertDraft{
			Alert: domain.Alert{
				Title:       title,
				Description: desc,
				Priority:    Priority(pickString(rec, aliasPriority)),
				Category:    Category(pickString(rec, aliasCategory)),
			},
			Competitor: pickString(rec, aliasCompetitor),
		})
	}
	return out
}

// Insights parses the insight generation response.
func (n *Normalizer) Insights(raw string) []domain.Insight {
	records := n.Records(raw)
	out := make([]domain.Insight, 0, len(records))
	for _, rec := range records {
		title := Truncate(pickString(rec, aliasTitle), MaxTitleLen)
		desc := Truncate(pickString(rec, aliasDescription), MaxTextLen)
		if title == "" || desc == "" {
			continue
		}

		confidence, ok := pickFloat(rec, aliasConfidence)
		switch {
		case !ok:
			confidence = defaultConfidence
		case confidence > 1 && confidence <= 100:
			confidence /= 100
		}

		actions := pickStrings(rec, aliasActions)
		for i := range actions {
			actions[i] = Truncate(actions[i], MaxTitleLen)
		}
		if actions == nil {
			actions = []string{}
		}

		out = append(out, domain.Insight{
			Type:        InsightType(pickString(rec, aliasType)),
			Title:       title,
			Description: desc,
			Confidence:  clamp(confidence, 0, 1),
			Impact:      Impact(pickString(rec, aliasImpact)),
			ActionItems: actions,
		})
	}
	return out
}

// ActivityLevel maps free text onto low/medium/high, defaulting to medium.
func ActivityLevel(v string) domain.ActivityLevel {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low", "minimal", "inactive":
		return domain.ActivityLow
	case "high", "very high", "aggressive":
		return domain.ActivityHigh
	default:
		return domain.ActivityMedium
	}
}

// Priority maps free text onto critical/attention/info, defaulting to info.
func Priority(v string) domain.AlertPriority {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "critical", "urgent":
		return domain.PriorityCritical
	case "attention", "high", "warning", "medium":
		return domain.PriorityAttention
	default:
		return domain.PriorityInfo
	}
}

// Category maps free text onto the alert categories, defaulting to other.
func Category(v string) domain.AlertCategory {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "funding", "investment", "financial":
		return domain.CategoryFunding
	case "product", "launch", "feature":
		return domain.CategoryProduct
	case "hiring", "talent", "people", "layoffs":
		return domain.CategoryHiring
	case "news", "press":
		return domain.CategoryNews
	case "market", "partnership", "acquisition", "expansion":
		return domain.CategoryMarket
	default:
		return domain.CategoryOther
	}
}

// InsightType maps free text onto the insight types, defaulting to trend.
func InsightType(v string) domain.InsightType {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "threat", "risk":
		return domain.InsightThreat
	case "opportunity":
		return domain.InsightOpportunity
	case "recommendation", "action":
		return domain.InsightRecommendation
	default:
		return domain.InsightTrend
	}
}

// Impact maps free text onto low/medium/high, defaulting to medium.
func Impact(v string) domain.Impact {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return domain.ImpactLow
	case "high", "critical":
		return domain.ImpactHigh
	default:
		return domain.ImpactMedium
	}
}

func cleanDomain(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	v = strings.TrimPrefix(v, "www.")
	if i := strings.IndexAny(v, "/?#"); i >= 0 {
		v = v[:i]
	}
	return v
}
