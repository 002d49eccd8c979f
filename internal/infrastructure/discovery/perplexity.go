// Package discovery finds competitors and industry news through online search models.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/normalize"
	"RivalScanner/internal/ports"
)

// SourcePerplexity is the registry name of the Perplexity news source.
const SourcePerplexity = "perplexity"

const (
	competitorTokens = 2000
	newsTokens       = 3000
	discoveryTemp    = 0.2
)

// Perplexity runs discovery prompts against an online chat model.
type Perplexity struct {
	chat       ports.TextAnalyzer
	normalizer *normalize.Normalizer
	logger     *slog.Logger
}

var (
	_ ports.CompetitorDiscoverer = (*Perplexity)(nil)
	_ ports.NewsDiscoverer       = (*Perplexity)(nil)
)

// NewPerplexity wires the chat client with a normalizer.
func NewPerplexity(chat ports.TextAnalyzer, normalizer *normalize.Normalizer, logger *slog.Logger) *Perplexity {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = normalize.New(logger)
	}
	return &Perplexity{
		chat:       chat,
		normalizer: normalizer,
		logger:     logger.With("component", "perplexity"),
	}
}

// Name implements ports.NewsDiscoverer.
func (p *Perplexity) Name() string { return SourcePerplexity }

// DiscoverCompetitors asks for the leading companies in an industry.
func (p *Perplexity) DiscoverCompetitors(ctx context.Context, industry string, limit int) []domain.RawCompetitor {
	raw, err := p.chat.Analyze(ctx, competitorPrompt(industry, limit), competitorTokens, discoveryTemp)
	if err != nil {
		p.logger.Warn("competitor discovery failed", "industry", industry, "error", err)
		return nil
	}

	items := p.normalizer.Competitors(raw)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	p.logger.Debug("competitor discovery done", "industry", industry, "count", len(items))
	return items
}

// DiscoverNews asks for recent industry news with sources and dates.
func (p *Perplexity) DiscoverNews(ctx context.Context, industry string, limit int) []domain.RawNewsItem {
	raw, err := p.chat.Analyze(ctx, newsPrompt(industry, limit), newsTokens, discoveryTemp)
	if err != nil {
		p.logger.Warn("news discovery failed", "industry", industry, "error", err)
		return nil
	}

	items := p.normalizer.News(raw)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	p.logger.Debug("news discovery done", "industry", industry, "count", len(items))
	return items
}

func competitorPrompt(industry string, limit int) string {
	return fmt.Sprintf(`List the %d most significant companies currently competing in the %s industry.
Return ONLY a JSON array. Each element must have:
"name" (company name), "domain" (primary website domain), "description" (one sentence on what they do),
"market_position" (one of: leader, challenger, emerging, niche).
Order the array from most to least significant.`, limit, industry)
}

func newsPrompt(industry string, limit int) string {
	return fmt.Sprintf(`Find up to %d notable news stories from the last 30 days about companies in the %s industry.
Return ONLY a JSON array. Each element must have:
"title", "summary" (two sentences at most), "source" (publication name), "url",
"published_at" (ISO 8601 date), "relevance_score" (0 to 1), "tags" (array of short keywords).`, limit, industry)
}
