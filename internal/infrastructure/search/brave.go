package search

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/normalize"
	"RivalScanner/internal/ports"
)

// SourceBrave is the registry name of the Brave news source.
const SourceBrave = "brave"

const (
	braveMaxCount    = 20
	defaultRelevance = 0.5
)

// Brave queries the Brave News Search API.
type Brave struct {
	client   *Client
	endpoint string
	apiKey   string
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.NewsDiscoverer = (*Brave)(nil)

// NewBrave builds the adapter.
func NewBrave(client *Client, endpoint, apiKey string, logger *slog.Logger) *Brave {
	if logger == nil {
		logger = slog.Default()
	}
	return &Brave{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   logger.With("component", "brave"),
		now:      time.Now,
	}
}

// Name implements ports.NewsDiscoverer.
func (b *Brave) Name() string { return SourceBrave }

type braveResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Age         string `json:"age"`
		PageAge     string `json:"page_age"`
		MetaURL     struct {
			Hostname string `json:"hostname"`
		} `json:"meta_url"`
	} `json:"results"`
}

// DiscoverNews searches recent industry news. Failures are logged and yield nil.
func (b *Brave) DiscoverNews(ctx context.Context, industry string, limit int) []domain.RawNewsItem {
	if limit <= 0 || limit > braveMaxCount {
		limit = braveMaxCount
	}
	query := url.Values{}
	query.Set("q", industry+" industry news")
	query.Set("count", strconv.Itoa(limit))
	query.Set("freshness", "pm")

	var resp braveResponse
	headers := map[string]string{"X-Subscription-Token": b.apiKey}
	if err := b.client.getJSON(ctx, b.endpoint, query, headers, &resp); err != nil {
		b.logger.Warn("news search failed", "industry", industry, "error", err)
		return nil
	}

	now := b.now().UTC()
	items := make([]domain.RawNewsItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		published := r.PageAge
		if published == "" {
			published = r.Age
		}
		items = append(items, domain.RawNewsItem{
			Title:          StripHTML(r.Title),
			Summary:        StripHTML(r.Description),
			Source:         r.MetaURL.Hostname,
			URL:            r.URL,
			PublishedAt:    normalize.ParseDate(published, now),
			RelevanceScore: defaultRelevance,
		})
	}

	cleaned := normalize.CleanNews(items)
	b.logger.Debug("news search done", "industry", industry, "results", len(resp.Results), "kept", len(cleaned))
	return cleaned
}
