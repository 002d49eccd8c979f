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

// SourceNewsAPI is the registry name of the NewsAPI source.
const SourceNewsAPI = "newsapi"

const newsAPIMaxPageSize = 100

// NewsAPI queries the newsapi.org everything endpoint.
type NewsAPI struct {
	client   *Client
	endpoint string
	apiKey   string
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.NewsDiscoverer = (*NewsAPI)(nil)

// NewNewsAPI builds the adapter.
func NewNewsAPI(client *Client, endpoint, apiKey string, logger *slog.Logger) *NewsAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &NewsAPI{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   logger.With("component", "newsapi"),
		now:      time.Now,
	}
}

// Name implements ports.NewsDiscoverer.
func (n *NewsAPI) Name() string { return SourceNewsAPI }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// DiscoverNews searches the last month of articles. Failures are logged and yield nil.
func (n *NewsAPI) DiscoverNews(ctx context.Context, industry string, limit int) []domain.RawNewsItem {
	if limit <= 0 || limit > newsAPIMaxPageSize {
		limit = newsAPIMaxPageSize
	}
	now := n.now().UTC()

	query := url.Values{}
	query.Set("q", industry)
	query.Set("sortBy", "publishedAt")
	query.Set("language", "en")
	query.Set("from", now.AddDate(0, -1, 0).Format("2006-01-02"))
	query.Set("pageSize", strconv.Itoa(limit))

	var resp newsAPIResponse
	headers := map[string]string{"X-Api-Key": n.apiKey}
	if err := n.client.getJSON(ctx, n.endpoint, query, headers, &resp); err != nil {
		n.logger.Warn("news search failed", "industry", industry, "error", err)
		return nil
	}
	if resp.Status != "" && resp.Status != "ok" {
		n.logger.Warn("news search rejected", "industry", industry, "status", resp.Status, "message", resp.Message)
		return nil
	}

	items := make([]domain.RawNewsItem, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		items = append(items, domain.RawNewsItem{
			Title:          StripHTML(a.Title),
			Summary:        StripHTML(a.Description),
			Source:         a.Source.Name,
			URL:            a.URL,
			PublishedAt:    normalize.ParseDate(a.PublishedAt, now),
			RelevanceScore: defaultRelevance,
		})
	}

	cleaned := normalize.CleanNews(items)
	n.logger.Debug("news search done", "industry", industry, "results", len(resp.Articles), "kept", len(cleaned))
	return cleaned
}
