package discovery

import (
	"context"
	"log/slog"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/ports"
	"RivalScanner/internal/provider"
)

// NewsChain implements NewsDiscoverer via registered sources tried in order;
// the first source returning anything wins.
type NewsChain struct {
	registry *provider.Registry
	order    []string
	logger   *slog.Logger
}

var _ ports.NewsDiscoverer = (*NewsChain)(nil)

// NewNewsChain wires the source registry with the configured order.
func NewNewsChain(reg *provider.Registry, order []string, log *slog.Logger) *NewsChain {
	if log == nil {
		log = slog.Default()
	}
	return &NewsChain{
		registry: reg,
		order:    order,
		logger:   log.With("component", "news_chain"),
	}
}

// Name implements ports.NewsDiscoverer.
func (c *NewsChain) Name() string { return "chain" }

// DiscoverNews tries each source until one yields items.
func (c *NewsChain) DiscoverNews(ctx context.Context, industry string, limit int) []domain.RawNewsItem {
	if c.registry == nil {
		c.logger.Warn("news source registry is not configured")
		return nil
	}

	sources, missing := c.registry.Ordered(c.order)
	if len(missing) > 0 {
		c.logger.Debug("news sources not registered", "sources", missing)
	}

	for _, source := range sources {
		if ctx.Err() != nil {
			return nil
		}
		items := source.DiscoverNews(ctx, industry, limit)
		c.logger.Debug("news source produced items", "source", source.Name(), "count", len(items))
		if len(items) > 0 {
			return items
		}
	}

	c.logger.Info("no news source produced items", "industry", industry, "tried", len(sources))
	return nil
}
