package discovery

import (
	"context"
	"errors"
	"testing"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/logging"
	"RivalScanner/internal/provider"
)

type fakeChat struct {
	reply string
	err   error
	calls int
}

func (f *fakeChat) Analyze(context.Context, string, int, float64) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeSource struct {
	name  string
	items []domain.RawNewsItem
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) DiscoverNews(context.Context, string, int) []domain.RawNewsItem {
	f.calls++
	return f.items
}

func TestPerplexityCompetitorsLimitAndParse(t *testing.T) {
	chat := &fakeChat{reply: "```json\n[" +
		`{"name":"Acme","description":"Widgets","market_position":"leader"},` +
		`{"name":"Globex","description":"Gadgets"},` +
		`{"name":"Initech","description":"Software"}` +
		"]\n```"}
	p := NewPerplexity(chat, nil, logging.Discard())

	got := p.DiscoverCompetitors(context.Background(), "Video Games", 2)
	if len(got) != 2 || got[0].Name != "Acme" || got[0].Position != "leader" {
		t.Fatalf("unexpected competitors %+v", got)
	}
}

func TestPerplexityFailureYieldsEmpty(t *testing.T) {
	p := NewPerplexity(&fakeChat{err: errors.New("timeout")}, nil, logging.Discard())
	if got := p.DiscoverCompetitors(context.Background(), "Fintech", 5); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
	if got := p.DiscoverNews(context.Background(), "Fintech", 5); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestPerplexityNews(t *testing.T) {
	chat := &fakeChat{reply: `[{"title":"Acme raises","summary":"Series B","source":"Wire","published_at":"2026-03-01"}]`}
	p := NewPerplexity(chat, nil, logging.Discard())
	got := p.DiscoverNews(context.Background(), "Fintech", 5)
	if len(got) != 1 || got[0].Source != "Wire" {
		t.Fatalf("unexpected news %+v", got)
	}
}

func TestNewsChainFirstNonEmptyWins(t *testing.T) {
	empty := &fakeSource{name: "perplexity"}
	brave := &fakeSource{name: "brave", items: []domain.RawNewsItem{{Title: "a", Summary: "b"}}}
	newsapi := &fakeSource{name: "newsapi", items: []domain.RawNewsItem{{Title: "c", Summary: "d"}}}

	reg := provider.NewRegistry()
	reg.Register(empty)
	reg.Register(brave)
	reg.Register(newsapi)

	chain := NewNewsChain(reg, []string{"perplexity", "brave", "newsapi"}, logging.Discard())
	got := chain.DiscoverNews(context.Background(), "Fintech", 5)
	if len(got) != 1 || got[0].Title != "a" {
		t.Fatalf("unexpected items %+v", got)
	}
	if empty.calls != 1 || brave.calls != 1 || newsapi.calls != 0 {
		t.Fatalf("unexpected call counts %d/%d/%d", empty.calls, brave.calls, newsapi.calls)
	}
}

func TestNewsChainAllEmpty(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&fakeSource{name: "perplexity"})

	chain := NewNewsChain(reg, []string{"perplexity", "brave"}, logging.Discard())
	if got := chain.DiscoverNews(context.Background(), "Fintech", 5); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}
