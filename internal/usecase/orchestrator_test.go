package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/infrastructure/lease"
	"RivalScanner/internal/infrastructure/storage/sqlite"
	"RivalScanner/internal/logging"
	"RivalScanner/internal/normalize"
	"RivalScanner/internal/ports"
)

type stubCompetitors struct {
	fn func(industry string, limit int) []domain.RawCompetitor
}

func (s stubCompetitors) DiscoverCompetitors(_ context.Context, industry string, limit int) []domain.RawCompetitor {
	if s.fn == nil {
		return nil
	}
	return s.fn(industry, limit)
}

type stubNews struct {
	fn func(industry string, limit int) []domain.RawNewsItem
}

func (stubNews) Name() string { return "stub" }

func (s stubNews) DiscoverNews(_ context.Context, industry string, limit int) []domain.RawNewsItem {
	if s.fn == nil {
		return nil
	}
	return s.fn(industry, limit)
}

// routedAnalyzer answers by the leading phrase of the prompt.
type routedAnalyzer struct {
	mu      sync.Mutex
	routes  map[string]string
	fail    error
	prompts []string
}

func (a *routedAnalyzer) Analyze(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = append(a.prompts, prompt)
	if a.fail != nil {
		return "", a.fail
	}
	for prefix, reply := range a.routes {
		if strings.HasPrefix(prompt, prefix) {
			return reply, nil
		}
	}
	return "[]", nil
}

func (a *routedAnalyzer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.prompts)
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests = append(n.digests, digest)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.digests...)
}

type harness struct {
	store    *sqlite.Store
	backend  ports.Store // wraps store when set
	locker   *lease.MemoryLocker
	analyzer *routedAnalyzer
	notifier *recordingNotifier
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:    store,
		locker:   lease.NewMemoryLocker(),
		analyzer: &routedAnalyzer{routes: map[string]string{}},
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	store.WithClock(func() time.Time { return h.now })
	return h
}

func (h *harness) orchestrator(competitors stubCompetitors, news stubNews) *Orchestrator {
	return h.orchestratorWith(h.analyzer, competitors, news)
}

func (h *harness) orchestratorWith(analyzer ports.TextAnalyzer, competitors stubCompetitors, news stubNews) *Orchestrator {
	logger := logging.Discard()
	var store ports.Store = h.store
	if h.backend != nil {
		store = h.backend
	}
	return NewOrchestrator(OrchestratorDeps{
		Competitors: competitors,
		News:        news,
		Analyzer:    analyzer,
		Store:       store,
		Locker:      h.locker,
		Notifier:    h.notifier,
		Normalizer:  normalize.New(logger),
		Logger:      logger,
		Clock:       func() time.Time { return h.now },
	}, OrchestratorConfig{})
}

func TestRunWithEmptyProvidersCompletesWithZeroCounts(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(stubCompetitors{}, stubNews{})

	scan, err := o.Run(context.Background(), ScanRequest{Industry: "  Quantum Widgets "})
	require.NoError(t, err)

	assert.Equal(t, domain.ScanCompleted, scan.Status)
	assert.Equal(t, "Quantum Widgets", scan.Industry)
	assert.Equal(t, "system", scan.UserID)
	assert.Equal(t, domain.ScanCounts{}, scan.Counts())
	assert.Equal(t, 100, scan.Progress)
	assert.Zero(t, h.analyzer.calls(), "analysis is skipped without inputs")
	assert.Empty(t, h.notifier.all())
}

func TestRunRejectsBlankIndustry(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(stubCompetitors{}, stubNews{})

	_, err := o.Run(context.Background(), ScanRequest{Industry: "   "})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRunPersistsVideoGamesResults(t *testing.T) {
	h := newHarness(t)
	h.analyzer.routes["Score the following competitors"] = `[{"name":"epic games","threat_score":8.5,"activity_level":"high","employee_count":4000}]`
	h.analyzer.routes["Generate strategic insights"] = "```json\n" + `[{"type":"threat","title":"Store wars","description":"Epic keeps pressure on storefront fees.","confidence":0.8,"impact":"high","action_items":["Review fees"]}]` + "\n```"
	h.analyzer.routes["Generate competitive alerts"] = `[{"title":"Epic Games announces X","description":"A new launcher.","priority":"critical","category":"product"}]`

	o := h.orchestrator(
		stubCompetitors{fn: func(industry string, _ int) []domain.RawCompetitor {
			assert.Equal(t, "Video Games", industry)
			return []domain.RawCompetitor{{Name: "Epic Games", Description: "Engine and store maker.", Position: "leader"}}
		}},
		stubNews{fn: func(string, int) []domain.RawNewsItem {
			return []domain.RawNewsItem{{Title: "Epic announces X", Summary: "Details on X.", Source: "wire", PublishedAt: h.now.Add(-time.Hour), RelevanceScore: 0.9}}
		}},
	)

	scan, err := o.Run(context.Background(), ScanRequest{Industry: "Video Games", UserID: "u-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.ScanCompleted, scan.Status)
	assert.Equal(t, domain.ScanCounts{Competitors: 1, Alerts: 1, Insights: 1, News: 1}, scan.Counts())
	assert.GreaterOrEqual(t, scan.DurationSeconds, 0.0)
	assert.Equal(t, "u-1", scan.UserID)

	competitors, err := h.store.ListCompetitors(context.Background(), scan.ID)
	require.NoError(t, err)
	require.Len(t, competitors, 1)
	assert.InDelta(t, 8.5, competitors[0].ThreatScore, 1e-9)
	assert.Equal(t, domain.ActivityHigh, competitors[0].ActivityLevel)

	digests := h.notifier.all()
	require.Len(t, digests, 1)
	assert.Contains(t, digests[0], "Epic Games announces X")
}

func TestRunDegradesWhenAnalysisFails(t *testing.T) {
	h := newHarness(t)
	h.analyzer.fail = errors.New("upstream 529")

	o := h.orchestrator(
		stubCompetitors{fn: func(string, int) []domain.RawCompetitor {
			return []domain.RawCompetitor{{Name: "Acme", Description: "Widgets."}, {Name: "Globex", Description: "More widgets."}}
		}},
		stubNews{fn: func(string, int) []domain.RawNewsItem {
			return []domain.RawNewsItem{{Title: "Acme raises Series B", Summary: "Funding round.", PublishedAt: h.now}}
		}},
	)

	scan, err := o.Run(context.Background(), ScanRequest{Industry: "Widgets"})
	require.NoError(t, err)

	assert.Equal(t, domain.ScanCompleted, scan.Status)
	assert.Equal(t, domain.ScanCounts{Competitors: 2, Alerts: 1, Insights: 1, News: 1}, scan.Counts())

	competitors, err := h.store.ListCompetitors(context.Background(), scan.ID)
	require.NoError(t, err)
	for _, c := range competitors {
		assert.Equal(t, domain.DefaultThreatScore, c.ThreatScore)
		assert.Equal(t, domain.ActivityMedium, c.ActivityLevel)
	}
}

func TestRunUsesFallbackCompetitors(t *testing.T) {
	h := newHarness(t)
	logger := logging.Discard()
	o := NewOrchestrator(OrchestratorDeps{
		Competitors: stubCompetitors{},
		News:        stubNews{},
		Store:       h.store,
		Logger:      logger,
		Clock:       func() time.Time { return h.now },
	}, OrchestratorConfig{FallbackCompetitors: map[string][]string{"fintech": {"Stripe", "Adyen"}}})

	scan, err := o.Run(context.Background(), ScanRequest{Industry: "FinTech"})
	require.NoError(t, err)
	assert.Equal(t, 2, scan.CompetitorsCount)
}

func TestLinkAlertsPrefersLongestNameAndAttribution(t *testing.T) {
	competitors := []domain.Competitor{
		{ID: "c-epic", Name: "Epic"},
		{ID: "c-epic-games", Name: "Epic Games"},
		{ID: "c-valve", Name: "Valve"},
	}
	drafts := []normalize.AlertDraft{
		{Alert: domain.Alert{Title: "Epic Games cuts fees", Description: "Store change."}},
		{Alert: domain.Alert{Title: "Handheld launch", Description: "New device."}, Competitor: "valve"},
		{Alert: domain.Alert{Title: "Market shift", Description: "Nobody named."}, Competitor: "Nintendo"},
	}

	alerts := linkAlerts("scan-1", drafts, competitors)
	require.Len(t, alerts, 3)
	require.NotNil(t, alerts[0].CompetitorID)
	assert.Equal(t, "c-epic-games", *alerts[0].CompetitorID)
	require.NotNil(t, alerts[1].CompetitorID)
	assert.Equal(t, "c-valve", *alerts[1].CompetitorID)
	assert.Nil(t, alerts[2].CompetitorID)
	for _, a := range alerts {
		assert.Equal(t, "scan-1", a.ScanID)
	}
}

func TestBuildDigestOnlyCritical(t *testing.T) {
	assert.Empty(t, buildDigest("Games", []domain.Alert{{Title: "calm", Priority: domain.PriorityInfo}}))

	digest := buildDigest("Video_Games", []domain.Alert{
		{Title: "Big *news*", Description: "d", Priority: domain.PriorityCritical},
		{Title: "minor", Priority: domain.PriorityAttention},
	})
	assert.Contains(t, digest, `Video\_Games: 1 critical alert(s)`)
	assert.Contains(t, digest, `Big \*news\*`)
	assert.NotContains(t, digest, "minor")
}

func TestFallbackAlertDraftsClassifiesKeywords(t *testing.T) {
	drafts := fallbackAlertDrafts([]domain.RawNewsItem{
		{Title: "Globex acquisition closes", Summary: "Deal done."},
		{Title: "Acme raises money", Summary: "Series C."},
		{Title: "Quiet quarter", Summary: "Nothing notable."},
	})
	require.Len(t, drafts, 3)
	assert.Equal(t, domain.PriorityCritical, drafts[0].Alert.Priority)
	assert.Equal(t, domain.CategoryFunding, drafts[1].Alert.Category)
	assert.Equal(t, domain.CategoryNews, drafts[2].Alert.Category)
	assert.Equal(t, domain.PriorityInfo, drafts[2].Alert.Priority)
}

type failingAlertsStore struct {
	*sqlite.Store
}

func (failingAlertsStore) InsertAlerts(context.Context, []domain.Alert) ([]domain.Alert, error) {
	return nil, errors.New("alerts table unavailable")
}

type failingCompleteStore struct {
	*sqlite.Store
}

func (failingCompleteStore) CompleteScan(context.Context, string, domain.ScanCounts, float64, time.Time) error {
	return errors.New("connection reset")
}

func acmeProviders(h *harness) (stubCompetitors, stubNews) {
	return stubCompetitors{fn: func(string, int) []domain.RawCompetitor {
			return []domain.RawCompetitor{{Name: "Acme", Description: "Widgets."}}
		}},
		stubNews{fn: func(string, int) []domain.RawNewsItem {
			return []domain.RawNewsItem{{Title: "Acme ships v2", Summary: "Release notes.", PublishedAt: h.now}}
		}}
}

func TestRunKeepsOtherEntitiesWhenAlertWriteFails(t *testing.T) {
	h := newHarness(t)
	h.analyzer.routes["Generate strategic insights"] = `[{"type":"trend","title":"Widgets grow","description":"Demand is up.","confidence":0.7,"impact":"medium"}]`
	h.analyzer.routes["Generate competitive alerts"] = `[{"title":"Acme ships v2","description":"New release.","priority":"critical","category":"product"}]`
	h.backend = failingAlertsStore{Store: h.store}

	competitors, news := acmeProviders(h)
	scan, err := h.orchestrator(competitors, news).Run(context.Background(), ScanRequest{Industry: "Widgets"})
	require.NoError(t, err)

	assert.Equal(t, domain.ScanCompleted, scan.Status)
	assert.Equal(t, domain.ScanCounts{Competitors: 1, Alerts: 0, Insights: 1, News: 1}, scan.Counts())
	assert.Empty(t, h.notifier.all(), "no stored alerts, no digest")

	titles, err := h.store.ListNewsTitles(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme ships v2"}, titles)
}

func TestRunMarksScanFailedWhenCompletionIsLost(t *testing.T) {
	h := newHarness(t)
	h.backend = failingCompleteStore{Store: h.store}

	competitors, news := acmeProviders(h)
	scan, err := h.orchestrator(competitors, news).Run(context.Background(), ScanRequest{Industry: "Widgets"})
	require.Error(t, err)
	assert.Equal(t, domain.ScanFailed, scan.Status)

	stored, err := h.store.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanFailed, stored.Status)
}

// gateAnalyzer blocks every call until release is closed.
type gateAnalyzer struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (a *gateAnalyzer) Analyze(ctx context.Context, _ string, _ int, _ float64) (string, error) {
	a.once.Do(func() { close(a.entered) })
	select {
	case <-a.release:
		return "[]", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestStagesWaitForPreviousStage(t *testing.T) {
	h := newHarness(t)
	analyzer := &gateAnalyzer{entered: make(chan struct{}), release: make(chan struct{})}
	newsGate := make(chan struct{})

	competitors, _ := acmeProviders(h)
	news := stubNews{fn: func(string, int) []domain.RawNewsItem {
		<-newsGate
		return []domain.RawNewsItem{{Title: "Acme ships v2", Summary: "Release notes.", PublishedAt: h.now}}
	}}
	o := h.orchestratorWith(analyzer, competitors, news)

	ctx := context.Background()
	scan, err := o.Begin(ctx, ScanRequest{Industry: "Widgets"})
	require.NoError(t, err)

	done := make(chan domain.Scan, 1)
	go func() {
		final, _ := o.Execute(ctx, scan)
		done <- final
	}()

	select {
	case <-analyzer.entered:
		t.Fatal("analysis started before news discovery settled")
	case <-time.After(50 * time.Millisecond):
	}

	close(newsGate)
	select {
	case <-analyzer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis never started")
	}

	listed, err := h.store.ListCompetitors(ctx, scan.ID)
	require.NoError(t, err)
	assert.Empty(t, listed, "nothing persisted while analysis is pending")
	titles, err := h.store.ListNewsTitles(ctx, scan.ID)
	require.NoError(t, err)
	assert.Empty(t, titles)

	close(analyzer.release)
	final := <-done
	assert.Equal(t, domain.ScanCompleted, final.Status)
	assert.Equal(t, 1, final.CompetitorsCount)
	assert.Equal(t, 1, final.NewsCount)
}
