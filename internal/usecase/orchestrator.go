package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/normalize"
	"RivalScanner/internal/ports"
)

var (
	// ErrRefreshInProgress is returned when another refresh holds the scan's lease.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrScanNotRefreshable is returned when the scan is not completed.
	ErrScanNotRefreshable = errors.New("scan is not refreshable")
	// ErrInvalidRequest reports unusable scan input.
	ErrInvalidRequest = errors.New("invalid scan request")
)

// Progress checkpoints written to the scan row.
const (
	progressCollect  = 10
	progressAnalyze  = 40
	progressPersist  = 70
	progressComplete = 100
)

// OrchestratorDeps wires all driven adapters into the scan pipeline.
type OrchestratorDeps struct {
	Competitors ports.CompetitorDiscoverer
	News        ports.NewsDiscoverer
	Analyzer    ports.TextAnalyzer
	Store       ports.Store
	Locker      ports.Locker
	Notifier    ports.Notifier
	Normalizer  *normalize.Normalizer
	Logger      *slog.Logger
	Clock       func() time.Time
}

// OrchestratorConfig carries the tunables of the pipeline.
type OrchestratorConfig struct {
	CompetitorLimit     int
	NewsLimit           int
	MaxTokens           int
	Temperature         float64
	DiscoveryDelay      time.Duration
	AnalysisDelay       time.Duration
	LeaseTTL            time.Duration
	DefaultUserID       string
	FallbackCompetitors map[string][]string
}

// Orchestrator implements the full scan and incremental refresh workflows.
type Orchestrator struct {
	competitors ports.CompetitorDiscoverer
	news        ports.NewsDiscoverer
	analyzer    ports.TextAnalyzer
	store       ports.Store
	locker      ports.Locker
	notifier    ports.Notifier
	normalizer  *normalize.Normalizer
	writer      *Writer
	logger      *slog.Logger
	now         func() time.Time
	cfg         OrchestratorConfig

	discoveryPace *rate.Limiter
	analysisPace  *rate.Limiter
}

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = normalize.New(logger)
	}
	if cfg.CompetitorLimit <= 0 {
		cfg.CompetitorLimit = 15
	}
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = 20
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	if cfg.DefaultUserID == "" {
		cfg.DefaultUserID = "system"
	}

	logger = logger.With("component", "orchestrator")
	return &Orchestrator{
		competitors:   deps.Competitors,
		news:          deps.News,
		analyzer:      deps.Analyzer,
		store:         deps.Store,
		locker:        deps.Locker,
		notifier:      deps.Notifier,
		normalizer:    normalizer,
		writer:        NewWriter(deps.Store, logger),
		logger:        logger,
		now:           now,
		cfg:           cfg,
		discoveryPace: newPacer(cfg.DiscoveryDelay),
		analysisPace:  newPacer(cfg.AnalysisDelay),
	}
}

// ScanRequest is the user input of a full scan.
type ScanRequest struct {
	Industry    string `json:"industry" validate:"required,max=100"`
	CompanyName string `json:"company_name,omitempty" validate:"max=200"`
	CompanyURL  string `json:"company_url,omitempty" validate:"omitempty,url"`
	UserID      string `json:"-"`
}

// Run creates a scan and executes every stage synchronously.
func (o *Orchestrator) Run(ctx context.Context, req ScanRequest) (domain.Scan, error) {
	scan, err := o.Begin(ctx, req)
	if err != nil {
		return domain.Scan{}, err
	}
	return o.Execute(ctx, scan)
}

// Begin creates the pending scan row. A scan that cannot be created is the only
// hard failure of the pipeline.
func (o *Orchestrator) Begin(ctx context.Context, req ScanRequest) (domain.Scan, error) {
	industry := strings.TrimSpace(req.Industry)
	if industry == "" {
		return domain.Scan{}, fmt.Errorf("%w: industry is required", ErrInvalidRequest)
	}
	userID := req.UserID
	if userID == "" {
		userID = o.cfg.DefaultUserID
	}

	scan, err := o.store.CreateScan(ctx, domain.Scan{
		UserID:      userID,
		Industry:    industry,
		CompanyName: strings.TrimSpace(req.CompanyName),
		CompanyURL:  strings.TrimSpace(req.CompanyURL),
		Status:      domain.ScanPending,
		Stage:       domain.StageQueued,
	})
	if err != nil {
		return domain.Scan{}, fmt.Errorf("create scan: %w", err)
	}
	o.logger.Info("scan created", "scan_id", scan.ID, "industry", industry)
	return scan, nil
}

// Execute runs collect, analyze, persist and finalize for a pending scan. Stage
// failures degrade to empty or fallback data; the scan still completes.
func (o *Orchestrator) Execute(ctx context.Context, scan domain.Scan) (domain.Scan, error) {
	started := o.now()
	logger := o.logger.With("scan_id", scan.ID, "industry", scan.Industry)

	if err := domain.ValidateTransition(scan.Status, domain.ScanRunning); err != nil {
		return scan, err
	}
	o.progress(ctx, scan.ID, domain.ScanRunning, domain.StageCollect, progressCollect)

	var (
		rawCompetitors []domain.RawCompetitor
		rawNews        []domain.RawNewsItem
	)
	o.stage(logger, domain.StageCollect, func() {
		rawCompetitors, rawNews = o.collect(ctx, scan.Industry)
	})
	logger.Info("collect finished", "competitors", len(rawCompetitors), "news", len(rawNews))

	o.progress(ctx, scan.ID, domain.ScanRunning, domain.StageAnalyze, progressAnalyze)
	var analysis analysisResult
	o.stage(logger, domain.StageAnalyze, func() {
		analysis = o.analyzeFull(ctx, scan.Industry, rawCompetitors, rawNews)
	})
	for _, err := range analysis.errs {
		logger.Warn("analysis degraded", "error", err)
	}

	o.progress(ctx, scan.ID, domain.ScanRunning, domain.StagePersist, progressPersist)
	var written WriteResult
	o.stage(logger, domain.StagePersist, func() {
		written = o.writer.Write(ctx, scan.ID, ResultSet{
			Competitors: buildCompetitors(scan.ID, rawCompetitors, analysis.scores),
			Alerts:      analysis.alerts,
			Insights:    analysis.insights,
			News:        buildNews(scan.ID, rawNews),
		}, nil)
	})

	completedAt := o.now()
	duration := completedAt.Sub(started).Seconds()
	if duration < 0 {
		duration = 0
	}
	if err := o.store.CompleteScan(ctx, scan.ID, written.Counts, duration, completedAt); err != nil {
		logger.Error("complete scan failed", "error", err)
		// a scan whose completion was not recorded must not stay running
		if failErr := o.store.FailScan(ctx, scan.ID, completedAt); failErr != nil {
			logger.Error("mark scan failed", "error", failErr)
		} else {
			scan.Status = domain.ScanFailed
		}
		return scan, fmt.Errorf("complete scan %s: %w", scan.ID, err)
	}
	logger.Info("scan completed",
		"competitors", written.Counts.Competitors,
		"alerts", written.Counts.Alerts,
		"insights", written.Counts.Insights,
		"news", written.Counts.News,
		"duration_seconds", duration,
		"write_errors", len(written.Errs),
	)

	o.publishDigest(ctx, scan.Industry, written.Alerts)

	final, err := o.store.GetScan(ctx, scan.ID)
	if err != nil {
		logger.Warn("reload scan failed", "error", err)
		scan.Status = domain.ScanCompleted
		scan.Stage = domain.StageComplete
		scan.Progress = progressComplete
		scan.CompetitorsCount = written.Counts.Competitors
		scan.AlertsCount = written.Counts.Alerts
		scan.InsightsCount = written.Counts.Insights
		scan.NewsCount = written.Counts.News
		scan.DurationSeconds = duration
		scan.CompletedAt = &completedAt
		return scan, nil
	}
	return final, nil
}

// collect runs competitor and news discovery concurrently; both settle before returning.
func (o *Orchestrator) collect(ctx context.Context, industry string) ([]domain.RawCompetitor, []domain.RawNewsItem) {
	var (
		competitors []domain.RawCompetitor
		news        []domain.RawNewsItem
		g           errgroup.Group
	)

	g.Go(func() error {
		defer recoverTask(o.logger, "discover competitors", nil)
		if o.competitors == nil || o.discoveryPace.Wait(ctx) != nil {
			return nil
		}
		competitors = normalize.CleanCompetitors(o.competitors.DiscoverCompetitors(ctx, industry, o.cfg.CompetitorLimit))
		return nil
	})
	g.Go(func() error {
		defer recoverTask(o.logger, "discover news", nil)
		news = o.discoverNews(ctx, industry)
		return nil
	})
	_ = g.Wait()

	if len(competitors) > o.cfg.CompetitorLimit {
		competitors = competitors[:o.cfg.CompetitorLimit]
	}
	if len(competitors) == 0 {
		competitors = o.fallbackCompetitors(industry)
		if len(competitors) > 0 {
			o.logger.Info("using fallback competitors", "industry", industry, "count", len(competitors))
		}
	}
	return competitors, news
}

func (o *Orchestrator) discoverNews(ctx context.Context, industry string) []domain.RawNewsItem {
	if o.news == nil || o.discoveryPace.Wait(ctx) != nil {
		return nil
	}
	news := normalize.CleanNews(o.news.DiscoverNews(ctx, industry, o.cfg.NewsLimit))
	if len(news) > o.cfg.NewsLimit {
		news = news[:o.cfg.NewsLimit]
	}
	return news
}

func (o *Orchestrator) fallbackCompetitors(industry string) []domain.RawCompetitor {
	names := o.cfg.FallbackCompetitors[strings.ToLower(strings.TrimSpace(industry))]
	out := make([]domain.RawCompetitor, 0, len(names))
	for _, name := range names {
		out = append(out, domain.RawCompetitor{
			Name:        name,
			Description: fmt.Sprintf("Established company in the %s industry.", industry),
		})
	}
	return normalize.CleanCompetitors(out)
}

func (o *Orchestrator) progress(ctx context.Context, scanID string, status domain.ScanStatus, stage string, pct int) {
	if err := o.store.UpdateScanProgress(ctx, scanID, status, stage, pct); err != nil {
		o.logger.Warn("progress update failed", "scan_id", scanID, "stage", stage, "error", err)
	}
}

// stage runs fn and contains a panic so later stages still execute.
func (o *Orchestrator) stage(logger *slog.Logger, name string, fn func()) {
	defer recoverTask(logger, name, nil)
	fn()
}

func newPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func buildCompetitors(scanID string, raw []domain.RawCompetitor, scores []domain.CompetitorScore) []domain.Competitor {
	byName := make(map[string]domain.CompetitorScore, len(scores))
	for _, s := range scores {
		byName[strings.ToLower(s.Name)] = s
	}

	out := make([]domain.Competitor, 0, len(raw))
	for _, r := range raw {
		c := domain.Competitor{
			ScanID:         scanID,
			Name:           r.Name,
			Domain:         r.Domain,
			Description:    r.Description,
			MarketPosition: r.Position,
			ThreatScore:    domain.DefaultThreatScore,
			ActivityLevel:  domain.ActivityMedium,
		}
		if s, ok := byName[strings.ToLower(r.Name)]; ok {
			c.ThreatScore = s.ThreatScore
			c.ActivityLevel = s.ActivityLevel
			c.EmployeeCount = s.EmployeeCount
			if c.Description == "" {
				c.Description = s.Description
			}
		}
		out = append(out, c)
	}
	return out
}

func buildNews(scanID string, raw []domain.RawNewsItem) []domain.NewsItem {
	out := make([]domain.NewsItem, 0, len(raw))
	for _, r := range raw {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, domain.NewsItem{
			ScanID:         scanID,
			Title:          r.Title,
			Summary:        r.Summary,
			Source:         r.Source,
			SourceURL:      r.URL,
			PublishedAt:    r.PublishedAt,
			RelevanceScore: r.RelevanceScore,
			Tags:           tags,
		})
	}
	return out
}
