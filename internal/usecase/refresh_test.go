package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/infrastructure/storage/sqlite"
)

// seedCompletedScan stores a completed scan with 10 competitors, one stored
// headline and counters 10/3/2/5.
func seedCompletedScan(t *testing.T, h *harness) domain.Scan {
	t.Helper()
	ctx := context.Background()

	scan, err := h.store.CreateScan(ctx, domain.Scan{UserID: "system", Industry: "Video Games", Status: domain.ScanPending})
	require.NoError(t, err)

	competitors := make([]domain.Competitor, 10)
	for i := range competitors {
		competitors[i] = domain.Competitor{
			ScanID:        scan.ID,
			Name:          fmt.Sprintf("Studio %02d", i),
			Description:   "Game studio.",
			ThreatScore:   5,
			ActivityLevel: domain.ActivityMedium,
		}
	}
	_, err = h.store.InsertCompetitors(ctx, competitors)
	require.NoError(t, err)
	_, err = h.store.InsertNews(ctx, []domain.NewsItem{{ScanID: scan.ID, Title: "Old headline", Summary: "Seen before.", PublishedAt: h.now, Tags: []string{}}})
	require.NoError(t, err)

	require.NoError(t, h.store.CompleteScan(ctx, scan.ID, domain.ScanCounts{Competitors: 10, Alerts: 3, Insights: 2, News: 5}, 4, h.now))
	scan, err = h.store.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	return scan
}

func TestRefreshAddsToCounters(t *testing.T) {
	h := newHarness(t)
	scan := seedCompletedScan(t, h)

	h.analyzer.routes["Generate strategic insights"] = `[{"type":"trend","title":"Live service fatigue","description":"Players churn faster.","confidence":0.6,"impact":"medium","action_items":[]}]`
	h.analyzer.routes["Generate competitive alerts"] = `[
		{"title":"Studio 03 layoffs","description":"Cuts announced.","priority":"attention","category":"hiring"},
		{"title":"Engine pricing change","description":"Royalty update.","priority":"info","category":"market","competitor":"Studio 07"}
	]`
	o := h.orchestrator(stubCompetitors{}, stubNews{fn: func(string, int) []domain.RawNewsItem {
		return []domain.RawNewsItem{
			{Title: "Old headline", Summary: "Seen before.", PublishedAt: h.now},
			{Title: "New headline", Summary: "Fresh story.", PublishedAt: h.now},
		}
	}})

	h.now = h.now.Add(time.Hour)
	log, err := o.Refresh(context.Background(), RefreshRequest{ScanID: scan.ID})
	require.NoError(t, err)

	assert.Equal(t, domain.RefreshSuccess, log.Status)
	assert.Equal(t, domain.TriggerManual, log.TriggeredBy)
	assert.Equal(t, 2, log.NewAlertsCount)
	assert.Equal(t, 1, log.NewInsightsCount)
	assert.Equal(t, 1, log.NewNewsCount)

	got, err := h.store.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCompleted, got.Status)
	assert.Equal(t, domain.ScanCounts{Competitors: 10, Alerts: 5, Insights: 3, News: 6}, got.Counts())
	assert.Equal(t, scan.RefreshCount+1, got.RefreshCount)
	require.NotNil(t, got.LastRefreshedAt)
	assert.True(t, got.LastRefreshedAt.Equal(h.now))

	logs, err := h.store.ListRefreshLogs(context.Background(), scan.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.RefreshSuccess, logs[0].Status)

	titles, err := h.store.ListNewsTitles(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Old headline", "New headline"}, titles)

	// the lease is free again
	l, err := h.locker.Acquire(context.Background(), refreshLeaseKey(scan.ID), time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Release(context.Background()))
}

func TestRefreshConflictsWithHeldLease(t *testing.T) {
	h := newHarness(t)
	scan := seedCompletedScan(t, h)
	o := h.orchestrator(stubCompetitors{}, stubNews{})

	held, err := h.locker.Acquire(context.Background(), refreshLeaseKey(scan.ID), time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	_, err = o.Refresh(context.Background(), RefreshRequest{ScanID: scan.ID})
	require.ErrorIs(t, err, ErrRefreshInProgress)

	got, err := h.store.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.Counts(), got.Counts())
	assert.Equal(t, scan.RefreshCount, got.RefreshCount)
}

func TestRefreshRejectsIncompleteScan(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(stubCompetitors{}, stubNews{})

	scan, err := o.Begin(context.Background(), ScanRequest{Industry: "Games"})
	require.NoError(t, err)

	_, err = o.Refresh(context.Background(), RefreshRequest{ScanID: scan.ID})
	require.ErrorIs(t, err, ErrScanNotRefreshable)

	l, err := h.locker.Acquire(context.Background(), refreshLeaseKey(scan.ID), time.Minute)
	require.NoError(t, err, "lease must be released after a rejected refresh")
	require.NoError(t, l.Release(context.Background()))
}

func TestRefreshUnknownScan(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(stubCompetitors{}, stubNews{})

	_, err := o.Refresh(context.Background(), RefreshRequest{ScanID: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcileStuckIsIdempotent(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(stubCompetitors{}, stubNews{})
	sweeper := NewSweeper(nil, o, SweeperConfig{StuckAfter: 15 * time.Minute})
	ctx := context.Background()

	stuck, err := o.Begin(ctx, ScanRequest{Industry: "Games"})
	require.NoError(t, err)
	require.NoError(t, h.store.UpdateScanProgress(ctx, stuck.ID, domain.ScanRunning, domain.StageAnalyze, 40))

	h.now = h.now.Add(20 * time.Minute)
	fresh, err := o.Begin(ctx, ScanRequest{Industry: "Games"})
	require.NoError(t, err)
	require.NoError(t, h.store.UpdateScanProgress(ctx, fresh.ID, domain.ScanRunning, domain.StageAnalyze, 40))

	reconciled, _, err := sweeper.ReconcileStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)

	got, err := h.store.GetScan(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCompleted, got.Status)
	got, err = h.store.GetScan(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanRunning, got.Status)

	reconciled, _, err = sweeper.ReconcileStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, reconciled)
}

func TestReconcileFailsStaleRefreshLogs(t *testing.T) {
	h := newHarness(t)
	scan := seedCompletedScan(t, h)
	o := h.orchestrator(stubCompetitors{}, stubNews{})
	sweeper := NewSweeper(nil, o, SweeperConfig{RefreshTimeout: 90 * time.Second})
	ctx := context.Background()

	_, err := h.store.CreateRefreshLog(ctx, domain.RefreshLog{
		ScanID: scan.ID, TriggeredBy: domain.TriggerManual, Status: domain.RefreshRunning, StartedAt: h.now,
	})
	require.NoError(t, err)

	h.now = h.now.Add(2 * time.Minute)
	_, timedOut, err := sweeper.ReconcileStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, timedOut)

	logs, err := h.store.ListRefreshLogs(ctx, scan.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.RefreshFailed, logs[0].Status)
	assert.Equal(t, staleRefreshMessage, logs[0].ErrorMessage)
}

func TestDispatchDueLaunchesScheduledRefresh(t *testing.T) {
	h := newHarness(t)
	scan := seedCompletedScan(t, h)
	o := h.orchestrator(stubCompetitors{}, stubNews{})
	sweeper := NewSweeper(nil, o, SweeperConfig{})
	ctx := context.Background()

	sched, err := h.store.UpsertSchedule(ctx, domain.ScanSchedule{
		ScanID: scan.ID, UserID: "system", Frequency: domain.FrequencyDaily, Hour: 9, Enabled: true,
	})
	require.NoError(t, err)
	require.NotNil(t, sched.NextRunAt)

	h.now = h.now.Add(48 * time.Hour)
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	sweeper.Wait()
	assert.Equal(t, 1, report.Dispatched)
	assert.Zero(t, report.DispatchFailed)

	logs, err := h.store.ListRefreshLogs(ctx, scan.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.TriggerScheduled, logs[0].TriggeredBy)
	assert.Equal(t, domain.RefreshSuccess, logs[0].Status)
	require.NotNil(t, logs[0].ScheduleID)
	assert.Equal(t, sched.ID, *logs[0].ScheduleID)

	got, err := h.store.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.RefreshCount+1, got.RefreshCount)

	due, err := h.store.ListDueSchedules(ctx, h.now)
	require.NoError(t, err)
	assert.Empty(t, due, "next run advanced past now")
}

func TestDispatchDueRecordsFailedStart(t *testing.T) {
	h := newHarness(t)
	scan := seedCompletedScan(t, h)
	o := h.orchestrator(stubCompetitors{}, stubNews{})
	sweeper := NewSweeper(nil, o, SweeperConfig{})
	ctx := context.Background()

	_, err := h.store.UpsertSchedule(ctx, domain.ScanSchedule{
		ScanID: scan.ID, Frequency: domain.FrequencyWeekly, Hour: 6, Enabled: true,
	})
	require.NoError(t, err)

	held, err := h.locker.Acquire(ctx, refreshLeaseKey(scan.ID), time.Hour)
	require.NoError(t, err)
	defer held.Release(ctx)

	h.now = h.now.Add(8 * 24 * time.Hour)
	dispatched, failed, err := sweeper.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	assert.Equal(t, 1, failed)

	logs, err := h.store.ListRefreshLogs(ctx, scan.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.RefreshFailed, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, ErrRefreshInProgress.Error())
}

// rendezvousStore holds ListDueSchedules until every sweeper has read the due rows.
type rendezvousStore struct {
	*sqlite.Store
	arrived sync.WaitGroup
}

func (s *rendezvousStore) ListDueSchedules(ctx context.Context, now time.Time) ([]domain.ScanSchedule, error) {
	due, err := s.Store.ListDueSchedules(ctx, now)
	s.arrived.Done()
	s.arrived.Wait()
	return due, err
}

func TestOverlappingSweepsDispatchScheduleOnce(t *testing.T) {
	h := newHarness(t)
	scan := seedCompletedScan(t, h)
	ctx := context.Background()

	_, err := h.store.UpsertSchedule(ctx, domain.ScanSchedule{
		ScanID: scan.ID, UserID: "system", Frequency: domain.FrequencyDaily, Hour: 9, Enabled: true,
	})
	require.NoError(t, err)

	shared := &rendezvousStore{Store: h.store}
	shared.arrived.Add(2)
	h.backend = shared
	sweepers := []*Sweeper{
		NewSweeper(nil, h.orchestrator(stubCompetitors{}, stubNews{}), SweeperConfig{}),
		NewSweeper(nil, h.orchestrator(stubCompetitors{}, stubNews{}), SweeperConfig{}),
	}
	h.now = h.now.Add(48 * time.Hour)

	type outcome struct {
		dispatched, failed int
		err                error
	}
	results := make([]outcome, len(sweepers))
	var wg sync.WaitGroup
	for i, sw := range sweepers {
		i, sw := i, sw
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, f, err := sw.DispatchDue(ctx)
			results[i] = outcome{dispatched: d, failed: f, err: err}
		}()
	}
	wg.Wait()
	for _, sw := range sweepers {
		sw.Wait()
	}

	total := 0
	for _, r := range results {
		require.NoError(t, r.err)
		assert.Zero(t, r.failed)
		total += r.dispatched
	}
	assert.Equal(t, 1, total)

	logs, err := h.store.ListRefreshLogs(ctx, scan.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1, "the losing sweep writes no audit row")
	assert.Equal(t, domain.RefreshSuccess, logs[0].Status)
}
