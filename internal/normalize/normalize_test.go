package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RivalScanner/internal/domain"
)

func TestRecordsMalformedInputNeverPanics(t *testing.T) {
	t.Parallel()

	n := New(nil)
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 0},
		{"prose only", "I could not find any competitors for that industry.", 0},
		{"broken json", `[{"name": "Acme", "description": }]`, 0},
		{"unterminated array", `[{"name": "Acme"`, 0},
		{"scalar", `42`, 0},
		{"fenced", "```json\n[{\"name\":\"Acme\",\"description\":\"Widgets\"}]\n```", 1},
		{"fenced without closing", "```json\n[{\"name\":\"Acme\",\"description\":\"Widgets\"}]", 1},
		{"trailing commas", `[{"name":"Acme","description":"Widgets",},]`, 1},
		{"prose around array", `Here you go: [{"name":"A","description":"B"}] Hope it helps!`, 1},
		{"object wrapper", `{"competitors":[{"name":"A","description":"B"},{"name":"C","description":"D"}]}`, 2},
		{"single object", `{"name":"A","description":"B"}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				got := n.Records(tt.raw)
				assert.Len(t, got, tt.want)
			})
		})
	}
}

func TestRecordsEscapesRawNewlinesInStrings(t *testing.T) {
	t.Parallel()

	raw := "[{\"name\":\"Acme\",\"description\":\"line one\nline two\"}]"
	got := New(nil).Records(raw)
	require.Len(t, got, 1)
	assert.Equal(t, "line one\nline two", got[0]["description"])
}

func TestRecordsKeepsCommasInsideStrings(t *testing.T) {
	t.Parallel()

	raw := `[{"name":"Acme","description":"Sells widgets, ] and gadgets, }",},]`
	got := New(nil).Records(raw)
	require.Len(t, got, 1)
	assert.Equal(t, "Sells widgets, ] and gadgets, }", got[0]["description"])
}

func TestCompetitorsDedupCaseInsensitive(t *testing.T) {
	t.Parallel()

	raw := `[
		{"name":"Acme","description":"first"},
		{"name":"ACME","description":"second"},
		{"name":"acme ","description":"third"},
		{"company":"Globex","summary":"via aliases","website":"https://www.globex.com/about","market_position":"challenger"}
	]`
	got := New(nil).Competitors(raw)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme", got[0].Name)
	assert.Equal(t, "first", got[0].Description)
	assert.Equal(t, "Globex", got[1].Name)
	assert.Equal(t, "globex.com", got[1].Domain)
	assert.Equal(t, "challenger", got[1].Position)
}

func TestCompetitorsRequireNameAndDescription(t *testing.T) {
	t.Parallel()

	raw := `[{"name":"NoDesc"},{"description":"no name"},{"name":"Ok","description":"fine"}]`
	got := New(nil).Competitors(raw)
	require.Len(t, got, 1)
	assert.Equal(t, "Ok", got[0].Name)
}

func TestNewsDedupCaseSensitiveAndDefaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	n := New(nil).WithClock(func() time.Time { return now })

	raw := `[
		{"title":"Acme raises $10M","summary":"Series A","date":"2026-03-01","tags":["funding","acme"]},
		{"title":"Acme raises $10M","summary":"duplicate"},
		{"title":"ACME RAISES $10M","description":"different casing is kept","published_at":"2 days ago","relevance":8},
		{"title":"Acme hires CFO","summary":"Percent scale","relevance":85},
		{"headline":"No summary"}
	]`
	got := n.News(raw)
	require.Len(t, got, 3)

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got[0].PublishedAt)
	assert.Equal(t, []string{"funding", "acme"}, got[0].Tags)
	assert.InDelta(t, 0.5, got[0].RelevanceScore, 1e-9)

	assert.Equal(t, "ACME RAISES $10M", got[1].Title)
	assert.Equal(t, now.AddDate(0, 0, -2), got[1].PublishedAt)
	assert.InDelta(t, 0.8, got[1].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.85, got[2].RelevanceScore, 1e-9)
}

func TestTruncateLongFields(t *testing.T) {
	t.Parallel()

	long := make([]rune, 500)
	for i := range long {
		long[i] = 'x'
	}
	raw := `[{"name":"Acme","description":"` + string(long) + `"}]`
	got := New(nil).Competitors(raw)
	require.Len(t, got, 1)
	assert.Len(t, []rune(got[0].Description), MaxTextLen)
	assert.Equal(t, "...", got[0].Description[len(got[0].Description)-3:])
}

func TestScoresParsing(t *testing.T) {
	t.Parallel()

	raw := `[
		{"name":"Acme","threat_score":"8.5/10","activity_level":"HIGH","employee_count":"10,000+"},
		{"name":"Globex","threat":14,"employees":"2k"},
		{"name":"Initech"}
	]`
	got := New(nil).Scores(raw)
	require.Len(t, got, 3)

	assert.InDelta(t, 8.5, got[0].ThreatScore, 1e-9)
	assert.Equal(t, domain.ActivityHigh, got[0].ActivityLevel)
	require.NotNil(t, got[0].EmployeeCount)
	assert.Equal(t, 10000, *got[0].EmployeeCount)

	assert.InDelta(t, 10, got[1].ThreatScore, 1e-9)
	require.NotNil(t, got[1].EmployeeCount)
	assert.Equal(t, 2000, *got[1].EmployeeCount)

	assert.InDelta(t, domain.DefaultThreatScore, got[2].ThreatScore, 1e-9)
	assert.Equal(t, domain.ActivityMedium, got[2].ActivityLevel)
	assert.Nil(t, got[2].EmployeeCount)
}

func TestAlertsAndInsightsDefaults(t *testing.T) {
	t.Parallel()

	n := New(nil)

	alerts := n.Alerts(`[{"title":"Acme ships v2","description":"New product line","competitor":"Acme"},{"title":"x"}]`)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.PriorityInfo, alerts[0].Alert.Priority)
	assert.Equal(t, domain.CategoryOther, alerts[0].Alert.Category)
	assert.Equal(t, "Acme", alerts[0].Competitor)

	insights := n.Insights(`[{"type":"risk","title":"Price war","description":"Margins shrink","confidence":85,"actions":"Review pricing, Watch Acme"}]`)
	require.Len(t, insights, 1)
	assert.Equal(t, domain.InsightThreat, insights[0].Type)
	assert.InDelta(t, 0.85, insights[0].Confidence, 1e-9)
	assert.Equal(t, domain.ImpactMedium, insights[0].Impact)
	assert.Equal(t, []string{"Review pricing", "Watch Acme"}, insights[0].ActionItems)

	defaults := n.Insights(`[{"title":"t","description":"d"}]`)
	require.Len(t, defaults, 1)
	assert.InDelta(t, 0.7, defaults[0].Confidence, 1e-9)
	assert.Equal(t, domain.InsightTrend, defaults[0].Type)
	assert.Equal(t, []string{}, defaults[0].ActionItems)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-09T08:30:00Z", time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)},
		{"March 2, 2026", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"Mar 2, 2026", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"yesterday", now.AddDate(0, 0, -1)},
		{"3 hours ago", now.Add(-3 * time.Hour)},
		{"a week ago", now.AddDate(0, 0, -7)},
		{"two weeks ago", now.AddDate(0, 0, -14)},
		{"sometime soon", now},
		{"", now},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDate(tt.in, now), tt.in)
	}
}
