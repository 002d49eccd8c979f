package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RivalScanner/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestNextRun(t *testing.T) {
	t.Parallel()

	// Wednesday
	now := time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		sched domain.ScanSchedule
		want  time.Time
	}{
		{
			name:  "daily later today",
			sched: domain.ScanSchedule{Frequency: domain.FrequencyDaily, Hour: 14, Minute: 0},
			want:  time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC),
		},
		{
			name:  "daily already passed rolls to tomorrow",
			sched: domain.ScanSchedule{Frequency: domain.FrequencyDaily, Hour: 9, Minute: 15},
			want:  time.Date(2026, 3, 12, 9, 15, 0, 0, time.UTC),
		},
		{
			name:  "weekly friday",
			sched: domain.ScanSchedule{Frequency: domain.FrequencyWeekly, DayOfWeek: intPtr(5), Hour: 8},
			want:  time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "weekly defaults to monday",
			sched: domain.ScanSchedule{Frequency: domain.FrequencyWeekly, Hour: 8},
			want:  time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "monthly first",
			sched: domain.ScanSchedule{Frequency: domain.FrequencyMonthly, Hour: 6},
			want:  time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC),
		},
		{
			name:  "timezone applied",
			sched: domain.ScanSchedule{Frequency: domain.FrequencyDaily, Hour: 9, Timezone: "America/New_York"},
			want:  time.Date(2026, 3, 11, 13, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.sched, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(now))
		})
	}
}

func TestNextRunRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NextRun(domain.ScanSchedule{Frequency: "hourly"}, time.Now())
	assert.Error(t, err)

	_, err = NextRun(domain.ScanSchedule{Frequency: domain.FrequencyDaily, Timezone: "Mars/Olympus"}, time.Now())
	assert.Error(t, err)
}
