// Package schedule computes when a recurring scan refresh is due next.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"RivalScanner/internal/domain"
)

const defaultTimezone = "UTC"

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Expression renders a schedule as a five-field cron expression prefixed with
// its timezone. Weekly defaults to Monday, monthly to the 1st.
func Expression(s domain.ScanSchedule) (string, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
	}

	var fields string
	switch s.Frequency {
	case domain.FrequencyDaily:
		fields = fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
	case domain.FrequencyWeekly:
		dow := 1
		if s.DayOfWeek != nil {
			dow = *s.DayOfWeek
		}
		fields = fmt.Sprintf("%d %d * * %d", s.Minute, s.Hour, dow)
	case domain.FrequencyMonthly:
		dom := 1
		if s.DayOfMonth != nil {
			dom = *s.DayOfMonth
		}
		fields = fmt.Sprintf("%d %d %d * *", s.Minute, s.Hour, dom)
	default:
		return "", fmt.Errorf("unsupported frequency %q", s.Frequency)
	}

	return "CRON_TZ=" + tz + " " + fields, nil
}

// NextRun returns the first occurrence strictly after the given instant, in UTC.
func NextRun(s domain.ScanSchedule, after time.Time) (time.Time, error) {
	expr, err := Expression(s)
	if err != nil {
		return time.Time{}, err
	}

	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	next := sched.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule %q never fires", expr)
	}
	return next.UTC(), nil
}
