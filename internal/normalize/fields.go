package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numberExpr   = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	magnitudeExp = regexp.MustCompile(`(?i)^\s*[~≈>]?\s*(\d+(?:\.\d+)?)\s*([km])\b`)
	relativeExpr = regexp.MustCompile(`(?i)^(\d+|an?|one|two|three|four|five|six|seven)\s+(minute|hour|day|week|month)s?\s+ago$`)
)

// Field aliases observed across providers. Order is lookup priority.
var (
	aliasName        = []string{"name", "company", "company_name", "competitor"}
	aliasDomain      = []string{"domain", "website", "url", "homepage"}
	aliasDescription = []string{"description", "summary", "overview", "details"}
	aliasPosition    = []string{"position", "market_position", "marketPosition", "positioning"}
	aliasTitle       = []string{"title", "headline", "name"}
	aliasSummary     = []string{"summary", "description", "snippet", "content"}
	aliasSource      = []string{"source", "publisher", "outlet"}
	aliasURL         = []string{"url", "source_url", "sourceUrl", "link"}
	aliasDate        = []string{"date", "published_at", "publishedAt", "published", "pubDate"}
	aliasTags        = []string{"tags", "keywords", "topics"}
	aliasRelevance   = []string{"relevance_score", "relevance", "relevanceScore"}
	aliasThreat      = []string{"threat_score", "threat", "threatScore", "score"}
	aliasActivity    = []string{"activity_level", "activity", "activityLevel"}
	aliasEmployees   = []string{"employee_count", "employees", "employeeCount", "headcount"}
	aliasPriority    = []string{"priority", "severity", "urgency"}
	aliasCategory    = []string{"category", "kind", "topic"}
	aliasType        = []string{"type", "insight_type", "insightType"}
	aliasConfidence  = []string{"confidence", "confidence_score", "certainty"}
	aliasImpact      = []string{"impact", "impact_level"}
	aliasActions     = []string{"action_items", "actionItems", "actions", "recommendations"}
	aliasCompetitor  = []string{"competitor", "competitor_name", "company"}
)

func lookup(rec map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := rec[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func pickString(rec map[string]any, keys []string) string {
	for _, key := range keys {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(asString(v)); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func pickFloat(rec map[string]any, keys []string) (float64, bool) {
	v, ok := lookup(rec, keys)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		return parseNumber(t)
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	cleaned := strings.ReplaceAll(s, ",", "")
	if m := magnitudeExp.FindStringSubmatch(cleaned); m != nil {
		base, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			switch strings.ToLower(m[2]) {
			case "k":
				return base * 1_000, true
			case "m":
				return base * 1_000_000, true
			}
		}
	}
	match := numberExpr.FindString(cleaned)
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func pickCount(rec map[string]any, keys []string) *int {
	f, ok := pickFloat(rec, keys)
	if !ok || f < 0 {
		return nil
	}
	n := int(f)
	return &n
}

func pickStrings(rec map[string]any, keys []string) []string {
	v, ok := lookup(rec, keys)
	if !ok {
		return nil
	}

	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			raw = append(raw, asString(item))
		}
	case string:
		raw = strings.Split(t, ",")
	default:
		return nil
	}

	out := make([]string, 0, len(raw))
	seen := map[string]struct{}{}
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
}

var wordNumbers = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
}

// ParseDate resolves absolute and relative dates; unknown input maps to now.
func ParseDate(value string, now time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return now
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}

	lower := strings.ToLower(value)
	switch lower {
	case "today", "just now", "recently":
		return now
	case "yesterday":
		return now.AddDate(0, 0, -1)
	case "last week", "this week":
		return now.AddDate(0, 0, -7)
	case "last month", "this month":
		return now.AddDate(0, -1, 0)
	}

	if m := relativeExpr.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			n = wordNumbers[m[1]]
		}
		switch m[2] {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute)
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour)
		case "day":
			return now.AddDate(0, 0, -n)
		case "week":
			return now.AddDate(0, 0, -7*n)
		case "month":
			return now.AddDate(0, -n, 0)
		}
	}

	return now
}
