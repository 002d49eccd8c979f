// Package normalize turns free-form model output into validated domain records.
package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	// MaxTextLen caps descriptions and summaries.
	MaxTextLen = 300
	// MaxTitleLen caps names and titles.
	MaxTitleLen = 200

	rawLogLen = 300
)

var (
	fenceExpr     = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")
	openFenceExpr = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	arrayExpr     = regexp.MustCompile(`(?s)\[.*\]`)
)

// Normalizer extracts structured arrays from model text. It never fails loudly:
// unparseable input yields an empty result and a warning log line.
type Normalizer struct {
	logger *slog.Logger
	now    func() time.Time
}

// New builds a Normalizer; a nil logger discards parse diagnostics.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger, now: time.Now}
}

// WithClock overrides the reference time used for relative dates.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	clone := *n
	clone.now = now
	return &clone
}

// Records returns every JSON object of the first array found in raw.
func (n *Normalizer) Records(raw string) []map[string]any {
	candidate := extractCandidate(raw)
	if candidate == "" {
		n.warn("no json content in model output", nil, raw)
		return nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(repair(candidate)), &parsed); err != nil {
		n.warn("cannot parse model output", err, raw)
		return nil
	}

	switch v := parsed.(type) {
	case []any:
		records := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		return records
	case map[string]any:
		// wrapped arrays were already cut out by extractCandidate
		return []map[string]any{v}
	default:
		n.warn("model output is not an array", fmt.Errorf("got %T", parsed), raw)
		return nil
	}
}

func (n *Normalizer) warn(msg string, err error, raw string) {
	if n.logger == nil {
		return
	}
	args := []any{"raw", Truncate(raw, rawLogLen)}
	if err != nil {
		args = append(args, "error", err)
	}
	n.logger.Warn(msg, args...)
}

func extractCandidate(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	if m := fenceExpr.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	} else if openFenceExpr.MatchString(text) {
		// truncated output: opening fence without a closing one
		text = strings.TrimSpace(openFenceExpr.ReplaceAllString(text, ""))
	}

	if span := arrayExpr.FindString(text); span != "" {
		return span
	}
	return text
}

// repair fixes the defects models commonly emit: raw control characters inside
// string literals and trailing commas before a closing bracket. Commas inside
// string literals are left alone.
func repair(s string) string {
	var (
		out      = make([]rune, 0, len(s))
		inString bool
		escaped  bool
		comma    = -1 // position in out of a comma followed only by whitespace
	)

	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				out = append(out, '\\', 'n')
				continue
			case r == '\r':
				out = append(out, '\\', 'r')
				continue
			case r == '\t':
				out = append(out, '\\', 't')
				continue
			}
			out = append(out, r)
			continue
		}

		switch {
		case r == '"':
			inString = true
			comma = -1
		case r == ',':
			comma = len(out)
		case r == ']' || r == '}':
			if comma >= 0 {
				out = append(out[:comma], out[comma+1:]...)
			}
			comma = -1
		case unicode.IsSpace(r):
		default:
			comma = -1
		}
		out = append(out, r)
	}

	return string(out)
}

// Truncate cuts s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
