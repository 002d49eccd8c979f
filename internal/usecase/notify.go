package usecase

import (
	"context"
	"fmt"
	"strings"

	"RivalScanner/internal/domain"
)

const digestAlerts = 10

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

// publishDigest sends critical alerts to the notifier. Failures only log.
func (o *Orchestrator) publishDigest(ctx context.Context, industry string, alerts []domain.Alert) {
	if o.notifier == nil {
		return
	}
	digest := buildDigest(industry, alerts)
	if digest == "" {
		return
	}
	if err := o.notifier.PublishDigest(ctx, digest); err != nil {
		o.logger.Warn("publish digest failed", "industry", industry, "error", err)
	}
}

func buildDigest(industry string, alerts []domain.Alert) string {
	critical := make([]domain.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Priority == domain.PriorityCritical {
			critical = append(critical, a)
		}
	}
	if len(critical) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s: %d critical alert(s)*\n", markdownEscaper.Replace(industry), len(critical))
	for i, a := range critical {
		if i == digestAlerts {
			fmt.Fprintf(&b, "\n_and %d more_", len(critical)-digestAlerts)
			break
		}
		fmt.Fprintf(&b, "\n*%s*\n%s\n", markdownEscaper.Replace(a.Title), markdownEscaper.Replace(a.Description))
	}
	return b.String()
}
