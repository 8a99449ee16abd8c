package detect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/classify"
	"github.com/lazypower/tether/internal/model"
)

const patternLookbackDays = 30

// distressEmotions are the emotions whose rise is worth an alert.
var distressEmotions = map[string]bool{
	"anxiety":     true,
	"frustration": true,
	"anger":       true,
	"sadness":     true,
	"overwhelm":   true,
}

// PatternBased turns classifier output into alert candidates.
type PatternBased struct {
	r          Reader
	classifier classify.Classifier
	threshold  float64
}

func NewPatternBased(r Reader, c classify.Classifier, threshold float64) *PatternBased {
	return &PatternBased{r: r, classifier: c, threshold: threshold}
}

func (d *PatternBased) Type() model.AlertType { return model.AlertPatternDetected }

func (d *PatternBased) Detect(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	from := daysAgo(now, patternLookbackDays)
	interactions, err := d.r.Interactions(ctx, userID, from, now)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	if len(interactions) == 0 {
		return nil, nil
	}
	res, err := d.classifier.Classify(ctx, classify.Request{
		UserID:       userID,
		From:         from,
		To:           now,
		Interactions: interactions,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var out []model.Candidate
	for _, p := range res.Communication {
		if !p.Type.Negative() || p.Confidence < d.threshold {
			continue
		}
		sev := model.SeverityInfo
		if p.Frequency > 5 {
			sev = model.SeverityWarning
		}
		label := strings.ReplaceAll(string(p.Type), "_", "-")
		out = append(out, model.Candidate{
			Type:        model.AlertPatternDetected,
			Severity:    sev,
			Title:       fmt.Sprintf("Communication pattern: %s", label),
			Description: fmt.Sprintf("A %s communication style showed up %d times in the last %d days (%s).", label, p.Frequency, patternLookbackDays, p.Trend),
			Evidence:    []string{fmt.Sprintf("%d occurrences, trend %s", p.Frequency, p.Trend)},
			SuggestedActions: []string{
				"Name the issue directly in your next conversation",
				"Note what made the direct route feel hard",
			},
			Confidence: p.Confidence,
			Metadata: map[string]string{
				"pattern":   string(p.Type),
				"frequency": strconv.Itoa(p.Frequency),
				"trend":     string(p.Trend),
			},
		})
	}

	for _, e := range res.Emotional {
		if !distressEmotions[e.Emotion] || e.Trend != classify.Increasing || e.Confidence < d.threshold {
			continue
		}
		sev := model.SeverityWarning
		if e.Frequency > 10 {
			sev = model.SeverityCritical
		}
		evidence := []string{fmt.Sprintf("%d interactions tagged %s", e.Frequency, e.Emotion)}
		if len(e.AssociatedPeople) > 0 {
			evidence = append(evidence, "most often with "+strings.Join(e.AssociatedPeople, ", "))
		}
		out = append(out, model.Candidate{
			Type:        model.AlertPatternDetected,
			Severity:    sev,
			Title:       fmt.Sprintf("Rising %s", e.Emotion),
			Description: fmt.Sprintf("%s has been increasing across your interactions over the last %d days.", capitalize(e.Emotion), patternLookbackDays),
			Evidence:    evidence,
			SuggestedActions: []string{
				"Look for what these interactions have in common",
				"Talk it through with someone you trust",
			},
			Confidence: e.Confidence,
			Metadata: map[string]string{
				"emotion":   e.Emotion,
				"frequency": strconv.Itoa(e.Frequency),
			},
		})
	}
	return out, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
