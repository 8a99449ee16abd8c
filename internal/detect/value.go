package detect

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/lazypower/tether/internal/model"
)

const (
	valueLookbackDays     = 30
	valueNeglectAfterDays = 21
	valueNeglectWarnDays  = 28
	contradictionCritical = 0.6
)

// ValueContradiction flags declared values that logged interactions keep
// working against, and values that have gone unused. Unused-value
// candidates are typed neglected_area.
type ValueContradiction struct {
	r         Reader
	threshold float64
}

func NewValueContradiction(r Reader, threshold float64) *ValueContradiction {
	return &ValueContradiction{r: r, threshold: threshold}
}

func (d *ValueContradiction) Type() model.AlertType { return model.AlertValueContradiction }

func (d *ValueContradiction) Detect(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	values, err := d.r.Values(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load values: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	interactions, err := d.r.Interactions(ctx, userID, daysAgo(now, valueLookbackDays), now)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}

	var out []model.Candidate
	for _, v := range values {
		var related, contradictory []model.Interaction
		for _, in := range interactions {
			if !in.LinksValue(v.ID) {
				continue
			}
			related = append(related, in)
			if in.Outcome == model.OutcomeNegative || in.IsConflict() {
				contradictory = append(contradictory, in)
			}
		}

		if c, ok := d.contradiction(v, related, contradictory); ok {
			out = append(out, c)
		}

		days := valueLookbackDays
		if n := len(related); n > 0 {
			days = model.WholeDays(related[n-1].OccurredAt, now)
		}
		if days > valueNeglectAfterDays {
			out = append(out, valueNeglect(v, days))
		}
	}
	return out, nil
}

func (d *ValueContradiction) contradiction(v model.CoreValue, related, contradictory []model.Interaction) (model.Candidate, bool) {
	if len(contradictory) == 0 {
		return model.Candidate{}, false
	}
	rate := model.Ratio(len(contradictory), len(related), 0)
	conf := math.Min(rate*1.2, 1)
	if conf < d.threshold {
		return model.Candidate{}, false
	}
	sev := model.SeverityWarning
	if rate > contradictionCritical {
		sev = model.SeverityCritical
	}

	evidence := []string{fmt.Sprintf("%d of %d interactions linked to %q went badly in the last %d days",
		len(contradictory), len(related), v.Name, valueLookbackDays)}
	for _, in := range contradictory {
		evidence = append(evidence, describe(in))
	}

	return model.Candidate{
		Type:        model.AlertValueContradiction,
		Severity:    sev,
		Title:       fmt.Sprintf("Actions contradicting value: %s", v.Name),
		Description: fmt.Sprintf("%.0f%% of recent interactions tied to %q ended negatively or in conflict.", rate*100, v.Name),
		Evidence:    evidence,
		SuggestedActions: []string{
			fmt.Sprintf("Reflect on what %q asks of you in these situations", v.Name),
			"Pick one upcoming interaction and plan how to act on this value",
		},
		Confidence: conf,
		Metadata: map[string]string{
			"value_id":           v.ID,
			"contradiction_rate": strconv.FormatFloat(rate, 'f', 3, 64),
		},
	}, true
}

func valueNeglect(v model.CoreValue, days int) model.Candidate {
	sev := model.SeverityInfo
	if days > valueNeglectWarnDays {
		sev = model.SeverityWarning
	}
	return model.Candidate{
		Type:        model.AlertNeglectedArea,
		Severity:    sev,
		Title:       fmt.Sprintf("Value not acted on: %s", v.Name),
		Description: fmt.Sprintf("No logged interaction has been linked to %q for %d days.", v.Name, days),
		Evidence:    []string{fmt.Sprintf("last linked interaction %d days ago", days)},
		SuggestedActions: []string{
			fmt.Sprintf("Schedule something this week that expresses %q", v.Name),
		},
		Confidence: math.Min(float64(days)/30, 1),
		Metadata: map[string]string{
			"value_id":   v.ID,
			"days_since": strconv.Itoa(days),
		},
	}
}

// describe renders one interaction as an evidence line.
func describe(in model.Interaction) string {
	s := in.OccurredAt.Format("2006-01-02")
	if in.Type != "" {
		s += " " + in.Type
	}
	for i, p := range in.People {
		if i == 0 {
			s += " with "
		} else {
			s += ", "
		}
		s += p
	}
	if in.Outcome != "" {
		s += " (" + string(in.Outcome) + ")"
	}
	return s
}
