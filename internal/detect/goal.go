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
	goalLookbackDays = 14
	goalStallDays    = 7
	// noInteraction stands in for "days since" when nothing falls in the
	// lookback window.
	noInteraction = 999

	engagementHalfDays       = 7
	engagementDropRatio      = 0.5
	engagementDropConfidence = 0.8
)

// GoalDrift flags goal-bearing focus areas that have stalled or are losing
// engagement.
type GoalDrift struct {
	r         Reader
	threshold float64
}

func NewGoalDrift(r Reader, threshold float64) *GoalDrift {
	return &GoalDrift{r: r, threshold: threshold}
}

func (d *GoalDrift) Type() model.AlertType { return model.AlertGoalDrift }

func (d *GoalDrift) Detect(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	areas, err := d.r.FocusAreas(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load focus areas: %w", err)
	}
	interactions, err := d.r.Interactions(ctx, userID, daysAgo(now, goalLookbackDays), now)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}

	split := daysAgo(now, engagementHalfDays)
	var out []model.Candidate
	for _, fa := range areas {
		if !fa.HasGoal() {
			continue
		}
		days := noInteraction
		recent, previous := 0, 0
		for _, in := range interactions {
			if !in.LinksFocusArea(fa.ID) {
				continue
			}
			days = model.WholeDays(in.OccurredAt, now)
			if in.OccurredAt.Before(split) {
				previous++
			} else {
				recent++
			}
		}

		if c, ok := d.stall(fa, days); ok {
			out = append(out, c)
		}
		if previous > 0 && float64(recent) < engagementDropRatio*float64(previous) {
			out = append(out, declining(fa, recent, previous))
		}
	}
	return out, nil
}

func (d *GoalDrift) stall(fa model.FocusArea, days int) (model.Candidate, bool) {
	if days < goalStallDays {
		return model.Candidate{}, false
	}
	conf := math.Min(float64(days)/goalLookbackDays*1.5, 1)
	if conf < d.threshold {
		return model.Candidate{}, false
	}

	sev := model.SeverityInfo
	switch {
	case days > 14:
		sev = model.SeverityCritical
	case days > 10:
		sev = model.SeverityWarning
	}

	last := fmt.Sprintf("last progress %d days ago", days)
	if days == noInteraction {
		last = fmt.Sprintf("no progress logged in the last %d days", goalLookbackDays)
	}
	return model.Candidate{
		Type:        model.AlertGoalDrift,
		Severity:    sev,
		Title:       fmt.Sprintf("Goal stalled: %s", fa.Name),
		Description: fmt.Sprintf("Your goal %q for %s has had no activity recently.", *fa.Goal, fa.Name),
		Evidence:    []string{last},
		SuggestedActions: []string{
			"Break the goal into one small step you can take today",
			"Revisit whether this goal still matters to you",
		},
		Confidence: conf,
		Metadata: map[string]string{
			"focus_area_id": fa.ID,
			"days_since":    strconv.Itoa(days),
		},
	}, true
}

func declining(fa model.FocusArea, recent, previous int) model.Candidate {
	return model.Candidate{
		Type:        model.AlertGoalDrift,
		Severity:    model.SeverityWarning,
		Title:       fmt.Sprintf("Declining engagement: %s", fa.Name),
		Description: fmt.Sprintf("Activity on %s fell from %d to %d interactions week over week.", fa.Name, previous, recent),
		Evidence: []string{
			fmt.Sprintf("previous %d days: %d interactions", engagementHalfDays, previous),
			fmt.Sprintf("last %d days: %d interactions", engagementHalfDays, recent),
		},
		SuggestedActions: []string{
			fmt.Sprintf("Block time this week for %s", fa.Name),
		},
		Confidence: engagementDropConfidence,
		Metadata: map[string]string{
			"focus_area_id": fa.ID,
			"recent":        strconv.Itoa(recent),
			"previous":      strconv.Itoa(previous),
		},
	}
}
