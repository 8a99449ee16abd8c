package detect

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/model"
)

const (
	neglectLookbackDays = 90
	neglectAfterDays    = 21
	neglectWarnDays     = 45
)

// NeglectedArea flags people who have dropped out of the user's recent
// interactions.
type NeglectedArea struct {
	r         Reader
	threshold float64
}

func NewNeglectedArea(r Reader, threshold float64) *NeglectedArea {
	return &NeglectedArea{r: r, threshold: threshold}
}

func (d *NeglectedArea) Type() model.AlertType { return model.AlertNeglectedArea }

func (d *NeglectedArea) Detect(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	interactions, err := d.r.Interactions(ctx, userID, daysAgo(now, neglectLookbackDays), now)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}

	last := make(map[string]time.Time)
	for _, in := range interactions {
		for _, p := range in.People {
			k := strings.ToLower(strings.TrimSpace(p))
			if k == "" {
				continue
			}
			if in.OccurredAt.After(last[k]) {
				last[k] = in.OccurredAt
			}
		}
	}

	var out []model.Candidate
	for _, person := range model.DistinctPeople(interactions) {
		days := model.WholeDays(last[strings.ToLower(person)], now)
		if days <= neglectAfterDays {
			continue
		}
		conf := math.Min(float64(days)/30, 1)
		if conf < d.threshold {
			continue
		}
		sev := model.SeverityInfo
		if days > neglectWarnDays {
			sev = model.SeverityWarning
		}
		out = append(out, model.Candidate{
			Type:        model.AlertNeglectedArea,
			Severity:    sev,
			Title:       fmt.Sprintf("Reconnect with %s", person),
			Description: fmt.Sprintf("You haven't logged an interaction with %s in %d days.", person, days),
			Evidence:    []string{fmt.Sprintf("last interaction %s", last[strings.ToLower(person)].Format("2006-01-02"))},
			SuggestedActions: []string{
				fmt.Sprintf("Send %s a quick message", person),
				"Put a catch-up on the calendar",
			},
			Confidence: conf,
			Metadata: map[string]string{
				"person":     person,
				"days_since": strconv.Itoa(days),
			},
		})
	}
	return out, nil
}
