package drift

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/tether/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	valueHighBelow   = 10.0
	valueMediumBelow = 20.0

	goalHighDays   = 30
	goalMediumDays = 14

	behaviorHighDrop   = 0.3
	behaviorMediumDrop = 0.2
)

// history is the quarter of data every evaluator shares.
type history struct {
	now          time.Time
	month        []model.Interaction
	quarter      []model.Interaction
	values       []model.CoreValue
	areas        []model.FocusArea
	monthStart   time.Time
	quarterStart time.Time
}

type evaluator struct {
	name string
	fn   func(userID string, h *history) []model.DriftAlert
}

var evaluators = []evaluator{
	{"value_drift", valueDrift},
	{"goal_drift", goalDrift},
	{"behavior_drift", behaviorDrift},
}

func (m *Monitor) computeAlerts(ctx context.Context, userID string, now time.Time) ([]model.DriftAlert, error) {
	h := &history{now: now, monthStart: daysAgo(now, monthDays), quarterStart: daysAgo(now, quarterDays)}
	var valuesErr, areasErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ins, err := m.r.Interactions(gctx, userID, h.quarterStart, now)
		if err != nil {
			return fmt.Errorf("load interactions: %w", err)
		}
		h.quarter = ins
		return nil
	})
	g.Go(func() error {
		h.values, valuesErr = m.r.Values(gctx, userID)
		return nil
	})
	g.Go(func() error {
		h.areas, areasErr = m.r.FocusAreas(gctx, userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A failed reference read only disables the evaluator that needs it.
	if valuesErr != nil {
		m.log.Warn("drift: load values", zap.String("user_id", userID), zap.Error(valuesErr))
	}
	if areasErr != nil {
		m.log.Warn("drift: load focus areas", zap.String("user_id", userID), zap.Error(areasErr))
	}
	for _, in := range h.quarter {
		if !in.OccurredAt.Before(h.monthStart) {
			h.month = append(h.month, in)
		}
	}

	results := make([][]model.DriftAlert, len(evaluators))
	var eg errgroup.Group
	for i, ev := range evaluators {
		eg.Go(func() error {
			out, err := isolate(func() ([]model.DriftAlert, error) { return ev.fn(userID, h), nil })
			if err != nil {
				m.log.Warn("drift evaluator failed",
					zap.String("evaluator", ev.name),
					zap.String("user_id", userID),
					zap.Error(err))
				return nil
			}
			results[i] = out
			return nil
		})
	}
	eg.Wait()

	out := []model.DriftAlert{}
	for _, r := range results {
		out = append(out, r...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out, nil
}

// valueDrift flags values that account for a small share of recent
// interactions.
func valueDrift(userID string, h *history) []model.DriftAlert {
	if len(h.month) == 0 {
		return nil
	}
	var out []model.DriftAlert
	for _, v := range h.values {
		monthLinked, quarterLinked := 0, 0
		var last time.Time
		for _, in := range h.quarter {
			if !in.LinksValue(v.ID) {
				continue
			}
			quarterLinked++
			last = in.OccurredAt
			if !in.OccurredAt.Before(h.monthStart) {
				monthLinked++
			}
		}
		score := model.Ratio(monthLinked, len(h.month), 0) * 100
		if score >= valueMediumBelow {
			continue
		}
		sev := model.DriftMedium
		if score < valueHighBelow {
			sev = model.DriftHigh
		}
		days := quarterDays
		if !last.IsZero() {
			days = model.WholeDays(last, h.now)
		}
		out = append(out, model.DriftAlert{
			ID:          alertID(userID, "value", v.ID),
			Type:        model.DriftValue,
			Severity:    sev,
			Description: fmt.Sprintf("Only %.0f%% of your interactions this month reflected %q.", score, v.Name),
			SuggestedActions: []string{
				fmt.Sprintf("Plan one interaction this week that puts %q into practice", v.Name),
			},
			Confidence: model.Clamp01(0.5 + (valueMediumBelow-score)/40),
			Metrics: model.DriftMetrics{
				AlignmentScore: score,
				TrendChange:    score - model.Ratio(quarterLinked, len(h.quarter), 0)*100,
				DaysDetected:   days,
			},
		})
	}
	return out
}

// goalDrift flags goal-bearing focus areas with no recent activity.
func goalDrift(userID string, h *history) []model.DriftAlert {
	var out []model.DriftAlert
	for _, fa := range h.areas {
		if !fa.HasGoal() {
			continue
		}
		var last time.Time
		for _, in := range h.quarter {
			if in.LinksFocusArea(fa.ID) {
				last = in.OccurredAt
			}
		}
		since := last
		if since.IsZero() {
			since = fa.CreatedAt
		}
		days := quarterDays
		if !since.IsZero() && since.After(h.quarterStart) {
			days = model.WholeDays(since, h.now)
		}
		if days <= goalMediumDays {
			continue
		}
		sev := model.DriftMedium
		if days > goalHighDays {
			sev = model.DriftHigh
		}
		out = append(out, model.DriftAlert{
			ID:          alertID(userID, "goal", fa.ID),
			Type:        model.DriftGoal,
			Severity:    sev,
			Description: fmt.Sprintf("No activity toward %q (%s) for %d days.", *fa.Goal, fa.Name, days),
			SuggestedActions: []string{
				"Schedule a first small step toward this goal",
				"Decide whether the goal still fits your priorities",
			},
			Confidence: math.Min(float64(days)/goalHighDays, 1),
			Metrics: model.DriftMetrics{
				AlignmentScore: math.Max(0, 1-float64(days)/goalHighDays) * 100,
				DaysDetected:   days,
			},
		})
	}
	return out
}

// behaviorDrift flags a drop in the positive-outcome rate this month
// against the quarter.
func behaviorDrift(userID string, h *history) []model.DriftAlert {
	if len(h.month) == 0 || len(h.quarter) == 0 {
		return nil
	}
	monthRate := model.Ratio(countPositive(h.month), len(h.month), 0)
	quarterRate := model.Ratio(countPositive(h.quarter), len(h.quarter), 0)
	drop := quarterRate - monthRate
	if drop <= behaviorMediumDrop {
		return nil
	}
	sev := model.DriftMedium
	if drop > behaviorHighDrop {
		sev = model.DriftHigh
	}
	return []model.DriftAlert{{
		ID:          alertID(userID, "behavior", ""),
		Type:        model.DriftBehavior,
		Severity:    sev,
		Description: fmt.Sprintf("Positive outcomes fell to %.0f%% this month from %.0f%% over the quarter.", monthRate*100, quarterRate*100),
		SuggestedActions: []string{
			"Look at what changed in your routine this month",
			"Reach out to someone who reliably lifts you up",
		},
		Confidence: math.Min(drop/0.5, 1),
		Metrics: model.DriftMetrics{
			AlignmentScore: monthRate * 100,
			TrendChange:    -drop * 100,
			DaysDetected:   monthDays,
		},
	}}
}

// alertID is stable for a user, dimension and subject so a recomputed sweep
// reuses the same ids.
func alertID(userID, dimension, subject string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(userID+"/"+dimension+"/"+subject)).String()
}
