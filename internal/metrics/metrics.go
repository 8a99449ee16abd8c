// Package metrics scores the health of each relationship from its
// interaction history and keeps a bounded history of those scores for trend
// comparison.
package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/model"
	"go.uber.org/zap"
)

const (
	// idealPerMonth is the interaction frequency that earns the full
	// frequency term.
	idealPerMonth = 4.0
	// silenceDays of no contact zero the recency term.
	silenceDays = 60.0

	trendWindow    = 3
	trendMinPoints = 2
	trendDelta     = 0.1

	maxDominantEmotions = 3
)

// Store is the persistence the engine needs.
type Store interface {
	Interactions(ctx context.Context, userID string, from, to time.Time) ([]model.Interaction, error)
	SaveMetrics(ctx context.Context, userID string, m model.RelationshipMetrics) error
	AppendHistory(ctx context.Context, userID string, m model.RelationshipMetrics, limit int) error
	History(ctx context.Context, userID, person string) ([]model.RelationshipMetrics, error)
}

// Engine computes relationship metrics.
type Engine struct {
	store        Store
	log          *zap.Logger
	historyLimit int
	now          func() time.Time
}

// New creates an Engine. historyLimit bounds the per-person history.
func New(store Store, log *zap.Logger, historyLimit int) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = 52
	}
	return &Engine{
		store:        store,
		log:          log,
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine's notion of now. For tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Score is the pure part of Calculate: metrics for one person from their
// interactions, evaluated at now, with the trend left stable.
func Score(person string, interactions []model.Interaction, now time.Time) model.RelationshipMetrics {
	var mine []model.Interaction
	for _, in := range interactions {
		if in.Involves(person) {
			mine = append(mine, in)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].OccurredAt.Before(mine[j].OccurredAt)
	})

	m := model.RelationshipMetrics{
		Person:           person,
		InteractionCount: len(mine),
		DominantEmotions: []string{},
		TrendDirection:   model.TrendStable,
		CalculatedAt:     now,
	}
	if len(mine) == 0 {
		return m
	}
	m.FirstInteraction = mine[0].OccurredAt
	m.LastInteraction = mine[len(mine)-1].OccurredAt

	positive := 0
	var durSum float64
	durN := 0
	for _, in := range mine {
		if in.Outcome == model.OutcomePositive {
			positive++
		}
		if in.Duration != nil {
			durSum += *in.Duration
			durN++
		}
	}
	m.PositiveRatio = model.Ratio(positive, len(mine), 0)
	if durN > 0 {
		avg := durSum / float64(durN)
		m.AverageDuration = &avg
	}
	m.DominantEmotions = dominantEmotions(mine)

	months := math.Max(model.DaysBetween(m.FirstInteraction, now)/30, 1)
	m.InteractionFrequency = float64(len(mine)) / months

	recency := math.Max(0, 1-model.DaysBetween(m.LastInteraction, now)/silenceDays)
	m.HealthScore = model.Clamp01(
		0.4*m.PositiveRatio +
			0.3*math.Min(m.InteractionFrequency/idealPerMonth, 1) +
			0.3*math.Min(recency, 1))
	return m
}

// Trend compares score with the mean of the last few history entries.
func Trend(score float64, history []model.RelationshipMetrics) model.Trend {
	if len(history) < trendMinPoints {
		return model.TrendStable
	}
	if len(history) > trendWindow {
		history = history[len(history)-trendWindow:]
	}
	var sum float64
	for _, h := range history {
		sum += h.HealthScore
	}
	switch delta := score - sum/float64(len(history)); {
	case delta > trendDelta:
		return model.TrendImproving
	case delta < -trendDelta:
		return model.TrendDeclining
	}
	return model.TrendStable
}

// Calculate scores one relationship, classifies its trend against stored
// history, then persists the metrics and appends them to the history.
func (e *Engine) Calculate(ctx context.Context, userID, person string, interactions []model.Interaction) (model.RelationshipMetrics, error) {
	m := Score(person, interactions, e.now())
	if m.InteractionCount == 0 {
		return m, nil
	}

	history, err := e.store.History(ctx, userID, person)
	if err != nil {
		return m, fmt.Errorf("load history for %s: %w", person, err)
	}
	m.TrendDirection = Trend(m.HealthScore, history)

	if err := e.store.SaveMetrics(ctx, userID, m); err != nil {
		return m, err
	}
	if err := e.store.AppendHistory(ctx, userID, m, e.historyLimit); err != nil {
		return m, err
	}
	return m, nil
}

// CalculateAll scores every person in the user's history, alphabetically.
func (e *Engine) CalculateAll(ctx context.Context, userID string) ([]model.RelationshipMetrics, error) {
	interactions, err := e.store.Interactions(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	people := model.DistinctPeople(interactions)
	out := make([]model.RelationshipMetrics, 0, len(people))
	for _, p := range people {
		m, err := e.Calculate(ctx, userID, p, interactions)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	e.log.Debug("relationship metrics calculated",
		zap.String("user_id", userID), zap.Int("people", len(out)))
	return out, nil
}

// TopRelationships returns the healthiest relationships first. Ties keep
// alphabetical order. A limit <= 0 returns everyone.
func (e *Engine) TopRelationships(ctx context.Context, userID string, limit int) ([]model.RelationshipMetrics, error) {
	all, err := e.CalculateAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Rank(all, limit), nil
}

// Rank orders already calculated metrics healthiest first, keeping the
// input order on ties, and returns at most limit of them (all when
// limit <= 0). The input slice is left untouched.
func Rank(all []model.RelationshipMetrics, limit int) []model.RelationshipMetrics {
	out := append([]model.RelationshipMetrics{}, all...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].HealthScore > out[j].HealthScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// NeglectedRelationships returns, alphabetically, everyone whose last
// interaction is at least days old.
func (e *Engine) NeglectedRelationships(ctx context.Context, userID string, days int) ([]model.RelationshipMetrics, error) {
	all, err := e.CalculateAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	cutoff := e.now().Add(-time.Duration(days) * 24 * time.Hour)
	out := []model.RelationshipMetrics{}
	for _, m := range all {
		if !m.LastInteraction.After(cutoff) {
			out = append(out, m)
		}
	}
	return out, nil
}

func dominantEmotions(interactions []model.Interaction) []string {
	counts := make(map[string]int)
	for _, in := range interactions {
		for _, e := range in.Emotions {
			if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
				counts[e]++
			}
		}
	}
	out := make([]string, 0, len(counts))
	for e := range counts {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > maxDominantEmotions {
		out = out[:maxDominantEmotions]
	}
	return out
}
