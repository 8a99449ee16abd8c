// Package insight derives relationship insights, recurring patterns and
// per-value alignment from interaction history and relationship metrics.
package insight

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/model"
	"go.uber.org/zap"
)

const (
	neglectDays          = 30
	neglectPriorHealth   = 0.5
	momentumHealth       = 0.7
	negativeEmotionMin   = 3
	negativeEmotionRatio = 0.5

	conflictMin         = 3
	gapDays             = 60
	alignedMin          = 5
	alignedPerScore     = 0.8
	valueImproving      = 0.7
	valueDeclining      = 0.4
	valueNeedsAttention = 0.5
)

// milestones are the cumulative interaction counts worth marking.
var milestones = map[int]bool{10: true, 25: true, 50: true, 100: true, 250: true, 500: true}

var negativeEmotions = []string{"anger", "fear", "sadness"}

// Store is the persistence the engine reads and writes.
type Store interface {
	Interactions(ctx context.Context, userID string, from, to time.Time) ([]model.Interaction, error)
	Values(ctx context.Context, userID string) ([]model.CoreValue, error)
	History(ctx context.Context, userID, person string) ([]model.RelationshipMetrics, error)
	RecordInsight(ctx context.Context, ins *model.Insight) (bool, error)
	Insights(ctx context.Context, userID string, limit int) ([]model.Insight, error)
	UpsertPattern(ctx context.Context, userID string, p model.Pattern) error
	Patterns(ctx context.Context, userID string) ([]model.Pattern, error)
}

// Calculator produces current relationship metrics.
type Calculator interface {
	Calculate(ctx context.Context, userID, person string, interactions []model.Interaction) (model.RelationshipMetrics, error)
}

// Engine detects insights and patterns.
type Engine struct {
	store   Store
	metrics Calculator
	log     *zap.Logger
	now     func() time.Time
}

// New creates an Engine.
func New(store Store, metrics Calculator, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:   store,
		metrics: metrics,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine's notion of now. For tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Pass is one detection run: the insights it newly recorded and the
// relationship metrics it computed, alphabetically by person.
type Pass struct {
	Recorded []model.Insight
	Metrics  []model.RelationshipMetrics
}

// Detect evaluates every relationship and records new insights. It returns
// only the insights that were not already recorded.
func (e *Engine) Detect(ctx context.Context, userID string) ([]model.Insight, error) {
	p, err := e.Run(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Recorded, nil
}

// Run is Detect that also hands back the metrics it calculated, so callers
// needing both do not append a second history entry per person.
func (e *Engine) Run(ctx context.Context, userID string) (*Pass, error) {
	interactions, err := e.store.Interactions(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	now := e.now()

	people := model.DistinctPeople(interactions)
	pass := &Pass{Recorded: []model.Insight{}, Metrics: make([]model.RelationshipMetrics, 0, len(people))}
	var found []model.Insight
	for _, person := range people {
		history, err := e.store.History(ctx, userID, person)
		if err != nil {
			return nil, fmt.Errorf("load history for %s: %w", person, err)
		}
		current, err := e.metrics.Calculate(ctx, userID, person, interactions)
		if err != nil {
			return nil, err
		}
		pass.Metrics = append(pass.Metrics, current)
		found = append(found, e.evaluate(person, current, history, interactions, now)...)
	}

	for i := range found {
		ins := found[i]
		ins.UserID = userID
		ins.CreatedAt = now
		ok, err := e.store.RecordInsight(ctx, &ins)
		if err != nil {
			return nil, err
		}
		if ok {
			pass.Recorded = append(pass.Recorded, ins)
		}
	}
	if len(pass.Recorded) > 0 {
		e.log.Info("insights recorded", zap.String("user_id", userID), zap.Int("count", len(pass.Recorded)))
	}
	return pass, nil
}

// evaluate applies the insight rules to one person. history holds the
// stored metrics from before this evaluation.
func (e *Engine) evaluate(person string, current model.RelationshipMetrics, history []model.RelationshipMetrics, interactions []model.Interaction, now time.Time) []model.Insight {
	key := strings.ToLower(person)
	week := isoWeek(now)
	var out []model.Insight

	daysSince := model.DaysBetween(current.LastInteraction, now)
	if n := len(history); n > 0 && daysSince > neglectDays && history[n-1].HealthScore > neglectPriorHealth {
		prior := history[n-1].HealthScore
		out = append(out, model.Insight{
			Type:        model.InsightNeglectedRelationship,
			Person:      person,
			Title:       fmt.Sprintf("%s is drifting away", person),
			Description: fmt.Sprintf("This was a healthy relationship (%.2f) but you haven't connected in %d days.", prior, int(daysSince)),
			Confidence:  model.Clamp01(daysSince / 60),
			DedupKey:    fmt.Sprintf("neglected:%s:%s", key, current.LastInteraction.Format("2006-01-02")),
			Metadata: map[string]string{
				"prior_health_score": strconv.FormatFloat(prior, 'f', 3, 64),
				"days_since":         strconv.Itoa(int(daysSince)),
			},
		})
	}

	if current.TrendDirection == model.TrendImproving && current.HealthScore > momentumHealth {
		out = append(out, model.Insight{
			Type:        model.InsightPositiveMomentum,
			Person:      person,
			Title:       fmt.Sprintf("Positive momentum with %s", person),
			Description: fmt.Sprintf("Your relationship with %s is improving (health %.2f).", person, current.HealthScore),
			Confidence:  current.HealthScore,
			DedupKey:    fmt.Sprintf("momentum:%s:%s", key, week),
		})
	}

	var tagged int
	for _, in := range interactions {
		if in.Involves(person) && in.HasEmotion(negativeEmotions...) {
			tagged++
		}
	}
	if current.InteractionCount >= negativeEmotionMin {
		if ratio := model.Ratio(tagged, current.InteractionCount, 0); ratio > negativeEmotionRatio {
			out = append(out, model.Insight{
				Type:        model.InsightRecurringNegativeEmotion,
				Person:      person,
				Title:       fmt.Sprintf("Recurring difficult emotions with %s", person),
				Description: fmt.Sprintf("%d of %d interactions with %s involved anger, fear or sadness.", tagged, current.InteractionCount, person),
				Confidence:  ratio,
				DedupKey:    fmt.Sprintf("negative_emotion:%s:%s", key, week),
			})
		}
	}

	if milestones[current.InteractionCount] {
		out = append(out, model.Insight{
			Type:        model.InsightMilestone,
			Person:      person,
			Title:       fmt.Sprintf("%d interactions with %s", current.InteractionCount, person),
			Description: fmt.Sprintf("You've logged %d interactions with %s.", current.InteractionCount, person),
			Confidence:  1,
			DedupKey:    fmt.Sprintf("milestone:%s:%d", key, current.InteractionCount),
			Metadata:    map[string]string{"count": strconv.Itoa(current.InteractionCount)},
		})
	}
	return out
}

// Insights returns recorded insights, newest first.
func (e *Engine) Insights(ctx context.Context, userID string, limit int) ([]model.Insight, error) {
	return e.store.Insights(ctx, userID, limit)
}

// DetectPatterns finds recurring conflict, communication gaps and strong
// value alignment per person, stores them and returns them ordered by type
// then person.
func (e *Engine) DetectPatterns(ctx context.Context, userID string) ([]model.Pattern, error) {
	interactions, err := e.store.Interactions(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}

	out := []model.Pattern{}
	for _, person := range model.DistinctPeople(interactions) {
		var mine []model.Interaction
		for _, in := range interactions {
			if in.Involves(person) {
				mine = append(mine, in)
			}
		}
		out = append(out, personPatterns(person, mine)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Type < out[j].Type })

	for _, p := range out {
		if err := e.store.UpsertPattern(ctx, userID, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// personPatterns expects interactions in date order.
func personPatterns(person string, mine []model.Interaction) []model.Pattern {
	var out []model.Pattern
	people := []string{person}

	var conflicts []model.Interaction
	for _, in := range mine {
		if in.IsConflict() {
			conflicts = append(conflicts, in)
		}
	}
	if len(conflicts) >= conflictMin {
		out = append(out, model.Pattern{
			Type:          model.PatternRecurringConflict,
			Frequency:     len(conflicts),
			FirstDetected: conflicts[0].OccurredAt,
			LastDetected:  conflicts[len(conflicts)-1].OccurredAt,
			RelatedPeople: people,
			Confidence:    math.Min(float64(len(conflicts))/5, 1),
		})
	}

	var maxGap float64
	var gapStart, gapEnd time.Time
	gaps := 0
	for i := 1; i < len(mine); i++ {
		g := model.DaysBetween(mine[i-1].OccurredAt, mine[i].OccurredAt)
		if g > gapDays {
			gaps++
		}
		if g > maxGap {
			maxGap, gapStart, gapEnd = g, mine[i-1].OccurredAt, mine[i].OccurredAt
		}
	}
	if maxGap > gapDays {
		out = append(out, model.Pattern{
			Type:          model.PatternCommunicationGap,
			Frequency:     gaps,
			FirstDetected: gapStart,
			LastDetected:  gapEnd,
			RelatedPeople: people,
			Confidence:    math.Min(maxGap/(2*gapDays), 1),
		})
	}

	var aligned []model.Interaction
	var alignSum float64
	for _, in := range mine {
		if in.ValueAlignment != nil && *in.ValueAlignment > alignedPerScore {
			aligned = append(aligned, in)
			alignSum += *in.ValueAlignment
		}
	}
	if len(aligned) >= alignedMin {
		out = append(out, model.Pattern{
			Type:          model.PatternValueAlignment,
			Frequency:     len(aligned),
			FirstDetected: aligned[0].OccurredAt,
			LastDetected:  aligned[len(aligned)-1].OccurredAt,
			RelatedPeople: people,
			Confidence:    model.Clamp01(alignSum / float64(len(aligned))),
		})
	}
	return out
}

// Patterns returns the stored patterns.
func (e *Engine) Patterns(ctx context.Context, userID string) ([]model.Pattern, error) {
	return e.store.Patterns(ctx, userID)
}

// DetectValueAlignments scores each value linked from the user's
// interactions by the share of positive outcomes.
func (e *Engine) DetectValueAlignments(ctx context.Context, userID string) ([]model.ValueAlignment, error) {
	interactions, err := e.store.Interactions(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	values, err := e.store.Values(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load values: %w", err)
	}
	names := make(map[string]string, len(values))
	for _, v := range values {
		names[v.ID] = v.Name
	}

	byValue := make(map[string][]model.Interaction)
	for _, in := range interactions {
		for _, id := range in.ValueIDs {
			byValue[id] = append(byValue[id], in)
		}
	}
	ids := make([]string, 0, len(byValue))
	for id := range byValue {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.ValueAlignment, 0, len(ids))
	for _, id := range ids {
		related := byValue[id]
		va := model.ValueAlignment{
			ValueID:                     id,
			SupportingInteractionIDs:    []string{},
			ContradictingInteractionIDs: []string{},
		}
		for _, in := range related {
			switch {
			case in.Outcome == model.OutcomePositive:
				va.SupportingInteractionIDs = append(va.SupportingInteractionIDs, in.ID)
			case in.Outcome == model.OutcomeNegative || in.IsConflict():
				va.ContradictingInteractionIDs = append(va.ContradictingInteractionIDs, in.ID)
			}
		}
		va.AlignmentScore = model.Ratio(len(va.SupportingInteractionIDs), len(related), 0)
		switch {
		case va.AlignmentScore > valueImproving:
			va.Trend = model.TrendImproving
		case va.AlignmentScore < valueDeclining:
			va.Trend = model.TrendDeclining
		default:
			va.Trend = model.TrendStable
		}
		if va.AlignmentScore < valueNeedsAttention {
			name := names[id]
			if name == "" {
				name = "this value"
			}
			va.Recommendation = fmt.Sprintf("Fewer than half of the interactions linked to %s went well. Plan one concrete way to honor it in your next interaction.", name)
		}
		out = append(out, va)
	}
	return out, nil
}

func isoWeek(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}
