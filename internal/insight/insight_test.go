package insight

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/lazypower/tether/internal/metrics"
	"github.com/lazypower/tether/internal/model"
	"github.com/lazypower/tether/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *store.DB
	engine  *Engine
	metrics *metrics.Engine
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, now: t0}
	clock := func() time.Time { return f.now }
	f.metrics = metrics.New(db, nil, 52)
	f.metrics.SetClock(clock)
	f.engine = New(db, f.metrics, nil)
	f.engine.SetClock(clock)
	return f
}

func (f *fixture) log(t *testing.T, in model.Interaction) {
	t.Helper()
	in.UserID = "u1"
	if in.Outcome == "" {
		in.Outcome = model.OutcomePositive
	}
	if in.Type == "" {
		in.Type = "conversation"
	}
	require.NoError(t, f.db.CreateInteraction(context.Background(), &in))
}

func (f *fixture) ago(days int) time.Time {
	return f.now.Add(-time.Duration(days) * 24 * time.Hour)
}

func ofType(ins []model.Insight, typ model.InsightType) []model.Insight {
	var out []model.Insight
	for _, i := range ins {
		if i.Type == typ {
			out = append(out, i)
		}
	}
	return out
}

func TestMilestoneFiresOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 9; i > 0; i-- {
		f.log(t, model.Interaction{People: []string{"Alex"}, OccurredAt: f.ago(i)})
	}

	got, err := f.engine.Detect(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ofType(got, model.InsightMilestone), "9 is not a milestone")

	f.log(t, model.Interaction{People: []string{"Alex"}, OccurredAt: f.ago(0)})
	got, err = f.engine.Detect(ctx, "u1")
	require.NoError(t, err)
	ms := ofType(got, model.InsightMilestone)
	require.Len(t, ms, 1)
	assert.Equal(t, "10 interactions with Alex", ms[0].Title)

	got, err = f.engine.Detect(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ofType(got, model.InsightMilestone), "already recorded")

	f.log(t, model.Interaction{People: []string{"Alex"}, OccurredAt: f.ago(0)})
	got, err = f.engine.Detect(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ofType(got, model.InsightMilestone), "11 is not a milestone")

	stored, err := f.engine.Insights(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, ofType(stored, model.InsightMilestone), 1)
}

func TestRunReturnsComputedMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.log(t, model.Interaction{People: []string{"Sam"}, OccurredAt: f.ago(3)})
	f.log(t, model.Interaction{People: []string{"Alex", "Sam"}, OccurredAt: f.ago(1)})

	pass, err := f.engine.Run(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pass.Metrics, 2)
	assert.Equal(t, "Alex", pass.Metrics[0].Person)
	assert.Equal(t, 2, pass.Metrics[1].InteractionCount)
	assert.NotNil(t, pass.Recorded)

	h, err := f.db.History(ctx, "u1", "Sam")
	require.NoError(t, err)
	assert.Len(t, h, 1)
}

func TestNeglectedAfterHealthyPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 3; i > 0; i-- {
		f.log(t, model.Interaction{People: []string{"Sam"}, OccurredAt: f.ago(i)})
	}
	// Chronically neglected: no healthy history, never flagged.
	f.log(t, model.Interaction{People: []string{"Kim"}, OccurredAt: f.ago(200), Outcome: model.OutcomeNegative})

	got, err := f.engine.Detect(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ofType(got, model.InsightNeglectedRelationship))

	f.now = f.now.Add(40 * 24 * time.Hour)
	got, err = f.engine.Detect(ctx, "u1")
	require.NoError(t, err)
	neg := ofType(got, model.InsightNeglectedRelationship)
	require.Len(t, neg, 1)
	assert.Equal(t, "Sam", neg[0].Person)
	assert.Equal(t, "41", neg[0].Metadata["days_since"])
}

func TestRecurringNegativeEmotion(t *testing.T) {
	f := newFixture(t)
	f.log(t, model.Interaction{People: []string{"Jo"}, OccurredAt: f.ago(5), Emotions: []string{"Anger"}})
	f.log(t, model.Interaction{People: []string{"Jo"}, OccurredAt: f.ago(4), Emotions: []string{"joy"}})
	f.log(t, model.Interaction{People: []string{"Jo"}, OccurredAt: f.ago(3), Emotions: []string{"fear", "sadness"}})
	f.log(t, model.Interaction{People: []string{"Bo"}, OccurredAt: f.ago(3), Emotions: []string{"anger"}})
	f.log(t, model.Interaction{People: []string{"Bo"}, OccurredAt: f.ago(2), Emotions: []string{"anger"}})

	got, err := f.engine.Detect(context.Background(), "u1")
	require.NoError(t, err)
	neg := ofType(got, model.InsightRecurringNegativeEmotion)
	require.Len(t, neg, 1, "Bo has fewer than three interactions")
	assert.Equal(t, "Jo", neg[0].Person)
	assert.InDelta(t, 2.0/3, neg[0].Confidence, 1e-9)
}

func TestPositiveMomentum(t *testing.T) {
	e := New(nil, nil, nil)
	current := model.RelationshipMetrics{
		Person:           "Alex",
		InteractionCount: 7,
		LastInteraction:  t0,
		HealthScore:      0.8,
		TrendDirection:   model.TrendImproving,
	}
	got := e.evaluate("Alex", current, nil, nil, t0)
	require.Len(t, got, 1)
	assert.Equal(t, model.InsightPositiveMomentum, got[0].Type)
	assert.Equal(t, "momentum:alex:2025-W27", got[0].DedupKey)

	current.HealthScore = 0.65
	assert.Empty(t, e.evaluate("Alex", current, nil, nil, t0))
}

func TestDetectPatterns(t *testing.T) {
	f := newFixture(t)
	high := 0.9
	low := 0.5

	for _, d := range []int{30, 20, 10} {
		f.log(t, model.Interaction{People: []string{"Kim"}, OccurredAt: f.ago(d), Type: "conflict", Outcome: model.OutcomeNegative})
	}
	f.log(t, model.Interaction{People: []string{"Lee"}, OccurredAt: f.ago(150)})
	f.log(t, model.Interaction{People: []string{"Lee"}, OccurredAt: f.ago(50)})
	f.log(t, model.Interaction{People: []string{"Lee"}, OccurredAt: f.ago(40)})
	for d := 6; d > 1; d-- {
		f.log(t, model.Interaction{People: []string{"Max"}, OccurredAt: f.ago(d), ValueAlignment: &high})
	}
	f.log(t, model.Interaction{People: []string{"Max"}, OccurredAt: f.ago(1), ValueAlignment: &low})

	got, err := f.engine.DetectPatterns(context.Background(), "u1")
	require.NoError(t, err)

	want := []model.Pattern{
		{
			Type:          model.PatternCommunicationGap,
			Frequency:     1,
			FirstDetected: f.ago(150),
			LastDetected:  f.ago(50),
			RelatedPeople: []string{"Lee"},
			Confidence:    100.0 / 120,
		},
		{
			Type:          model.PatternRecurringConflict,
			Frequency:     3,
			FirstDetected: f.ago(30),
			LastDetected:  f.ago(10),
			RelatedPeople: []string{"Kim"},
			Confidence:    0.6,
		},
		{
			Type:          model.PatternValueAlignment,
			Frequency:     5,
			FirstDetected: f.ago(6),
			LastDetected:  f.ago(2),
			RelatedPeople: []string{"Max"},
			Confidence:    0.9,
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("DetectPatterns mismatch (-want +got):\n%s", diff)
	}

	stored, err := f.engine.Patterns(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	// Re-detection updates rather than duplicates.
	_, err = f.engine.DetectPatterns(context.Background(), "u1")
	require.NoError(t, err)
	stored, err = f.engine.Patterns(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestDetectValueAlignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.CreateValue(ctx, &model.CoreValue{ID: "v2", UserID: "u1", Name: "Patience"}))

	outcomes := map[string][]model.Outcome{
		"v1": {model.OutcomePositive, model.OutcomePositive, model.OutcomePositive, model.OutcomeNegative},
		"v2": {model.OutcomePositive, model.OutcomeNegative, model.OutcomeNeutral},
	}
	for id, os := range outcomes {
		for i, o := range os {
			f.log(t, model.Interaction{People: []string{"Alex"}, OccurredAt: f.ago(i + 1), Outcome: o, ValueIDs: []string{id}})
		}
	}

	got, err := f.engine.DetectValueAlignments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "v1", got[0].ValueID)
	assert.Equal(t, 0.75, got[0].AlignmentScore)
	assert.Equal(t, model.TrendImproving, got[0].Trend)
	assert.Len(t, got[0].SupportingInteractionIDs, 3)
	assert.Len(t, got[0].ContradictingInteractionIDs, 1)
	assert.Empty(t, got[0].Recommendation)

	assert.Equal(t, "v2", got[1].ValueID)
	assert.InDelta(t, 1.0/3, got[1].AlignmentScore, 1e-9)
	assert.Equal(t, model.TrendDeclining, got[1].Trend)
	assert.Contains(t, got[1].Recommendation, "Patience")
}
