package drift

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lazypower/tether/internal/cache"
	"github.com/lazypower/tether/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)

func ago(days int) time.Time { return t0.Add(-time.Duration(days) * 24 * time.Hour) }

type fakeReader struct {
	interactions []model.Interaction
	values       []model.CoreValue
	areas        []model.FocusArea
	areasErr     error

	interactionCalls atomic.Int32
	valueCalls       atomic.Int32
}

func (f *fakeReader) Interactions(_ context.Context, _ string, from, to time.Time) ([]model.Interaction, error) {
	f.interactionCalls.Add(1)
	var out []model.Interaction
	for _, in := range f.interactions {
		if in.OccurredAt.Before(from) || in.OccurredAt.After(to) {
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func (f *fakeReader) Values(context.Context, string) ([]model.CoreValue, error) {
	f.valueCalls.Add(1)
	return f.values, nil
}

func (f *fakeReader) FocusAreas(context.Context, string) ([]model.FocusArea, error) {
	return f.areas, f.areasErr
}

func goal(s string) *string { return &s }

func newMonitor(r Reader, c cache.Cache, clock *time.Time) *Monitor {
	return New(r, c, zap.NewNop(), Options{
		RealtimeTTL: 5 * time.Minute,
		AlertsTTL:   30 * time.Minute,
		Now:         func() time.Time { return *clock },
	})
}

func TestRealTimeColdStart(t *testing.T) {
	clock := t0
	m := newMonitor(&fakeReader{}, nil, &clock)

	rt, err := m.RealTime(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Scores{Value: 50, Goal: 50, Behavior: 50}, rt.Scores)
	assert.Equal(t, 50.0, rt.CurrentAlignment)
	assert.Equal(t, StatusWarning, rt.Status)
	assert.Equal(t, model.TrendStable, rt.TrendDirection)
	assert.Empty(t, rt.Alerts)
}

func TestScores(t *testing.T) {
	r := &fakeReader{
		areas: []model.FocusArea{
			{ID: "f1", Name: "Fitness", Goal: goal("Run")},
			{ID: "f2", Name: "Writing", Goal: goal("Draft")},
			{ID: "f3", Name: "Garden"},
		},
		interactions: []model.Interaction{
			{OccurredAt: ago(20), Outcome: model.OutcomePositive, ValueIDs: []string{"v1"}, FocusAreaIDs: []string{"f1"}},
			{OccurredAt: ago(10), Outcome: model.OutcomePositive, ValueIDs: []string{"v2"}},
			{OccurredAt: ago(5), Outcome: model.OutcomeNegative, FocusAreaIDs: []string{"f3"}},
			{OccurredAt: ago(1), Outcome: model.OutcomePositive},
		},
	}
	clock := t0
	m := newMonitor(r, nil, &clock)

	s := m.Scores(context.Background(), "u1", ago(30), t0)
	assert.Equal(t, Scores{Value: 50, Goal: 50, Behavior: 75}, s)
	assert.InDelta(t, 175.0/3, s.Composite(), 1e-9)
}

func TestScoresIsolateFailures(t *testing.T) {
	r := &fakeReader{
		areasErr: errors.New("focus areas unavailable"),
		interactions: []model.Interaction{
			{OccurredAt: ago(3), Outcome: model.OutcomePositive, ValueIDs: []string{"v1"}},
		},
	}
	clock := t0
	m := newMonitor(r, nil, &clock)

	s := m.Scores(context.Background(), "u1", ago(30), t0)
	assert.Equal(t, 100.0, s.Value)
	assert.Equal(t, 50.0, s.Goal, "failed dimension falls back to the neutral score")
	assert.Equal(t, 100.0, s.Behavior)
}

func TestRealTimeTrendAndStatus(t *testing.T) {
	r := &fakeReader{}
	// A poor quarter followed by a strong month.
	for d := 80; d > 40; d -= 5 {
		r.interactions = append(r.interactions, model.Interaction{OccurredAt: ago(d), Outcome: model.OutcomeNegative})
	}
	for d := 20; d > 0; d -= 5 {
		r.interactions = append(r.interactions, model.Interaction{OccurredAt: ago(d), Outcome: model.OutcomePositive, ValueIDs: []string{"v1"}})
	}
	clock := t0
	m := newMonitor(r, nil, &clock)

	rt, err := m.RealTime(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Scores{Value: 100, Goal: 50, Behavior: 100}, rt.Scores)
	assert.InDelta(t, 250.0/3, rt.CurrentAlignment, 1e-9)
	assert.Equal(t, StatusHealthy, rt.Status)
	assert.Equal(t, model.TrendImproving, rt.TrendDirection)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusHealthy, StatusFor(70))
	assert.Equal(t, StatusWarning, StatusFor(69.9))
	assert.Equal(t, StatusWarning, StatusFor(50))
	assert.Equal(t, StatusCritical, StatusFor(49.9))
}

func TestAlerts(t *testing.T) {
	r := &fakeReader{
		values: []model.CoreValue{{ID: "v1", Name: "Honesty"}, {ID: "v2", Name: "Health"}, {ID: "v3", Name: "Family"}},
		areas: []model.FocusArea{
			{ID: "f1", Name: "Fitness", Goal: goal("Run"), CreatedAt: ago(200)},
			{ID: "f2", Name: "Writing", Goal: goal("Draft"), CreatedAt: ago(200)},
			{ID: "f3", Name: "Music", Goal: goal("Practice"), CreatedAt: ago(2)},
		},
	}
	// Quarter: 10 positive interactions 40-85 days ago.
	for d := 85; d >= 40; d -= 5 {
		r.interactions = append(r.interactions, model.Interaction{OccurredAt: ago(d), Outcome: model.OutcomePositive, FocusAreaIDs: []string{"f2"}})
	}
	// Month: 10 interactions, 3 positive; v1 on 1 (10%), v2 on 0, v3 on 5.
	for i := 0; i < 10; i++ {
		in := model.Interaction{OccurredAt: ago(20 - i), Outcome: model.OutcomeNegative}
		if i < 3 {
			in.Outcome = model.OutcomePositive
		}
		if i == 0 {
			in.ValueIDs = []string{"v1"}
		}
		if i < 5 {
			in.ValueIDs = append(in.ValueIDs, "v3")
		}
		if i == 9 {
			in.FocusAreaIDs = []string{"f1"}
		}
		r.interactions = append(r.interactions, in)
	}
	clock := t0
	m := newMonitor(r, nil, &clock)

	got, err := m.Alerts(context.Background(), "u1")
	require.NoError(t, err)

	var values []model.DriftAlert
	var goals []model.DriftAlert
	var behavior []model.DriftAlert
	for _, a := range got {
		switch a.Type {
		case model.DriftValue:
			values = append(values, a)
		case model.DriftGoal:
			goals = append(goals, a)
		case model.DriftBehavior:
			behavior = append(behavior, a)
		}
	}

	require.Len(t, values, 2, "Family sits at 50%")
	for _, v := range values {
		switch v.Metrics.AlignmentScore {
		case 10:
			assert.Equal(t, model.DriftMedium, v.Severity, "Honesty at 10%")
		case 0:
			assert.Equal(t, model.DriftHigh, v.Severity, "Health at 0%")
			assert.Equal(t, 1.0, v.Confidence)
			assert.Equal(t, 90, v.Metrics.DaysDetected)
		default:
			t.Errorf("unexpected value drift score %v", v.Metrics.AlignmentScore)
		}
	}

	require.Len(t, goals, 1, "Fitness is active and Music is new")
	assert.Equal(t, model.DriftHigh, goals[0].Severity)
	assert.Equal(t, 40, goals[0].Metrics.DaysDetected)

	require.Len(t, behavior, 1)
	assert.Equal(t, model.DriftHigh, behavior[0].Severity, "quarter 13/20 vs month 3/10")
	assert.InDelta(t, 30.0, behavior[0].Metrics.AlignmentScore, 1e-9)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Severity.Rank(), got[i].Severity.Rank())
	}

	again, err := m.Alerts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, got[0].ID, again[0].ID, "ids are stable across sweeps")
}

func TestTwoTierCaching(t *testing.T) {
	r := &fakeReader{values: []model.CoreValue{{ID: "v1", Name: "Honesty"}}}
	clock := t0
	mr := miniredis.RunT(t)
	rc := cache.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })
	m := newMonitor(r, rc, &clock)
	ctx := context.Background()

	_, err := m.RealTime(ctx, "u1")
	require.NoError(t, err)
	calls := r.interactionCalls.Load()
	require.Equal(t, int32(1), r.valueCalls.Load())

	_, err = m.RealTime(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, calls, r.interactionCalls.Load(), "composite served from cache")

	// Past the composite TTL but inside the alert sweep TTL.
	clock = t0.Add(6 * time.Minute)
	mr.FastForward(6 * time.Minute)
	_, err = m.RealTime(ctx, "u1")
	require.NoError(t, err)
	assert.Greater(t, r.interactionCalls.Load(), calls, "composite recomputed")
	assert.Equal(t, int32(1), r.valueCalls.Load(), "alert sweep still cached")

	clock = t0.Add(31 * time.Minute)
	mr.FastForward(25 * time.Minute)
	_, err = m.Alerts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), r.valueCalls.Load(), "alert sweep recomputed")
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}

func TestCacheFailureFallsBackToCompute(t *testing.T) {
	clock := t0
	m := newMonitor(&fakeReader{}, brokenCache{}, &clock)
	rt, err := m.RealTime(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, rt.Status)
}
