// Package drift measures how closely a user's recent behavior tracks their
// declared values and goals. The composite score and the drift alert sweep
// are cached under separate TTLs.
package drift

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/tether/internal/cache"
	"github.com/lazypower/tether/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	monthDays   = 30
	quarterDays = 90

	// coldStart is the neutral sub-score when nothing qualifies.
	coldStart = 50.0

	trendThreshold = 5.0
	healthyAt      = 70.0
	warningAt      = 50.0
)

// Status labels the composite alignment.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// StatusFor maps a 0-100 alignment to its label.
func StatusFor(alignment float64) Status {
	switch {
	case alignment >= healthyAt:
		return StatusHealthy
	case alignment >= warningAt:
		return StatusWarning
	}
	return StatusCritical
}

// Reader is the user-scoped history the monitor reads.
type Reader interface {
	Interactions(ctx context.Context, userID string, from, to time.Time) ([]model.Interaction, error)
	Values(ctx context.Context, userID string) ([]model.CoreValue, error)
	FocusAreas(ctx context.Context, userID string) ([]model.FocusArea, error)
}

// Scores are the three 0-100 alignment dimensions over one window.
type Scores struct {
	Value    float64 `json:"value_alignment"`
	Goal     float64 `json:"goal_alignment"`
	Behavior float64 `json:"behavior_alignment"`
}

// Composite is the arithmetic mean of the three dimensions.
func (s Scores) Composite() float64 {
	return (s.Value + s.Goal + s.Behavior) / 3
}

// RealTime is the cached composite view.
type RealTime struct {
	CurrentAlignment float64            `json:"current_alignment"`
	Scores           Scores             `json:"scores"`
	Baseline         float64            `json:"baseline"`
	TrendDirection   model.Trend        `json:"trend_direction"`
	Status           Status             `json:"status"`
	Alerts           []model.DriftAlert `json:"alerts"`
	CalculatedAt     time.Time          `json:"calculated_at"`
}

// Options configure the monitor.
type Options struct {
	RealtimeTTL time.Duration
	AlertsTTL   time.Duration
	CachePrefix string
	Now         func() time.Time
}

// Monitor computes and caches drift.
type Monitor struct {
	r     Reader
	cache cache.Cache
	log   *zap.Logger
	opts  Options
}

// New creates a Monitor. A nil cache disables caching.
func New(r Reader, c cache.Cache, log *zap.Logger, opts Options) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = cache.Nop{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Monitor{r: r, cache: c, log: log, opts: opts}
}

// RealTime returns the composite alignment, its trend against the quarter
// baseline, the status label and the current drift alerts.
func (m *Monitor) RealTime(ctx context.Context, userID string) (*RealTime, error) {
	now := m.opts.Now()
	key := cache.Key(m.opts.CachePrefix, "drift-realtime", userID, now)
	return cache.Fetch(ctx, m.cache, m.log, key, m.opts.RealtimeTTL, func(ctx context.Context) (*RealTime, error) {
		return m.computeRealTime(ctx, userID, now)
	})
}

// Alerts returns the drift alert sweep, highest severity first.
func (m *Monitor) Alerts(ctx context.Context, userID string) ([]model.DriftAlert, error) {
	now := m.opts.Now()
	key := cache.Key(m.opts.CachePrefix, "drift-alerts", userID, now)
	return cache.Fetch(ctx, m.cache, m.log, key, m.opts.AlertsTTL, func(ctx context.Context) ([]model.DriftAlert, error) {
		return m.computeAlerts(ctx, userID, now)
	})
}

func (m *Monitor) computeRealTime(ctx context.Context, userID string, now time.Time) (*RealTime, error) {
	var current, baseline Scores
	var alerts []model.DriftAlert

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		current = m.Scores(gctx, userID, daysAgo(now, monthDays), now)
		return nil
	})
	g.Go(func() error {
		baseline = m.Scores(gctx, userID, daysAgo(now, quarterDays), now)
		return nil
	})
	g.Go(func() (err error) {
		alerts, err = m.Alerts(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("drift alerts: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rt := &RealTime{
		CurrentAlignment: current.Composite(),
		Scores:           current,
		Baseline:         baseline.Composite(),
		Alerts:           alerts,
		CalculatedAt:     now,
	}
	switch diff := rt.CurrentAlignment - rt.Baseline; {
	case diff > trendThreshold:
		rt.TrendDirection = model.TrendImproving
	case diff < -trendThreshold:
		rt.TrendDirection = model.TrendDeclining
	default:
		rt.TrendDirection = model.TrendStable
	}
	rt.Status = StatusFor(rt.CurrentAlignment)
	return rt, nil
}

// Scores computes the three dimensions over [from, to] concurrently. A
// dimension that fails is logged and reported at the cold-start value.
func (m *Monitor) Scores(ctx context.Context, userID string, from, to time.Time) Scores {
	var s Scores
	units := []struct {
		name string
		dst  *float64
		fn   func(context.Context, string, time.Time, time.Time) (float64, error)
	}{
		{"value", &s.Value, m.valueScore},
		{"goal", &s.Goal, m.goalScore},
		{"behavior", &s.Behavior, m.behaviorScore},
	}

	var g errgroup.Group
	for _, u := range units {
		g.Go(func() error {
			v, err := isolate(func() (float64, error) { return u.fn(ctx, userID, from, to) })
			if err != nil {
				m.log.Warn("drift sub-score failed",
					zap.String("score", u.name),
					zap.String("user_id", userID),
					zap.Error(err))
				v = coldStart
			}
			*u.dst = v
			return nil
		})
	}
	g.Wait()
	return s
}

// valueScore is the share of interactions linked to at least one value.
func (m *Monitor) valueScore(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	ins, err := m.r.Interactions(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	linked := 0
	for _, in := range ins {
		if len(in.ValueIDs) > 0 {
			linked++
		}
	}
	return model.Ratio(linked, len(ins), coldStart/100) * 100, nil
}

// goalScore is the share of goal-bearing focus areas that saw activity.
func (m *Monitor) goalScore(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	areas, err := m.r.FocusAreas(ctx, userID)
	if err != nil {
		return 0, err
	}
	ins, err := m.r.Interactions(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	if len(ins) == 0 {
		return coldStart, nil
	}
	total, active := 0, 0
	for _, fa := range areas {
		if !fa.HasGoal() {
			continue
		}
		total++
		for _, in := range ins {
			if in.LinksFocusArea(fa.ID) {
				active++
				break
			}
		}
	}
	return model.Ratio(active, total, coldStart/100) * 100, nil
}

// behaviorScore is the share of interactions with a positive outcome.
func (m *Monitor) behaviorScore(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	ins, err := m.r.Interactions(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	return model.Ratio(countPositive(ins), len(ins), coldStart/100) * 100, nil
}

func countPositive(ins []model.Interaction) int {
	n := 0
	for _, in := range ins {
		if in.Outcome == model.OutcomePositive {
			n++
		}
	}
	return n
}

func isolate[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func daysAgo(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
