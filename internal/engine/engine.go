package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/tether/internal/alerts"
	"github.com/lazypower/tether/internal/cache"
	"github.com/lazypower/tether/internal/classify"
	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/detect"
	"github.com/lazypower/tether/internal/drift"
	"github.com/lazypower/tether/internal/insight"
	"github.com/lazypower/tether/internal/metrics"
	"github.com/lazypower/tether/internal/model"
	"github.com/lazypower/tether/internal/store"
	"go.uber.org/zap"
)

// Engine wires the analytics components over one store and exposes the
// read views the API serves.
type Engine struct {
	DB      *store.DB
	Alerts  *alerts.Manager
	Metrics *metrics.Engine
	Insight *insight.Engine
	Drift   *drift.Monitor

	log *zap.Logger
	loc *time.Location
	now func() time.Time
}

// Deps are the optional collaborators. Zero values get defaults: no cache,
// the heuristic classifier, a no-op logger and the wall clock.
type Deps struct {
	Cache      cache.Cache
	Classifier classify.Classifier
	Log        *zap.Logger
	Now        func() time.Time
}

// New creates a new Engine.
func New(db *store.DB, cfg config.Config, deps Deps) *Engine {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.NewHeuristic()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	log := deps.Log
	th := detect.ThresholdsFrom(cfg.Alerts.Thresholds)

	suite := detect.NewSuite(log.Named("detect"), detect.Defaults(db, deps.Classifier, th)...)
	mgr := alerts.NewManager(db, suite, log.Named("alerts"), alerts.Options{
		MaxPerDay:  cfg.Alerts.MaxPerDay,
		Location:   cfg.Location(),
		Thresholds: th,
		Now:        deps.Now,
	})

	met := metrics.New(db, log.Named("metrics"), cfg.Metrics.HistoryLimit)
	met.SetClock(deps.Now)
	ins := insight.New(db, met, log.Named("insight"))
	ins.SetClock(deps.Now)

	mon := drift.New(db, deps.Cache, log.Named("drift"), drift.Options{
		RealtimeTTL: cfg.Drift.RealtimeTTL,
		AlertsTTL:   cfg.Drift.AlertsTTL,
		CachePrefix: cfg.Cache.Prefix,
		Now:         deps.Now,
	})

	return &Engine{
		DB:      db,
		Alerts:  mgr,
		Metrics: met,
		Insight: ins,
		Drift:   mon,
		log:     log,
		loc:     cfg.Location(),
		now:     deps.Now,
	}
}

// LogInteraction records an interaction for the user.
func (e *Engine) LogInteraction(ctx context.Context, in *model.Interaction) error {
	if len(in.People) == 1 {
		// Accept the legacy "Alex, Sam" form in a single entry.
		in.People = model.SplitPeople(in.People[0])
	}
	if err := e.DB.CreateInteraction(ctx, in); err != nil {
		return err
	}
	e.log.Debug("interaction logged",
		zap.String("user_id", in.UserID),
		zap.String("id", in.ID),
		zap.Strings("people", in.People))
	return nil
}

// DeclareValue records a core value.
func (e *Engine) DeclareValue(ctx context.Context, v *model.CoreValue) error {
	return e.DB.CreateValue(ctx, v)
}

// DeclareFocusArea records a focus area.
func (e *Engine) DeclareFocusArea(ctx context.Context, f *model.FocusArea) error {
	return e.DB.CreateFocusArea(ctx, f)
}

// Insights detects new insights and returns the most recent recorded ones.
func (e *Engine) Insights(ctx context.Context, userID string, limit int) ([]model.Insight, error) {
	if _, err := e.Insight.Detect(ctx, userID); err != nil {
		return nil, fmt.Errorf("detect insights: %w", err)
	}
	return e.recentInsights(ctx, userID, limit)
}

func (e *Engine) recentInsights(ctx context.Context, userID string, limit int) ([]model.Insight, error) {
	out, err := e.Insight.Insights(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Insight{}
	}
	return out, nil
}

// startOfDay truncates t to midnight in the engine's timezone.
func (e *Engine) startOfDay(t time.Time) time.Time {
	l := t.In(e.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, e.loc)
}
