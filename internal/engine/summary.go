package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/drift"
	"github.com/lazypower/tether/internal/metrics"
	"github.com/lazypower/tether/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	weekDays     = 7
	progressDays = 30
	streakDays   = 365
	stalledDays  = 14

	topPeopleLimit   = 5
	topEmotionsLimit = 3
	summaryInsights  = 10
)

// Count is a label with its number of occurrences.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// WeeklySummary describes the last seven days of interactions.
type WeeklySummary struct {
	WeekStart        time.Time             `json:"week_start"`
	WeekEnd          time.Time             `json:"week_end"`
	InteractionCount int                   `json:"interaction_count"`
	PreviousCount    int                   `json:"previous_count"`
	PositiveRatio    float64               `json:"positive_ratio"`
	Outcomes         map[model.Outcome]int `json:"outcomes"`
	TopPeople        []Count               `json:"top_people"`
	TopEmotions      []Count               `json:"top_emotions"`
	ValuesPracticed  []Count               `json:"values_practiced"`
}

// WeeklySummary aggregates the seven days ending now and compares the count
// with the seven days before.
func (e *Engine) WeeklySummary(ctx context.Context, userID string) (*WeeklySummary, error) {
	now := e.now()
	start := now.AddDate(0, 0, -weekDays)
	ins, err := e.DB.Interactions(ctx, userID, start.AddDate(0, 0, -weekDays), now)
	if err != nil {
		return nil, fmt.Errorf("weekly summary: %w", err)
	}
	values, err := e.DB.Values(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("weekly summary: %w", err)
	}
	names := make(map[string]string, len(values))
	for _, v := range values {
		names[v.ID] = v.Name
	}

	ws := &WeeklySummary{WeekStart: start, WeekEnd: now, Outcomes: map[model.Outcome]int{}}
	people := newCounter()
	emotions := newCounter()
	practiced := newCounter()
	positive := 0
	for _, in := range ins {
		if in.OccurredAt.Before(start) {
			ws.PreviousCount++
			continue
		}
		ws.InteractionCount++
		ws.Outcomes[in.Outcome]++
		if in.Outcome == model.OutcomePositive {
			positive++
		}
		for _, p := range in.People {
			people.add(p)
		}
		for _, em := range in.Emotions {
			emotions.add(strings.ToLower(em))
		}
		for _, id := range in.ValueIDs {
			if name, ok := names[id]; ok {
				practiced.add(name)
			}
		}
	}
	ws.PositiveRatio = model.Ratio(positive, ws.InteractionCount, 0)
	ws.TopPeople = people.top(topPeopleLimit)
	ws.TopEmotions = emotions.top(topEmotionsLimit)
	ws.ValuesPracticed = practiced.top(0)
	return ws, nil
}

// FocusProgress is the recent activity on one focus area.
type FocusProgress struct {
	FocusArea        model.FocusArea `json:"focus_area"`
	InteractionCount int             `json:"interaction_count"`
	PositiveRatio    float64         `json:"positive_ratio"`
	LastActivity     *time.Time      `json:"last_activity,omitempty"`
	DaysSince        *int            `json:"days_since,omitempty"`
	Status           string          `json:"status"`
}

// Focus progress statuses.
const (
	ProgressActive   = "active"
	ProgressStalled  = "stalled"
	ProgressInactive = "inactive"
)

// FocusAreaProgress reports the last 30 days of activity per focus area, in
// declaration order.
func (e *Engine) FocusAreaProgress(ctx context.Context, userID string) ([]FocusProgress, error) {
	now := e.now()
	areas, err := e.DB.FocusAreas(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("focus progress: %w", err)
	}
	ins, err := e.DB.Interactions(ctx, userID, now.AddDate(0, 0, -progressDays), now)
	if err != nil {
		return nil, fmt.Errorf("focus progress: %w", err)
	}

	out := make([]FocusProgress, 0, len(areas))
	for _, fa := range areas {
		p := FocusProgress{FocusArea: fa, Status: ProgressInactive}
		positive := 0
		var last time.Time
		for _, in := range ins {
			if !in.LinksFocusArea(fa.ID) {
				continue
			}
			p.InteractionCount++
			if in.Outcome == model.OutcomePositive {
				positive++
			}
			if in.OccurredAt.After(last) {
				last = in.OccurredAt
			}
		}
		p.PositiveRatio = model.Ratio(positive, p.InteractionCount, 0)
		if !last.IsZero() {
			days := model.WholeDays(last, now)
			p.LastActivity = &last
			p.DaysSince = &days
			p.Status = ProgressActive
			if days > stalledDays {
				p.Status = ProgressStalled
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Patterns is the interaction-pattern view.
type Patterns struct {
	ByWeekday       map[string]int         `json:"by_weekday"`
	ByType          map[string]int         `json:"by_type"`
	ByOutcome       map[model.Outcome]int  `json:"by_outcome"`
	Detected        []model.Pattern        `json:"detected"`
	ValueAlignments []model.ValueAlignment `json:"value_alignments"`
}

// InteractionPatterns re-detects the stored patterns and summarizes when and
// how the user interacts.
func (e *Engine) InteractionPatterns(ctx context.Context, userID string) (*Patterns, error) {
	ins, err := e.DB.Interactions(ctx, userID, time.Time{}, e.now())
	if err != nil {
		return nil, fmt.Errorf("patterns: %w", err)
	}
	detected, err := e.Insight.DetectPatterns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("patterns: %w", err)
	}
	aligned, err := e.Insight.DetectValueAlignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("patterns: %w", err)
	}

	p := &Patterns{
		ByWeekday:       map[string]int{},
		ByType:          map[string]int{},
		ByOutcome:       map[model.Outcome]int{},
		Detected:        detected,
		ValueAlignments: aligned,
	}
	for _, in := range ins {
		p.ByWeekday[in.OccurredAt.In(e.loc).Weekday().String()]++
		if in.Type != "" {
			p.ByType[strings.ToLower(in.Type)]++
		}
		p.ByOutcome[in.Outcome]++
	}
	if p.Detected == nil {
		p.Detected = []model.Pattern{}
	}
	if p.ValueAlignments == nil {
		p.ValueAlignments = []model.ValueAlignment{}
	}
	return p, nil
}

// Streak counts consecutive calendar days with at least one interaction.
type Streak struct {
	Current    int        `json:"current"`
	Longest    int        `json:"longest"`
	ActiveDays int        `json:"active_days_30"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// Streak computes the user's logging streak over the past year. The current
// streak survives a day without activity so far today.
func (e *Engine) Streak(ctx context.Context, userID string) (*Streak, error) {
	now := e.now()
	today := e.startOfDay(now)
	ins, err := e.DB.Interactions(ctx, userID, today.AddDate(0, 0, -streakDays), now)
	if err != nil {
		return nil, fmt.Errorf("streak: %w", err)
	}

	active := map[time.Time]bool{}
	var last time.Time
	for _, in := range ins {
		active[e.startOfDay(in.OccurredAt)] = true
		if in.OccurredAt.After(last) {
			last = in.OccurredAt
		}
	}
	s := &Streak{}
	if !last.IsZero() {
		s.LastActive = &last
	}

	run := 0
	for d := 0; d <= streakDays; d++ {
		day := today.AddDate(0, 0, -streakDays+d)
		if active[day] {
			run++
			if run > s.Longest {
				s.Longest = run
			}
		} else {
			run = 0
		}
		if d >= streakDays-progressDays+1 && active[day] {
			s.ActiveDays++
		}
	}

	day := today
	if !active[day] {
		day = day.AddDate(0, 0, -1)
	}
	for active[day] {
		s.Current++
		day = day.AddDate(0, 0, -1)
	}
	return s, nil
}

// Summary is the combined dashboard view.
type Summary struct {
	Weekly           *WeeklySummary              `json:"weekly"`
	FocusAreas       []FocusProgress             `json:"focus_areas"`
	Streak           *Streak                     `json:"streak"`
	Alerts           []model.Alert               `json:"alerts"`
	Drift            *drift.RealTime             `json:"drift"`
	TopRelationships []model.RelationshipMetrics `json:"top_relationships"`
	Insights         []model.Insight             `json:"insights"`
}

// Summary assembles every read view concurrently. Any failing part fails
// the whole summary.
func (e *Engine) Summary(ctx context.Context, userID string) (*Summary, error) {
	s := &Summary{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.Weekly, err = e.WeeklySummary(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		s.FocusAreas, err = e.FocusAreaProgress(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		s.Streak, err = e.Streak(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		s.Alerts, err = e.Alerts.List(gctx, userID, false, 0)
		return err
	})
	g.Go(func() (err error) {
		s.Drift, err = e.Drift.RealTime(gctx, userID)
		return err
	})
	// One detection pass scores every relationship; the top list reuses
	// those metrics instead of appending a second history entry.
	g.Go(func() error {
		pass, err := e.Insight.Run(gctx, userID)
		if err != nil {
			return fmt.Errorf("detect insights: %w", err)
		}
		s.TopRelationships = metrics.Rank(pass.Metrics, topPeopleLimit)
		s.Insights, err = e.recentInsights(gctx, userID, summaryInsights)
		return err
	})
	if err := g.Wait(); err != nil {
		e.log.Warn("summary failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	if s.Alerts == nil {
		s.Alerts = []model.Alert{}
	}
	return s, nil
}

type counter struct {
	order []string
	n     map[string]int
}

func newCounter() *counter { return &counter{n: map[string]int{}} }

func (c *counter) add(name string) {
	key := strings.ToLower(name)
	for _, o := range c.order {
		if strings.ToLower(o) == key {
			c.n[o]++
			return
		}
	}
	c.order = append(c.order, name)
	c.n[name] = 1
}

// top returns up to limit names by count, ties alphabetical. limit <= 0
// returns all.
func (c *counter) top(limit int) []Count {
	out := make([]Count, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, Count{Name: name, Count: c.n[name]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
