package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/drift"
	"github.com/lazypower/tether/internal/model"
	"github.com/lazypower/tether/internal/store"
	"golang.org/x/sync/errgroup"
)

// Monday, mid-day.
var t0 = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func ago(days int) time.Time { return t0.AddDate(0, 0, -days) }

func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, config.Default(), Deps{Now: func() time.Time { return t0 }})
}

func logIn(t *testing.T, e *Engine, in model.Interaction) {
	t.Helper()
	in.UserID = "u1"
	if in.Outcome == "" {
		in.Outcome = model.OutcomePositive
	}
	if in.Type == "" {
		in.Type = "conversation"
	}
	if err := e.LogInteraction(context.Background(), &in); err != nil {
		t.Fatalf("LogInteraction: %v", err)
	}
}

func TestLogInteractionSplitsLegacyPeople(t *testing.T) {
	e := testEngine(t)
	logIn(t, e, model.Interaction{People: []string{"Alex, Sam & alex"}, OccurredAt: ago(1)})

	ins, err := e.DB.Interactions(context.Background(), "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Interactions: %v", err)
	}
	if len(ins) != 1 {
		t.Fatalf("got %d interactions, want 1", len(ins))
	}
	if got := ins[0].People; len(got) != 2 || got[0] != "Alex" || got[1] != "Sam" {
		t.Errorf("people = %v, want [Alex Sam]", got)
	}
}

func TestWeeklySummary(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	if err := e.DeclareValue(ctx, &model.CoreValue{ID: "v1", UserID: "u1", Name: "Honesty"}); err != nil {
		t.Fatalf("DeclareValue: %v", err)
	}
	logIn(t, e, model.Interaction{People: []string{"Alex"}, OccurredAt: ago(1), Emotions: []string{"Joy"}})
	logIn(t, e, model.Interaction{People: []string{"Alex", "Sam"}, OccurredAt: ago(2), Outcome: model.OutcomeNegative, Emotions: []string{"anger"}})
	logIn(t, e, model.Interaction{People: []string{"sam"}, OccurredAt: ago(3), Emotions: []string{"joy"}, ValueIDs: []string{"v1"}})
	logIn(t, e, model.Interaction{People: []string{"Kim"}, OccurredAt: ago(10)})

	ws, err := e.WeeklySummary(ctx, "u1")
	if err != nil {
		t.Fatalf("WeeklySummary: %v", err)
	}
	if ws.InteractionCount != 3 || ws.PreviousCount != 1 {
		t.Errorf("counts = %d/%d, want 3/1", ws.InteractionCount, ws.PreviousCount)
	}
	if ws.PositiveRatio < 0.666 || ws.PositiveRatio > 0.667 {
		t.Errorf("PositiveRatio = %v, want 2/3", ws.PositiveRatio)
	}
	if ws.Outcomes[model.OutcomePositive] != 2 || ws.Outcomes[model.OutcomeNegative] != 1 {
		t.Errorf("Outcomes = %v", ws.Outcomes)
	}
	wantPeople := []Count{{"Alex", 2}, {"Sam", 2}}
	if len(ws.TopPeople) != 2 || ws.TopPeople[0] != wantPeople[0] || ws.TopPeople[1] != wantPeople[1] {
		t.Errorf("TopPeople = %v, want %v", ws.TopPeople, wantPeople)
	}
	if len(ws.TopEmotions) != 2 || ws.TopEmotions[0] != (Count{"joy", 2}) {
		t.Errorf("TopEmotions = %v", ws.TopEmotions)
	}
	if len(ws.ValuesPracticed) != 1 || ws.ValuesPracticed[0] != (Count{"Honesty", 1}) {
		t.Errorf("ValuesPracticed = %v", ws.ValuesPracticed)
	}
}

func TestFocusAreaProgress(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	for i, name := range []string{"Fitness", "Writing", "Music"} {
		fa := &model.FocusArea{ID: "f" + string(rune('1'+i)), UserID: "u1", Name: name, CreatedAt: ago(100 - i)}
		if err := e.DeclareFocusArea(ctx, fa); err != nil {
			t.Fatalf("DeclareFocusArea: %v", err)
		}
	}
	logIn(t, e, model.Interaction{People: []string{"Coach"}, OccurredAt: ago(2), FocusAreaIDs: []string{"f1"}})
	logIn(t, e, model.Interaction{People: []string{"Coach"}, OccurredAt: ago(4), Outcome: model.OutcomeNeutral, FocusAreaIDs: []string{"f1"}})
	logIn(t, e, model.Interaction{People: []string{"Editor"}, OccurredAt: ago(20), FocusAreaIDs: []string{"f2"}})

	got, err := e.FocusAreaProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("FocusAreaProgress: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d areas, want 3", len(got))
	}

	tests := []struct {
		name   string
		count  int
		status string
		days   int
	}{
		{"Fitness", 2, ProgressActive, 2},
		{"Writing", 1, ProgressStalled, 20},
		{"Music", 0, ProgressInactive, -1},
	}
	for i, tt := range tests {
		p := got[i]
		if p.FocusArea.Name != tt.name {
			t.Errorf("[%d] name = %q, want %q", i, p.FocusArea.Name, tt.name)
		}
		if p.InteractionCount != tt.count {
			t.Errorf("%s: count = %d, want %d", tt.name, p.InteractionCount, tt.count)
		}
		if p.Status != tt.status {
			t.Errorf("%s: status = %q, want %q", tt.name, p.Status, tt.status)
		}
		if tt.days < 0 {
			if p.DaysSince != nil {
				t.Errorf("%s: DaysSince = %d, want nil", tt.name, *p.DaysSince)
			}
			continue
		}
		if p.DaysSince == nil || *p.DaysSince != tt.days {
			t.Errorf("%s: DaysSince = %v, want %d", tt.name, p.DaysSince, tt.days)
		}
	}
	if got[0].PositiveRatio != 0.5 {
		t.Errorf("Fitness PositiveRatio = %v, want 0.5", got[0].PositiveRatio)
	}
}

func TestStreak(t *testing.T) {
	tests := []struct {
		name    string
		days    []int
		current int
		longest int
		active  int
	}{
		{"empty", nil, 0, 0, 0},
		{"through today", []int{0, 1, 2, 5, 6, 7, 8}, 3, 4, 7},
		{"nothing yet today", []int{1, 2}, 2, 2, 2},
		{"broken", []int{2, 3}, 0, 2, 2},
		{"old run", []int{0, 40, 41, 42}, 1, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEngine(t)
			for _, d := range tt.days {
				logIn(t, e, model.Interaction{People: []string{"Alex"}, OccurredAt: ago(d)})
			}
			s, err := e.Streak(context.Background(), "u1")
			if err != nil {
				t.Fatalf("Streak: %v", err)
			}
			if s.Current != tt.current || s.Longest != tt.longest || s.ActiveDays != tt.active {
				t.Errorf("streak = %d/%d/%d, want %d/%d/%d",
					s.Current, s.Longest, s.ActiveDays, tt.current, tt.longest, tt.active)
			}
			if len(tt.days) == 0 && s.LastActive != nil {
				t.Errorf("LastActive = %v, want nil", s.LastActive)
			}
		})
	}
}

func TestInteractionPatterns(t *testing.T) {
	e := testEngine(t)
	for _, d := range []int{21, 14, 7} {
		logIn(t, e, model.Interaction{People: []string{"Kim"}, OccurredAt: ago(d), Type: "Conflict", Outcome: model.OutcomeNegative})
	}
	logIn(t, e, model.Interaction{People: []string{"Alex"}, OccurredAt: ago(1)})

	p, err := e.InteractionPatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("InteractionPatterns: %v", err)
	}
	if p.ByWeekday["Monday"] != 3 || p.ByWeekday["Sunday"] != 1 {
		t.Errorf("ByWeekday = %v", p.ByWeekday)
	}
	if p.ByType["conflict"] != 3 || p.ByType["conversation"] != 1 {
		t.Errorf("ByType = %v", p.ByType)
	}
	if p.ByOutcome[model.OutcomeNegative] != 3 {
		t.Errorf("ByOutcome = %v", p.ByOutcome)
	}
	if len(p.Detected) != 1 || p.Detected[0].Type != model.PatternRecurringConflict {
		t.Errorf("Detected = %+v, want one recurring conflict", p.Detected)
	}
	if p.ValueAlignments == nil {
		t.Error("ValueAlignments should be empty, not nil")
	}
}

func TestSummaryColdStart(t *testing.T) {
	e := testEngine(t)
	s, err := e.Summary(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Weekly == nil || s.Weekly.InteractionCount != 0 {
		t.Errorf("Weekly = %+v", s.Weekly)
	}
	if s.Drift == nil || s.Drift.Status != drift.StatusWarning || s.Drift.CurrentAlignment != 50 {
		t.Errorf("Drift = %+v, want neutral warning", s.Drift)
	}
	if s.Streak == nil || s.Streak.Current != 0 {
		t.Errorf("Streak = %+v", s.Streak)
	}
	if len(s.Alerts) != 0 || len(s.TopRelationships) != 0 || len(s.Insights) != 0 {
		t.Errorf("expected empty lists, got %d alerts, %d top, %d insights",
			len(s.Alerts), len(s.TopRelationships), len(s.Insights))
	}
}

func TestSummaryWithHistory(t *testing.T) {
	e := testEngine(t)
	for i := 10; i > 0; i-- {
		logIn(t, e, model.Interaction{People: []string{"Alex"}, OccurredAt: ago(i)})
	}
	s, err := e.Summary(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(s.TopRelationships) != 1 || s.TopRelationships[0].Person != "Alex" {
		t.Errorf("TopRelationships = %+v", s.TopRelationships)
	}
	found := false
	for _, in := range s.Insights {
		if in.Type == model.InsightMilestone {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a milestone insight, got %+v", s.Insights)
	}
	if s.Streak.Current != 10 {
		t.Errorf("Streak.Current = %d, want 10", s.Streak.Current)
	}
}

func TestSummaryFileDBConcurrent(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "tether.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	e := New(db, config.Default(), Deps{Now: func() time.Time { return t0 }})

	for i := 0; i < 40; i++ {
		logIn(t, e, model.Interaction{
			People:     []string{fmt.Sprintf("Person %02d", i%20)},
			OccurredAt: ago(i%30 + 1),
		})
	}

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := e.Summary(context.Background(), "u1")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Summary: %v", err)
	}
}

func TestSummaryAppendsOneHistoryEntry(t *testing.T) {
	e := testEngine(t)
	logIn(t, e, model.Interaction{People: []string{"Alex"}, OccurredAt: ago(2)})
	logIn(t, e, model.Interaction{People: []string{"Sam"}, OccurredAt: ago(3)})

	if _, err := e.Summary(context.Background(), "u1"); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	for _, person := range []string{"Alex", "Sam"} {
		h, err := e.DB.History(context.Background(), "u1", person)
		if err != nil {
			t.Fatalf("History(%s): %v", person, err)
		}
		if len(h) != 1 {
			t.Errorf("%s history entries = %d, want 1", person, len(h))
		}
	}
}
