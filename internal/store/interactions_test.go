package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/tether/internal/model"
)

func TestCreateAndListInteractions(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	dur := 45.0

	first := &model.Interaction{
		UserID:     "u1",
		People:     []string{"Alex", "Sam"},
		Type:       "call",
		OccurredAt: base.Add(48 * time.Hour),
		Outcome:    model.OutcomePositive,
		Emotions:   []string{"joy"},
		ValueIDs:   []string{"v1"},
		Duration:   &dur,
	}
	second := &model.Interaction{
		UserID:     "u1",
		People:     []string{"Alex"},
		Type:       "conflict",
		OccurredAt: base,
		Outcome:    model.OutcomeNegative,
	}
	other := &model.Interaction{
		UserID:     "u2",
		People:     []string{"Jo"},
		OccurredAt: base,
		Outcome:    model.OutcomeNeutral,
	}
	for _, in := range []*model.Interaction{first, second, other} {
		if err := db.CreateInteraction(ctx, in); err != nil {
			t.Fatalf("CreateInteraction: %v", err)
		}
		if in.ID == "" {
			t.Error("expected generated id")
		}
	}

	got, err := db.Interactions(ctx, "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Interactions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d interactions, want 2", len(got))
	}
	// Date ordered ascending
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, second.ID, first.ID)
	}
	if len(got[1].People) != 2 || got[1].People[0] != "Alex" || got[1].People[1] != "Sam" {
		t.Errorf("people = %v, want [Alex Sam]", got[1].People)
	}
	if got[1].Duration == nil || *got[1].Duration != 45 {
		t.Errorf("duration = %v, want 45", got[1].Duration)
	}
	if got[0].Duration != nil {
		t.Errorf("duration = %v, want nil", *got[0].Duration)
	}
	if len(got[1].ValueIDs) != 1 || got[1].ValueIDs[0] != "v1" {
		t.Errorf("value ids = %v", got[1].ValueIDs)
	}
	if !got[1].OccurredAt.Equal(first.OccurredAt) {
		t.Errorf("occurred_at = %v, want %v", got[1].OccurredAt, first.OccurredAt)
	}

	// Time window
	windowed, err := db.Interactions(ctx, "u1", base.Add(time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("Interactions window: %v", err)
	}
	if len(windowed) != 1 || windowed[0].ID != first.ID {
		t.Errorf("windowed = %v, want only %s", windowed, first.ID)
	}

	n, err := db.CountInteractions(ctx, "u1")
	if err != nil || n != 2 {
		t.Errorf("CountInteractions = %d, %v; want 2", n, err)
	}
}

func TestCreateInteractionValidation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	cases := []*model.Interaction{
		{People: []string{"Alex"}, Outcome: model.OutcomePositive},
		{UserID: "u1", People: []string{"Alex"}, Outcome: "conflict"},
		{UserID: "u1", Outcome: model.OutcomePositive},
	}
	for i, in := range cases {
		if err := db.CreateInteraction(ctx, in); !errors.Is(err, ErrInvalid) {
			t.Errorf("case %d: err = %v, want ErrInvalid", i, err)
		}
	}
}

func TestValuesAndFocusAreas(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateValue(ctx, &model.CoreValue{UserID: "u1", Name: "Honesty", Importance: 5}); err != nil {
		t.Fatalf("CreateValue: %v", err)
	}
	goal := "call mum weekly"
	if err := db.CreateFocusArea(ctx, &model.FocusArea{UserID: "u1", Name: "Family", Goal: &goal}); err != nil {
		t.Fatalf("CreateFocusArea: %v", err)
	}
	if err := db.CreateFocusArea(ctx, &model.FocusArea{UserID: "u1", Name: "Reading"}); err != nil {
		t.Fatalf("CreateFocusArea: %v", err)
	}

	values, err := db.Values(ctx, "u1")
	if err != nil || len(values) != 1 || values[0].Name != "Honesty" {
		t.Fatalf("Values = %v, %v", values, err)
	}

	areas, err := db.FocusAreas(ctx, "u1")
	if err != nil {
		t.Fatalf("FocusAreas: %v", err)
	}
	if len(areas) != 2 {
		t.Fatalf("got %d areas, want 2", len(areas))
	}
	goals := 0
	for _, a := range areas {
		if a.HasGoal() {
			goals++
		}
	}
	if goals != 1 {
		t.Errorf("goal-bearing areas = %d, want 1", goals)
	}

	if err := db.CreateValue(ctx, &model.CoreValue{UserID: "u1"}); err == nil {
		t.Error("expected error for nameless value")
	}
}
