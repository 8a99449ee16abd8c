// Package model holds the domain records shared by the analytics components.
// Interactions, values and focus areas are owned by the logging side and are
// read-only here; alerts, metrics, patterns and insights are derived.
package model

import (
	"strings"
	"time"
)

// Outcome is the logged result of an interaction.
type Outcome string

const (
	OutcomePositive Outcome = "positive"
	OutcomeNeutral  Outcome = "neutral"
	OutcomeNegative Outcome = "negative"
	OutcomeMixed    Outcome = "mixed"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePositive, OutcomeNeutral, OutcomeNegative, OutcomeMixed:
		return true
	}
	return false
}

// InteractionTypeConflict marks an interaction logged as a conflict.
const InteractionTypeConflict = "conflict"

// Interaction is a logged encounter with one or more people.
type Interaction struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	People         []string  `json:"people"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	Outcome        Outcome   `json:"outcome"`
	Emotions       []string  `json:"emotions,omitempty"`
	ValueIDs       []string  `json:"value_ids,omitempty"`
	FocusAreaIDs   []string  `json:"focus_area_ids,omitempty"`
	Duration       *float64  `json:"duration,omitempty"` // minutes
	ValueAlignment *float64  `json:"value_alignment,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Involves reports whether person took part in the interaction.
func (i Interaction) Involves(person string) bool {
	for _, p := range i.People {
		if SamePerson(p, person) {
			return true
		}
	}
	return false
}

// LinksValue reports whether the interaction is linked to the value id.
func (i Interaction) LinksValue(id string) bool {
	return contains(i.ValueIDs, id)
}

// LinksFocusArea reports whether the interaction is linked to the focus area id.
func (i Interaction) LinksFocusArea(id string) bool {
	return contains(i.FocusAreaIDs, id)
}

// HasEmotion reports whether any of the labels is tagged on the interaction.
func (i Interaction) HasEmotion(labels ...string) bool {
	for _, e := range i.Emotions {
		for _, l := range labels {
			if strings.EqualFold(e, l) {
				return true
			}
		}
	}
	return false
}

// IsConflict reports whether the interaction was logged as a conflict.
func (i Interaction) IsConflict() bool {
	return strings.EqualFold(i.Type, InteractionTypeConflict)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// CoreValue is a value the user has declared.
type CoreValue struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Importance  int       `json:"importance"`
	CreatedAt   time.Time `json:"created_at"`
}

// FocusArea is a declared area of focus. Only areas with a Goal take part in
// goal-drift detection.
type FocusArea struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Goal      *string   `json:"goal,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasGoal reports whether the area carries a non-empty goal.
func (f FocusArea) HasGoal() bool {
	return f.Goal != nil && strings.TrimSpace(*f.Goal) != ""
}
