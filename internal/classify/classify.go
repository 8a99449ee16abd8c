// Package classify turns raw interactions into labeled communication and
// emotional patterns. The detectors consume it only through Classifier.
//
// Output contract:
//   - CommunicationPattern.Type is one of the four CommunicationType values.
//   - Frequency counts interactions showing the pattern (>= 1).
//   - Trend compares the later half of the window with the earlier half.
//   - Confidence is in [0,1].
//   - EmotionalTrend.Emotion is a lowercase label; AssociatedPeople is sorted.
package classify

import (
	"context"
	"time"

	"github.com/lazypower/tether/internal/model"
)

// CommunicationType labels a communication style.
type CommunicationType string

const (
	Avoidance         CommunicationType = "avoidance"
	PassiveAggressive CommunicationType = "passive_aggressive"
	Directness        CommunicationType = "directness"
	Assertive         CommunicationType = "assertive"
)

// Negative reports whether the style works against the relationship.
func (c CommunicationType) Negative() bool {
	return c == Avoidance || c == PassiveAggressive
}

func (c CommunicationType) valid() bool {
	switch c {
	case Avoidance, PassiveAggressive, Directness, Assertive:
		return true
	}
	return false
}

// Trend is the direction of a pattern across the window.
type Trend string

const (
	Increasing Trend = "increasing"
	Stable     Trend = "stable"
	Decreasing Trend = "decreasing"
)

// CommunicationPattern is one labeled communication style.
type CommunicationPattern struct {
	Type       CommunicationType `json:"type"`
	Frequency  int               `json:"frequency"`
	Trend      Trend             `json:"trend"`
	Confidence float64           `json:"confidence"`
}

// EmotionalTrend is one emotion's occurrence over the window.
type EmotionalTrend struct {
	Emotion          string   `json:"emotion"`
	Frequency        int      `json:"frequency"`
	Trend            Trend    `json:"trend"`
	Confidence       float64  `json:"confidence"`
	AssociatedPeople []string `json:"associated_people"`
}

// Request is one classification job: a user's interactions within [From, To].
type Request struct {
	UserID       string
	From, To     time.Time
	Interactions []model.Interaction
}

// Result holds everything a classifier found.
type Result struct {
	Communication []CommunicationPattern `json:"communication"`
	Emotional     []EmotionalTrend       `json:"emotional"`
}

// Classifier labels interaction patterns.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Result, error)
}

// trendOf compares counts in the later half with the earlier half. A change
// of fewer than two occurrences is noise.
func trendOf(earlier, later int) Trend {
	switch d := later - earlier; {
	case d >= 2:
		return Increasing
	case d <= -2:
		return Decreasing
	}
	return Stable
}
