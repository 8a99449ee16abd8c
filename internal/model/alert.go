package model

import "time"

// AlertType identifies which detector produced an accountability alert.
type AlertType string

const (
	AlertValueContradiction AlertType = "value_contradiction"
	AlertGoalDrift          AlertType = "goal_drift"
	AlertPatternDetected    AlertType = "pattern_detected"
	AlertNeglectedArea      AlertType = "neglected_area"
)

// AlertTypes lists every accountability alert type in detector order.
var AlertTypes = []AlertType{
	AlertValueContradiction,
	AlertGoalDrift,
	AlertPatternDetected,
	AlertNeglectedArea,
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	for _, v := range AlertTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Severity orders accountability alerts: info < warning < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Weight is the priority weight of the severity (critical=3, warning=2,
// info=1, unknown=0).
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Alert is a persisted accountability alert. AcknowledgedAt is set at most
// once; DismissedAt is terminal.
type Alert struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Type             AlertType         `json:"type"`
	Severity         Severity          `json:"severity"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Evidence         []string          `json:"evidence"`
	SuggestedActions []string          `json:"suggested_actions"`
	Confidence       float64           `json:"confidence"`
	CreatedAt        time.Time         `json:"created_at"`
	AcknowledgedAt   *time.Time        `json:"acknowledged_at,omitempty"`
	DismissedAt      *time.Time        `json:"dismissed_at,omitempty"`
	DismissReason    string            `json:"dismiss_reason,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Dismissed reports whether the alert has been dismissed.
func (a Alert) Dismissed() bool {
	return a.DismissedAt != nil
}

// Candidate is an alert proposed by a detector. It becomes an Alert only
// once the lifecycle manager accepts and persists it.
type Candidate struct {
	Type             AlertType
	Severity         Severity
	Title            string
	Description      string
	Evidence         []string
	SuggestedActions []string
	Confidence       float64
	Metadata         map[string]string
}

// Priority ranks candidates: severity weight dominates, confidence breaks
// ties within a severity.
func (c Candidate) Priority() float64 {
	return float64(c.Severity.Weight())*10 + c.Confidence*10
}

// DriftType identifies a drift alert dimension.
type DriftType string

const (
	DriftValue    DriftType = "value_drift"
	DriftGoal     DriftType = "goal_drift"
	DriftBehavior DriftType = "behavior_drift"
)

// DriftSeverity orders drift alerts: low < medium < high.
type DriftSeverity string

const (
	DriftLow    DriftSeverity = "low"
	DriftMedium DriftSeverity = "medium"
	DriftHigh   DriftSeverity = "high"
)

// Rank returns the ordinal of the severity (low=1 .. high=3).
func (s DriftSeverity) Rank() int {
	switch s {
	case DriftHigh:
		return 3
	case DriftMedium:
		return 2
	case DriftLow:
		return 1
	}
	return 0
}

// DriftMetrics are the numbers behind a drift alert.
type DriftMetrics struct {
	AlignmentScore float64 `json:"alignment_score"`
	TrendChange    float64 `json:"trend_change"`
	DaysDetected   int     `json:"days_detected"`
}

// DriftAlert is derived on demand and only ever lives in cache.
type DriftAlert struct {
	ID               string        `json:"id"`
	Type             DriftType     `json:"type"`
	Severity         DriftSeverity `json:"severity"`
	Description      string        `json:"description"`
	SuggestedActions []string      `json:"suggested_actions"`
	Confidence       float64       `json:"confidence"`
	Metrics          DriftMetrics  `json:"metrics"`
}
