package model

import "time"

// Trend classifies the direction of a score over time.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// RelationshipMetrics is the computed state of one relationship.
type RelationshipMetrics struct {
	Person               string    `json:"person"`
	InteractionCount     int       `json:"interaction_count"`
	FirstInteraction     time.Time `json:"first_interaction"`
	LastInteraction      time.Time `json:"last_interaction"`
	PositiveRatio        float64   `json:"positive_ratio"`
	DominantEmotions     []string  `json:"dominant_emotions"`
	HealthScore          float64   `json:"health_score"`
	AverageDuration      *float64  `json:"average_duration,omitempty"`
	InteractionFrequency float64   `json:"interaction_frequency"` // per month
	TrendDirection       Trend     `json:"trend_direction"`
	CalculatedAt         time.Time `json:"calculated_at"`
}

// PatternType identifies a derived interaction pattern.
type PatternType string

const (
	PatternRecurringConflict PatternType = "recurring_conflict"
	PatternCommunicationGap  PatternType = "communication_gap"
	PatternValueAlignment    PatternType = "value_alignment"
)

// Pattern is a recurring shape found in a user's interaction history.
type Pattern struct {
	Type          PatternType `json:"type"`
	Frequency     int         `json:"frequency"`
	FirstDetected time.Time   `json:"first_detected"`
	LastDetected  time.Time   `json:"last_detected"`
	RelatedPeople []string    `json:"related_people"`
	Confidence    float64     `json:"confidence"`
}

// ValueAlignment scores how well logged outcomes support one value.
type ValueAlignment struct {
	ValueID                     string   `json:"value_id"`
	AlignmentScore              float64  `json:"alignment_score"`
	SupportingInteractionIDs    []string `json:"supporting_interaction_ids"`
	ContradictingInteractionIDs []string `json:"contradicting_interaction_ids"`
	Trend                       Trend    `json:"trend"`
	Recommendation              string   `json:"recommendation,omitempty"`
}

// InsightType identifies a relationship insight.
type InsightType string

const (
	InsightNeglectedRelationship    InsightType = "neglected_relationship"
	InsightPositiveMomentum         InsightType = "positive_momentum"
	InsightRecurringNegativeEmotion InsightType = "recurring_negative_emotion"
	InsightMilestone                InsightType = "milestone"
)

// Insight is a persisted observation about one relationship. DedupKey is
// unique per user so an insight is recorded at most once.
type Insight struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Type        InsightType       `json:"type"`
	Person      string            `json:"person"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Confidence  float64           `json:"confidence"`
	DedupKey    string            `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
