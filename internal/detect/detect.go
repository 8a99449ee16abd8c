// Package detect holds the accountability signal detectors. Detectors are
// read-only: they look at a user's recent history and propose alert
// candidates, leaving persistence to the alerts package.
package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/tether/internal/classify"
	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reader is the user-scoped history the detectors read.
type Reader interface {
	Interactions(ctx context.Context, userID string, from, to time.Time) ([]model.Interaction, error)
	Values(ctx context.Context, userID string) ([]model.CoreValue, error)
	FocusAreas(ctx context.Context, userID string) ([]model.FocusArea, error)
}

// Detector proposes alert candidates of one type.
type Detector interface {
	Type() model.AlertType
	Detect(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error)
}

// Thresholds are the minimum confidences per alert type.
type Thresholds map[model.AlertType]float64

// DefaultThresholds returns the stock confidence gates.
func DefaultThresholds() Thresholds {
	return ThresholdsFrom(config.Default().Alerts.Thresholds)
}

// ThresholdsFrom converts the config section.
func ThresholdsFrom(c config.Thresholds) Thresholds {
	return Thresholds{
		model.AlertValueContradiction: c.ValueContradiction,
		model.AlertGoalDrift:          c.GoalDrift,
		model.AlertPatternDetected:    c.PatternDetected,
		model.AlertNeglectedArea:      c.NeglectedArea,
	}
}

// Allows reports whether the candidate clears its type's gate.
func (t Thresholds) Allows(c model.Candidate) bool {
	return c.Confidence >= t[c.Type]
}

// Defaults builds the four stock detectors.
func Defaults(r Reader, c classify.Classifier, th Thresholds) []Detector {
	return []Detector{
		NewValueContradiction(r, th[model.AlertValueContradiction]),
		NewGoalDrift(r, th[model.AlertGoalDrift]),
		NewPatternBased(r, c, th[model.AlertPatternDetected]),
		NewNeglectedArea(r, th[model.AlertNeglectedArea]),
	}
}

// Failure records a detector that produced nothing because it errored.
type Failure struct {
	Type model.AlertType
	Err  error
}

// Report is the joined output of one suite run.
type Report struct {
	Candidates []model.Candidate
	Failures   []Failure
}

// Suite runs a set of detectors concurrently.
type Suite struct {
	detectors []Detector
	log       *zap.Logger
}

// NewSuite creates a suite over the given detectors.
func NewSuite(log *zap.Logger, detectors ...Detector) *Suite {
	if log == nil {
		log = zap.NewNop()
	}
	return &Suite{detectors: detectors, log: log}
}

// Types lists the alert types the suite can produce, in detector order.
func (s *Suite) Types() []model.AlertType {
	out := make([]model.AlertType, len(s.detectors))
	for i, d := range s.detectors {
		out[i] = d.Type()
	}
	return out
}

// Run dispatches every detector (or only those whose type is listed) and
// joins the results in detector order. A failing detector is logged and
// contributes no candidates; the only error returned is the caller's
// context being done.
func (s *Suite) Run(ctx context.Context, userID string, now time.Time, types ...model.AlertType) (Report, error) {
	selected := s.selected(types)
	results := make([][]model.Candidate, len(selected))
	errs := make([]error, len(selected))

	var g errgroup.Group
	for i, d := range selected {
		g.Go(func() error {
			results[i], errs[i] = runIsolated(ctx, d, userID, now)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	var rep Report
	for i, d := range selected {
		if errs[i] != nil {
			s.log.Warn("detector failed",
				zap.String("detector", string(d.Type())),
				zap.String("user_id", userID),
				zap.Error(errs[i]))
			rep.Failures = append(rep.Failures, Failure{Type: d.Type(), Err: errs[i]})
			continue
		}
		rep.Candidates = append(rep.Candidates, results[i]...)
	}
	s.log.Debug("detection pass complete",
		zap.String("user_id", userID),
		zap.Int("detectors", len(selected)),
		zap.Int("candidates", len(rep.Candidates)),
		zap.Int("failures", len(rep.Failures)))
	return rep, nil
}

func (s *Suite) selected(types []model.AlertType) []Detector {
	if len(types) == 0 {
		return s.detectors
	}
	var out []Detector
	for _, d := range s.detectors {
		for _, t := range types {
			if d.Type() == t {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func runIsolated(ctx context.Context, d Detector, userID string, now time.Time) (out []model.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("detector panic: %v", r)
		}
	}()
	return d.Detect(ctx, userID, now)
}

func daysAgo(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
