// Package alerts owns the accountability alert lifecycle: running the
// detectors, applying the daily cap and title dedup, persisting what is
// left, and acknowledging or dismissing alerts afterwards.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/tether/internal/detect"
	"github.com/lazypower/tether/internal/model"
	"go.uber.org/zap"
)

// ErrUnknownType is returned by RunCheck for an alert type it does not know.
var ErrUnknownType = errors.New("unknown alert type")

// dedupWindow is how far back an identical title suppresses a new alert.
const dedupWindow = 24 * time.Hour

// Store is the alert persistence the manager needs.
type Store interface {
	CreateAlert(ctx context.Context, a *model.Alert) error
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	AlertsSince(ctx context.Context, userID string, since time.Time) ([]model.Alert, error)
	ListAlerts(ctx context.Context, userID string, includeDismissed bool, limit int) ([]model.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) (*model.Alert, error)
	DismissAlert(ctx context.Context, id, reason string, at time.Time) (*model.Alert, error)
}

// Options tune the manager. Zero values fall back to the defaults.
type Options struct {
	MaxPerDay  int
	Location   *time.Location // day boundary for the cap
	Thresholds detect.Thresholds
	Now        func() time.Time
}

// CheckResult reports one accountability check. Alerts holds the alerts
// created by this run, or today's alerts when the cap was already reached.
type CheckResult struct {
	Alerts     []model.Alert     `json:"alerts"`
	Created    int               `json:"created"`
	Capped     bool              `json:"capped"`
	Candidates int               `json:"candidates"`
	Filtered   int               `json:"filtered"`
	Duplicates int               `json:"duplicates"`
	Failed     []model.AlertType `json:"failed,omitempty"`
}

// Manager runs accountability checks for users.
type Manager struct {
	store      Store
	suite      *detect.Suite
	log        *zap.Logger
	maxPerDay  int
	loc        *time.Location
	thresholds detect.Thresholds
	now        func() time.Time
	locks      userLocks
}

// NewManager creates a Manager.
func NewManager(store Store, suite *detect.Suite, log *zap.Logger, opts Options) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxPerDay <= 0 {
		opts.MaxPerDay = 5
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Thresholds == nil {
		opts.Thresholds = detect.DefaultThresholds()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		store:      store,
		suite:      suite,
		log:        log,
		maxPerDay:  opts.MaxPerDay,
		loc:        opts.Location,
		thresholds: opts.Thresholds,
		now:        opts.Now,
	}
}

// RunCheck runs the detectors (all of them, or only the listed types) and
// persists what survives filtering, ranking, the daily cap and dedup.
func (m *Manager) RunCheck(ctx context.Context, userID string, types ...model.AlertType) (*CheckResult, error) {
	for _, t := range types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w %q", ErrUnknownType, t)
		}
	}
	now := m.now()

	today, err := m.today(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if len(today) >= m.maxPerDay {
		m.log.Debug("daily alert cap reached, skipping detection",
			zap.String("user_id", userID), zap.Int("today", len(today)))
		return &CheckResult{Alerts: today, Capped: true}, nil
	}

	rep, err := m.suite.Run(ctx, userID, now, types...)
	if err != nil {
		return nil, fmt.Errorf("run detectors: %w", err)
	}
	res := &CheckResult{Candidates: len(rep.Candidates), Alerts: []model.Alert{}}
	for _, f := range rep.Failures {
		res.Failed = append(res.Failed, f.Type)
	}

	ranked := m.rank(rep.Candidates)
	res.Filtered = len(rep.Candidates) - len(ranked)
	if budget := m.maxPerDay - len(today); len(ranked) > budget {
		ranked = ranked[:budget]
	}
	if len(ranked) == 0 {
		return res, nil
	}

	unlock := m.locks.lock(userID)
	defer unlock()

	// Another check may have written since the first count.
	today, err = m.today(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	budget := m.maxPerDay - len(today)
	if budget <= 0 {
		res.Alerts = today
		res.Capped = true
		return res, nil
	}

	recent, err := m.store.AlertsSince(ctx, userID, now.Add(-dedupWindow))
	if err != nil {
		return nil, fmt.Errorf("load recent alerts: %w", err)
	}
	seen := make(map[string]bool, len(recent))
	for _, a := range recent {
		seen[a.Title] = true
	}

	for _, c := range ranked {
		if res.Created >= budget {
			break
		}
		if seen[c.Title] {
			res.Duplicates++
			continue
		}
		seen[c.Title] = true

		a := model.Alert{
			UserID:           userID,
			Type:             c.Type,
			Severity:         c.Severity,
			Title:            c.Title,
			Description:      c.Description,
			Evidence:         c.Evidence,
			SuggestedActions: c.SuggestedActions,
			Confidence:       model.Clamp01(c.Confidence),
			CreatedAt:        now,
			Metadata:         c.Metadata,
		}
		if err := m.store.CreateAlert(ctx, &a); err != nil {
			return nil, err
		}
		res.Alerts = append(res.Alerts, a)
		res.Created++
	}

	m.log.Info("accountability check",
		zap.String("user_id", userID),
		zap.Int("candidates", res.Candidates),
		zap.Int("created", res.Created),
		zap.Int("duplicates", res.Duplicates))
	return res, nil
}

// rank drops candidates below their type's threshold and orders the rest by
// priority, highest first. Equal priorities keep detector order.
func (m *Manager) rank(cands []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if m.thresholds.Allows(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// today returns the user's non-dismissed alerts created since the start of
// the current day.
func (m *Manager) today(ctx context.Context, userID string, now time.Time) ([]model.Alert, error) {
	local := now.In(m.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.loc)
	all, err := m.store.AlertsSince(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("load today's alerts: %w", err)
	}
	out := make([]model.Alert, 0, len(all))
	for _, a := range all {
		if !a.Dismissed() {
			out = append(out, a)
		}
	}
	return out, nil
}

// Acknowledge marks an alert seen. Repeat calls keep the first timestamp.
func (m *Manager) Acknowledge(ctx context.Context, id string) (*model.Alert, error) {
	return m.store.AcknowledgeAlert(ctx, id, m.now())
}

// Dismiss retires an alert. It stays retrievable by id but no longer counts
// against the daily cap or shows in default listings.
func (m *Manager) Dismiss(ctx context.Context, id, reason string) (*model.Alert, error) {
	return m.store.DismissAlert(ctx, id, reason, m.now())
}

// Get returns one alert, dismissed or not.
func (m *Manager) Get(ctx context.Context, id string) (*model.Alert, error) {
	return m.store.GetAlert(ctx, id)
}

// List returns a user's alerts newest first.
func (m *Manager) List(ctx context.Context, userID string, includeDismissed bool, limit int) ([]model.Alert, error) {
	return m.store.ListAlerts(ctx, userID, includeDismissed, limit)
}

// userLocks hands out one mutex per user, dropping it once nobody holds or
// waits on it.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*userLock)
	}
	ul := l.locks[userID]
	if ul == nil {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
