package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/tether/internal/model"
)

const alertColumns = `id, user_id, type, severity, title, description, evidence, suggested_actions,
	confidence, created_at, acknowledged_at, dismissed_at, dismiss_reason, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(s rowScanner) (model.Alert, error) {
	var a model.Alert
	var typ, severity string
	var desc, evidence, actions, reason, metadata sql.NullString
	var created int64
	var acked, dismissed sql.NullInt64
	if err := s.Scan(&a.ID, &a.UserID, &typ, &severity, &a.Title, &desc, &evidence, &actions,
		&a.Confidence, &created, &acked, &dismissed, &reason, &metadata); err != nil {
		return a, err
	}
	a.Type = model.AlertType(typ)
	a.Severity = model.Severity(severity)
	a.Description = desc.String
	a.CreatedAt = fromMillis(created)
	a.AcknowledgedAt = timePtr(acked)
	a.DismissedAt = timePtr(dismissed)
	a.DismissReason = reason.String

	var err error
	if a.Evidence, err = decodeStrings(evidence); err != nil {
		return a, fmt.Errorf("decode evidence: %w", err)
	}
	if a.SuggestedActions, err = decodeStrings(actions); err != nil {
		return a, fmt.Errorf("decode actions: %w", err)
	}
	if a.Metadata, err = decodeMap(metadata); err != nil {
		return a, fmt.Errorf("decode metadata: %w", err)
	}
	return a, nil
}

// CreateAlert persists a new accountability alert.
func (db *DB) CreateAlert(ctx context.Context, a *model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	evidence, err := encodeJSON(a.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	actions, err := encodeJSON(a.SuggestedActions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	metadata, err := encodeJSON(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, string(a.Type), string(a.Severity), a.Title, a.Description, evidence, actions,
		a.Confidence, millis(a.CreatedAt), nullMillis(a.AcknowledgedAt), nullMillis(a.DismissedAt),
		a.DismissReason, metadata)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// GetAlert returns an alert by id, including dismissed alerts.
func (db *DB) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	row := db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return &a, nil
}

// AlertsSince returns every alert (dismissed included) created for a user at
// or after since, newest first.
func (db *DB) AlertsSince(ctx context.Context, userID string, since time.Time) ([]model.Alert, error) {
	return db.queryAlerts(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id
	`, userID, millis(since))
}

// ListAlerts returns a user's alerts newest first. Dismissed alerts are only
// included on request. A limit <= 0 means no limit.
func (db *DB) ListAlerts(ctx context.Context, userID string, includeDismissed bool, limit int) ([]model.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ?`
	if !includeDismissed {
		q += ` AND dismissed_at IS NULL`
	}
	q += ` ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.queryAlerts(ctx, q, args...)
}

func (db *DB) queryAlerts(ctx context.Context, q string, args ...any) ([]model.Alert, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AcknowledgeAlert stamps acknowledged_at once; later calls keep the first
// timestamp.
func (db *DB) AcknowledgeAlert(ctx context.Context, id string, at time.Time) (*model.Alert, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE alerts SET acknowledged_at = COALESCE(acknowledged_at, ?) WHERE id = ?
	`, millis(at), id)
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return db.GetAlert(ctx, id)
}

// DismissAlert marks an alert dismissed. Dismissal is terminal: a second
// dismissal keeps the original time and reason.
func (db *DB) DismissAlert(ctx context.Context, id, reason string, at time.Time) (*model.Alert, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE alerts SET
			dismiss_reason = CASE WHEN dismissed_at IS NULL THEN ? ELSE dismiss_reason END,
			dismissed_at   = COALESCE(dismissed_at, ?)
		WHERE id = ?
	`, reason, millis(at), id)
	if err != nil {
		return nil, fmt.Errorf("dismiss alert: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return db.GetAlert(ctx, id)
}
