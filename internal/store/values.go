package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/tether/internal/model"
)

// CreateValue declares a core value for a user.
func (db *DB) CreateValue(ctx context.Context, v *model.CoreValue) error {
	if v.UserID == "" || strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("create value: user id and name required: %w", ErrInvalid)
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO core_values (id, user_id, name, description, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, v.UserID, v.Name, v.Description, v.Importance, millis(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert value: %w", err)
	}
	return nil
}

// Values returns a user's declared values ordered by creation time.
func (db *DB) Values(ctx context.Context, userID string) ([]model.CoreValue, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, name, description, importance, created_at
		FROM core_values WHERE user_id = ? ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	var out []model.CoreValue
	for rows.Next() {
		var v model.CoreValue
		var desc sql.NullString
		var created int64
		if err := rows.Scan(&v.ID, &v.UserID, &v.Name, &desc, &v.Importance, &created); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		v.Description = desc.String
		v.CreatedAt = fromMillis(created)
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreateFocusArea declares a focus area for a user.
func (db *DB) CreateFocusArea(ctx context.Context, f *model.FocusArea) error {
	if f.UserID == "" || strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("create focus area: user id and name required: %w", ErrInvalid)
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	var goal sql.NullString
	if f.Goal != nil {
		goal = sql.NullString{String: *f.Goal, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO focus_areas (id, user_id, name, goal, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.UserID, f.Name, goal, millis(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert focus area: %w", err)
	}
	return nil
}

// FocusAreas returns a user's focus areas ordered by creation time.
func (db *DB) FocusAreas(ctx context.Context, userID string) ([]model.FocusArea, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, name, goal, created_at
		FROM focus_areas WHERE user_id = ? ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query focus areas: %w", err)
	}
	defer rows.Close()

	var out []model.FocusArea
	for rows.Next() {
		var f model.FocusArea
		var goal sql.NullString
		var created int64
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &goal, &created); err != nil {
			return nil, fmt.Errorf("scan focus area: %w", err)
		}
		if goal.Valid {
			g := goal.String
			f.Goal = &g
		}
		f.CreatedAt = fromMillis(created)
		out = append(out, f)
	}
	return out, rows.Err()
}
