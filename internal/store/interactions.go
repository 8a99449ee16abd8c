package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/tether/internal/model"
)

// CreateInteraction inserts an interaction and its people. ID and CreatedAt
// are filled in when empty.
func (db *DB) CreateInteraction(ctx context.Context, in *model.Interaction) error {
	if in.UserID == "" {
		return fmt.Errorf("create interaction: user id required: %w", ErrInvalid)
	}
	if !in.Outcome.Valid() {
		return fmt.Errorf("create interaction: outcome %q: %w", in.Outcome, ErrInvalid)
	}
	if len(in.People) == 0 {
		return fmt.Errorf("create interaction: at least one person required: %w", ErrInvalid)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = in.CreatedAt
	}

	emotions, err := encodeJSON(in.Emotions)
	if err != nil {
		return fmt.Errorf("encode emotions: %w", err)
	}
	valueIDs, err := encodeJSON(in.ValueIDs)
	if err != nil {
		return fmt.Errorf("encode value ids: %w", err)
	}
	focusIDs, err := encodeJSON(in.FocusAreaIDs)
	if err != nil {
		return fmt.Errorf("encode focus area ids: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, type, occurred_at, outcome, emotions, value_ids,
			focus_area_ids, duration, value_alignment, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ID, in.UserID, in.Type, millis(in.OccurredAt), string(in.Outcome), emotions, valueIDs,
		focusIDs, nullFloat(in.Duration), nullFloat(in.ValueAlignment), in.Notes, millis(in.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}

	for i, p := range in.People {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interaction_people (interaction_id, position, person) VALUES (?, ?, ?)`,
			in.ID, i, p); err != nil {
			return fmt.Errorf("insert person: %w", err)
		}
	}

	return tx.Commit()
}

// Interactions returns a user's interactions with occurred_at in [from, to],
// ordered by date ascending. A zero from means "since the beginning"; a zero
// to means "until now and beyond".
func (db *DB) Interactions(ctx context.Context, userID string, from, to time.Time) ([]model.Interaction, error) {
	lo := int64(math.MinInt64)
	hi := int64(math.MaxInt64)
	if !from.IsZero() {
		lo = millis(from)
	}
	if !to.IsZero() {
		hi = millis(to)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, type, occurred_at, outcome, emotions, value_ids, focus_area_ids,
			duration, value_alignment, notes, created_at
		FROM interactions
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, created_at ASC
	`, userID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}

	var out []model.Interaction
	index := make(map[string]int)
	for rows.Next() {
		var in model.Interaction
		var occurred, created int64
		var outcome string
		var emotions, valueIDs, focusIDs, notes sql.NullString
		var duration, alignment sql.NullFloat64
		if err := rows.Scan(&in.ID, &in.UserID, &in.Type, &occurred, &outcome, &emotions, &valueIDs,
			&focusIDs, &duration, &alignment, &notes, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.OccurredAt = fromMillis(occurred)
		in.CreatedAt = fromMillis(created)
		in.Outcome = model.Outcome(outcome)
		in.Notes = notes.String
		in.Duration = floatPtr(duration)
		in.ValueAlignment = floatPtr(alignment)
		if in.Emotions, err = decodeStrings(emotions); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode emotions for %s: %w", in.ID, err)
		}
		if in.ValueIDs, err = decodeStrings(valueIDs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode value ids for %s: %w", in.ID, err)
		}
		if in.FocusAreaIDs, err = decodeStrings(focusIDs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode focus ids for %s: %w", in.ID, err)
		}
		index[in.ID] = len(out)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(out) == 0 {
		return out, nil
	}

	// People are loaded in a second pass; the first cursor must be closed
	// before issuing another query on a single-connection pool.
	prows, err := db.QueryContext(ctx, `
		SELECT p.interaction_id, p.person
		FROM interaction_people p
		JOIN interactions i ON i.id = p.interaction_id
		WHERE i.user_id = ? AND i.occurred_at >= ? AND i.occurred_at <= ?
		ORDER BY p.interaction_id, p.position
	`, userID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var id, person string
		if err := prows.Scan(&id, &person); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		if i, ok := index[id]; ok {
			out[i].People = append(out[i].People, person)
		}
	}
	return out, prows.Err()
}

// InteractionsSince is shorthand for Interactions(ctx, userID, since, time.Time{}).
func (db *DB) InteractionsSince(ctx context.Context, userID string, since time.Time) ([]model.Interaction, error) {
	return db.Interactions(ctx, userID, since, time.Time{})
}

// CountInteractions returns the number of interactions logged by a user.
func (db *DB) CountInteractions(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count interactions: %w", err)
	}
	return n, nil
}
