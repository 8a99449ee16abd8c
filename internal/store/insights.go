package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/tether/internal/model"
)

// RecordInsight stores an insight unless one with the same dedup key already
// exists for the user. It reports whether the insight was new.
func (db *DB) RecordInsight(ctx context.Context, ins *model.Insight) (bool, error) {
	if ins.DedupKey == "" {
		return false, fmt.Errorf("record insight: dedup key required")
	}
	if ins.ID == "" {
		ins.ID = uuid.New().String()
	}
	if ins.CreatedAt.IsZero() {
		ins.CreatedAt = time.Now().UTC()
	}
	metadata, err := encodeJSON(ins.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	result, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO insights (id, user_id, type, person, title, description, confidence,
			dedup_key, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ins.ID, ins.UserID, string(ins.Type), ins.Person, ins.Title, ins.Description, ins.Confidence,
		ins.DedupKey, metadata, millis(ins.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("record insight: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// Insights returns a user's recorded insights, newest first.
func (db *DB) Insights(ctx context.Context, userID string, limit int) ([]model.Insight, error) {
	q := `
		SELECT id, user_id, type, person, title, description, confidence, dedup_key, metadata, created_at
		FROM insights WHERE user_id = ? ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var ins model.Insight
		var typ string
		var person, desc, metadata sql.NullString
		var created int64
		if err := rows.Scan(&ins.ID, &ins.UserID, &typ, &person, &ins.Title, &desc, &ins.Confidence,
			&ins.DedupKey, &metadata, &created); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		ins.Type = model.InsightType(typ)
		ins.Person = person.String
		ins.Description = desc.String
		ins.CreatedAt = fromMillis(created)
		if ins.Metadata, err = decodeMap(metadata); err != nil {
			return nil, fmt.Errorf("decode insight metadata: %w", err)
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

func patternKey(p model.Pattern) string {
	people := make([]string, len(p.RelatedPeople))
	for i, person := range p.RelatedPeople {
		people[i] = personKey(person)
	}
	return strings.Join(people, "|")
}

// UpsertPattern stores the latest state of a detected pattern, keyed by type
// and related people.
func (db *DB) UpsertPattern(ctx context.Context, userID string, p model.Pattern) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pattern: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO patterns (user_id, type, pattern_key, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, type, pattern_key) DO UPDATE SET
			data = excluded.data, updated_at = excluded.updated_at
	`, userID, string(p.Type), patternKey(p), string(data), millis(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

// Patterns returns the stored patterns for a user.
func (db *DB) Patterns(ctx context.Context, userID string) ([]model.Pattern, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT data FROM patterns WHERE user_id = ? ORDER BY type, pattern_key
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []model.Pattern
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		var p model.Pattern
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
