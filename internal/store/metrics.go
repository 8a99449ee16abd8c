package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lazypower/tether/internal/model"
)

func personKey(person string) string {
	return strings.ToLower(strings.TrimSpace(person))
}

// SaveMetrics upserts the latest metrics for one relationship.
func (db *DB) SaveMetrics(ctx context.Context, userID string, m model.RelationshipMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO relationship_metrics (user_id, person_key, health_score, data, calculated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, person_key) DO UPDATE SET
			health_score = excluded.health_score,
			data = excluded.data,
			calculated_at = excluded.calculated_at
	`, userID, personKey(m.Person), m.HealthScore, string(data), millis(m.CalculatedAt))
	if err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

// StoredMetrics returns the last saved metrics for every relationship of a
// user, highest health score first.
func (db *DB) StoredMetrics(ctx context.Context, userID string) ([]model.RelationshipMetrics, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT data FROM relationship_metrics
		WHERE user_id = ? ORDER BY health_score DESC, person_key
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()
	return scanMetricsRows(rows)
}

// AppendHistory adds a metrics snapshot to the person's history and trims the
// buffer to the newest limit entries.
func (db *DB) AppendHistory(ctx context.Context, userID string, m model.RelationshipMetrics, limit int) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	key := personKey(m.Person)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metrics_history (user_id, person_key, health_score, data, calculated_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, key, m.HealthScore, string(data), millis(m.CalculatedAt)); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM metrics_history
			WHERE user_id = ? AND person_key = ? AND id NOT IN (
				SELECT id FROM metrics_history
				WHERE user_id = ? AND person_key = ?
				ORDER BY id DESC LIMIT ?
			)
		`, userID, key, userID, key, limit); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}
	return tx.Commit()
}

// History returns a person's metrics snapshots, oldest first.
func (db *DB) History(ctx context.Context, userID, person string) ([]model.RelationshipMetrics, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT data FROM metrics_history
		WHERE user_id = ? AND person_key = ? ORDER BY id ASC
	`, userID, personKey(person))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanMetricsRows(rows)
}

type dataRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMetricsRows(rows dataRows) ([]model.RelationshipMetrics, error) {
	var out []model.RelationshipMetrics
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		var m model.RelationshipMetrics
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
