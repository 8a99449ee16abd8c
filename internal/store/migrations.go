package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "interactions: logged encounters and their people",
		SQL: `
CREATE TABLE interactions (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    type             TEXT NOT NULL DEFAULT '',
    occurred_at      INTEGER NOT NULL,
    outcome          TEXT NOT NULL CHECK (outcome IN ('positive', 'neutral', 'negative', 'mixed')),
    emotions         TEXT,
    value_ids        TEXT,
    focus_area_ids   TEXT,
    duration         REAL,
    value_alignment  REAL CHECK (value_alignment IS NULL OR (value_alignment >= 0 AND value_alignment <= 1)),
    notes            TEXT,
    created_at       INTEGER NOT NULL
);

CREATE INDEX idx_interactions_user_time ON interactions(user_id, occurred_at);

CREATE TABLE interaction_people (
    interaction_id TEXT NOT NULL,
    position       INTEGER NOT NULL,
    person         TEXT NOT NULL,
    PRIMARY KEY (interaction_id, position),
    FOREIGN KEY (interaction_id) REFERENCES interactions(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     2,
		Description: "core_values and focus_areas: declared intentions",
		SQL: `
CREATE TABLE core_values (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT,
    importance  INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_values_user ON core_values(user_id);

CREATE TABLE focus_areas (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    name       TEXT NOT NULL,
    goal       TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_focus_user ON focus_areas(user_id);
`,
	},
	{
		Version:     3,
		Description: "alerts: accountability alert lifecycle",
		SQL: `
CREATE TABLE alerts (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    type              TEXT NOT NULL CHECK (type IN ('value_contradiction', 'goal_drift', 'pattern_detected', 'neglected_area')),
    severity          TEXT NOT NULL CHECK (severity IN ('info', 'warning', 'critical')),
    title             TEXT NOT NULL,
    description       TEXT,
    evidence          TEXT,
    suggested_actions TEXT,
    confidence        REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    created_at        INTEGER NOT NULL,
    acknowledged_at   INTEGER,
    dismissed_at      INTEGER,
    dismiss_reason    TEXT,
    metadata          TEXT
);

CREATE INDEX idx_alerts_user_created ON alerts(user_id, created_at DESC);
`,
	},
	{
		Version:     4,
		Description: "relationship_metrics and metrics_history: health scores",
		SQL: `
CREATE TABLE relationship_metrics (
    user_id       TEXT NOT NULL,
    person_key    TEXT NOT NULL,
    health_score  REAL NOT NULL,
    data          TEXT NOT NULL,
    calculated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, person_key)
);

CREATE TABLE metrics_history (
    id            INTEGER PRIMARY KEY,
    user_id       TEXT NOT NULL,
    person_key    TEXT NOT NULL,
    health_score  REAL NOT NULL,
    data          TEXT NOT NULL,
    calculated_at INTEGER NOT NULL
);

CREATE INDEX idx_history_person ON metrics_history(user_id, person_key, id);
`,
	},
	{
		Version:     5,
		Description: "insights and patterns: derived observations",
		SQL: `
CREATE TABLE insights (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    type        TEXT NOT NULL,
    person      TEXT,
    title       TEXT NOT NULL,
    description TEXT,
    confidence  REAL NOT NULL,
    dedup_key   TEXT NOT NULL,
    metadata    TEXT,
    created_at  INTEGER NOT NULL,
    UNIQUE (user_id, dedup_key)
);

CREATE INDEX idx_insights_user ON insights(user_id, created_at DESC);

CREATE TABLE patterns (
    user_id     TEXT NOT NULL,
    type        TEXT NOT NULL,
    pattern_key TEXT NOT NULL,
    data        TEXT NOT NULL,
    updated_at  INTEGER NOT NULL,
    PRIMARY KEY (user_id, type, pattern_key)
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
