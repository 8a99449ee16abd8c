package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lazypower/tether/internal/model"
	"golang.org/x/sync/errgroup"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{
		"schema_versions", "interactions", "interaction_people", "core_values", "focus_areas",
		"alerts", "relationship_metrics", "metrics_history", "insights", "patterns",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestAlertsConstraints(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO alerts (id, user_id, type, severity, title, confidence, created_at)
		VALUES ('a1', 'u1', 'goal_drift', 'warning', 't', 0.8, 1000)
	`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO alerts (id, user_id, type, severity, title, confidence, created_at)
		VALUES ('a2', 'u1', 'bogus', 'warning', 't', 0.8, 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid type, got nil")
	}

	_, err = db.Exec(`
		INSERT INTO alerts (id, user_id, type, severity, title, confidence, created_at)
		VALUES ('a3', 'u1', 'goal_drift', 'warning', 't', 1.5, 1000)
	`)
	if err == nil {
		t.Error("expected error for confidence > 1, got nil")
	}
}

func TestInteractionOutcomeConstraint(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO interactions (id, user_id, occurred_at, outcome, created_at)
		VALUES ('i1', 'u1', 1000, 'conflict', 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid outcome, got nil")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion after re-migrate = %d, want %d", v, len(migrations))
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	db := testDB(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpenFileAppliesPragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "sub", "tether.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	}
	for pragma, want := range checks {
		var got string
		if err := db.QueryRow("PRAGMA " + pragma).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", pragma, got, want)
		}
	}
}

func TestOpenFileConcurrentWriters(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "tether.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			m := model.RelationshipMetrics{
				Person:           fmt.Sprintf("p%d", i%5),
				InteractionCount: i + 1,
				HealthScore:      0.5,
				CalculatedAt:     now,
			}
			if err := db.SaveMetrics(ctx, "u1", m); err != nil {
				return err
			}
			return db.AppendHistory(ctx, "u1", m, 52)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent writes: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM metrics_history").Scan(&n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 20 {
		t.Errorf("history rows = %d, want 20", n)
	}
}
