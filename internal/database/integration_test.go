package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDatabaseIntegration runs the shipped migrations against SQLite
func TestDatabaseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	// second run is a no-op
	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}

	var name string
	query := "SELECT name FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRowContext(ctx, query, "durable_stores").Scan(&name); err != nil {
		t.Fatalf("durable_stores table not found: %v", err)
	}

	var runs int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&runs); err != nil {
		t.Fatal(err)
	}
	if runs != 1 {
		t.Errorf("migrations recorded = %d, want 1", runs)
	}

	t.Run("upsert replaces payload", func(t *testing.T) {
		for _, payload := range []string{`[]`, `[{"retryCount":1}]`} {
			if _, err := db.ExecContext(ctx, db.Dialect.UpsertStore(), "telemetry", payload); err != nil {
				t.Fatalf("upsert failed: %v", err)
			}
		}
		var payload string
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(payload) FROM durable_stores WHERE name = ?", "telemetry").Scan(&count, &payload); err != nil {
			t.Fatal(err)
		}
		if count != 1 || payload != `[{"retryCount":1}]` {
			t.Errorf("got count=%d payload=%s", count, payload)
		}
	})
}

// TestMigrationFailureRollsBack checks a broken migration is not recorded
func TestMigrationFailureRollsBack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sqlite"), 0o755); err != nil {
		t.Fatal(err)
	}
	broken := "CREATE TABLE ok_table (id INTEGER);\nCREATE TABLE broken (;\n"
	if err := os.WriteFile(filepath.Join(dir, "sqlite", "001_broken.sql"), []byte(broken), 0o644); err != nil {
		t.Fatal(err)
	}

	db := openTestDB(t)
	if err := db.RunMigrations(dir); err == nil {
		t.Fatal("expected migration error")
	}

	ctx := context.Background()
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("failed migration was recorded")
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'ok_table'").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("statements from the failed migration were not rolled back")
	}
}

// TestInTx checks commit on success and rollback on error
func TestInTx(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	ctx := context.Background()
	errAbort := errors.New("abort")

	tests := []struct {
		name    string
		store   string
		fail    bool
		wantRow int
	}{
		{name: "commit", store: "kept", wantRow: 1},
		{name: "rollback", store: "scratch", fail: true, wantRow: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.InTx(ctx, func(tx *Tx) error {
				if _, err := tx.ExecContext(ctx, tx.GetDialect().UpsertStore(), tt.store, "[]"); err != nil {
					return err
				}
				if tt.fail {
					return errAbort
				}
				return nil
			})
			if tt.fail && !errors.Is(err, errAbort) {
				t.Fatalf("InTx error = %v, want %v", err, errAbort)
			}
			if !tt.fail && err != nil {
				t.Fatalf("InTx: %v", err)
			}

			var count int
			if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM durable_stores WHERE name = ?", tt.store).Scan(&count); err != nil {
				t.Fatal(err)
			}
			if count != tt.wantRow {
				t.Errorf("rows for %s = %d, want %d", tt.store, count, tt.wantRow)
			}
		})
	}
}
