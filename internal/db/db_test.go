package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "notes.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"jobs", "artifacts", "config", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	if err := database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	if err := db2.Conn().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations error = %v", err)
	}
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if count != len(migrations) {
		t.Errorf("migration count = %d, want %d", count, len(migrations))
	}
	if migrations[0].version != "001_init" {
		t.Errorf("first migration = %s, want 001_init", migrations[0].version)
	}
}

func TestMarkInterruptedJobs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = db1.Conn().Exec(`
		INSERT INTO jobs (id, video_url, status, stage, progress, created_at, updated_at)
		VALUES ('job-1', 'https://example.com/v.mp4', 'running', 'index', 40, datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert job error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var status, errMsg string
	err = db2.Conn().QueryRow("SELECT status, error FROM jobs WHERE id = 'job-1'").Scan(&status, &errMsg)
	if err != nil {
		t.Fatalf("query job error = %v", err)
	}
	if status != "failed" {
		t.Errorf("job status = %s, want failed", status)
	}
	if errMsg != InterruptedMessage {
		t.Errorf("job error = %s, want %q", errMsg, InterruptedMessage)
	}
}

func TestArtifactsCascadeOnJobDelete(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	conn := database.Conn()
	if _, err := conn.Exec(`INSERT INTO jobs (id, video_url, created_at, updated_at) VALUES ('j', 'u', datetime('now'), datetime('now'))`); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO artifacts (job_id, kind, container, name, created_at) VALUES ('j', 'manifest', 'manifests', 'j/manifest.json', datetime('now'))`); err != nil {
		t.Fatalf("insert artifact: %v", err)
	}
	if _, err := conn.Exec(`DELETE FROM jobs WHERE id = 'j'`); err != nil {
		t.Fatalf("delete job: %v", err)
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&count); err != nil {
		t.Fatalf("count artifacts: %v", err)
	}
	if count != 0 {
		t.Errorf("artifacts = %d, want 0 after cascade", count)
	}
}

type codedError struct{ code int }

func (e codedError) Error() string { return "sqlite error" }
func (e codedError) Code() int     { return e.code }

func TestIsBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy code", codedError{code: 5}, true},
		{"extended busy code", codedError{code: 5 | 2<<8}, true},
		{"other code", codedError{code: 19}, false},
		{"locked message", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"plain", errors.New("no such table"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBusy(tt.err); got != tt.want {
				t.Errorf("IsBusy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	calls := 0
	err := RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return codedError{code: 5}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryOnBusy() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	calls = 0
	permanent := errors.New("constraint failed")
	err = RetryOnBusy(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("non-busy error: err = %v, calls = %d", err, calls)
	}

	calls = 0
	err = RetryOnBusy(context.Background(), func() error {
		calls++
		return codedError{code: 5}
	})
	if !IsBusy(err) || calls != busyRetryAttempts {
		t.Errorf("exhausted: err = %v, calls = %d", err, calls)
	}
}

func TestRetryOnBusyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryOnBusy(ctx, func() error { return codedError{code: 5} })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
