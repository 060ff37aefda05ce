package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/db"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testScheduler(t *testing.T) (*Scheduler, *queue.Memory, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	q := queue.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(gdb, q, log), q, gdb
}

func TestInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"dependency_update": 24 * time.Hour,
		"security_scan":     12 * time.Hour,
		"performance_audit": 7 * 24 * time.Hour,
		"cleanup":           72 * time.Hour,
	}
	for jobType, want := range cases {
		got, err := Interval(jobType)
		if err != nil {
			t.Fatalf("Interval(%q): %v", jobType, err)
		}
		if got != want {
			t.Errorf("Interval(%q) = %v, want %v", jobType, got, want)
		}
	}
	if _, err := Interval("defragment"); err == nil {
		t.Error("expected error for unknown job type")
	}
}

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := NextRun("security_scan", now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if want := now.Add(12 * time.Hour); !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestToggle_EnableRegistersRecurring(t *testing.T) {
	s, q, _ := testScheduler(t)

	cfg, err := s.Toggle(context.Background(), "p1", "security_scan", true)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !cfg.Enabled {
		t.Error("config not enabled")
	}
	if n := q.RecurringCount(cfg.ID); n != 1 {
		t.Fatalf("recurring registrations = %d, want 1", n)
	}
	if every := q.RecurringEvery(cfg.ID); every != "@every 12h0m0s" {
		t.Errorf("interval descriptor = %q", every)
	}
}

func TestToggle_DisableUnregisters(t *testing.T) {
	s, q, _ := testScheduler(t)

	cfg, err := s.Toggle(context.Background(), "p1", "cleanup", true)
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := s.Toggle(context.Background(), "p1", "cleanup", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if n := q.RecurringCount(cfg.ID); n != 0 {
		t.Errorf("recurring registrations = %d, want 0", n)
	}
}

// Any sequence of enable/disable toggles must leave either zero or one
// registration, matching the final enabled value, and never duplicate rows.
func TestToggle_SequenceConverges(t *testing.T) {
	s, q, gdb := testScheduler(t)

	seq := []bool{true, true, false, true, false, false, true}
	var last *models.MaintenanceJobConfig
	for i, enabled := range seq {
		cfg, err := s.Toggle(context.Background(), "p1", "dependency_update", enabled)
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if last != nil && cfg.ID != last.ID {
			t.Fatalf("toggle %d created a new config row", i)
		}
		last = cfg
	}

	var count int64
	gdb.Model(&models.MaintenanceJobConfig{}).Where("project_id = ?", "p1").Count(&count)
	if count != 1 {
		t.Errorf("config rows = %d, want 1", count)
	}
	want := 0
	if seq[len(seq)-1] {
		want = 1
	}
	if n := q.RecurringCount(last.ID); n != want {
		t.Errorf("recurring registrations = %d, want %d", n, want)
	}
}

func TestToggle_QueueFailureRollsBack(t *testing.T) {
	s, q, gdb := testScheduler(t)
	q.EnqueueErr = context.DeadlineExceeded

	if _, err := s.Toggle(context.Background(), "p1", "security_scan", true); err == nil {
		t.Fatal("expected error")
	}
	var count int64
	gdb.Model(&models.MaintenanceJobConfig{}).Count(&count)
	if count != 0 {
		t.Errorf("config rows after rollback = %d, want 0", count)
	}
}

func TestToggle_UnknownJobType(t *testing.T) {
	s, _, _ := testScheduler(t)
	if _, err := s.Toggle(context.Background(), "p1", "defragment", true); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}

func TestToggle_IndependentPerType(t *testing.T) {
	s, q, _ := testScheduler(t)

	a, err := s.Toggle(context.Background(), "p1", "security_scan", true)
	if err != nil {
		t.Fatalf("enable scan: %v", err)
	}
	b, err := s.Toggle(context.Background(), "p1", "cleanup", true)
	if err != nil {
		t.Fatalf("enable cleanup: %v", err)
	}
	if _, err := s.Toggle(context.Background(), "p1", "security_scan", false); err != nil {
		t.Fatalf("disable scan: %v", err)
	}
	if q.RecurringCount(a.ID) != 0 {
		t.Error("scan registration not removed")
	}
	if q.RecurringCount(b.ID) != 1 {
		t.Error("cleanup registration lost")
	}
}

func TestStartRun(t *testing.T) {
	s, _, gdb := testScheduler(t)

	cfg, err := s.Toggle(context.Background(), "p1", "security_scan", true)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	run, err := s.StartRun(cfg.ID)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.Status != models.MaintenanceRunning {
		t.Errorf("status = %q", run.Status)
	}
	if run.ProjectID != "p1" || run.JobType != "security_scan" {
		t.Errorf("run = %+v", run)
	}
	var count int64
	gdb.Model(&models.MaintenanceJobRun{}).Count(&count)
	if count != 1 {
		t.Errorf("run rows = %d", count)
	}
}

func TestStartRun_DisabledConfig(t *testing.T) {
	s, _, _ := testScheduler(t)

	cfg, err := s.Toggle(context.Background(), "p1", "cleanup", false)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if _, err := s.StartRun(cfg.ID); err == nil {
		t.Fatal("expected error for disabled config")
	}
}
