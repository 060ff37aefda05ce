package jobs

import (
	"testing"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openJobsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.BuildJob{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestTransition_Forward(t *testing.T) {
	db := openJobsTestDB(t)
	db.Create(&models.BuildJob{ID: "b1", ProjectID: "p1", SessionID: "s1", Status: models.BuildPending})

	ok, err := Transition(db, &models.BuildJob{}, "b1", BuildMachine, models.BuildRunning, nil)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to apply")
	}

	var job models.BuildJob
	db.First(&job, "id = ?", "b1")
	if job.Status != models.BuildRunning {
		t.Errorf("Status = %q, want %q", job.Status, models.BuildRunning)
	}
}

func TestTransition_TerminalStampsCompletedAt(t *testing.T) {
	db := openJobsTestDB(t)
	db.Create(&models.BuildJob{ID: "b1", ProjectID: "p1", SessionID: "s1", Status: models.BuildRunning})

	ok, err := Transition(db, &models.BuildJob{}, "b1", BuildMachine, models.BuildCompleted, nil)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to apply")
	}

	var job models.BuildJob
	db.First(&job, "id = ?", "b1")
	if job.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal transition")
	}
}

func TestTransition_TerminalRowUnchanged(t *testing.T) {
	db := openJobsTestDB(t)
	db.Create(&models.BuildJob{ID: "b1", ProjectID: "p1", SessionID: "s1", Status: models.BuildCompleted})

	ok, err := Transition(db, &models.BuildJob{}, "b1", BuildMachine, models.BuildCancelled, nil)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if ok {
		t.Fatal("terminal row must not transition")
	}

	var job models.BuildJob
	db.First(&job, "id = ?", "b1")
	if job.Status != models.BuildCompleted {
		t.Errorf("Status = %q, want unchanged %q", job.Status, models.BuildCompleted)
	}
}

func TestMarkStarted(t *testing.T) {
	db := openJobsTestDB(t)
	db.Create(&models.BuildJob{ID: "b1", ProjectID: "p1", SessionID: "s1", Status: models.BuildPending})

	ok, err := MarkStarted(db, &models.BuildJob{}, "b1", BuildMachine, models.BuildRunning)
	if err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if !ok {
		t.Fatal("expected start to apply")
	}

	var job models.BuildJob
	db.First(&job, "id = ?", "b1")
	if job.StartedAt == nil {
		t.Error("StartedAt not set")
	}
}

func TestMarkFailed(t *testing.T) {
	db := openJobsTestDB(t)
	db.Create(&models.BuildJob{ID: "b1", ProjectID: "p1", SessionID: "s1", Status: models.BuildRunning})

	ok, err := MarkFailed(db, &models.BuildJob{}, "b1", BuildMachine, models.BuildFailed, "worker crashed")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if !ok {
		t.Fatal("expected failure to apply")
	}

	var job models.BuildJob
	db.First(&job, "id = ?", "b1")
	if job.ErrorMessage != "worker crashed" {
		t.Errorf("ErrorMessage = %q", job.ErrorMessage)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt not set on failure")
	}
}
