package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/db"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/maintenance"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "kosuke dev") {
		t.Errorf("expected output to contain 'kosuke dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestRootCmdListsSubcommands(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"version", "migrate", "serve", "worker"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q", sub)
		}
	}
}

func TestMigrateCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"migrate", "--config", "/nonexistent/config.yaml"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestHandleTask_MarksJobStarted(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := maintenance.NewScheduler(gdb, queue.NewMemory(), log)

	gdb.Create(&models.BuildJob{ID: "b1", ProjectID: "p1", SessionID: "s1", Status: models.BuildPending, TotalTickets: 1})

	if err := handleTask(context.Background(), gdb, scheduler, log, queue.Task{ID: "b1", Name: "build"}); err != nil {
		t.Fatalf("handleTask: %v", err)
	}
	var job models.BuildJob
	gdb.First(&job, "id = ?", "b1")
	if job.Status != models.BuildRunning || job.StartedAt == nil {
		t.Errorf("job = %+v", job)
	}
}

func TestHandleTask_CancelledTaskDropped(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := maintenance.NewScheduler(gdb, queue.NewMemory(), log)

	gdb.Create(&models.BuildJob{ID: "b1", ProjectID: "p1", SessionID: "s1", Status: models.BuildPending, TotalTickets: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := handleTask(ctx, gdb, scheduler, log, queue.Task{ID: "b1", Name: "build"}); err != nil {
		t.Fatalf("handleTask: %v", err)
	}
	var job models.BuildJob
	gdb.First(&job, "id = ?", "b1")
	if job.Status != models.BuildPending {
		t.Errorf("cancelled task touched the row: %+v", job)
	}
}
