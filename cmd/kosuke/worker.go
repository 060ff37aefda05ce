package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/config"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/db"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/jobs"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/maintenance"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newWorkerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a job queue consumer",
		Long:  "Pulls queued jobs, marks them started, and dispatches the recurring schedule. The agent runtime reports progress and completion back through the API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	return cmd
}

func runWorker(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	gdb, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	q, err := queue.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	scheduler := maintenance.NewScheduler(gdb, q, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Move due recurring entries onto the pending list.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.DispatchDue(ctx, time.Now()); err != nil {
					logger.Error("dispatch recurring", "error", err)
				}
			}
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Worker consuming jobs")
	return q.Consume(ctx, func(taskCtx context.Context, task queue.Task) error {
		return handleTask(taskCtx, gdb, scheduler, logger, task)
	})
}

// handleTask marks the job row started for its family. A task whose context
// is already cancelled was removed between dequeue and execution and is
// dropped without touching the row.
func handleTask(ctx context.Context, gdb *gorm.DB, scheduler *maintenance.Scheduler, logger *slog.Logger, task queue.Task) error {
	if ctx.Err() != nil {
		logger.Info("skipping cancelled task", "job_id", task.ID, "family", task.Name)
		return nil
	}

	switch task.Name {
	case "build":
		_, err := jobs.MarkStarted(gdb, &models.BuildJob{}, task.ID, jobs.BuildMachine, models.BuildRunning)
		return err
	case "deploy":
		_, err := jobs.MarkStarted(gdb, &models.DeployJob{}, task.ID, jobs.DeployMachine, models.DeployRunning)
		return err
	case "vamos":
		_, err := jobs.MarkStarted(gdb, &models.VamosJob{}, task.ID, jobs.VamosMachine, models.VamosRunning)
		return err
	case "environment":
		_, err := jobs.MarkStarted(gdb, &models.EnvironmentJob{}, task.ID, jobs.EnvironmentMachine, models.EnvAnalyzing)
		return err
	case "maintenance":
		var payload maintenance.TaskPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode maintenance payload: %w", err)
		}
		run, err := scheduler.StartRun(payload.ConfigID)
		if err != nil {
			return err
		}
		// The run itself is owned by the agent runtime; the reference
		// consumer records it and completes immediately.
		_, err = jobs.Transition(gdb, &models.MaintenanceJobRun{}, run.ID, jobs.MaintenanceMachine, models.MaintenanceCompleted, nil)
		return err
	default:
		logger.Warn("unknown job family", "job_id", task.ID, "family", task.Name)
		return nil
	}
}
