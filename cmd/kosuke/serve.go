package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/build"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/config"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/db"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/jobs"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/maintenance"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/notify"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/runtime"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/sandbox"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Kosuke API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	gdb, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	adminDB, err := db.ConnectAdmin(cfg.Database)
	if err != nil {
		return err
	}

	rt, err := runtime.NewDocker(cfg.Docker.Host)
	if err != nil {
		return err
	}

	q, err := queue.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	git := sandbox.ExecGit{}
	registry := sandbox.NewRegistry(rt, git, adminDB, *cfg, cfg.Sandbox.Workdir)
	health := sandbox.NewHealthChecker(rt, cfg.Sandbox.InternalPort, cfg.Sandbox.ProbeTimeout())
	notifier := notify.New(cfg.Slack)

	builds := build.NewOrchestrator(gdb, q, registry, git, notifier, cfg.GitHub, logger)
	dispatcher := jobs.NewDispatcher(gdb, q, registry, logger)
	scheduler := maintenance.NewScheduler(gdb, q, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(gdb, registry, health, builds, dispatcher, scheduler)
	fmt.Fprintf(cmd.OutOrStdout(), "Kosuke API listening on :%d\n", cfg.Server.Port)
	return srv.Start(ctx, cfg.Server.Port)
}
