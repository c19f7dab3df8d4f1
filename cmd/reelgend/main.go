package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"reelgen/internal/config"
	"reelgen/internal/daemon"
	"reelgen/internal/logging"
	"reelgen/internal/pipeline"
	"reelgen/internal/scheduler"
	"reelgen/internal/task"
	"reelgen/internal/workdir"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", filepath.Join(cfg.Paths.LogDir, "reelgend.log")},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := task.Open(cfg)
	if err != nil {
		logger.Error("open task store", logging.Error(err))
		os.Exit(1)
	}

	registry := buildRegistry(cfg)
	workdirs := workdir.NewManager(cfg)
	executor := pipeline.NewExecutor(cfg, store, registry, workdirs, logger)
	sched := scheduler.New(cfg, store, executor, logger)

	d, err := daemon.New(cfg, store, registry, sched, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("reelgend shutting down")
}
