package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradeboard/tradeboard/internal/app"
	jobmetrics "github.com/tradeboard/tradeboard/internal/jobs"
	"github.com/tradeboard/tradeboard/internal/platform/cache"
	"github.com/tradeboard/tradeboard/internal/registry/ingest"
	"github.com/tradeboard/tradeboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	notifier := ingest.NewNotifier(redisClient, logger)
	reloadJob := jobs.NewRegistryReloadJob(cfg.DataFilePath, notifier, logger, jobmetrics.NewMetrics(nil))

	reloadTask, err := jobs.NewRegistryReloadTask(false)
	if err != nil {
		logger.Error("build reload task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.DataFilePath != "" && cfg.ReloadCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ReloadCron, Task: reloadTask})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Redis().AsynqOpt(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRegistryReloadCheck, Handler: reloadJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("data_file", cfg.DataFilePath), slog.String("reload_cron", cfg.ReloadCron))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
