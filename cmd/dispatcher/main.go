// cmd/dispatcher/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/odm-dispatcher/internal/bus"
	"github.com/tendant/odm-dispatcher/internal/config"
	"github.com/tendant/odm-dispatcher/internal/dispatch"
	"github.com/tendant/odm-dispatcher/internal/orchestrator"
	"github.com/tendant/odm-dispatcher/internal/share"
	"github.com/tendant/odm-dispatcher/internal/tracing"
	"github.com/tendant/odm-dispatcher/internal/trigger"
	"github.com/tendant/odm-dispatcher/internal/upload"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("dispatcher starting",
		"trigger", cfg.Trigger,
		"resource_group", cfg.ResourceGroup,
		"image", cfg.JobImage,
		"mount_path", cfg.MountPath,
		"results_backend", cfg.ResultsBackend,
		"results_container", cfg.ResultsContainer,
		"lock_backend", cfg.LockBackend,
		"poll_interval", cfg.PollInterval,
		"job_timeout", cfg.JobTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := tracing.InitTracer("odm-dispatcher", os.Stdout)
		if err != nil {
			fatal(logger, "init tracer", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Error("shutdown tracer", "err", err)
			}
		}()
	}

	stores, err := openStores(ctx, cfg)
	if err != nil {
		fatal(logger, "open results store", err, "backend", cfg.ResultsBackend)
	}
	logger.Info("results store ready", "backend", cfg.ResultsBackend, "container", cfg.ResultsContainer)

	locker, closeLocker, err := openLocker(cfg)
	if err != nil {
		fatal(logger, "open job lock", err, "backend", cfg.LockBackend, "endpoints", cfg.EtcdEndpoints)
	}
	defer closeLocker()

	// The bus carries lifecycle and completion events for every trigger;
	// only the NATS trigger needs it to start.
	var events dispatch.EventPublisher
	nc, err := bus.Connect(cfg.NATSURL)
	switch {
	case err == nil:
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
		defer nc.Close()
		events = nc
	case cfg.Trigger == "nats":
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
	default:
		logger.Warn("NATS unavailable, dispatch events disabled", "nats_url", cfg.NATSURL, "err", err)
	}

	uploader := upload.NewClient(stores.results, logger)

	d := dispatch.New(dispatchOptions(cfg), dispatch.Deps{
		Mount:        share.New(cfg.MountPath),
		Orchestrator: orchestrator.NewAzureCLI(cfg.ResourceGroup, nil, logger),
		Uploader:     uploader,
		Locker:       locker,
		Events:       events,
		Logger:       logger,
	})

	runner := trigger.NewRunner(ctx, d)
	runner.OnResult = func(res dispatch.Result) {
		uploaded, failed := res.Counts()
		logger.Info("dispatch finished", "dispatch_id", res.DispatchID, "job_name", res.JobName, "stage", res.Stage, "uploaded", uploaded, "failed", failed)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           trigger.NewRouter(runner, cfg.HTTPMaxBodySize, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "serve http", err, "addr", cfg.HTTPAddr)
		}
	}()

	switch cfg.Trigger {
	case "nats":
		sub := trigger.NewNATS(trigger.NATSConfig{
			Subject:         cfg.TriggerSubject,
			Queue:           cfg.DispatchQueue,
			SourceContainer: cfg.SourceContainer,
		}, stores.source, runner, logger)
		if _, err := sub.Subscribe(ctx, nc); err != nil {
			fatal(logger, "subscribe trigger", err, "subject", cfg.TriggerSubject, "queue", cfg.DispatchQueue)
		}
		logger.Info("listening for blob events", "subject", cfg.TriggerSubject, "queue", cfg.DispatchQueue)
	case "fs":
		go func() {
			err := trigger.WatchDir(ctx, trigger.FSConfig{
				Dir:         cfg.InboxDir,
				InitialScan: cfg.InboxScan,
				Debounce:    cfg.InboxDebounce,
			}, runner, logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				fatal(logger, "watch inbox", err, "dir", cfg.InboxDir)
			}
		}()
	case "http":
		logger.Info("accepting uploads", "route", "POST /v1/dispatch/{name}")
	}

	<-ctx.Done()
	logger.Info("shutting down, waiting for in-flight dispatches")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "err", err)
	}
	runner.Wait()
	logger.Info("dispatcher stopped")
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
