package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/gateway"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/ingest"
	leadrepo "leadflow_backend/internal/leads/repository"
	leadservice "leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/qualify"
	"leadflow_backend/internal/watermark"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting ingestor", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, cfg, "migrations"); err != nil {
		log.Error("failed to run migrations", "error", err)
		panic("failed to run migrations: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)

	gatewayClient := gateway.NewClient(cfg, log)
	if gatewayClient == nil {
		panic("gateway client not configured")
	}

	registry := channels.New(pool)
	tracker := watermark.NewTracker(watermark.NewRepository(pool), cfg.GetRecentIDCapacity(), log)

	modelAnalyzer, err := qualify.NewModelAnalyzer(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize model analyzer", "error", err)
		panic("failed to initialize model analyzer: " + err.Error())
	}
	if modelAnalyzer == nil {
		log.Info("model qualification disabled, running rule-only")
	}

	var primary qualify.Analyzer
	if modelAnalyzer != nil {
		primary = modelAnalyzer
	}
	engine := qualify.NewEngine(primary, qualify.NewRuleAnalyzer(), log)

	leadsService := leadservice.New(leadrepo.New(pool), eventBus, log)
	pipeline := ingest.NewPipeline(tracker, engine, leadsService, validator.New(), log)

	notifyClient, err := notification.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize notification client", "error", err)
		panic("failed to initialize notification client: " + err.Error())
	}
	defer func() { _ = notifyClient.Close() }()
	notification.NewModule(eventBus, notifyClient, log)

	var wg sync.WaitGroup

	if notifyClient != nil {
		worker, err := notification.NewWorker(cfg, notification.NewSMTPSender(cfg), gatewayClient, log)
		if err != nil {
			log.Error("failed to initialize notification worker", "error", err)
			panic("failed to initialize notification worker: " + err.Error())
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	poller := ingest.NewPoller(registry, gatewayClient, pipeline, cfg, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	if cfg.IsPushEnabled() {
		listener := ingest.NewPushListener(gatewayClient, pipeline, eventBus, cfg, log)
		instances, err := registry.ListActive(ctx)
		if err != nil {
			log.DatabaseError("channels.list_active", err)
		}
		for _, inst := range instances {
			inst := inst
			wg.Add(1)
			go func() {
				defer wg.Done()
				listener.Run(ctx, inst)
			}()
		}
	}

	app := apphttp.NewApp(cfg, pool, registry, gatewayClient, poller, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.Serve(ctx, cfg.GetHTTPAddr()); err != nil {
			log.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining")
	wg.Wait()
	log.Info("ingestor stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
