package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealerline_backend/internal/adapters"
	"dealerline_backend/internal/conversation"
	"dealerline_backend/internal/conversation/breaker"
	"dealerline_backend/internal/conversation/consumer"
	"dealerline_backend/internal/conversation/metricsagg"
	"dealerline_backend/internal/conversation/repository"
	"dealerline_backend/internal/events"
	apphttp "dealerline_backend/internal/http"
	"dealerline_backend/internal/prompt"
	"dealerline_backend/internal/scheduler"
	"dealerline_backend/migrations"
	"dealerline_backend/platform/ai/gemini"
	"dealerline_backend/platform/config"
	"dealerline_backend/platform/db"
	"dealerline_backend/platform/logger"
	"dealerline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting conversation engine", "env", cfg.Env)

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

	if err := db.RunMigrations(ctx, cfg, migrations.FS); err != nil {
		log.Error("failed to run migrations", "error", err)
		panic("failed to run migrations: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Close(10 * time.Second)
	val := validator.New()

	brk := breaker.New(breaker.Config{
		FailureThreshold: cfg.GetBreakerFailureThreshold(),
		CooldownPeriod:   cfg.GetBreakerResetTimeout(),
		SuccessThreshold: cfg.GetBreakerHalfOpenSuccesses(),
	}, breaker.WithTransitionHook(func(from, to breaker.State) {
		log.Warn("ai circuit breaker transition", "from", from, "to", to)
		eventBus.Publish(ctx, events.BreakerStateChanged{
			BaseEvent: events.NewBaseEvent(),
			From:      string(from),
			To:        string(to),
		})
	}))

	geminiClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:            cfg.GetGeminiAPIKey(),
		RequestsPerSecond: cfg.GetAIRequestsPerSecond(),
		RequestTimeout:    cfg.GetAIRequestTimeout(),
	})
	if err != nil {
		log.Error("failed to initialize ai client", "error", err)
		panic("failed to initialize ai client: " + err.Error())
	}
	aiBackend := adapters.NewAIBackendAdapter(geminiClient, brk)

	prompts, err := prompt.New()
	if err != nil {
		log.Error("failed to initialize prompt templates", "error", err)
		panic("failed to initialize prompt templates: " + err.Error())
	}

	schedClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize turn scheduler", "error", err)
		panic("failed to initialize turn scheduler: " + err.Error())
	}
	defer func() { _ = schedClient.Close() }()

	inspector, err := scheduler.NewInspector(cfg)
	if err != nil {
		log.Error("failed to initialize queue inspector", "error", err)
		panic("failed to initialize queue inspector: " + err.Error())
	}
	defer func() { _ = inspector.Close() }()

	repo := repository.New(pool)
	agg := metricsagg.New(repo, metricsagg.Config{
		BufferSize:    cfg.GetMetricsFlushSize(),
		FlushInterval: cfg.GetMetricsFlushInterval(),
	}, log)
	streamStatus := consumer.NewStatus()
	monitor := metricsagg.NewMonitor(brk, inspector, repo, streamStatus, log, cfg.GetHealthCheckInterval())
	module := conversation.NewModule(repo, eventBus, val, aiBackend, prompts, schedClient, agg, monitor, cfg, log)

	worker, err := scheduler.NewWorker(cfg, module.Processor(), log)
	if err != nil {
		log.Error("failed to initialize turn worker", "error", err)
		panic("failed to initialize turn worker: " + err.Error())
	}

	hostname, _ := os.Hostname()
	leadConsumer, err := consumer.New(cfg, module.Starter(), fmt.Sprintf("engine-%s-%d", hostname, os.Getpid()), streamStatus, log)
	if err != nil {
		log.Error("failed to initialize lead consumer", "error", err)
		panic("failed to initialize lead consumer: " + err.Error())
	}
	defer func() { _ = leadConsumer.Close() }()

	router := apphttp.NewRouter(&apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  pool,
		Modules: []apphttp.Module{module},
	})
	server := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return ignoreCancel(leadConsumer.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(worker.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(agg.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(monitor.Run(groupCtx))
	})
	group.Go(func() error {
		log.Info("ops api listening", "addr", cfg.GetHTTPAddr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("engine stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("engine stopped")
}

// ignoreCancel filters the expected shutdown error so a clean SIGTERM exits
// zero.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
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
