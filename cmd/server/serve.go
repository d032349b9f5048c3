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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hiroki-koketsu/tasktree/internal/config"
	"github.com/hiroki-koketsu/tasktree/internal/handler"
	"github.com/hiroki-koketsu/tasktree/internal/hierarchy"
	"github.com/hiroki-koketsu/tasktree/internal/repository"
	"github.com/hiroki-koketsu/tasktree/internal/service"
	"github.com/hiroki-koketsu/tasktree/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

type store interface {
	repository.TaskStore
	registry
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Create a basic logger for startup (before OTel is initialized)
	logger := telemetry.NewLocalLogger(os.Stdout, cfg.LogLevel)
	logger.Info("starting application",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("store", cfg.StoreDriver),
	)

	if cfg.TelemetryEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("failed to shutdown tracer provider", slog.Any("error", err))
			}
		}()

		mp, err := telemetry.InitMeterProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
		if err != nil {
			return err
		}
		defer func() {
			if err := mp.Shutdown(ctx); err != nil {
				logger.Error("failed to shutdown meter provider", slog.Any("error", err))
			}
		}()

		// Initialize the logger provider last for log-trace correlation
		lp, otelLogger, err := telemetry.InitLoggerProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
		if err != nil {
			return err
		}
		defer func() {
			if err := lp.Shutdown(ctx); err != nil {
				logger.Error("failed to shutdown logger provider", slog.Any("error", err))
			}
		}()
		logger = otelLogger
	}

	taskStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		return err
	}
	defer closeStore()

	if err := seed(ctx, taskStore, cfg.Seed); err != nil {
		return err
	}

	metrics, err := telemetry.NewMetrics(otel.Meter(cfg.ServiceName), taskStore.CountAll)
	if err != nil {
		logger.Error("failed to create metrics", slog.Any("error", err))
		return err
	}

	validator := hierarchy.New(taskStore, hierarchy.WithMaxDepth(cfg.MaxHierarchyDepth))
	taskService := service.NewTaskService(taskStore, validator, logger)
	taskHandler := handler.NewTaskHandler(taskService, logger, metrics)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint (excluded from tracing)
	r.Get("/health", taskHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/tasks", taskHandler.Routes())
	})

	otelHandler := otelhttp.NewHandler(r, "http-server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      otelHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		logger.Error("server error", slog.Any("error", err))
		return err
	case <-quit:
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	if cfg.StoreDriver != config.DriverPostgres {
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := repository.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	pgStore := repository.NewPostgresStore(pool)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pgStore, pool.Close, nil
}
