package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/example/scheduling-core/internal/application"
	"github.com/example/scheduling-core/internal/config"
	httptransport "github.com/example/scheduling-core/internal/http"
	"github.com/example/scheduling-core/internal/jobs"
	"github.com/example/scheduling-core/internal/notify"
	"github.com/example/scheduling-core/internal/persistence"
	"github.com/example/scheduling-core/internal/persistence/memory"
	"github.com/example/scheduling-core/internal/persistence/sqlite"
	"github.com/example/scheduling-core/internal/persistence/sqlite/migration"
	"github.com/example/scheduling-core/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	tracerProvider, shutdownTracing, err := setupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	app := newApp(cfg, store.repo, tracerProvider, logger)
	defer app.reminders.Stop()

	if armed, err := app.service.RestoreReminders(ctx); err != nil {
		return fmt.Errorf("restore reminders: %w", err)
	} else if armed > 0 {
		logger.Info("reminders re-armed", "count", armed)
	}

	sweeper, err := jobs.NewSweeper(cfg.SweepSpec, cfg.Timezone, app.service.SweepCompleted, logger)
	if err != nil {
		return err
	}
	sweeper.Start(ctx)
	logger.Info("completion sweep scheduled", "spec", cfg.SweepSpec, "next", sweeper.Next())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
		if err := sweeper.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop sweeper", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "storage", cfg.Storage, "auth", !cfg.ModuleKeys.Empty())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

type app struct {
	service   *application.EventService
	reminders *reminder.Scheduler
	hub       *notify.Hub
	handler   http.Handler
}

// newApp wires the event service, reminder timers, change hub and HTTP stack.
func newApp(cfg config.Config, repo persistence.EventRepository, tp trace.TracerProvider, logger *slog.Logger) *app {
	hub := notify.NewHub(logger)
	hub.OnReminderDue(func(ctx context.Context, due notify.ReminderDue) error {
		logger.InfoContext(ctx, "reminder due", "event_id", due.EventID, "title", due.Title, "start", due.Start)
		return nil
	})
	hub.OnEventChanged(func(ctx context.Context, change notify.EventChanged) error {
		logger.DebugContext(ctx, "event changed", "kind", change.Kind, "event_id", change.EventID, "status", change.Status)
		return nil
	})

	// The verifier needs the service and the service needs the scheduler.
	var service *application.EventService
	reminders := reminder.New(reminder.SystemClock(),
		func(ctx context.Context, due reminder.Due) error {
			return hub.PublishReminderDue(ctx, notify.ReminderDue{
				EventID: due.EventID,
				Title:   due.Title,
				Start:   due.Start,
				FireAt:  due.FireAt,
			})
		},
		reminder.WithVerifier(func(ctx context.Context, eventID string) (bool, error) {
			return service.ReminderStillDue(ctx, eventID)
		}),
		reminder.WithLogger(logger),
	)

	opts := []application.EventServiceOption{
		application.WithIDGenerator(uuid.NewString),
		application.WithLogger(logger),
		application.WithSlotSize(cfg.SlotSize),
		application.WithReminders(reminders),
		application.WithPublisher(hub),
	}
	if tp != nil {
		opts = append(opts, application.WithTracerProvider(tp))
	}
	service = application.NewEventService(application.NewRepositoryAdapter(repo), opts...)

	middleware := []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)}
	if !cfg.ModuleKeys.Empty() {
		middleware = append(middleware, httptransport.RequireModuleKey(cfg.ModuleKeys, logger))
	}
	if cfg.RateLimit > 0 {
		middleware = append(middleware, httptransport.RateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst, logger))
	}

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Events:     httptransport.NewEventHandler(service, logger),
		Calendar:   httptransport.NewCalendarHandler(service, time.Now, logger),
		Middleware: middleware,
	})

	return &app{service: service, reminders: reminders, hub: hub, handler: handler}
}

type store struct {
	repo   persistence.EventRepository
	closer io.Closer
}

func (s store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// openStore selects the storage backend and brings the SQLite schema up to date.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store, error) {
	if cfg.Storage == config.StorageMemory {
		mem := memory.New()
		return store{repo: mem, closer: mem}, nil
	}

	pool, err := sqlite.NewConnectionPool(migration.DefaultSQLiteConfig(cfg.SQLiteDSN))
	if err != nil {
		return store{}, fmt.Errorf("open storage: %w", err)
	}

	var source fs.FS
	if cfg.MigrationsDir != "" {
		source = os.DirFS(cfg.MigrationsDir)
	}
	applied, err := pool.Migrate(ctx, source, logger)
	if err != nil {
		_ = pool.Close()
		return store{}, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("database schema ready", "dsn", cfg.SQLiteDSN, "migrations_applied", applied)

	return store{repo: sqlite.NewEventRepository(pool), closer: pool}, nil
}

// setupTracing exports spans over OTLP/HTTP when endpoint is set. Without an
// endpoint the returned provider is nil and the service keeps the global no-op.
func setupTracing(ctx context.Context, endpoint string) (trace.TracerProvider, func(context.Context) error, error) {
	if endpoint == "" {
		return nil, func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "scheduling-core"))),
	)
	return provider, provider.Shutdown, nil
}
