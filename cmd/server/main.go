// Command server wires the workflow engine and serves the HTTP API. Business
// logic lives in the internal services; main only assembles dependencies and
// owns the process lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"mealflow/internal/auditlog"
	"mealflow/internal/correction"
	"mealflow/internal/dashboard"
	"mealflow/internal/httpapi"
	"mealflow/internal/outbox"
	"mealflow/internal/platform/config"
	"mealflow/internal/platform/httpserver"
	"mealflow/internal/platform/logger"
	"mealflow/internal/platform/metrics"
	"mealflow/internal/platform/middleware"
	"mealflow/internal/workflow/registry"
	workflowservice "mealflow/internal/workflow/service"
	workflowstore "mealflow/internal/workflow/store"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	reg := registry.Default()
	m := metrics.New()

	var (
		entities    workflowservice.EntityStore
		queries     dashboard.QueryStore
		auditStore  auditlog.Store
		outboxStore interface {
			workflowservice.Outbox
			outbox.Store
		}
		corrections interface {
			correction.FlagStore
			correction.RecordStore
		}
		runner workflowservice.TxRunner
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return err
		}
		pgEntities := workflowstore.NewPostgresStore(db)
		entities = pgEntities
		queries = pgEntities
		auditStore = auditlog.NewPostgresStore(db)
		outboxStore = outbox.NewPostgresStore(db)
		corrections = correction.NewPostgresStore(db)
		runner = newPostgresTxRunner(db)
		log.Info("using postgres stores")
	} else {
		memEntities := workflowstore.NewInMemoryStore()
		entities = memEntities
		queries = memEntities
		auditStore = auditlog.NewInMemoryStore()
		outboxStore = outbox.NewInMemoryStore()
		corrections = correction.NewInMemoryStore()
		runner = memoryTxRunner{}
		log.Warn("MEALFLOW_DATABASE_URL not set, using in-memory stores")
	}

	auditLog, err := auditlog.New(auditStore)
	if err != nil {
		return err
	}
	executor, err := workflowservice.NewExecutor(reg, entities, auditLog, runner, log,
		workflowservice.WithOutbox(outboxStore),
		workflowservice.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	aggregator, err := dashboard.NewAggregator(dashboard.DefaultVisibility(), queries, log,
		dashboard.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	correctionSvc, err := correction.New(executor, reg, runner, corrections, corrections, log)
	if err != nil {
		return err
	}

	resolver := middleware.NewPrincipalResolver(cfg.JWTSigningKey)
	handler := httpapi.New(executor, aggregator, correctionSvc, auditLog, reg, resolver, log)

	router := chi.NewRouter()
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	// Slow side effects queued by transitions drain here, after commit.
	dispatcher := outbox.NewDispatcher(outboxStore, func(ctx context.Context, task outbox.Task) error {
		log.InfoContext(ctx, "outbox task ready for downstream delivery",
			"task", task.ID, "type", task.TaskType, "kind", task.Kind, "entity", task.EntityUUID)
		return nil
	}, log, cfg.OutboxInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting mealflow", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
