// Command scheduler-service accepts reminder requests over HTTP and stores
// their jobs for the observer to relay.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecociel/remind/lib/api"
	"github.com/ecociel/remind/lib/config"
	"github.com/ecociel/remind/lib/notify/sendgrid"
	"github.com/ecociel/remind/lib/queue"
	"github.com/ecociel/remind/lib/reminder"
	"github.com/ecociel/remind/lib/store/postgres"
	"github.com/ecociel/remind/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.MustLoad()
	logger := cfg.Logger(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DbConnectionUri)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPromMetrics(reg)
	tasks := postgres.NewTaskRepo(pool, cfg.NotifyClaimTtl)

	sched := reminder.NewScheduler(tasks, queue.New(postgres.NewJobRepo(pool), logger), cfg.MinDelay,
		reminder.WithMetrics(m), reminder.WithLogger(logger))
	// on-demand sweeps only; the periodic sweep runs in task-worker
	sweeper := reminder.NewSweeper(tasks, sendgrid.New(sendgrid.Config{
		APIKey:  cfg.SendgridApiKey,
		URL:     cfg.SendgridApiUrl,
		From:    cfg.SenderEmail,
		Timeout: cfg.SendTimeout,
	}), reminder.SweeperConfig{
		Limit:          cfg.SweepLimit,
		SendsPerSecond: cfg.SweepSendsPerSecond,
	}, reminder.WithMetrics(m), reminder.WithLogger(logger))

	srv := &http.Server{
		Addr: cfg.HttpAddress,
		Handler: api.NewContainer(api.Deps{
			Scheduler: sched,
			Sweeper:   sweeper,
			DB:        pool,
			Gatherer:  reg,
			Logger:    logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("scheduler-service listening", "address", cfg.HttpAddress)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", "error", err)
		os.Exit(1)
	}
}
