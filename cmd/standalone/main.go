// Command standalone runs the HTTP surface, the relay, a worker and the
// fallback sweeper in one process.
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
	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/kafkaclient"
	"github.com/ecociel/remind/lib/notify/sendgrid"
	"github.com/ecociel/remind/lib/observer"
	"github.com/ecociel/remind/lib/observer/kafka"
	"github.com/ecociel/remind/lib/queue"
	"github.com/ecociel/remind/lib/reminder"
	"github.com/ecociel/remind/lib/store/postgres"
	"github.com/ecociel/remind/lib/worker"
	"github.com/ecociel/remind/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
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

	producer, err := kafkaclient.NewProducer(cfg.QueueHostPorts, cfg.JobsTopic)
	if err != nil {
		logger.Error("kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	consumer, err := kafkaclient.NewConsumer(cfg.QueueHostPorts, cfg.JobsConsumerGroup, cfg.JobsTopic)
	if err != nil {
		logger.Error("kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewPromMetrics(reg)

	tasks := postgres.NewTaskRepo(pool, cfg.NotifyClaimTtl)
	jobs := postgres.NewJobRepo(pool)
	sender := sendgrid.New(sendgrid.Config{
		APIKey:  cfg.SendgridApiKey,
		URL:     cfg.SendgridApiUrl,
		From:    cfg.SenderEmail,
		Timeout: cfg.SendTimeout,
	})
	if cfg.SendgridApiKey == "" {
		logger.Warn("sendgrid api key not set, every send will fail")
	}

	relay := observer.New(cfg.RelayLimit, cfg.RelayInterval, jobs, kafka.New(producer, cfg.JobsTopic),
		observer.WithReclaimAfter(cfg.RelayReclaimAfter), observer.WithMetrics(m), observer.WithLogger(logger))

	wrk := worker.New(consumer, jobs, worker.RetryPolicy{
		MaxAttempts: cfg.JobMaxAttempts,
		BaseDelay:   cfg.JobRetryBaseDelay,
		MaxDelay:    cfg.JobRetryMaxDelay,
	}, worker.WithConcurrency(cfg.WorkerConcurrency), worker.WithMetrics(m), worker.WithLogger(logger))
	wrk.RegisterHandler(domain.JobSendTaskEmail, reminder.NewHandler(tasks, sender,
		reminder.WithMetrics(m), reminder.WithLogger(logger)).Run)

	sweeper := reminder.NewSweeper(tasks, sender, reminder.SweeperConfig{
		Schedule:       cfg.SweepSchedule,
		Limit:          cfg.SweepLimit,
		SendsPerSecond: cfg.SweepSendsPerSecond,
	}, reminder.WithMetrics(m), reminder.WithLogger(logger))

	sched := reminder.NewScheduler(tasks, queue.New(jobs, logger), cfg.MinDelay,
		reminder.WithMetrics(m), reminder.WithLogger(logger))

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

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { relay.Run(ctx); return nil })
	g.Go(func() error { wrk.Run(ctx); return nil })
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error {
		logger.Info("http listening", "address", cfg.HttpAddress)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("standalone stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("standalone stopped")
}
