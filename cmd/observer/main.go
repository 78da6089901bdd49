// Command observer relays due jobs from the job table to the job topic.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecociel/remind/lib/config"
	"github.com/ecociel/remind/lib/kafkaclient"
	"github.com/ecociel/remind/lib/observer"
	"github.com/ecociel/remind/lib/observer/kafka"
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

	kClient, err := kafkaclient.NewProducer(cfg.QueueHostPorts, cfg.JobsTopic)
	if err != nil {
		logger.Error("kafka producer", "error", err)
		os.Exit(1)
	}
	defer kClient.Close()

	m := metrics.NewPromMetrics(prometheus.DefaultRegisterer)
	serveMetrics(ctx, cfg.HttpAddress, logger)

	logger.Info("observer started", "topic", cfg.JobsTopic, "interval", cfg.RelayInterval)
	observer.New(cfg.RelayLimit, cfg.RelayInterval, postgres.NewJobRepo(pool), kafka.New(kClient, cfg.JobsTopic),
		observer.WithReclaimAfter(cfg.RelayReclaimAfter),
		observer.WithMetrics(m),
		observer.WithLogger(logger),
	).Run(ctx)
	logger.Info("observer stopped")
}
