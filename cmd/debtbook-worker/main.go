package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"debtbook/internal/amqp"
	"debtbook/internal/backend"
	"debtbook/internal/cli"
	"debtbook/internal/config"
	"debtbook/internal/log"
	"debtbook/internal/metrics"
	"debtbook/internal/services"
	"debtbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootstrap := config.Load()
	logger := cli.SetupLogger(bootstrap.LogLevel, bootstrap.LogFormat).WithComponent(log.ComponentWorker)
	logger.Info("Starting debtbook-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := cli.InitStore(ctx, logger, cfg)
	svc := services.NewLedgerService(store, nil, logger)
	defer svc.Close()

	sinkCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid report backend", log.FieldError, err)
		os.Exit(1)
	}
	sink, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateSink(ctx, sinkCfg)
	if err != nil {
		logger.Error("Failed to create report sink", log.FieldError, err, "backend", sinkCfg.Type)
		os.Exit(1)
	}
	if sink.Cleanup != nil {
		defer sink.Cleanup()
	}

	syncer := worker.NewReportSyncer(svc, sink.Writer, cfg.ResyncInterval, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return syncer.Run(gctx)
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// The periodic resync keeps the sink current without events.
			logger.Warn("Failed to initialize AMQP client, relying on periodic resync", log.FieldError, err)
		} else {
			defer client.Close()
			g.Go(func() error {
				return client.ConsumeLedgerEvents(gctx, syncer.HandleLedgerEvent)
			})
		}
	} else {
		logger.Info("AMQP disabled, relying on periodic resync", "resync_interval", cfg.ResyncInterval)
	}

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr, logger.WithComponent(log.ComponentMetrics).Slog())
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.LogError(context.Background(), "Worker stopped with error", err, log.OpShutdown, log.ErrorTypeInternal, nil)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
