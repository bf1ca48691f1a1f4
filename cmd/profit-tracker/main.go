package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"profittracker/internal/amqp"
	"profittracker/internal/backend"
	"profittracker/internal/cli"
	apphttp "profittracker/internal/http"
	applog "profittracker/internal/log"
	"profittracker/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

// run owns every resource so deferred cleanup happens before the process exits.
func run() int {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.ShutdownContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		return 1
	}

	startupCtx, cancelStartup := context.WithTimeout(ctx, 30*time.Second)
	result, err := backend.NewFactory(logger).CreateBackend(startupCtx, backendCfg)
	cancelStartup()
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, applog.FieldBackend, cfg.DataBackend)
		return 1
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Error("Failed to close backend", "error", err, applog.FieldBackend, cfg.DataBackend)
		}
	}()

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithTimeout(cfg.StoreTimeout),
	}

	// Entry events are optional; the API keeps serving without a broker.
	if cfg.AMQPEnabled() {
		amqpClient, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			logger.Warn("AMQP unavailable, entry events disabled", "error", err)
		} else {
			defer amqpClient.Close()
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("Publishing entry events", "exchange", cfg.AMQPExchange, "routing_key", cfg.AMQPRoutingKey)
		}
	}

	entries := services.NewEntryStore(result.Backend, opts...)
	srv := apphttp.NewServer(":"+cfg.Port, entries, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting profit-tracker server", applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port, applog.FieldBackend, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		return 1
	}
	logger.Info("Server stopped gracefully")
	return 0
}
