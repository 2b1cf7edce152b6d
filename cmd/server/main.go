// Package main provides the call scanner entry point: it restores the
// registry from the snapshot store, starts the ATH engine and serves the
// reporting API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/call-scanner/internal/api"
	"github.com/call-scanner/internal/config"
	"github.com/call-scanner/internal/engine"
	"github.com/call-scanner/internal/ingest"
	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/notify"
	"github.com/call-scanner/internal/registry"
	"github.com/call-scanner/internal/resolver"
	"github.com/call-scanner/internal/retry"
	"github.com/call-scanner/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.Info("Call scanner starting")

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize snapshot store")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore tracked state from the last snapshot.
	reg := registry.New()
	records, err := store.Load(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load snapshot, starting with an empty registry")
	} else {
		reg.Restore(records)
		logger.WithField("records", len(records)).Info("Registry restored from snapshot")
	}

	marketResolver := resolver.New(&resolver.Config{
		Metadata: resolver.NewMetadataClient(cfg.Resolver.MetadataURL, cfg.Resolver.CallTimeout),
		List:     resolver.NewTokenListClient(cfg.Resolver.TokenListURL, cfg.Resolver.CallTimeout, cfg.Engine.PollInterval*10),
		Price:    resolver.NewPriceClient(cfg.Resolver.PriceURL, cfg.Resolver.CallTimeout),
		Supply:   resolver.NewSupplyClient(cfg.Resolver.SupplyRPCURL, cfg.Resolver.CallTimeout),
		Policy: retry.Policy{
			MaxAttempts: cfg.Resolver.MaxAttempts,
			Delay:       cfg.Resolver.RetryDelay,
		},
		CallTimeout:       cfg.Resolver.CallTimeout,
		RequestsPerSecond: cfg.Resolver.RequestsPerSecond,
		Logger:            logger,
	})

	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.BotImageURL, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	athEngine, err := engine.New(&engine.Config{
		Registry:        reg,
		Resolver:        marketResolver,
		Store:           store,
		Notifier:        notifier,
		Logger:          logger,
		PollInterval:    cfg.Engine.PollInterval,
		Concurrency:     cfg.Engine.Concurrency,
		MaxTickFailures: cfg.Engine.MaxTickFailures,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create engine")
	}

	if err := athEngine.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start engine")
	}

	messageHandler := ingest.NewHandler(&ingest.Config{
		Registry:          reg,
		Resolver:          marketResolver,
		Store:             store,
		Notifier:          notifier,
		Logger:            logger,
		MonitoredChannels: cfg.Ingest.MonitoredChannels,
		ExcludedAuthors:   cfg.Ingest.ExcludedAuthors,
	})

	server := api.NewServer(&api.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, reg, messageHandler, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-serverErrCh:
		if err != nil {
			logger.WithError(err).Error("API server failed")
		}
	}

	cancel()
	athEngine.Stop()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Failed to shut down API server")
	}

	// Final snapshot so nothing tracked between ticks is lost.
	if err := store.Save(context.Background(), reg.Snapshot()); err != nil {
		logger.WithError(err).Error("Failed to write final snapshot")
	}

	logger.Info("Call scanner stopped")
}

// buildStore selects the snapshot store backend from configuration.
func buildStore(cfg *config.Config, logger *logging.Logger) (storage.SnapshotStore, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		if err := storage.RunMigrations(cfg.Storage.Postgres.PostgresURL(), cfg.Storage.Postgres.MigrationsPath); err != nil {
			return nil, err
		}
		return storage.NewPostgresStore(&cfg.Storage.Postgres, logger)
	default:
		return storage.NewRedisStore(&cfg.Storage.Redis, logger)
	}
}
