package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/fxrates/internal/broker"
	"github.com/sawpanic/fxrates/internal/cache"
	"github.com/sawpanic/fxrates/internal/catalog"
	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/importer"
	httpapi "github.com/sawpanic/fxrates/internal/interfaces/http"
	"github.com/sawpanic/fxrates/internal/outbox"
	"github.com/sawpanic/fxrates/internal/persistence/postgres"
	"github.com/sawpanic/fxrates/internal/provider/fred"
	"github.com/sawpanic/fxrates/internal/query"
	"github.com/sawpanic/fxrates/internal/scheduler"
)

const shutdownGrace = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, scheduler, outbox worker, and broker consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager, err := postgres.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer manager.Close()

	if err := manager.EnsureSchema(ctx); err != nil {
		return err
	}
	store := manager.Store()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ratesCache := cache.New(redisClient, cfg.Redis.Namespace, cfg.Redis.CacheNils)
	provider := fred.NewAdapter(cfg.Import.Fred)
	importEngine := importer.New(store, manager, provider, ratesCache, cfg.Import.Sanity)
	ratesReader := query.NewCached(query.New(store), ratesCache)
	catalogService := catalog.New(store, manager, provider)

	bridge := broker.NewBridge(redisClient, cfg.Redis.Namespace, cfg.Broker)
	outboxWorker := outbox.NewWorker(store, cfg.Outbox)
	outboxWorker.Register(domain.ListenerBrokerBridge, bridge.OutboxListener())

	consumer := broker.NewConsumer(redisClient, bridge, importEngine, cfg.Broker)

	sched, err := scheduler.New(cfg.Import, store.Lease, importEngine)
	if err != nil {
		return err
	}

	handlers := httpapi.NewHandlers(catalogService, ratesReader, importEngine, manager, ratesCache)
	server := httpapi.NewServer(cfg.HTTP, handlers)

	if cfg.Import.ImportOnStartup {
		log.Info().Msg("running startup import for series with no stored rates")
		if err := sched.RunStartupImport(ctx); err != nil {
			return err
		}
	}

	outboxWorker.Start(ctx)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start broker consumer: %w", err)
	}
	sched.Start(ctx)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown did not complete cleanly")
	}
	sched.Stop()
	consumer.Stop()
	outboxWorker.Stop()
	cancel()

	log.Info().Msg("shutdown complete")
	return nil
}
