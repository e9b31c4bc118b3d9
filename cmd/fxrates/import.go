package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/fxrates/internal/cache"
	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/importer"
	"github.com/sawpanic/fxrates/internal/persistence/postgres"
	"github.com/sawpanic/fxrates/internal/provider/fred"

	"github.com/redis/go-redis/v9"
)

func newImportCmd() *cobra.Command {
	var (
		missingOnly bool
		currency    string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run a one-off exchange rate import and exit",
		Long: `Runs an import outside the scheduler. By default every enabled series
is brought up to date. --missing restricts the run to series with no
stored rates; --currency imports a single series.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(missingOnly, currency)
		},
	}
	cmd.Flags().BoolVar(&missingOnly, "missing", false, "Only import series with no stored rates")
	cmd.Flags().StringVar(&currency, "currency", "", "Import a single currency code")
	return cmd
}

func runImport(missingOnly bool, currency string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.LogLevel)

	ctx := context.Background()

	manager, err := postgres.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer manager.Close()

	if err := manager.EnsureSchema(ctx); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	engine := importer.New(manager.Store(), manager,
		fred.NewAdapter(cfg.Import.Fred),
		cache.New(redisClient, cfg.Redis.Namespace, cfg.Redis.CacheNils),
		cfg.Import.Sanity)

	var results []domain.ImportResult
	switch {
	case currency != "":
		result, err := engine.ImportForCurrency(ctx, currency)
		if err != nil {
			return err
		}
		results = []domain.ImportResult{result}
	case missingOnly:
		results, err = engine.ImportMissingExchangeRates(ctx)
	default:
		results, err = engine.ImportLatestExchangeRates(ctx)
	}
	if err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		event := log.Info()
		if r.Error != "" {
			event = log.Error().Str("error", r.Error)
			failed++
		}
		event.Str("currency", r.CurrencyCode).
			Int("new", r.NewRates).
			Int("updated", r.UpdatedRates).
			Int("skipped", r.SkippedRates).
			Msg("import result")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d series failed to import", failed, len(results))
	}
	return nil
}
