// Package importer orchestrates fetch, transform, and reconcile of provider
// observations against the rate store.
package importer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/metrics"
	"github.com/sawpanic/fxrates/internal/persistence"
	"github.com/sawpanic/fxrates/internal/provider"
)

// CacheEvictor is the slice of the rates cache the importer needs.
type CacheEvictor interface {
	EvictAll(ctx context.Context) error
}

// Engine implements the import flows. It is stateless between runs: the store
// is the source of truth and every run re-derives its position from it, so
// replays are safe.
type Engine struct {
	store    *persistence.Store
	tx       persistence.TxRunner
	provider provider.RateProvider
	cache    CacheEvictor
	sanity   config.SanityConfig
	logger   zerolog.Logger
}

// New wires an import engine.
func New(store *persistence.Store, tx persistence.TxRunner, p provider.RateProvider, cache CacheEvictor, sanity config.SanityConfig) *Engine {
	return &Engine{
		store:    store,
		tx:       tx,
		provider: p,
		cache:    cache,
		sanity:   sanity,
		logger:   log.With().Str("component", "importer").Logger(),
	}
}

// ImportMissingExchangeRates performs a full-history import for every enabled
// series that has no stored rates yet. Series with data are left untouched.
func (e *Engine) ImportMissingExchangeRates(ctx context.Context) ([]domain.ImportResult, error) {
	enabled, err := e.store.Series.FindEnabled(ctx)
	if err != nil {
		return nil, err
	}

	var targets []domain.CurrencySeries
	for _, s := range enabled {
		count, err := e.store.Rates.CountForSeries(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			targets = append(targets, s)
		}
	}
	return e.importAll(ctx, targets), nil
}

// ImportLatestExchangeRates performs an incremental import for every enabled
// series.
func (e *Engine) ImportLatestExchangeRates(ctx context.Context) ([]domain.ImportResult, error) {
	enabled, err := e.store.Series.FindEnabled(ctx)
	if err != nil {
		return nil, err
	}
	return e.importAll(ctx, enabled), nil
}

// ImportForSeries runs the single-series flow used by the broker consumer and
// the admin endpoint. Replays are idempotent: a second run with no provider
// change inserts and updates nothing.
func (e *Engine) ImportForSeries(ctx context.Context, seriesID int64) (domain.ImportResult, error) {
	series, err := e.store.Series.FindByID(ctx, seriesID)
	if err != nil {
		return domain.ImportResult{}, err
	}
	if series == nil {
		return domain.ImportResult{}, domain.NewNotFound("currency series %d not found", seriesID)
	}
	return e.importSeries(ctx, *series)
}

// ImportForCurrency resolves a currency code and runs the single-series flow.
func (e *Engine) ImportForCurrency(ctx context.Context, code string) (domain.ImportResult, error) {
	series, err := e.store.Series.FindByCurrencyCode(ctx, code)
	if err != nil {
		return domain.ImportResult{}, err
	}
	if series == nil {
		return domain.ImportResult{}, domain.NewNotFound("currency %s not found", code)
	}
	return e.importSeries(ctx, *series)
}

// importAll runs the series independently; one failure never aborts the rest.
func (e *Engine) importAll(ctx context.Context, series []domain.CurrencySeries) []domain.ImportResult {
	results := make([]domain.ImportResult, 0, len(series))
	for _, s := range series {
		result, err := e.importSeries(ctx, s)
		if err != nil {
			e.logger.Error().Err(err).Str("currency", s.CurrencyCode).Msg("series import failed")
			metrics.ImportRuns.WithLabelValues(s.CurrencyCode, "error").Inc()
			result = domain.ImportResult{
				CurrencyCode:     s.CurrencyCode,
				ProviderSeriesID: s.ProviderSeriesID,
				CompletedAt:      time.Now().UTC(),
				Error:            err.Error(),
			}
		}
		results = append(results, result)
	}
	return results
}

func (e *Engine) importSeries(ctx context.Context, series domain.CurrencySeries) (domain.ImportResult, error) {
	// Admin-triggered imports keep the request actor from the context; the
	// background paths carry none and fall back to the system actor.
	latest, err := e.store.Rates.FindLatestForSeries(ctx, series.ID)
	if err != nil {
		return domain.ImportResult{}, err
	}

	// A series with no stored rate imports full history; otherwise request
	// only observations after the latest stored date.
	isInitial := latest == nil
	var startDate *time.Time
	if latest != nil {
		next := domain.Day(latest.Date).AddDate(0, 0, 1)
		startDate = &next
	}

	obs, err := e.provider.GetExchangeRates(ctx, series, startDate)
	if err != nil {
		return domain.ImportResult{}, err
	}

	if startDate != nil {
		if err := e.checkPayloadSanity(series, *startDate, obs.PayloadBytes); err != nil {
			return domain.ImportResult{}, err
		}
	}

	result := domain.ImportResult{
		CurrencyCode:     series.CurrencyCode,
		ProviderSeriesID: series.ProviderSeriesID,
	}
	if earliest, ok := obs.Earliest(); ok {
		result.EarliestDate = earliest
	}
	if latestDate, ok := obs.Latest(); ok {
		result.LatestDate = latestDate
	}

	// One transaction per series; eviction fires only after commit.
	err = e.tx.WithinTx(ctx, func(ctx context.Context, s *persistence.Store) error {
		if isInitial {
			n, err := e.reconcileInitial(ctx, s, series, obs)
			if err != nil {
				return err
			}
			result.NewRates = n
		} else {
			n, u, k, err := e.reconcileIncremental(ctx, s, series, obs)
			if err != nil {
				return err
			}
			result.NewRates, result.UpdatedRates, result.SkippedRates = n, u, k
		}

		persistence.AfterCommit(ctx, func() {
			if err := e.cache.EvictAll(context.Background()); err != nil {
				e.logger.Warn().Err(err).Msg("cache eviction after import failed")
			}
		})
		return nil
	})
	if err != nil {
		return domain.ImportResult{}, err
	}

	result.CompletedAt = time.Now().UTC()

	metrics.ImportRuns.WithLabelValues(series.CurrencyCode, "ok").Inc()
	metrics.ImportedRates.WithLabelValues(series.CurrencyCode, "new").Add(float64(result.NewRates))
	metrics.ImportedRates.WithLabelValues(series.CurrencyCode, "updated").Add(float64(result.UpdatedRates))
	metrics.ImportedRates.WithLabelValues(series.CurrencyCode, "skipped").Add(float64(result.SkippedRates))

	e.logger.Info().
		Str("currency", series.CurrencyCode).
		Bool("initial", isInitial).
		Int("new", result.NewRates).
		Int("updated", result.UpdatedRates).
		Int("skipped", result.SkippedRates).
		Msg("series import completed")

	return result, nil
}

// checkPayloadSanity guards incremental runs against accidental full-history
// pulls: an absolute byte cap plus a proportional cap on days since start.
func (e *Engine) checkPayloadSanity(series domain.CurrencySeries, startDate time.Time, payloadBytes int64) error {
	if payloadBytes > e.sanity.MaxPayloadBytes {
		return domain.NewImportSanity(
			"series %s: payload %d bytes exceeds absolute cap %d",
			series.ProviderSeriesID, payloadBytes, e.sanity.MaxPayloadBytes)
	}

	days := domain.DaysBetween(startDate, time.Now().UTC()) + 1
	if days < 1 {
		days = 1
	}
	proportionalCap := int64(float64(e.sanity.ExpectedBytesPerDay*int64(days)) * e.sanity.Tolerance)
	if payloadBytes > proportionalCap {
		return domain.NewImportSanity(
			"series %s: payload %d bytes exceeds proportional cap %d for %d days",
			series.ProviderSeriesID, payloadBytes, proportionalCap, days)
	}
	return nil
}

func (e *Engine) reconcileInitial(ctx context.Context, s *persistence.Store, series domain.CurrencySeries, obs *provider.RateObservations) (int, error) {
	rows := make([]domain.ExchangeRate, 0, len(obs.Rates))
	for date, rate := range obs.Rates {
		rows = append(rows, domain.ExchangeRate{
			CurrencySeriesID: series.ID,
			BaseCurrency:     domain.BaseCurrency,
			TargetCurrency:   series.CurrencyCode,
			Date:             date,
			Rate:             rate,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	if err := s.Rates.BulkInsert(ctx, rows); err != nil {
		return 0, fmt.Errorf("initial import for %s: %w", series.CurrencyCode, err)
	}
	return len(rows), nil
}

func (e *Engine) reconcileIncremental(ctx context.Context, s *persistence.Store, series domain.CurrencySeries, obs *provider.RateObservations) (newN, updatedN, skippedN int, err error) {
	dates := make([]time.Time, 0, len(obs.Rates))
	for d := range obs.Rates {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, date := range dates {
		rate := obs.Rates[date]
		existing, err := s.Rates.FindByTriple(ctx, domain.BaseCurrency, series.CurrencyCode, date)
		if err != nil {
			return 0, 0, 0, err
		}

		switch {
		case existing == nil:
			row := domain.ExchangeRate{
				CurrencySeriesID: series.ID,
				BaseCurrency:     domain.BaseCurrency,
				TargetCurrency:   series.CurrencyCode,
				Date:             date,
				Rate:             rate,
			}
			if err := s.Rates.Insert(ctx, &row); err != nil {
				return 0, 0, 0, err
			}
			newN++

		case existing.Rate.Equal(rate):
			skippedN++

		default:
			// Published rates are expected to be immutable; a restated value
			// is anomalous and worth a trace.
			e.logger.Warn().
				Str("currency", series.CurrencyCode).
				Str("date", domain.FormatDate(date)).
				Str("stored", existing.Rate.String()).
				Str("restated", rate.String()).
				Msg("provider restated an existing rate, updating in place")
			if err := s.Rates.UpdateRate(ctx, existing.ID, rate, domain.AuditFrom(ctx).Actor); err != nil {
				return 0, 0, 0, err
			}
			updatedN++
		}
	}
	return newN, updatedN, skippedN, nil
}
