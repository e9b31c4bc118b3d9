// Package query assembles dense per-calendar-day rate series from sparse
// stored observations.
package query

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/persistence"
)

// Engine answers dense range queries against the rate store.
type Engine struct {
	store  *persistence.Store
	logger zerolog.Logger
}

// New wires a query engine.
func New(store *persistence.Store) *Engine {
	return &Engine{
		store:  store,
		logger: log.With().Str("component", "query").Logger(),
	}
}

// GetExchangeRates returns one element per calendar day in the requested
// range. Days without a published observation carry the most recent prior
// rate, including a probe before the range start when needed. The result
// length is exactly end-start+1 days.
func (e *Engine) GetExchangeRates(ctx context.Context, target string, start, end *time.Time) ([]domain.DenseRate, error) {
	if target == domain.BaseCurrency {
		return nil, domain.NewInvalidRequest("targetCurrency must not be the base currency USD")
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, domain.NewInvalidRequest("startDate %s is after endDate %s",
			domain.FormatDate(*start), domain.FormatDate(*end))
	}

	series, err := e.store.Series.FindByCurrencyCode(ctx, target)
	if err != nil {
		return nil, err
	}
	if series == nil || !series.Enabled {
		return nil, domain.NewBusinessRule(domain.CodeCurrencyNotEnabled,
			"currency %s is not enabled for rate queries", target)
	}

	if start != nil {
		earliest, ok, err := e.store.Rates.FindEarliestDateForTarget(ctx, target)
		if err != nil {
			return nil, err
		}
		if ok && domain.Day(*start).Before(earliest) {
			return nil, domain.NewStartDateOutOfRange(earliest)
		}
	}

	defined, err := e.store.Rates.FindInRange(ctx, target, start, end)
	if err != nil {
		return nil, err
	}
	if len(defined) == 0 {
		return nil, domain.NewBusinessRule(domain.CodeNoExchangeRateData,
			"no exchange rate data available for %s in the requested range", target)
	}

	effectiveStart := domain.Day(defined[0].Date)
	if start != nil {
		effectiveStart = domain.Day(*start)
	}
	effectiveEnd := domain.Day(defined[len(defined)-1].Date)
	if end != nil {
		effectiveEnd = domain.Day(*end)
	}

	byDate := make(map[time.Time]domain.ExchangeRate, len(defined))
	for _, r := range defined {
		byDate[domain.Day(r.Date)] = r
	}

	// Seed the carry-forward cursor. When the range starts before the first
	// in-range observation, the nearest earlier stored rate fills the gap.
	current := defined[0]
	if domain.Day(current.Date).After(effectiveStart) {
		prior, err := e.store.Rates.FindLatestBefore(ctx, target, effectiveStart)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			current = *prior
		}
	}

	days := domain.DaysBetween(effectiveStart, effectiveEnd) + 1
	out := make([]domain.DenseRate, 0, days)
	for d := effectiveStart; !d.After(effectiveEnd); d = d.AddDate(0, 0, 1) {
		if r, ok := byDate[d]; ok {
			current = r
		}
		out = append(out, domain.DenseRate{
			BaseCurrency:   domain.BaseCurrency,
			TargetCurrency: target,
			RequestedDate:  d,
			Rate:           current.Rate,
			PublishedDate:  domain.Day(current.Date),
		})
	}

	e.logger.Debug().
		Str("target", target).
		Str("from", domain.FormatDate(effectiveStart)).
		Str("to", domain.FormatDate(effectiveEnd)).
		Int("days", len(out)).
		Msg("dense range assembled")

	return out, nil
}
