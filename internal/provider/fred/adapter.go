package fred

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/provider"
)

// missingSentinel marks days the provider publishes no rate for
// (weekends, holidays).
const missingSentinel = "."

// Adapter transforms FRED observations into date-keyed decimal rates.
type Adapter struct {
	client *Client
	logger zerolog.Logger
}

var _ provider.RateProvider = (*Adapter)(nil)

// NewAdapter builds the FRED-backed RateProvider.
func NewAdapter(cfg config.FredConfig) *Adapter {
	return &Adapter{
		client: NewClient(cfg),
		logger: log.With().Str("component", "fred_adapter").Logger(),
	}
}

// GetExchangeRates fetches and transforms observations for the series.
// Sentinel and blank values are dropped; a duplicate date in the upstream
// payload is a contract violation, never silently merged.
func (a *Adapter) GetExchangeRates(ctx context.Context, series domain.CurrencySeries, startDate *time.Time) (*provider.RateObservations, error) {
	if series.CurrencyCode == domain.BaseCurrency {
		return nil, domain.NewBusinessRule(domain.CodeInvalidIso4217Code,
			"cannot import rates for the base currency USD")
	}

	resp, size, err := a.client.Observations(ctx, series.ProviderSeriesID, startDate)
	if err != nil {
		return nil, err
	}

	today := domain.Day(time.Now().UTC())
	rates := make(map[time.Time]decimal.Decimal, len(resp.Observations))
	for _, obs := range resp.Observations {
		value := strings.TrimSpace(obs.Value)
		if value == "" || value == missingSentinel {
			continue
		}

		date, err := domain.ParseDate(obs.Date)
		if err != nil {
			return nil, domain.NewProviderContract(
				"series %s: observation has malformed date %q", series.ProviderSeriesID, obs.Date)
		}
		// Reference rates are published after the fact; a future date would
		// carry forward onto every dense query until it is reached.
		if date.After(today) {
			return nil, domain.NewProviderContract(
				"series %s: observation %s is dated in the future", series.ProviderSeriesID, obs.Date)
		}
		if _, dup := rates[date]; dup {
			return nil, domain.NewProviderContract(
				"series %s: duplicate observation for %s", series.ProviderSeriesID, obs.Date)
		}

		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, domain.NewProviderContract(
				"series %s: observation %s has non-numeric value %q", series.ProviderSeriesID, obs.Date, value)
		}
		if !rate.IsPositive() {
			return nil, domain.NewProviderContract(
				"series %s: observation %s has non-positive value %q", series.ProviderSeriesID, obs.Date, value)
		}
		rates[date] = rate
	}

	a.logger.Debug().
		Str("series", series.ProviderSeriesID).
		Int("observations", len(resp.Observations)).
		Int("published", len(rates)).
		Int64("bytes", size).
		Msg("observations fetched")

	return &provider.RateObservations{Rates: rates, PayloadBytes: size}, nil
}

// ValidateSeriesExists probes the provider for the series id.
func (a *Adapter) ValidateSeriesExists(ctx context.Context, providerSeriesID string) (bool, error) {
	if strings.TrimSpace(providerSeriesID) == "" {
		return false, nil
	}
	return a.client.SeriesExists(ctx, providerSeriesID)
}
