// Package provider defines the capability set an upstream rate source must
// offer. Service code depends on this interface only; the concrete provider
// is chosen by configuration at the composition root.
package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/fxrates/internal/domain"
)

// RateObservations is the transformed result of one provider fetch.
// PayloadBytes is the raw response size, used by import sanity checks.
type RateObservations struct {
	Rates        map[time.Time]decimal.Decimal
	PayloadBytes int64
}

// Earliest returns the smallest observation date; ok is false when empty.
func (o *RateObservations) Earliest() (time.Time, bool) {
	var earliest time.Time
	for d := range o.Rates {
		if earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, !earliest.IsZero()
}

// Latest returns the greatest observation date; ok is false when empty.
func (o *RateObservations) Latest() (time.Time, bool) {
	var latest time.Time
	for d := range o.Rates {
		if d.After(latest) {
			latest = d
		}
	}
	return latest, !latest.IsZero()
}

// RateProvider fetches daily USD-based reference rates for a series.
type RateProvider interface {
	// GetExchangeRates returns published observations for the series, keyed
	// by UTC-midnight date. A nil startDate requests full history.
	GetExchangeRates(ctx context.Context, series domain.CurrencySeries, startDate *time.Time) (*RateObservations, error)

	// ValidateSeriesExists reports whether the provider knows the series id.
	ValidateSeriesExists(ctx context.Context, providerSeriesID string) (bool, error)
}
