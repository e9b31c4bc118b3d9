// Package catalog manages the currency series catalog and publishes the
// domain events other components react to.
package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/outbox"
	"github.com/sawpanic/fxrates/internal/persistence"
	"github.com/sawpanic/fxrates/internal/provider"
)

// Service implements catalog operations. Writes publish their domain events
// through the outbox in the same transaction.
type Service struct {
	store    *persistence.Store
	tx       persistence.TxRunner
	provider provider.RateProvider
	logger   zerolog.Logger
}

// New wires a catalog service.
func New(store *persistence.Store, tx persistence.TxRunner, p provider.RateProvider) *Service {
	return &Service{
		store:    store,
		tx:       tx,
		provider: p,
		logger:   log.With().Str("component", "catalog").Logger(),
	}
}

// Create validates and persists a new series, publishing CurrencyCreated
// atomically with the insert.
func (s *Service) Create(ctx context.Context, code, providerSeriesID string, enabled bool) (*domain.CurrencySeries, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	providerSeriesID = strings.TrimSpace(providerSeriesID)

	if err := domain.ValidateCurrencyCode(code); err != nil {
		return nil, err
	}
	if providerSeriesID == "" {
		return nil, domain.NewBusinessRule(domain.CodeInvalidProviderSeries,
			"provider series id must not be blank")
	}

	if existing, err := s.store.Series.FindByCurrencyCode(ctx, code); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.NewBusinessRule(domain.CodeDuplicateCurrencyCode,
			"currency series %s already exists", code)
	}

	if taken, err := s.store.Series.ExistsByProviderID(ctx, providerSeriesID); err != nil {
		return nil, err
	} else if taken {
		return nil, domain.NewBusinessRule(domain.CodeInvalidProviderSeries,
			"provider series id %s is already mapped", providerSeriesID)
	}

	known, err := s.provider.ValidateSeriesExists(ctx, providerSeriesID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, domain.NewBusinessRule(domain.CodeInvalidProviderSeries,
			"provider does not know series %s", providerSeriesID)
	}

	series := &domain.CurrencySeries{
		CurrencyCode:     code,
		ProviderSeriesID: providerSeriesID,
		Enabled:          enabled,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, txStore *persistence.Store) error {
		if err := txStore.Series.Insert(ctx, series); err != nil {
			return err
		}
		return outbox.Publish(ctx, txStore, domain.ListenerBrokerBridge, domain.EventCurrencyCreated,
			domain.CurrencyEvent{
				CurrencySeriesID: series.ID,
				CurrencyCode:     series.CurrencyCode,
				Enabled:          series.Enabled,
				CorrelationID:    uuid.NewString(),
			})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("currency", code).Str("series", providerSeriesID).
		Bool("enabled", enabled).Msg("currency series created")
	return series, nil
}

// Update toggles the enabled flag; no other field mutates. A change publishes
// CurrencyUpdated with the new value, atomically with the write.
func (s *Service) Update(ctx context.Context, id int64, enabled bool) (*domain.CurrencySeries, error) {
	series, err := s.store.Series.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, domain.NewNotFound("currency series %d not found", id)
	}

	if series.Enabled == enabled {
		return series, nil
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, txStore *persistence.Store) error {
		if err := txStore.Series.UpdateEnabled(ctx, id, enabled); err != nil {
			return err
		}
		return outbox.Publish(ctx, txStore, domain.ListenerBrokerBridge, domain.EventCurrencyUpdated,
			domain.CurrencyEvent{
				CurrencySeriesID: series.ID,
				CurrencyCode:     series.CurrencyCode,
				Enabled:          enabled,
				CorrelationID:    uuid.NewString(),
			})
	})
	if err != nil {
		return nil, err
	}

	series.Enabled = enabled
	s.logger.Info().Str("currency", series.CurrencyCode).Bool("enabled", enabled).
		Msg("currency series updated")
	return series, nil
}

// GetByID returns the series or a not-found error.
func (s *Service) GetByID(ctx context.Context, id int64) (*domain.CurrencySeries, error) {
	series, err := s.store.Series.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, domain.NewNotFound("currency series %d not found", id)
	}
	return series, nil
}

// GetAll lists the catalog.
func (s *Service) GetAll(ctx context.Context, enabledOnly bool) ([]domain.CurrencySeries, error) {
	return s.store.Series.FindAll(ctx, enabledOnly)
}
