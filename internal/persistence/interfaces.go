package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/fxrates/internal/domain"
)

// SeriesRepo provides catalog persistence for currency series.
type SeriesRepo interface {
	// FindByCurrencyCode returns the series for an ISO code, or nil if none.
	FindByCurrencyCode(ctx context.Context, code string) (*domain.CurrencySeries, error)

	// FindByID returns the series by primary key, or nil if none.
	FindByID(ctx context.Context, id int64) (*domain.CurrencySeries, error)

	// FindEnabled returns all enabled series ordered by currency code.
	FindEnabled(ctx context.Context) ([]domain.CurrencySeries, error)

	// FindAll returns the catalog, optionally restricted to enabled entries.
	FindAll(ctx context.Context, enabledOnly bool) ([]domain.CurrencySeries, error)

	// Insert persists a new series and fills its ID and audit columns.
	Insert(ctx context.Context, s *domain.CurrencySeries) error

	// UpdateEnabled flips the enabled flag; no other column mutates.
	UpdateEnabled(ctx context.Context, id int64, enabled bool) error

	// ExistsByProviderID reports whether a provider series id is taken.
	ExistsByProviderID(ctx context.Context, providerSeriesID string) (bool, error)
}

// RatesRepo provides exchange rate persistence. The unique
// (base, target, date) triple is the serialization point for all upserts.
type RatesRepo interface {
	// FindByTriple returns the single row for the unique triple, or nil.
	FindByTriple(ctx context.Context, base, target string, date time.Time) (*domain.ExchangeRate, error)

	// FindLatestForSeries returns the most recent rate of a series, or nil.
	FindLatestForSeries(ctx context.Context, seriesID int64) (*domain.ExchangeRate, error)

	// CountForSeries returns the number of stored rates for a series.
	CountForSeries(ctx context.Context, seriesID int64) (int64, error)

	// FindEarliestDateForTarget returns the earliest stored date for a target
	// currency; ok is false when the target has no rows.
	FindEarliestDateForTarget(ctx context.Context, target string) (time.Time, bool, error)

	// FindLatestBefore returns the most recent rate strictly before date for
	// the target, or nil. Powers carry-forward into a queried range.
	FindLatestBefore(ctx context.Context, target string, date time.Time) (*domain.ExchangeRate, error)

	// FindInRange returns rates for a target ordered ascending by date. Nil
	// bounds are open.
	FindInRange(ctx context.Context, target string, start, end *time.Time) ([]domain.ExchangeRate, error)

	// BulkInsert inserts all rows in one statement batch (initial imports).
	BulkInsert(ctx context.Context, rates []domain.ExchangeRate) error

	// Insert persists one new observation row.
	Insert(ctx context.Context, r *domain.ExchangeRate) error

	// UpdateRate restates the value of an existing row in place.
	UpdateRate(ctx context.Context, id int64, rate decimal.Decimal, actor string) error
}

// OutboxRepo persists durable publication intents. Insert must run inside the
// same transaction as the business mutation that produced the event.
type OutboxRepo interface {
	Insert(ctx context.Context, e *domain.OutboxEvent) error

	// FindPending returns events with a null completion date, oldest first.
	FindPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)

	// MarkCompleted sets the completion date. Completion is monotonic.
	MarkCompleted(ctx context.Context, id int64, at time.Time) error

	// DeleteCompletedBefore sweeps completed rows older than cutoff.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Lease is a held named lease. Release clamps the lease expiry to at least
// lockedAt + holdAtLeast so a finished run cannot immediately re-fire.
type Lease interface {
	Name() string
	Release(ctx context.Context) error
}

// LeaseRepo is the database-backed lock used for single-executor scheduling
// across replicas. Liveness is purely time-based; there is no heartbeat.
type LeaseRepo interface {
	// TryAcquire atomically claims name until now+holdAtMost. Returns nil
	// (no error) when another holder's lease is still live.
	TryAcquire(ctx context.Context, name string, holdAtMost, holdAtLeast time.Duration) (Lease, error)
}

// Store aggregates the repository set. A Store bound to a transaction is
// handed to WithinTx callbacks; the top-level Store runs on the pool.
type Store struct {
	Series SeriesRepo
	Rates  RatesRepo
	Outbox OutboxRepo
	Lease  LeaseRepo
}

// TxRunner opens a transaction, invokes fn with a transaction-bound Store,
// commits on nil error, and then runs hooks registered via AfterCommit.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s *Store) error) error
}
