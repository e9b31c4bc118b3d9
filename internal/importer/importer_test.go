package importer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/persistence"
	"github.com/sawpanic/fxrates/internal/provider"
)

// fakeSeriesRepo is an in-memory SeriesRepo covering what the importer uses.
type fakeSeriesRepo struct {
	series []domain.CurrencySeries
}

func (f *fakeSeriesRepo) FindByCurrencyCode(_ context.Context, code string) (*domain.CurrencySeries, error) {
	for i := range f.series {
		if f.series[i].CurrencyCode == code {
			s := f.series[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSeriesRepo) FindByID(_ context.Context, id int64) (*domain.CurrencySeries, error) {
	for i := range f.series {
		if f.series[i].ID == id {
			s := f.series[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSeriesRepo) FindEnabled(_ context.Context) ([]domain.CurrencySeries, error) {
	var out []domain.CurrencySeries
	for _, s := range f.series {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSeriesRepo) FindAll(_ context.Context, enabledOnly bool) ([]domain.CurrencySeries, error) {
	if enabledOnly {
		return f.FindEnabled(context.Background())
	}
	return append([]domain.CurrencySeries(nil), f.series...), nil
}

func (f *fakeSeriesRepo) Insert(_ context.Context, s *domain.CurrencySeries) error {
	s.ID = int64(len(f.series) + 1)
	f.series = append(f.series, *s)
	return nil
}

func (f *fakeSeriesRepo) UpdateEnabled(_ context.Context, id int64, enabled bool) error {
	for i := range f.series {
		if f.series[i].ID == id {
			f.series[i].Enabled = enabled
			return nil
		}
	}
	return errors.New("series not found")
}

func (f *fakeSeriesRepo) ExistsByProviderID(_ context.Context, providerSeriesID string) (bool, error) {
	for _, s := range f.series {
		if s.ProviderSeriesID == providerSeriesID {
			return true, nil
		}
	}
	return false, nil
}

// fakeRatesRepo is an in-memory RatesRepo keyed by (target, date).
type fakeRatesRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []domain.ExchangeRate

	bulkInsertCalls int
}

func (f *fakeRatesRepo) FindByTriple(_ context.Context, base, target string, date time.Time) (*domain.ExchangeRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].BaseCurrency == base && f.rows[i].TargetCurrency == target && f.rows[i].Date.Equal(domain.Day(date)) {
			r := f.rows[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRatesRepo) FindLatestForSeries(_ context.Context, seriesID int64) (*domain.ExchangeRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.ExchangeRate
	for i := range f.rows {
		if f.rows[i].CurrencySeriesID != seriesID {
			continue
		}
		if latest == nil || f.rows[i].Date.After(latest.Date) {
			r := f.rows[i]
			latest = &r
		}
	}
	return latest, nil
}

func (f *fakeRatesRepo) CountForSeries(_ context.Context, seriesID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows {
		if r.CurrencySeriesID == seriesID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRatesRepo) FindEarliestDateForTarget(_ context.Context, target string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var earliest time.Time
	var found bool
	for _, r := range f.rows {
		if r.TargetCurrency != target {
			continue
		}
		if !found || r.Date.Before(earliest) {
			earliest = r.Date
			found = true
		}
	}
	return earliest, found, nil
}

func (f *fakeRatesRepo) FindLatestBefore(_ context.Context, target string, date time.Time) (*domain.ExchangeRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.ExchangeRate
	for i := range f.rows {
		if f.rows[i].TargetCurrency != target || !f.rows[i].Date.Before(date) {
			continue
		}
		if latest == nil || f.rows[i].Date.After(latest.Date) {
			r := f.rows[i]
			latest = &r
		}
	}
	return latest, nil
}

func (f *fakeRatesRepo) FindInRange(_ context.Context, target string, start, end *time.Time) ([]domain.ExchangeRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExchangeRate
	for _, r := range f.rows {
		if r.TargetCurrency != target {
			continue
		}
		if start != nil && r.Date.Before(domain.Day(*start)) {
			continue
		}
		if end != nil && r.Date.After(domain.Day(*end)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeRatesRepo) BulkInsert(ctx context.Context, rates []domain.ExchangeRate) error {
	f.mu.Lock()
	f.bulkInsertCalls++
	f.mu.Unlock()
	for i := range rates {
		r := rates[i]
		if err := f.Insert(ctx, &r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRatesRepo) Insert(_ context.Context, r *domain.ExchangeRate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	r.Date = domain.Day(r.Date)
	f.rows = append(f.rows, *r)
	return nil
}

func (f *fakeRatesRepo) UpdateRate(_ context.Context, id int64, rate decimal.Decimal, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Rate = rate
			f.rows[i].UpdatedBy = actor
			return nil
		}
	}
	return errors.New("rate not found")
}

// fakeTxRunner invokes fn against the same store and fires after-commit hooks,
// mirroring the postgres Manager contract.
type fakeTxRunner struct {
	store *persistence.Store
}

func (f *fakeTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, s *persistence.Store) error) error {
	ctx = persistence.NewTxContext(ctx)
	if err := fn(ctx, f.store); err != nil {
		return err
	}
	persistence.RunAfterCommitHooks(ctx)
	return nil
}

// fakeProvider serves canned observations per provider series id.
type fakeProvider struct {
	observations map[string]*provider.RateObservations
	errBySeries  map[string]error
	gotStart     *time.Time
}

func (f *fakeProvider) GetExchangeRates(_ context.Context, series domain.CurrencySeries, startDate *time.Time) (*provider.RateObservations, error) {
	f.gotStart = startDate
	if err := f.errBySeries[series.ProviderSeriesID]; err != nil {
		return nil, err
	}
	obs, ok := f.observations[series.ProviderSeriesID]
	if !ok {
		return &provider.RateObservations{Rates: map[time.Time]decimal.Decimal{}}, nil
	}
	return obs, nil
}

func (f *fakeProvider) ValidateSeriesExists(context.Context, string) (bool, error) {
	return true, nil
}

type fakeEvictor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEvictor) EvictAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeEvictor) evictions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func day(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultSanity() config.SanityConfig {
	return config.SanityConfig{MaxPayloadBytes: 300 * 1024, ExpectedBytesPerDay: 20, Tolerance: 4.0}
}

type fixture struct {
	store    *persistence.Store
	series   *fakeSeriesRepo
	rates    *fakeRatesRepo
	provider *fakeProvider
	evictor  *fakeEvictor
	engine   *Engine
}

func newFixture(sanity config.SanityConfig) *fixture {
	seriesRepo := &fakeSeriesRepo{series: []domain.CurrencySeries{
		{ID: 1, CurrencyCode: "EUR", ProviderSeriesID: "DEXUSEU", Enabled: true},
	}}
	ratesRepo := &fakeRatesRepo{}
	store := &persistence.Store{Series: seriesRepo, Rates: ratesRepo}
	prov := &fakeProvider{observations: map[string]*provider.RateObservations{}}
	evictor := &fakeEvictor{}

	return &fixture{
		store:    store,
		series:   seriesRepo,
		rates:    ratesRepo,
		provider: prov,
		evictor:  evictor,
		engine:   New(store, &fakeTxRunner{store: store}, prov, evictor, sanity),
	}
}

func TestInitialImportStoresFullHistory(t *testing.T) {
	f := newFixture(defaultSanity())
	f.provider.observations["DEXUSEU"] = &provider.RateObservations{
		Rates: map[time.Time]decimal.Decimal{
			day("2024-01-02"): dec("1.0950"),
			day("2024-01-03"): dec("1.0970"),
			day("2024-01-04"): dec("1.0920"),
		},
		PayloadBytes: 90,
	}

	results, err := f.engine.ImportLatestExchangeRates(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "EUR", r.CurrencyCode)
	assert.Equal(t, 3, r.NewRates)
	assert.Zero(t, r.UpdatedRates)
	assert.Zero(t, r.SkippedRates)
	assert.Equal(t, day("2024-01-02"), r.EarliestDate)
	assert.Equal(t, day("2024-01-04"), r.LatestDate)
	assert.Empty(t, r.Error)

	// Initial imports take the bulk path and request full history.
	assert.Equal(t, 1, f.rates.bulkInsertCalls)
	assert.Nil(t, f.provider.gotStart)
	assert.Equal(t, 1, f.evictor.evictions())

	count, err := f.rates.CountForSeries(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestIncrementalImportSkipsUnchangedRates(t *testing.T) {
	f := newFixture(defaultSanity())
	require.NoError(t, f.rates.Insert(context.Background(), &domain.ExchangeRate{
		CurrencySeriesID: 1, BaseCurrency: "USD", TargetCurrency: "EUR",
		Date: day("2024-01-02"), Rate: dec("1.0950"),
	}))

	f.provider.observations["DEXUSEU"] = &provider.RateObservations{
		Rates: map[time.Time]decimal.Decimal{
			day("2024-01-02"): dec("1.0950"),
			day("2024-01-03"): dec("1.0970"),
		},
		PayloadBytes: 60,
	}

	results, err := f.engine.ImportLatestExchangeRates(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 1, r.NewRates)
	assert.Equal(t, 1, r.SkippedRates)
	assert.Zero(t, r.UpdatedRates)

	// Incremental runs request observations strictly after the stored latest.
	require.NotNil(t, f.provider.gotStart)
	assert.Equal(t, day("2024-01-03"), *f.provider.gotStart)
	assert.Zero(t, f.rates.bulkInsertCalls)
}

func TestIncrementalImportUpdatesRestatedRate(t *testing.T) {
	f := newFixture(defaultSanity())
	require.NoError(t, f.rates.Insert(context.Background(), &domain.ExchangeRate{
		CurrencySeriesID: 1, BaseCurrency: "USD", TargetCurrency: "EUR",
		Date: day("2024-01-02"), Rate: dec("1.0950"),
	}))

	f.provider.observations["DEXUSEU"] = &provider.RateObservations{
		Rates: map[time.Time]decimal.Decimal{
			day("2024-01-02"): dec("1.0960"),
		},
		PayloadBytes: 30,
	}

	results, err := f.engine.ImportLatestExchangeRates(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 1, r.UpdatedRates)
	assert.Zero(t, r.NewRates)
	assert.Zero(t, r.SkippedRates)

	stored, err := f.rates.FindByTriple(context.Background(), "USD", "EUR", day("2024-01-02"))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Rate.Equal(dec("1.0960")))
	assert.Equal(t, domain.SystemActor, stored.UpdatedBy)
}

func TestRestatedRateKeepsRequestActor(t *testing.T) {
	f := newFixture(defaultSanity())
	require.NoError(t, f.rates.Insert(context.Background(), &domain.ExchangeRate{
		CurrencySeriesID: 1, BaseCurrency: "USD", TargetCurrency: "EUR",
		Date: day("2024-01-02"), Rate: dec("1.0950"),
	}))
	f.provider.observations["DEXUSEU"] = &provider.RateObservations{
		Rates:        map[time.Time]decimal.Decimal{day("2024-01-02"): dec("1.0960")},
		PayloadBytes: 30,
	}

	ctx := domain.WithAudit(context.Background(), domain.AuditContext{Actor: "alice"})
	result, err := f.engine.ImportForSeries(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedRates)

	stored, err := f.rates.FindByTriple(context.Background(), "USD", "EUR", day("2024-01-02"))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "alice", stored.UpdatedBy, "request actor survives into the audit column")
}

func TestImportIsIdempotentOnReplay(t *testing.T) {
	f := newFixture(defaultSanity())
	f.provider.observations["DEXUSEU"] = &provider.RateObservations{
		Rates: map[time.Time]decimal.Decimal{
			day("2024-01-02"): dec("1.0950"),
		},
		PayloadBytes: 30,
	}

	first, err := f.engine.ImportForSeries(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewRates)

	// Second run: the stored latest is 2024-01-02, so the provider is asked
	// from 2024-01-03 and the same observation comes back filtered by the
	// fake; simulate the provider re-sending the same day anyway.
	second, err := f.engine.ImportForSeries(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, second.NewRates)
	assert.Zero(t, second.UpdatedRates)
	assert.Equal(t, 1, second.SkippedRates)

	count, err := f.rates.CountForSeries(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestImportMissingSkipsSeriesWithData(t *testing.T) {
	f := newFixture(defaultSanity())
	f.series.series = append(f.series.series,
		domain.CurrencySeries{ID: 2, CurrencyCode: "GBP", ProviderSeriesID: "DEXUSUK", Enabled: true},
		domain.CurrencySeries{ID: 3, CurrencyCode: "JPY", ProviderSeriesID: "DEXJPUS", Enabled: false},
	)
	require.NoError(t, f.rates.Insert(context.Background(), &domain.ExchangeRate{
		CurrencySeriesID: 1, BaseCurrency: "USD", TargetCurrency: "EUR",
		Date: day("2024-01-02"), Rate: dec("1.0950"),
	}))

	f.provider.observations["DEXUSUK"] = &provider.RateObservations{
		Rates:        map[time.Time]decimal.Decimal{day("2024-01-02"): dec("1.2700")},
		PayloadBytes: 30,
	}

	results, err := f.engine.ImportMissingExchangeRates(context.Background())
	require.NoError(t, err)

	// EUR already has data and JPY is disabled; only GBP imports.
	require.Len(t, results, 1)
	assert.Equal(t, "GBP", results[0].CurrencyCode)
	assert.Equal(t, 1, results[0].NewRates)
}

func TestPayloadSanityCaps(t *testing.T) {
	tests := []struct {
		name    string
		sanity  config.SanityConfig
		payload int64
		wantIn  string
	}{
		{
			name:    "absolute_cap",
			sanity:  config.SanityConfig{MaxPayloadBytes: 100, ExpectedBytesPerDay: 20, Tolerance: 4.0},
			payload: 101,
			wantIn:  "absolute cap",
		},
		{
			name:    "proportional_cap",
			sanity:  config.SanityConfig{MaxPayloadBytes: 1 << 30, ExpectedBytesPerDay: 20, Tolerance: 2.0},
			payload: 1 << 20,
			wantIn:  "proportional cap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.sanity)
			require.NoError(t, f.rates.Insert(context.Background(), &domain.ExchangeRate{
				CurrencySeriesID: 1, BaseCurrency: "USD", TargetCurrency: "EUR",
				Date: domain.Day(time.Now().UTC().AddDate(0, 0, -2)), Rate: dec("1.0950"),
			}))
			f.provider.observations["DEXUSEU"] = &provider.RateObservations{
				Rates:        map[time.Time]decimal.Decimal{},
				PayloadBytes: tt.payload,
			}

			results, err := f.engine.ImportLatestExchangeRates(context.Background())
			require.NoError(t, err)
			require.Len(t, results, 1)

			require.NotEmpty(t, results[0].Error)
			assert.True(t, strings.Contains(results[0].Error, tt.wantIn),
				"error %q should mention %q", results[0].Error, tt.wantIn)
			assert.Zero(t, f.evictor.evictions())
		})
	}
}

func TestInitialImportSkipsSanityCheck(t *testing.T) {
	f := newFixture(config.SanityConfig{MaxPayloadBytes: 10, ExpectedBytesPerDay: 1, Tolerance: 1.0})
	f.provider.observations["DEXUSEU"] = &provider.RateObservations{
		Rates:        map[time.Time]decimal.Decimal{day("2024-01-02"): dec("1.0950")},
		PayloadBytes: 1 << 20, // would fail every incremental cap
	}

	result, err := f.engine.ImportForSeries(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewRates)
}

func TestProviderFailureDoesNotAbortOtherSeries(t *testing.T) {
	f := newFixture(defaultSanity())
	f.series.series = append(f.series.series,
		domain.CurrencySeries{ID: 2, CurrencyCode: "GBP", ProviderSeriesID: "DEXUSUK", Enabled: true},
	)
	f.provider.errBySeries = map[string]error{
		"DEXUSEU": domain.NewProviderUnavailable("provider request failed", errors.New("timeout")),
	}
	f.provider.observations["DEXUSUK"] = &provider.RateObservations{
		Rates:        map[time.Time]decimal.Decimal{day("2024-01-02"): dec("1.2700")},
		PayloadBytes: 30,
	}

	results, err := f.engine.ImportLatestExchangeRates(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byCode := map[string]domain.ImportResult{}
	for _, r := range results {
		byCode[r.CurrencyCode] = r
	}
	assert.Contains(t, byCode["EUR"].Error, "provider request failed")
	assert.Empty(t, byCode["GBP"].Error)
	assert.Equal(t, 1, byCode["GBP"].NewRates)
}

func TestImportForCurrencyUnknownCode(t *testing.T) {
	f := newFixture(defaultSanity())
	_, err := f.engine.ImportForCurrency(context.Background(), "CHF")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestImportForSeriesUnknownID(t *testing.T) {
	f := newFixture(defaultSanity())
	_, err := f.engine.ImportForSeries(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
