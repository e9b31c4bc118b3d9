package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one daily USD-based observation for a target currency.
// target_currency is denormalized from the owning series so range queries
// never need a join.
type ExchangeRate struct {
	ID               int64           `json:"id" db:"id"`
	CurrencySeriesID int64           `json:"currencySeriesId" db:"currency_series_id"`
	BaseCurrency     string          `json:"baseCurrency" db:"base_currency"`
	TargetCurrency   string          `json:"targetCurrency" db:"target_currency"`
	Date             time.Time       `json:"date" db:"rate_date"`
	Rate             decimal.Decimal `json:"rate" db:"rate"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	CreatedBy        string          `json:"createdBy" db:"created_by"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
	UpdatedBy        string          `json:"updatedBy" db:"updated_by"`
}

// DenseRate is one element of a gap-free per-calendar-day series. Requested
// is the day the caller asked about; Published is the observation day whose
// rate was carried forward onto it (Published <= Requested always).
type DenseRate struct {
	BaseCurrency   string          `json:"baseCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	RequestedDate  time.Time       `json:"requestedDate"`
	Rate           decimal.Decimal `json:"rate"`
	PublishedDate  time.Time       `json:"publishedDate"`
}

// ImportResult reports one series' reconcile outcome.
type ImportResult struct {
	CurrencyCode     string    `json:"currencyCode"`
	ProviderSeriesID string    `json:"providerSeriesId"`
	NewRates         int       `json:"newRates"`
	UpdatedRates     int       `json:"updatedRates"`
	SkippedRates     int       `json:"skippedRates"`
	EarliestDate     time.Time `json:"earliestDate,omitempty"`
	LatestDate       time.Time `json:"latestDate,omitempty"`
	CompletedAt      time.Time `json:"completedAt"`
	Error            string    `json:"error,omitempty"`
}

// Total returns the number of observations the import touched.
func (r ImportResult) Total() int {
	return r.NewRates + r.UpdatedRates + r.SkippedRates
}
