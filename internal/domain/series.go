package domain

import (
	"regexp"
	"time"
)

// BaseCurrency is the fixed base of every stored rate. The provider publishes
// USD reference series only; cross rates are out of scope.
const BaseCurrency = "USD"

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// CurrencySeries maps one ISO-4217 currency to an upstream provider series.
// currency_code and provider_series_id are immutable once persisted; only the
// enabled flag mutates.
type CurrencySeries struct {
	ID               int64     `json:"id" db:"id"`
	CurrencyCode     string    `json:"currencyCode" db:"currency_code"`
	ProviderSeriesID string    `json:"providerSeriesId" db:"provider_series_id"`
	Enabled          bool      `json:"enabled" db:"enabled"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	CreatedBy        string    `json:"createdBy" db:"created_by"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
	UpdatedBy        string    `json:"updatedBy" db:"updated_by"`
}

// ValidateCurrencyCode checks the three-letter shape, ISO-4217 membership, and
// the fixed-base rule (USD series are not importable targets).
func ValidateCurrencyCode(code string) error {
	if !currencyCodePattern.MatchString(code) {
		return NewBusinessRule(CodeInvalidIso4217Code, "currency code %q must match ^[A-Z]{3}$", code)
	}
	if !IsISO4217(code) {
		return NewBusinessRule(CodeInvalidIso4217Code, "currency code %q is not an ISO-4217 currency", code)
	}
	if code == BaseCurrency {
		return NewBusinessRule(CodeInvalidIso4217Code, "USD is the fixed base currency and cannot be a target")
	}
	return nil
}

// SeedCatalog returns the pre-seeded catalog of provider FX series, all
// disabled. The set mirrors the H.10 daily reference-rate publication.
func SeedCatalog() []CurrencySeries {
	pairs := []struct {
		code   string
		series string
	}{
		{"AUD", "DEXUSAL"},
		{"BRL", "DEXBZUS"},
		{"CAD", "DEXCAUS"},
		{"CHF", "DEXSZUS"},
		{"CNY", "DEXCHUS"},
		{"DKK", "DEXDNUS"},
		{"EUR", "DEXUSEU"},
		{"GBP", "DEXUSUK"},
		{"HKD", "DEXHKUS"},
		{"INR", "DEXINUS"},
		{"JPY", "DEXJPUS"},
		{"KRW", "DEXKOUS"},
		{"LKR", "DEXSLUS"},
		{"MXN", "DEXMXUS"},
		{"MYR", "DEXMAUS"},
		{"NOK", "DEXNOUS"},
		{"NZD", "DEXUSNZ"},
		{"SEK", "DEXSDUS"},
		{"SGD", "DEXSIUS"},
		{"THB", "DEXTHUS"},
		{"TWD", "DEXTAUS"},
		{"VES", "DEXVZUS"},
		{"ZAR", "DEXSFUS"},
	}

	out := make([]CurrencySeries, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, CurrencySeries{
			CurrencyCode:     p.code,
			ProviderSeriesID: p.series,
			Enabled:          false,
		})
	}
	return out
}
