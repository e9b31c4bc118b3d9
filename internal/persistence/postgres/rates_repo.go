package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/fxrates/internal/domain"
)

const rateColumns = `id, currency_series_id, base_currency, target_currency, rate_date, rate, created_at, created_by, updated_at, updated_by`

// ratesRepo implements persistence.RatesRepo for PostgreSQL.
type ratesRepo struct {
	q       querier
	timeout time.Duration
}

func (r *ratesRepo) FindByTriple(ctx context.Context, base, target string, date time.Time) (*domain.ExchangeRate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out domain.ExchangeRate
	err := r.q.GetContext(ctx, &out, `
		SELECT `+rateColumns+`
		FROM exchange_rate
		WHERE base_currency = $1 AND target_currency = $2 AND rate_date = $3`,
		base, target, domain.Day(date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query rate by triple: %w", err)
	}
	return &out, nil
}

func (r *ratesRepo) FindLatestForSeries(ctx context.Context, seriesID int64) (*domain.ExchangeRate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out domain.ExchangeRate
	err := r.q.GetContext(ctx, &out, `
		SELECT `+rateColumns+`
		FROM exchange_rate
		WHERE currency_series_id = $1
		ORDER BY rate_date DESC
		LIMIT 1`, seriesID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest rate for series: %w", err)
	}
	return &out, nil
}

func (r *ratesRepo) CountForSeries(ctx context.Context, seriesID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.q.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM exchange_rate WHERE currency_series_id = $1`, seriesID)
	if err != nil {
		return 0, fmt.Errorf("failed to count rates for series: %w", err)
	}
	return count, nil
}

func (r *ratesRepo) FindEarliestDateForTarget(ctx context.Context, target string) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var earliest sql.NullTime
	err := r.q.GetContext(ctx, &earliest,
		`SELECT MIN(rate_date) FROM exchange_rate WHERE target_currency = $1`, target)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query earliest date for target: %w", err)
	}
	if !earliest.Valid {
		return time.Time{}, false, nil
	}
	return domain.Day(earliest.Time), true, nil
}

func (r *ratesRepo) FindLatestBefore(ctx context.Context, target string, date time.Time) (*domain.ExchangeRate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out domain.ExchangeRate
	err := r.q.GetContext(ctx, &out, `
		SELECT `+rateColumns+`
		FROM exchange_rate
		WHERE target_currency = $1 AND rate_date < $2
		ORDER BY rate_date DESC
		LIMIT 1`, target, domain.Day(date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest rate before date: %w", err)
	}
	return &out, nil
}

func (r *ratesRepo) FindInRange(ctx context.Context, target string, start, end *time.Time) ([]domain.ExchangeRate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + rateColumns + ` FROM exchange_rate WHERE target_currency = $1`
	args := []interface{}{target}
	if start != nil {
		args = append(args, domain.Day(*start))
		query += fmt.Sprintf(` AND rate_date >= $%d`, len(args))
	}
	if end != nil {
		args = append(args, domain.Day(*end))
		query += fmt.Sprintf(` AND rate_date <= $%d`, len(args))
	}
	query += ` ORDER BY rate_date ASC`

	var out []domain.ExchangeRate
	if err := r.q.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query rates in range: %w", err)
	}
	return out, nil
}

func (r *ratesRepo) BulkInsert(ctx context.Context, rates []domain.ExchangeRate) error {
	if len(rates) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(rates)/1000+1))
	defer cancel()

	actor := domain.AuditFrom(ctx).Actor
	stmt, err := r.q.PrepareContext(ctx, `
		INSERT INTO exchange_rate (currency_series_id, base_currency, target_currency, rate_date, rate, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	for _, rate := range rates {
		_, err := stmt.ExecContext(ctx,
			rate.CurrencySeriesID, rate.BaseCurrency, rate.TargetCurrency,
			domain.Day(rate.Date), rate.Rate, actor)
		if err != nil {
			return fmt.Errorf("failed to insert rate %s/%s: %w",
				rate.TargetCurrency, domain.FormatDate(rate.Date), err)
		}
	}
	return nil
}

func (r *ratesRepo) Insert(ctx context.Context, rate *domain.ExchangeRate) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	actor := domain.AuditFrom(ctx).Actor
	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO exchange_rate (currency_series_id, base_currency, target_currency, rate_date, rate, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, updated_at`,
		rate.CurrencySeriesID, rate.BaseCurrency, rate.TargetCurrency,
		domain.Day(rate.Date), rate.Rate, actor).
		Scan(&rate.ID, &rate.CreatedAt, &rate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rate: %w", err)
	}
	rate.CreatedBy = actor
	rate.UpdatedBy = actor
	return nil
}

func (r *ratesRepo) UpdateRate(ctx context.Context, id int64, rate decimal.Decimal, actor string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE exchange_rate
		SET rate = $2, updated_at = now(), updated_by = $3
		WHERE id = $1`, id, rate, actor)
	if err != nil {
		return fmt.Errorf("failed to update rate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewNotFound("exchange rate %d not found", id)
	}
	return nil
}
