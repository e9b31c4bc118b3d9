package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sawpanic/fxrates/internal/domain"
)

const seriesColumns = `id, currency_code, provider_series_id, enabled, created_at, created_by, updated_at, updated_by`

// seriesRepo implements persistence.SeriesRepo for PostgreSQL.
type seriesRepo struct {
	q       querier
	timeout time.Duration
}

func (r *seriesRepo) FindByCurrencyCode(ctx context.Context, code string) (*domain.CurrencySeries, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var s domain.CurrencySeries
	err := r.q.GetContext(ctx, &s,
		`SELECT `+seriesColumns+` FROM currency_series WHERE currency_code = $1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query series by currency code: %w", err)
	}
	return &s, nil
}

func (r *seriesRepo) FindByID(ctx context.Context, id int64) (*domain.CurrencySeries, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var s domain.CurrencySeries
	err := r.q.GetContext(ctx, &s,
		`SELECT `+seriesColumns+` FROM currency_series WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query series by id: %w", err)
	}
	return &s, nil
}

func (r *seriesRepo) FindEnabled(ctx context.Context) ([]domain.CurrencySeries, error) {
	return r.findAll(ctx, true)
}

func (r *seriesRepo) FindAll(ctx context.Context, enabledOnly bool) ([]domain.CurrencySeries, error) {
	return r.findAll(ctx, enabledOnly)
}

func (r *seriesRepo) findAll(ctx context.Context, enabledOnly bool) ([]domain.CurrencySeries, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + seriesColumns + ` FROM currency_series`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY currency_code`

	var out []domain.CurrencySeries
	if err := r.q.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to query series catalog: %w", err)
	}
	return out, nil
}

func (r *seriesRepo) Insert(ctx context.Context, s *domain.CurrencySeries) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	actor := domain.AuditFrom(ctx).Actor
	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO currency_series (currency_code, provider_series_id, enabled, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, created_at, updated_at`,
		s.CurrencyCode, s.ProviderSeriesID, s.Enabled, actor).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.NewBusinessRule(domain.CodeDuplicateCurrencyCode,
				"currency series %s already exists", s.CurrencyCode)
		}
		return fmt.Errorf("failed to insert series: %w", err)
	}
	s.CreatedBy = actor
	s.UpdatedBy = actor
	return nil
}

func (r *seriesRepo) UpdateEnabled(ctx context.Context, id int64, enabled bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	actor := domain.AuditFrom(ctx).Actor
	res, err := r.q.ExecContext(ctx, `
		UPDATE currency_series
		SET enabled = $2, updated_at = now(), updated_by = $3
		WHERE id = $1`, id, enabled, actor)
	if err != nil {
		return fmt.Errorf("failed to update series enabled flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewNotFound("currency series %d not found", id)
	}
	return nil
}

func (r *seriesRepo) ExistsByProviderID(ctx context.Context, providerSeriesID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.q.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM currency_series WHERE provider_series_id = $1)`, providerSeriesID)
	if err != nil {
		return false, fmt.Errorf("failed to check provider series id: %w", err)
	}
	return exists, nil
}
