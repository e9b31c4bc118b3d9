package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/persistence"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx so every repository can
// run on the pool or inside a transaction unchanged.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Manager owns the connection pool and builds repository sets.
type Manager struct {
	db      *sqlx.DB
	timeout time.Duration
	store   *persistence.Store
}

// NewManager opens the pool, verifies connectivity, and wires the repositories.
func NewManager(cfg config.DatabaseConfig) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m := &Manager{db: db, timeout: cfg.QueryTimeout}
	m.store = m.buildStore(db)
	return m, nil
}

func (m *Manager) buildStore(q querier) *persistence.Store {
	return &persistence.Store{
		Series: &seriesRepo{q: q, timeout: m.timeout},
		Rates:  &ratesRepo{q: q, timeout: m.timeout},
		Outbox: &outboxRepo{q: q, timeout: m.timeout},
		Lease:  &leaseRepo{q: q, timeout: m.timeout},
	}
}

// Store returns the pool-bound repository set.
func (m *Manager) Store() *persistence.Store { return m.store }

// DB exposes the pool for health checks.
func (m *Manager) DB() *sqlx.DB { return m.db }

// Close releases the pool.
func (m *Manager) Close() error { return m.db.Close() }

// Ping verifies connectivity.
func (m *Manager) Ping(ctx context.Context) error { return m.db.PingContext(ctx) }

// EnsureSchema applies the idempotent DDL and seeds the provider catalog.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	for _, s := range domain.SeedCatalog() {
		if _, err := m.db.ExecContext(ctx, seedCatalogSQL, s.CurrencyCode, s.ProviderSeriesID); err != nil {
			return fmt.Errorf("failed to seed series %s: %w", s.CurrencyCode, err)
		}
	}
	log.Debug().Msg("schema ensured and catalog seeded")
	return nil
}

// WithinTx opens a transaction, hands fn a transaction-bound Store, commits on
// nil error, and fires after-commit hooks registered during the body.
func (m *Manager) WithinTx(ctx context.Context, fn func(ctx context.Context, s *persistence.Store) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ctx = persistence.NewTxContext(ctx)
	if err := fn(ctx, m.buildStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	persistence.RunAfterCommitHooks(ctx)
	return nil
}
