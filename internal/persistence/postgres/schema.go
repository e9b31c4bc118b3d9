package postgres

// ddl bootstraps the four tables the service owns. Statements are idempotent
// so every replica can run them at startup.
const ddl = `
CREATE TABLE IF NOT EXISTS currency_series (
	id                 BIGSERIAL PRIMARY KEY,
	currency_code      CHAR(3)     NOT NULL UNIQUE,
	provider_series_id TEXT        NOT NULL UNIQUE,
	enabled            BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by         TEXT        NOT NULL DEFAULT 'system',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_by         TEXT        NOT NULL DEFAULT 'system',
	CONSTRAINT chk_currency_code CHECK (currency_code ~ '^[A-Z]{3}$'),
	CONSTRAINT chk_not_base CHECK (currency_code <> 'USD')
);

CREATE TABLE IF NOT EXISTS exchange_rate (
	id                 BIGSERIAL PRIMARY KEY,
	currency_series_id BIGINT      NOT NULL REFERENCES currency_series(id) ON DELETE RESTRICT,
	base_currency      CHAR(3)     NOT NULL,
	target_currency    CHAR(3)     NOT NULL,
	rate_date          DATE        NOT NULL,
	rate               NUMERIC(38,10) NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by         TEXT        NOT NULL DEFAULT 'system',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_by         TEXT        NOT NULL DEFAULT 'system',
	CONSTRAINT uq_exchange_rate_triple UNIQUE (base_currency, target_currency, rate_date),
	CONSTRAINT chk_rate_positive CHECK (rate > 0)
);

CREATE INDEX IF NOT EXISTS idx_exchange_rate_target      ON exchange_rate (target_currency);
CREATE INDEX IF NOT EXISTS idx_exchange_rate_target_date ON exchange_rate (target_currency, rate_date);
CREATE INDEX IF NOT EXISTS idx_exchange_rate_series      ON exchange_rate (currency_series_id);

CREATE TABLE IF NOT EXISTS event_publication (
	id               BIGSERIAL PRIMARY KEY,
	listener_id      TEXT        NOT NULL,
	event_type       TEXT        NOT NULL,
	payload          JSONB       NOT NULL,
	publication_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	completion_date  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_event_publication_pending
	ON event_publication (publication_date) WHERE completion_date IS NULL;

CREATE TABLE IF NOT EXISTS shedlock (
	name       TEXT PRIMARY KEY,
	lock_until TIMESTAMPTZ NOT NULL,
	locked_at  TIMESTAMPTZ NOT NULL,
	locked_by  TEXT        NOT NULL
);
`

// seedCatalogSQL inserts the pre-seeded provider pairs, disabled, skipping
// any codes an operator already created.
const seedCatalogSQL = `
INSERT INTO currency_series (currency_code, provider_series_id, enabled)
VALUES ($1, $2, FALSE)
ON CONFLICT (currency_code) DO NOTHING`
