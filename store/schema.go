package store

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ApplySchema creates (or upgrades, additively) every relation the engine
// uses. Statements are idempotent so the command is safe to re-run against
// a live database.
func (db *DB) ApplySchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "applying schema statement %d", i)
		}
	}
	log.WithField("statements", len(schemaStatements)).Info("applied schema")
	return nil
}

// schemaStatements is executed in order by ApplySchema. Monetary values are
// NUMERIC(14,2) throughout; the ledger additionally keeps its own canonical
// two-decimal string form inside each entry's content hash.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS retailers (
		retailer_id  UUID PRIMARY KEY,
		name         TEXT NOT NULL,
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS wholesalers (
		wholesaler_id      UUID PRIMARY KEY,
		name               TEXT NOT NULL,
		is_active          BOOLEAN NOT NULL DEFAULT TRUE,
		reliability_score  NUMERIC(6,2),
		average_rating     NUMERIC(4,2),
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS products (
		product_id  UUID PRIMARY KEY,
		sku         TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// Per-wholesaler inventory. |reserved| counts units held for awarded
	// orders which have not yet shipped; available stock is stock - reserved.
	`CREATE TABLE IF NOT EXISTS wholesaler_products (
		wholesaler_id   UUID NOT NULL REFERENCES wholesalers(wholesaler_id),
		product_id      UUID NOT NULL REFERENCES products(product_id),
		stock           INTEGER NOT NULL DEFAULT 0,
		reserved        INTEGER NOT NULL DEFAULT 0,
		unit_price      NUMERIC(14,2) NOT NULL DEFAULT 0,
		min_order_qty   INTEGER NOT NULL DEFAULT 1,
		lead_time_days  INTEGER,
		is_available    BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (wholesaler_id, product_id),
		CONSTRAINT wholesaler_products_stock_check    CHECK (stock >= 0),
		CONSTRAINT wholesaler_products_reserved_check CHECK (reserved >= 0),
		CONSTRAINT wholesaler_products_holds_check    CHECK (reserved <= stock)
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		order_id             UUID PRIMARY KEY,
		retailer_id          UUID NOT NULL REFERENCES retailers(retailer_id),
		state                TEXT NOT NULL,
		final_wholesaler_id  UUID REFERENCES wholesalers(wholesaler_id),
		total_amount         NUMERIC(14,2) NOT NULL DEFAULT 0,
		payment_mode         TEXT,
		failure_reason       TEXT,
		expires_at           TIMESTAMPTZ,
		confirmed_at         TIMESTAMPTZ,
		delivered_at         TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_state_updated
		ON orders (state, updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_bidding_expiry
		ON orders (expires_at) WHERE state = 'PENDING_BIDS'`,
	`CREATE INDEX IF NOT EXISTS idx_orders_awaiting_confirmation
		ON orders (updated_at) WHERE state = 'WHOLESALER_ACCEPTED'`,

	// |unit_price| is captured at order time and does not track later
	// catalog changes.
	`CREATE TABLE IF NOT EXISTS order_items (
		order_item_id  UUID PRIMARY KEY,
		order_id       UUID NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
		product_id     UUID NOT NULL REFERENCES products(product_id),
		quantity       INTEGER NOT NULL,
		unit_price     NUMERIC(14,2) NOT NULL DEFAULT 0,
		CONSTRAINT order_items_quantity_check CHECK (quantity >= 1),
		CONSTRAINT order_items_product_uniq UNIQUE (order_id, product_id)
	)`,

	// One offer per wholesaler per order, enforced in the database so
	// concurrent duplicate submissions collapse to a unique violation. At
	// most one offer per order is ever ACCEPTED.
	`CREATE TABLE IF NOT EXISTS vendor_offers (
		offer_id         UUID PRIMARY KEY,
		order_id         UUID NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
		wholesaler_id    UUID NOT NULL REFERENCES wholesalers(wholesaler_id),
		price_quote      NUMERIC(14,2) NOT NULL,
		stock_confirmed  BOOLEAN NOT NULL DEFAULT FALSE,
		estimated_eta    TEXT,
		status           TEXT NOT NULL DEFAULT 'PENDING',
		vendor_declined  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT vendor_offers_price_check CHECK (price_quote >= 0),
		CONSTRAINT vendor_offers_status_check CHECK
			(status IN ('PENDING', 'ACCEPTED', 'REJECTED', 'EXPIRED')),
		CONSTRAINT vendor_offers_uniq UNIQUE (order_id, wholesaler_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_vendor_offers_accepted
		ON vendor_offers (order_id) WHERE status = 'ACCEPTED'`,

	// Stock holds created at award time and released or fulfilled exactly
	// once.
	`CREATE TABLE IF NOT EXISTS stock_reservations (
		reservation_id  UUID PRIMARY KEY,
		order_id        UUID NOT NULL REFERENCES orders(order_id),
		wholesaler_id   UUID NOT NULL REFERENCES wholesalers(wholesaler_id),
		product_id      UUID NOT NULL REFERENCES products(product_id),
		quantity        INTEGER NOT NULL,
		status          TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT stock_reservations_quantity_check CHECK (quantity > 0),
		CONSTRAINT stock_reservations_status_check CHECK
			(status IN ('ACTIVE', 'RELEASED', 'FULFILLED', 'EXPIRED'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_order
		ON stock_reservations (order_id, status)`,

	`CREATE TABLE IF NOT EXISTS credit_accounts (
		retailer_id           UUID PRIMARY KEY REFERENCES retailers(retailer_id),
		credit_limit          NUMERIC(14,2) NOT NULL DEFAULT 0,
		used_credit           NUMERIC(14,2) NOT NULL DEFAULT 0,
		max_order_value       NUMERIC(14,2),
		max_outstanding_days  INTEGER,
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT credit_accounts_limit_check CHECK (credit_limit >= 0),
		CONSTRAINT credit_accounts_used_check  CHECK (used_credit >= 0),
		CONSTRAINT credit_accounts_exposure_check CHECK (used_credit <= credit_limit)
	)`,

	// Optional per-pair credit terms which override the account limit.
	// An inactive row pauses credit for the pair entirely.
	`CREATE TABLE IF NOT EXISTS retailer_wholesaler_credits (
		retailer_id           UUID NOT NULL REFERENCES retailers(retailer_id),
		wholesaler_id         UUID NOT NULL REFERENCES wholesalers(wholesaler_id),
		credit_limit          NUMERIC(14,2) NOT NULL,
		max_order_value       NUMERIC(14,2),
		max_outstanding_days  INTEGER,
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		block_reason          TEXT,
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (retailer_id, wholesaler_id),
		CONSTRAINT rw_credits_limit_check CHECK (credit_limit >= 0)
	)`,

	// Append-only ledger. amount is always positive; the entry type and the
	// running balance delta carry the sign. content_hash chains each entry
	// to its predecessor within the (retailer, wholesaler) pair. The chain
	// linkage itself is application-guarded rather than database-unique.
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		entry_id           UUID PRIMARY KEY,
		retailer_id        UUID NOT NULL REFERENCES retailers(retailer_id),
		wholesaler_id      UUID NOT NULL REFERENCES wholesalers(wholesaler_id),
		seq                BIGINT NOT NULL,
		entry_type         TEXT NOT NULL,
		amount             NUMERIC(14,2) NOT NULL,
		balance_after      NUMERIC(14,2) NOT NULL,
		order_id           UUID,
		reverses_entry_id  UUID REFERENCES ledger_entries(entry_id),
		due_date           TIMESTAMPTZ,
		created_by         TEXT NOT NULL DEFAULT 'SYSTEM',
		prev_hash          TEXT,
		content_hash       TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		CONSTRAINT ledger_entries_amount_check CHECK (amount > 0),
		CONSTRAINT ledger_entries_type_check CHECK
			(entry_type IN ('DEBIT', 'CREDIT', 'ADJUSTMENT', 'REVERSAL')),
		CONSTRAINT ledger_entries_creator_check CHECK
			(created_by IN ('SYSTEM', 'ADMIN'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_pair
		ON ledger_entries (retailer_id, wholesaler_id, seq)`,

	// Chain heads serialize appenders per pair and make balance reads O(1).
	`CREATE TABLE IF NOT EXISTS ledger_heads (
		retailer_id    UUID NOT NULL,
		wholesaler_id  UUID NOT NULL,
		last_hash      TEXT,
		balance        NUMERIC(14,2) NOT NULL DEFAULT 0,
		entry_count    BIGINT NOT NULL DEFAULT 0,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (retailer_id, wholesaler_id)
	)`,

	`CREATE OR REPLACE FUNCTION ledger_entries_immutable() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'ledger entries are append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_ledger_entries_immutable ON ledger_entries`,
	`CREATE TRIGGER trg_ledger_entries_immutable
		BEFORE UPDATE OR DELETE ON ledger_entries
		FOR EACH ROW EXECUTE FUNCTION ledger_entries_immutable()`,

	// Idempotency records. A row with NULL response_status marks a request
	// still in flight; completed rows hold the canonical response until
	// expires_at.
	`CREATE TABLE IF NOT EXISTS idempotency_records (
		idempotency_key  TEXT PRIMARY KEY,
		webhook_type     TEXT NOT NULL DEFAULT '',
		request_hash     TEXT NOT NULL,
		request_body     BYTEA,
		response_status  INTEGER,
		response_body    BYTEA,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at     TIMESTAMPTZ,
		expires_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_idempotency_expiry
		ON idempotency_records (expires_at) WHERE expires_at IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS order_transitions (
		transition_id  BIGSERIAL PRIMARY KEY,
		order_id       UUID NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
		from_state     TEXT NOT NULL,
		to_state       TEXT NOT NULL,
		actor          TEXT NOT NULL,
		reason         TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_transitions_order
		ON order_transitions (order_id, transition_id)`,

	// Terminal transaction failures land here for operator replay. Written
	// outside the failed transaction so the evidence always survives.
	`CREATE TABLE IF NOT EXISTS webhook_failure_log (
		failure_id     BIGSERIAL PRIMARY KEY,
		operation      TEXT NOT NULL,
		entity_ref     TEXT,
		error          TEXT NOT NULL,
		attempts       INTEGER NOT NULL,
		next_retry_at  TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS launch_flags (
		flag        TEXT PRIMARY KEY,
		enabled     BOOLEAN NOT NULL DEFAULT FALSE,
		int_value   BIGINT,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`INSERT INTO launch_flags (flag, enabled) VALUES
		('EMERGENCY_STOP', FALSE),
		('READONLY_MODE', FALSE),
		('MAINTENANCE_MODE', FALSE)
		ON CONFLICT (flag) DO NOTHING`,
}
