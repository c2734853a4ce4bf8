package store

import (
	"context"
	"fmt"
)

const swapSchema = `
CREATE SCHEMA IF NOT EXISTS swap;

CREATE TABLE IF NOT EXISTS swap.swap_transaction (
	id                         uuid PRIMARY KEY,
	user_id                    uuid        NOT NULL,
	wallet_address             text        NOT NULL,
	from_token                 text        NOT NULL,
	from_token_symbol          text        NOT NULL,
	to_token                   text        NOT NULL,
	to_token_symbol            text        NOT NULL,
	from_amount                numeric     NOT NULL CHECK (from_amount > 0),
	to_amount                  numeric     NOT NULL,
	exchange_rate              numeric     NOT NULL,
	platform_fee               numeric     NOT NULL,
	platform_fee_percentage    numeric     NOT NULL,
	price_impact_percent       numeric     NOT NULL,
	slippage_tolerance_percent numeric     NOT NULL,
	minimum_received           numeric     NOT NULL,
	dex_provider               text        NOT NULL,
	submission_id              text        NOT NULL DEFAULT '',
	transaction_hash           text,
	status                     text        NOT NULL CHECK (status IN ('pending', 'confirmed', 'failed')),
	error_message              text,
	gas_used                   bigint,
	gas_cost                   numeric,
	created_at                 timestamptz NOT NULL,
	updated_at                 timestamptz NOT NULL,
	confirmed_at               timestamptz,
	failed_at                  timestamptz,
	CONSTRAINT swap_confirmed_has_hash
		CHECK (status <> 'confirmed' OR (transaction_hash IS NOT NULL AND confirmed_at IS NOT NULL)),
	CONSTRAINT swap_failed_has_time
		CHECK (status <> 'failed' OR failed_at IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS swap_transaction_user_created_idx
	ON swap.swap_transaction (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS swap_transaction_status_created_idx
	ON swap.swap_transaction (status, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS swap_transaction_hash_uidx
	ON swap.swap_transaction (transaction_hash) WHERE transaction_hash IS NOT NULL;
`

// EnsureSchema creates the swap schema if it does not exist.
func (s *HybridStore) EnsureSchema(ctx context.Context) error {
	if s.PG == nil {
		return errPGUnavailable
	}
	if _, err := s.PG.Exec(ctx, swapSchema); err != nil {
		return fmt.Errorf("ensure swap schema: %w", err)
	}
	return nil
}
