package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// DBExecutor is the subset of pgxpool.Pool the writer needs.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const feeSchema = `
CREATE SCHEMA IF NOT EXISTS ledger;

CREATE TABLE IF NOT EXISTS ledger.swap_fee (
	swap_id          uuid PRIMARY KEY,
	user_id          uuid        NOT NULL,
	token            text        NOT NULL,
	token_symbol     text        NOT NULL,
	amount           numeric     NOT NULL CHECK (amount >= 0),
	percentage       numeric     NOT NULL,
	treasury_wallet  text        NOT NULL DEFAULT '',
	transaction_hash text,
	collected_at     timestamptz NOT NULL,
	source           text        NOT NULL
);

CREATE INDEX IF NOT EXISTS swap_fee_user_collected_idx
	ON ledger.swap_fee (user_id, collected_at DESC);
`

// FeeWriter books the platform fee of confirmed swaps into ledger.swap_fee.
// A swap is booked at most once.
type FeeWriter struct {
	db       DBExecutor
	logger   *zap.Logger
	treasury string
	source   string
}

// NewFeeWriter constructs a writer. source identifies the writing service.
func NewFeeWriter(db DBExecutor, logger *zap.Logger, treasury, source string) *FeeWriter {
	return &FeeWriter{
		db:       db,
		logger:   logger,
		treasury: treasury,
		source:   source,
	}
}

// EnsureSchema creates the fee ledger table if it does not exist.
func (w *FeeWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, feeSchema); err != nil {
		return fmt.Errorf("ensure fee ledger schema: %w", err)
	}
	return nil
}

// RecordFee inserts the fee of a confirmed swap. Re-recording the same swap
// is a no-op.
func (w *FeeWriter) RecordFee(ctx context.Context, tx *model.SwapTransaction) error {
	if tx == nil {
		return nil
	}
	if tx.Status != model.SwapStatusConfirmed || tx.ConfirmedAt == nil {
		return errors.New("only confirmed swaps carry a collectable fee")
	}

	const query = `
		INSERT INTO ledger.swap_fee (
			swap_id,
			user_id,
			token,
			token_symbol,
			amount,
			percentage,
			treasury_wallet,
			transaction_hash,
			collected_at,
			source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (swap_id) DO NOTHING;
	`

	tag, err := w.db.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.FromToken,
		tx.FromTokenSymbol,
		tx.PlatformFee,
		tx.PlatformFeePercentage,
		w.treasury,
		tx.TransactionHash,
		*tx.ConfirmedAt,
		w.source,
	)
	if err != nil {
		metrics.FeesRecorded.WithLabelValues("error").Inc()
		w.logger.Error("ledger.fee_record_failed",
			zap.String("swap_id", tx.ID.String()),
			zap.String("user_id", tx.UserID.String()),
			zap.Error(err),
		)
		return err
	}

	if tag.RowsAffected() == 0 {
		metrics.FeesRecorded.WithLabelValues("duplicate").Inc()
		w.logger.Debug("ledger.fee_already_recorded", zap.String("swap_id", tx.ID.String()))
		return nil
	}

	metrics.FeesRecorded.WithLabelValues("ok").Inc()
	w.logger.Info("ledger.fee_recorded",
		zap.String("swap_id", tx.ID.String()),
		zap.String("token", tx.FromTokenSymbol),
		zap.String("amount", tx.PlatformFee.String()),
		zap.Time("collected_at", *tx.ConfirmedAt),
	)
	return nil
}
