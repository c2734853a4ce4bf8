package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// TerminalCacheTTL is how long confirmed and failed swaps stay in Redis.
const TerminalCacheTTL = 24 * time.Hour

var errPGUnavailable = errors.New("postgres unavailable")

// HybridStore persists swaps in Postgres and caches terminal rows in Redis.
// Pending rows are always read from Postgres.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid connects to Postgres. rdb may be nil, which disables the
// terminal-row cache.
func NewHybrid(ctx context.Context, rdb *redis.Client, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if pgPoolConfig.MaxConns > 0 {
		cfg.MaxConns = pgPoolConfig.MaxConns
	}
	if pgPoolConfig.MinConns > 0 {
		cfg.MinConns = pgPoolConfig.MinConns
	}
	if pgPoolConfig.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
	}
	if pgPoolConfig.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
	}
	if pgPoolConfig.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &HybridStore{redis: rdb, PG: pool, logger: logger}, nil
}

const swapColumns = `id, user_id, wallet_address, from_token, from_token_symbol, to_token, to_token_symbol,
	from_amount, to_amount, exchange_rate, platform_fee, platform_fee_percentage, price_impact_percent,
	slippage_tolerance_percent, minimum_received, dex_provider, submission_id, transaction_hash, status,
	error_message, gas_used, gas_cost, created_at, updated_at, confirmed_at, failed_at`

func scanSwap(row pgx.Row) (*model.SwapTransaction, error) {
	var (
		tx      model.SwapTransaction
		status  string
		gasUsed sql.NullInt64
		gasCost decimal.NullDecimal
	)
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.WalletAddress,
		&tx.FromToken, &tx.FromTokenSymbol, &tx.ToToken, &tx.ToTokenSymbol,
		&tx.FromAmount, &tx.ToAmount, &tx.ExchangeRate,
		&tx.PlatformFee, &tx.PlatformFeePercentage, &tx.PriceImpactPercent,
		&tx.SlippageTolerancePercent, &tx.MinimumReceived, &tx.DexProvider,
		&tx.SubmissionID, &tx.TransactionHash, &status,
		&tx.ErrorMessage, &gasUsed, &gasCost,
		&tx.CreatedAt, &tx.UpdatedAt, &tx.ConfirmedAt, &tx.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	if tx.Status, err = model.ParseSwapStatus(status); err != nil {
		return nil, err
	}
	if gasUsed.Valid {
		v := uint64(gasUsed.Int64)
		tx.GasUsed = &v
	}
	if gasCost.Valid {
		v := gasCost.Decimal
		tx.GasCost = &v
	}
	return &tx, nil
}

func nullableGasUsed(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}

func swapCacheKey(id uuid.UUID) string {
	return "swap:tx:" + id.String()
}

// CreateSwap inserts a new pending swap.
func (s *HybridStore) CreateSwap(ctx context.Context, tx *model.SwapTransaction) error {
	if s.PG == nil {
		return errPGUnavailable
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO swap.swap_transaction (`+swapColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`,
		tx.ID, tx.UserID, strings.ToLower(tx.WalletAddress),
		tx.FromToken, tx.FromTokenSymbol, tx.ToToken, tx.ToTokenSymbol,
		tx.FromAmount, tx.ToAmount, tx.ExchangeRate,
		tx.PlatformFee, tx.PlatformFeePercentage, tx.PriceImpactPercent,
		tx.SlippageTolerancePercent, tx.MinimumReceived, tx.DexProvider,
		tx.SubmissionID, tx.TransactionHash, tx.Status.String(),
		tx.ErrorMessage, nullableGasUsed(tx.GasUsed), tx.GasCost,
		tx.CreatedAt, tx.UpdatedAt, tx.ConfirmedAt, tx.FailedAt,
	)
	if err != nil {
		s.logger.Error("store.pg.insert_swap_failed",
			zap.String("swap_id", tx.ID.String()),
			zap.Error(err))
		return fmt.Errorf("insert swap %s: %w", tx.ID, err)
	}
	return nil
}

// GetSwap reads a swap, preferring the Redis copy of terminal rows.
func (s *HybridStore) GetSwap(ctx context.Context, id uuid.UUID) (*model.SwapTransaction, error) {
	if tx := s.cached(ctx, id); tx != nil {
		return tx, nil
	}
	if s.PG == nil {
		return nil, errPGUnavailable
	}
	tx, err := scanSwap(s.PG.QueryRow(ctx,
		`SELECT `+swapColumns+` FROM swap.swap_transaction WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get swap %s: %w", id, err)
	}
	s.cacheTerminal(ctx, tx)
	return tx, nil
}

// AttachTransactionHash sets the hash of a pending swap that has none yet.
// Otherwise the current row is returned unchanged.
func (s *HybridStore) AttachTransactionHash(ctx context.Context, id uuid.UUID, hash string, at time.Time) (*model.SwapTransaction, error) {
	if s.PG == nil {
		return nil, errPGUnavailable
	}
	tx, err := scanSwap(s.PG.QueryRow(ctx, `
		UPDATE swap.swap_transaction
		SET transaction_hash = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending' AND transaction_hash IS NULL
		RETURNING `+swapColumns,
		id, hash, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return s.GetSwap(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("attach hash to swap %s: %w", id, err)
	}
	return tx, nil
}

// TransitionSwap applies t only while the row is pending. When another
// writer already moved the swap, the current row is returned with
// applied=false.
func (s *HybridStore) TransitionSwap(ctx context.Context, id uuid.UUID, t model.StatusTransition) (*model.SwapTransaction, bool, error) {
	if s.PG == nil {
		return nil, false, errPGUnavailable
	}
	// apply to a blank pending row to get the exact column values
	target := model.SwapTransaction{Status: model.SwapStatusPending}
	if err := t.Apply(&target); err != nil {
		return nil, false, err
	}

	tx, err := scanSwap(s.PG.QueryRow(ctx, `
		UPDATE swap.swap_transaction
		SET status           = $2,
		    transaction_hash = COALESCE($3, transaction_hash),
		    error_message    = $4,
		    gas_used         = $5,
		    gas_cost         = $6,
		    confirmed_at     = $7,
		    failed_at        = $8,
		    updated_at       = $9
		WHERE id = $1 AND status = 'pending'
		RETURNING `+swapColumns,
		id, target.Status.String(), target.TransactionHash, target.ErrorMessage,
		nullableGasUsed(target.GasUsed), target.GasCost,
		target.ConfirmedAt, target.FailedAt, target.UpdatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		current, gerr := s.GetSwap(ctx, id)
		if gerr != nil {
			return nil, false, gerr
		}
		return current, false, nil
	}
	if err != nil {
		s.logger.Error("store.pg.transition_failed",
			zap.String("swap_id", id.String()),
			zap.String("target", t.Status.String()),
			zap.Error(err))
		return nil, false, fmt.Errorf("transition swap %s: %w", id, err)
	}
	s.cacheTerminal(ctx, tx)
	return tx, true, nil
}

// ListSwaps returns one page of a user's swaps plus the total match count.
func (s *HybridStore) ListSwaps(ctx context.Context, f model.SwapFilter) ([]model.SwapTransaction, int, error) {
	if s.PG == nil {
		return nil, 0, errPGUnavailable
	}
	var status *string
	if f.Status != nil {
		v := f.Status.String()
		status = &v
	}

	var total int
	if err := s.PG.QueryRow(ctx, `
		SELECT count(*) FROM swap.swap_transaction
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
	`, f.UserID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count swaps: %w", err)
	}
	if total == 0 {
		return []model.SwapTransaction{}, 0, nil
	}

	// column and direction come from a whitelist, never from input
	column := "created_at"
	if f.SortBy == model.SortByFromAmount {
		column = "from_amount"
	}
	direction := "DESC"
	if f.Ascending {
		direction = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT %s FROM swap.swap_transaction
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY %s %s, id %s
		LIMIT $3 OFFSET $4
	`, swapColumns, column, direction, direction)

	rows, err := s.PG.Query(ctx, query, f.UserID, status, f.PageSize, f.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list swaps: %w", err)
	}
	defer rows.Close()

	items := make([]model.SwapTransaction, 0, f.PageSize)
	for rows.Next() {
		tx, err := scanSwap(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan swap: %w", err)
		}
		items = append(items, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListPendingSwaps returns the oldest pending swaps created before olderThan.
func (s *HybridStore) ListPendingSwaps(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	if s.PG == nil {
		return nil, errPGUnavailable
	}
	rows, err := s.PG.Query(ctx, `
		SELECT id FROM swap.swap_transaction
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending swaps: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan pending swaps: %w", err)
	}
	return ids, nil
}

// ListConfirmedWithoutFee returns confirmed swaps that have no row in the
// fee ledger, oldest confirmation first.
func (s *HybridStore) ListConfirmedWithoutFee(ctx context.Context, limit int) ([]model.SwapTransaction, error) {
	if s.PG == nil {
		return nil, errPGUnavailable
	}
	rows, err := s.PG.Query(ctx, `
		SELECT `+swapColumns+` FROM swap.swap_transaction s
		WHERE s.status = 'confirmed'
		  AND NOT EXISTS (SELECT 1 FROM ledger.swap_fee f WHERE f.swap_id = s.id)
		ORDER BY s.confirmed_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unbooked fees: %w", err)
	}
	defer rows.Close()

	var out []model.SwapTransaction
	for rows.Next() {
		tx, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap: %w", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// TotalConfirmedVolume sums the input amount of a user's confirmed swaps
// from the given token.
func (s *HybridStore) TotalConfirmedVolume(ctx context.Context, userID uuid.UUID, token string) (decimal.Decimal, error) {
	if s.PG == nil {
		return decimal.Zero, errPGUnavailable
	}
	var total decimal.Decimal
	err := s.PG.QueryRow(ctx, `
		SELECT COALESCE(SUM(from_amount), 0) FROM swap.swap_transaction
		WHERE user_id = $1 AND from_token = $2 AND status = 'confirmed'
	`, userID, strings.ToLower(token)).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("confirmed volume: %w", err)
	}
	return total, nil
}

func (s *HybridStore) cached(ctx context.Context, id uuid.UUID) *model.SwapTransaction {
	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(ctx, swapCacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("store.redis.get_failed", zap.String("swap_id", id.String()), zap.Error(err))
		}
		return nil
	}
	var tx model.SwapTransaction
	if err := json.Unmarshal(data, &tx); err != nil || !tx.Status.IsTerminal() {
		s.logger.Warn("store.redis.corrupt_entry", zap.String("swap_id", id.String()))
		s.redis.Del(ctx, swapCacheKey(id))
		return nil
	}
	return &tx
}

// cacheTerminal stores terminal rows only; they never change again.
func (s *HybridStore) cacheTerminal(ctx context.Context, tx *model.SwapTransaction) {
	if s.redis == nil || !tx.Status.IsTerminal() {
		return
	}
	data, err := json.Marshal(tx)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, swapCacheKey(tx.ID), data, TerminalCacheTTL).Err(); err != nil {
		s.logger.Warn("store.redis.set_failed", zap.String("swap_id", tx.ID.String()), zap.Error(err))
	}
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	if s.PG == nil {
		return errPGUnavailable
	}
	if err := s.PG.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// Close releases the pool. The Redis client is owned by the caller.
func (s *HybridStore) Close() {
	if s.PG != nil {
		s.PG.Close()
	}
}
