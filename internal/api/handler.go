package api

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/swap"
	"github.com/Checker-Finance/swap-engine/internal/tokens"
	"github.com/Checker-Finance/swap-engine/internal/wallet"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// QuoteProvider produces quotes.
type QuoteProvider interface {
	GetQuote(ctx context.Context, req swap.QuoteRequest) (*model.Quote, error)
}

// SwapExecutor executes swaps.
type SwapExecutor interface {
	ExecuteSwap(ctx context.Context, req swap.ExecuteRequest) (*model.SwapExecutionResult, error)
}

// StatusTracker exposes owner-scoped status, refresh and history.
type StatusTracker interface {
	GetStatusForUser(ctx context.Context, userID, id uuid.UUID) (*model.SwapTransaction, error)
	RefreshStatusForUser(ctx context.Context, userID, id uuid.UUID) (*model.SwapTransaction, error)
	History(ctx context.Context, q swap.HistoryQuery) (*model.SwapPage, error)
}

// VolumeReader sums a user's confirmed swaps.
type VolumeReader interface {
	TotalConfirmedVolume(ctx context.Context, userID uuid.UUID, token string) (decimal.Decimal, error)
}

// WalletDirectory resolves a user's wallet when the request omits it.
type WalletDirectory interface {
	WalletFor(ctx context.Context, userID uuid.UUID) (string, error)
}

// TokenLister lists the supported tokens.
type TokenLister interface {
	All() []tokens.Token
}

// SlippageBounds are the accepted tolerance limits advertised to clients.
type SlippageBounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// SwapHandler serves the swap API.
type SwapHandler struct {
	logger   *zap.Logger
	quotes   QuoteProvider
	executor SwapExecutor
	tracker  StatusTracker
	volume   VolumeReader
	wallets  WalletDirectory // optional
	tokens   TokenLister     // optional
	bounds   SlippageBounds
}

// NewSwapHandler wires the handler. wallets may be nil, in which case
// execute requests must carry a wallet address.
func NewSwapHandler(
	logger *zap.Logger,
	quotes QuoteProvider,
	executor SwapExecutor,
	tracker StatusTracker,
	volume VolumeReader,
	wallets WalletDirectory,
	bounds SlippageBounds,
) *SwapHandler {
	return &SwapHandler{
		logger:   logger,
		quotes:   quotes,
		executor: executor,
		tracker:  tracker,
		volume:   volume,
		wallets:  wallets,
		bounds:   bounds,
	}
}

// WithTokens enables the supported-token listing.
func (h *SwapHandler) WithTokens(l TokenLister) *SwapHandler {
	h.tokens = l
	return h
}

// ListTokens handles GET /api/v1/swap/tokens.
func (h *SwapHandler) ListTokens(c *fiber.Ctx) error {
	var list []tokens.Token
	if h.tokens != nil {
		list = h.tokens.All()
	}
	out := lo.Map(list, func(t tokens.Token, _ int) TokenResponse {
		return TokenResponse{Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return c.JSON(fiber.Map{"tokens": out})
}

// GetQuote handles GET /api/v1/swap/quote.
func (h *SwapHandler) GetQuote(c *fiber.Ctx) error {
	amount, err := parseDecimalParam(c.Query("amount"), swap.CodeInvalidAmount, "amount")
	if err != nil {
		return h.writeError(c, "quote", err)
	}
	slippage, err := parseOptionalDecimal(c.Query("slippage"), swap.CodeInvalidSlippage, "slippage")
	if err != nil {
		return h.writeError(c, "quote", err)
	}

	quote, err := h.quotes.GetQuote(c.UserContext(), swap.QuoteRequest{
		FromToken: c.Query("fromToken"),
		ToToken:   c.Query("toToken"),
		Amount:    amount,
		Slippage:  slippage,
	})
	if err != nil {
		return h.writeError(c, "quote", err)
	}

	warnings := lo.Compact([]string{
		lo.Ternary(quote.PriceImpactLevel == model.PriceImpactHigh, "high price impact", ""),
		lo.Ternary(swap.IsExcessiveSlippage(quote.SlippageTolerancePercent), "slippage tolerance above 5%", ""),
	})
	return c.JSON(QuoteResponse{Quote: quote, Warnings: warnings})
}

// RecommendSlippage handles GET /api/v1/swap/slippage/recommendation.
func (h *SwapHandler) RecommendSlippage(c *fiber.Ctx) error {
	amount, err := parseDecimalParam(c.Query("amount"), swap.CodeInvalidAmount, "amount")
	if err != nil {
		return h.writeError(c, "slippage", err)
	}
	if !amount.IsPositive() {
		return h.writeError(c, "slippage", &swap.Error{Code: swap.CodeInvalidAmount, Message: "amount must be greater than 0"})
	}
	return c.JSON(SlippageRecommendation{
		Amount:                amount,
		RecommendedSlippage:   swap.RecommendSlippage(amount),
		MinSlippage:           h.bounds.Min,
		MaxSlippage:           h.bounds.Max,
		ExcessiveAbovePercent: decimal.NewFromInt(5),
	})
}

// ExecuteSwap handles POST /api/v1/swap/execute.
func (h *SwapHandler) ExecuteSwap(c *fiber.Ctx) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return writeAPIError(c, fiber.StatusUnauthorized, codeUnauthorized, "missing user", nil)
	}

	var req ExecuteSwapRequest
	if err := c.BodyParser(&req); err != nil {
		return writeAPIError(c, fiber.StatusBadRequest, string(swap.CodeInvalidAmount), "malformed request body", map[string]any{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return h.writeError(c, "execute", err)
	}

	walletAddr := strings.TrimSpace(req.WalletAddress)
	if walletAddr == "" {
		resolved, err := h.resolveWallet(c.UserContext(), userID)
		if err != nil {
			return h.writeError(c, "execute", err)
		}
		walletAddr = resolved
	}

	res, err := h.executor.ExecuteSwap(c.UserContext(), swap.ExecuteRequest{
		UserID:        userID,
		WalletAddress: walletAddr,
		FromToken:     req.FromToken,
		ToToken:       req.ToToken,
		FromAmount:    req.FromAmount,
		Slippage:      req.Slippage,
	})
	if err != nil {
		return h.writeError(c, "execute", err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *SwapHandler) resolveWallet(ctx context.Context, userID uuid.UUID) (string, error) {
	if h.wallets == nil {
		return "", &swap.Error{Code: swap.CodeInvalidWallet, Message: "walletAddress is required"}
	}
	addr, err := h.wallets.WalletFor(ctx, userID)
	if errors.Is(err, wallet.ErrNoWallet) {
		return "", &swap.Error{Code: swap.CodeInvalidWallet, Message: "no wallet on record for user", Err: err}
	}
	if err != nil {
		return "", err
	}
	return addr, nil
}

// History handles GET /api/v1/swap/history.
func (h *SwapHandler) History(c *fiber.Ctx) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return writeAPIError(c, fiber.StatusUnauthorized, codeUnauthorized, "missing user", nil)
	}
	page, err := h.tracker.History(c.UserContext(), swap.HistoryQuery{
		UserID:    userID,
		Status:    c.Query("status"),
		Page:      c.QueryInt("page", 1),
		PageSize:  c.QueryInt("pageSize", 20),
		SortBy:    c.Query("sortBy"),
		SortOrder: strings.ToLower(c.Query("sortOrder")),
	})
	if err != nil {
		return h.writeError(c, "history", err)
	}
	return c.JSON(page)
}

// Volume handles GET /api/v1/swap/volume.
func (h *SwapHandler) Volume(c *fiber.Ctx) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return writeAPIError(c, fiber.StatusUnauthorized, codeUnauthorized, "missing user", nil)
	}
	token := tokens.Normalize(c.Query("token"))
	if token == "" {
		return h.writeError(c, "volume", &swap.Error{Code: swap.CodeInvalidTokenPair, Message: "token is required"})
	}
	vol, err := h.volume.TotalConfirmedVolume(c.UserContext(), userID, token)
	if err != nil {
		return h.writeError(c, "volume", err)
	}
	return c.JSON(VolumeResponse{Token: token, Volume: vol})
}

// Status handles GET /api/v1/swap/:id/status.
func (h *SwapHandler) Status(c *fiber.Ctx) error {
	return h.withSwap(c, "status", h.tracker.GetStatusForUser)
}

// Refresh handles POST /api/v1/swap/:id/refresh.
func (h *SwapHandler) Refresh(c *fiber.Ctx) error {
	return h.withSwap(c, "refresh", h.tracker.RefreshStatusForUser)
}

func (h *SwapHandler) withSwap(c *fiber.Ctx, op string, fn func(context.Context, uuid.UUID, uuid.UUID) (*model.SwapTransaction, error)) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return writeAPIError(c, fiber.StatusUnauthorized, codeUnauthorized, "missing user", nil)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		// malformed ids are indistinguishable from unknown ones
		return writeAPIError(c, fiber.StatusNotFound, string(swap.CodeNotFound), "swap not found", nil)
	}
	tx, err := fn(c.UserContext(), userID, id)
	if err != nil {
		return h.writeError(c, op, err)
	}
	return c.JSON(tx)
}
