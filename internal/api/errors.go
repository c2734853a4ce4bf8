package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/swap"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

const (
	codeUnauthorized = "UNAUTHORIZED"
	codeInternal     = "INTERNAL"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeAPIError(c *fiber.Ctx, status int, code, msg string, details map[string]any) error {
	return c.Status(status).JSON(ErrorResponse{Code: code, Message: msg, Details: details})
}

// statusFor maps a domain code to its HTTP status.
func statusFor(code swap.Code) int {
	switch code {
	case swap.CodeInvalidTokenPair, swap.CodeInvalidAmount, swap.CodeInvalidSlippage,
		swap.CodeInvalidWallet, swap.CodeInvalidFilter:
		return fiber.StatusBadRequest
	case swap.CodeInsufficientBalance:
		return fiber.StatusUnprocessableEntity
	case swap.CodeQuoteUnavailable, swap.CodeBalanceUnavailable:
		return fiber.StatusServiceUnavailable
	case swap.CodeQuoteExpired:
		return fiber.StatusConflict
	case swap.CodeSwapSubmissionFailed:
		return fiber.StatusBadGateway
	case swap.CodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders err. Unknown errors are logged and hidden behind INTERNAL.
func (h *SwapHandler) writeError(c *fiber.Ctx, op string, err error) error {
	var ib *swap.InsufficientBalanceError
	if errors.As(err, &ib) {
		e := ib.AsError()
		return writeAPIError(c, fiber.StatusUnprocessableEntity, string(e.Code), e.Message, e.Details)
	}
	var de *swap.Error
	if errors.As(err, &de) {
		status := statusFor(de.Code)
		if status >= fiber.StatusInternalServerError {
			h.logger.Warn("api."+op+".failed", zap.String("code", string(de.Code)), zap.Error(err))
		}
		msg := de.Message
		if msg == "" {
			msg = string(de.Code)
		}
		return writeAPIError(c, status, string(de.Code), msg, de.Details)
	}
	if errors.Is(err, model.ErrSwapNotFound) {
		return writeAPIError(c, fiber.StatusNotFound, string(swap.CodeNotFound), "swap not found", nil)
	}

	h.logger.Error("api."+op+".internal_error", zap.Error(err))
	return writeAPIError(c, fiber.StatusInternalServerError, codeInternal, "internal error", nil)
}
