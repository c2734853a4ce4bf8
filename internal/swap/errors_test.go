package swap

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

func TestError_IsByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(CodeQuoteUnavailable, "down", errors.New("502")))
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
	assert.NotErrorIs(t, err, ErrQuoteExpired)
	assert.Equal(t, CodeQuoteUnavailable, CodeOf(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "502")
}

func TestInsufficientBalance_AsError(t *testing.T) {
	ib := NewInsufficientBalance("USDC", dec("100"), dec("50"))
	assert.Equal(t, CodeInsufficientBalance, CodeOf(ib))

	flat := ib.AsError()
	assert.Equal(t, CodeInsufficientBalance, flat.Code)
	assert.Equal(t, "50", flat.Details["shortfall"].(fmt.Stringer).String())
	assert.Equal(t, "USDC", flat.Details["token"])
}

func TestFanout_ContinuesPastFailingSink(t *testing.T) {
	bad := &fakeSink{err: errors.New("nats down")}
	good := &fakeSink{}
	f := NewFanout(zap.NewNop(), bad, nil, good)

	err := f.PublishSwapEvent(context.Background(), model.SwapEvent{Type: model.SwapEventConfirmed})
	assert.NoError(t, err)
	assert.Len(t, bad.types(), 1)
	assert.Len(t, good.types(), 1)
}
