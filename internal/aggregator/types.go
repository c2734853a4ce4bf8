package aggregator

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/internal/tokens"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

var (
	// ErrRateLimited means the aggregator refused the request for quota reasons.
	ErrRateLimited = errors.New("aggregator rate limited")
	// ErrUnavailable covers every other upstream failure.
	ErrUnavailable = errors.New("aggregator unavailable")
)

// QuoteRequest asks for a raw quote of Amount of From into To.
type QuoteRequest struct {
	From   tokens.Token
	To     tokens.Token
	Amount decimal.Decimal
}

// Client is satisfied by the 1inch client and the offline mock.
type Client interface {
	Quote(ctx context.Context, req QuoteRequest) (*model.RawQuote, error)
	Name() string
}

// oneInchQuoteResponse is the body of GET /{chainId}/quote.
type oneInchQuoteResponse struct {
	ToAmount  string                  `json:"toAmount"`
	Gas       uint64                  `json:"gas"`
	Protocols [][][]oneInchProtocolHop `json:"protocols"`
}

type oneInchProtocolHop struct {
	Name             string          `json:"name"`
	Part             decimal.Decimal `json:"part"`
	FromTokenAddress string          `json:"fromTokenAddress"`
	ToTokenAddress   string          `json:"toTokenAddress"`
}
