package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/httpclient"
	"github.com/Checker-Finance/swap-engine/internal/rate"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

const oneInchName = "1inch"

// OneInchConfig configures the 1inch client.
type OneInchConfig struct {
	BaseURL string // e.g. https://api.1inch.dev/swap/v5.2
	APIKey  string
	ChainID int64
}

// OneInch wraps the 1inch swap API. Requests are never retried: a second
// attempt could return a different price than the one the caller asked for.
type OneInch struct {
	logger *zap.Logger
	exec   *httpclient.Executor
	cfg    OneInchConfig
}

// NewOneInch constructs a 1inch client. observer may be nil.
func NewOneInch(logger *zap.Logger, cfg OneInchConfig, rateMgr *rate.Manager, httpClient *http.Client, observer httpclient.Observer) *OneInch {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	exec := httpclient.New(logger, rateMgr, httpClient, 0, oneInchName, func(status int, body []byte) error {
		desc := gjson.GetBytes(body, "description").String()
		if desc == "" {
			desc = gjson.GetBytes(body, "error").String()
		}
		logger.Warn("aggregator.client_error",
			zap.String("provider", oneInchName),
			zap.Int("status", status),
			zap.String("description", desc))

		if status == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrRateLimited, desc)
		}
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, oneInchName, status, desc)
	})
	if observer != nil {
		exec.WithObserver(observer)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &OneInch{logger: logger, exec: exec, cfg: cfg}
}

func (c *OneInch) Name() string { return oneInchName }

// Quote calls GET /{chainId}/quote.
func (c *OneInch) Quote(ctx context.Context, req QuoteRequest) (*model.RawQuote, error) {
	amount := req.From.ToBaseUnits(req.Amount)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount below one base unit", ErrUnavailable)
	}

	q := url.Values{}
	q.Set("src", req.From.Address)
	q.Set("dst", req.To.Address)
	q.Set("amount", amount.String())
	q.Set("includeGas", "true")
	q.Set("includeProtocols", "true")
	endpoint := fmt.Sprintf("%s/%d/quote?%s", c.cfg.BaseURL, c.cfg.ChainID, q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	var resp oneInchQuoteResponse
	if err := c.exec.DoJSON(ctx, httpReq, oneInchName, &resp); err != nil {
		return nil, classify(err)
	}

	toAmount, err := req.To.ParseBaseUnits(resp.ToAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	raw := &model.RawQuote{
		Provider:     oneInchName,
		FromToken:    req.From.Address,
		ToToken:      req.To.Address,
		FromAmount:   req.Amount,
		ToAmount:     toAmount,
		EstimatedGas: resp.Gas,
		Route:        flattenRoute(resp.Protocols),
	}

	c.logger.Debug("aggregator.quote",
		zap.String("provider", oneInchName),
		zap.String("from", req.From.Symbol),
		zap.String("to", req.To.Symbol),
		zap.String("amount", req.Amount.String()),
		zap.String("to_amount", toAmount.String()),
		zap.Uint64("gas", resp.Gas))
	return raw, nil
}

// classify keeps rate-limit and unavailability errors distinguishable
// and folds everything else (timeouts, transport) into ErrUnavailable.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, rate.ErrWouldExceedDeadline):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

func flattenRoute(protocols [][][]oneInchProtocolHop) []model.RouteHop {
	var hops []model.RouteHop
	for _, path := range protocols {
		for _, step := range path {
			for _, p := range step {
				hops = append(hops, model.RouteHop{
					Protocol:  p.Name,
					Part:      p.Part,
					FromToken: p.FromTokenAddress,
					ToToken:   p.ToTokenAddress,
				})
			}
		}
	}
	return hops
}
