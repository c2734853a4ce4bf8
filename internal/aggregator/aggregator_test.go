package aggregator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/tokens"
)

func amoy(t *testing.T, addr string) tokens.Token {
	t.Helper()
	tok, err := tokens.DefaultAmoy().Lookup(addr)
	require.NoError(t, err)
	return tok
}

const (
	usdcAddr   = "0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582"
	wethAddr   = "0x360ad4f9a9A8EFe9A8DCB5f461c4Cc1047E1Dcf9"
	wmaticAddr = "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"
)

func TestOneInch_Quote(t *testing.T) {
	var gotPath, gotAuth, gotAmount, gotSrc string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAmount = r.URL.Query().Get("amount")
		gotSrc = r.URL.Query().Get("src")
		_, _ = w.Write([]byte(`{
			"toAmount": "50000000000000000",
			"gas": 182000,
			"protocols": [[[{"name":"UNISWAP_V3","part":100,"fromTokenAddress":"0x41e9","toTokenAddress":"0x360a"}]]]
		}`))
	}))
	defer srv.Close()

	c := NewOneInch(zap.NewNop(), OneInchConfig{BaseURL: srv.URL + "/", APIKey: "secret", ChainID: 80002}, nil, srv.Client(), nil)
	raw, err := c.Quote(context.Background(), QuoteRequest{
		From:   amoy(t, usdcAddr),
		To:     amoy(t, wethAddr),
		Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	assert.Equal(t, "/80002/quote", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "100000000", gotAmount)
	assert.Equal(t, usdcAddr, gotSrc)

	assert.Equal(t, "1inch", raw.Provider)
	assert.True(t, raw.ToAmount.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, uint64(182000), raw.EstimatedGas)
	require.Len(t, raw.Route, 1)
	assert.Equal(t, "UNISWAP_V3", raw.Route[0].Protocol)
	assert.Nil(t, raw.PriceImpactPercent)
}

func TestOneInch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"description":"Too many requests"}`, ErrRateLimited},
		{"bad request", http.StatusBadRequest, `{"description":"insufficient liquidity"}`, ErrUnavailable},
		{"server error", http.StatusBadGateway, ``, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOneInch(zap.NewNop(), OneInchConfig{BaseURL: srv.URL, ChainID: 80002}, nil, srv.Client(), nil)
			_, err := c.Quote(context.Background(), QuoteRequest{
				From: amoy(t, usdcAddr), To: amoy(t, wethAddr), Amount: decimal.NewFromInt(1),
			})
			assert.ErrorIs(t, err, tt.want)
			assert.EqualValues(t, 1, calls.Load(), "aggregator calls are never retried")
		})
	}
}

func TestOneInch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewOneInch(zap.NewNop(), OneInchConfig{BaseURL: srv.URL, ChainID: 80002}, nil, srv.Client(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Quote(ctx, QuoteRequest{From: amoy(t, usdcAddr), To: amoy(t, wethAddr), Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOneInch_BadToAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"toAmount":"abc","gas":1}`))
	}))
	defer srv.Close()

	c := NewOneInch(zap.NewNop(), OneInchConfig{BaseURL: srv.URL, ChainID: 80002}, nil, srv.Client(), nil)
	_, err := c.Quote(context.Background(), QuoteRequest{From: amoy(t, usdcAddr), To: amoy(t, wethAddr), Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMock_Quote(t *testing.T) {
	m := NewMock()

	raw, err := m.Quote(context.Background(), QuoteRequest{
		From: amoy(t, usdcAddr), To: amoy(t, wethAddr), Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.NotNil(t, raw.SpotRate)
	assert.True(t, raw.SpotRate.Equal(decimal.RequireFromString("0.000285")))
	// 100 * 0.000285 * (1 - 0.01%)
	assert.True(t, raw.ToAmount.Equal(decimal.RequireFromString("0.028497150")), raw.ToAmount.String())
	assert.Equal(t, uint64(150000), raw.EstimatedGas)

	native := amoy(t, tokens.NativeAddress)
	raw, err = m.Quote(context.Background(), QuoteRequest{From: native, To: amoy(t, usdcAddr), Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.True(t, raw.SpotRate.Equal(decimal.RequireFromString("0.80")))
}

func TestMock_UnsupportedPair(t *testing.T) {
	usdc := amoy(t, usdcAddr)
	_, err := NewMock().Quote(context.Background(), QuoteRequest{From: usdc, To: usdc, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMock_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock().Quote(ctx, QuoteRequest{From: amoy(t, usdcAddr), To: amoy(t, wmaticAddr), Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrUnavailable)
}
