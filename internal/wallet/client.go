package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/httpclient"
	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/internal/rate"
	"github.com/Checker-Finance/swap-engine/internal/swap"
)

const upstream = "wallet-service"

// ErrNoWallet is returned when the user has no wallet on record.
var ErrNoWallet = errors.New("user has no wallet")

// Config configures the wallet service client.
type Config struct {
	BaseURL string
	Token   string
}

// Client talks to the wallet service, the submission layer that builds,
// signs and broadcasts swaps on the user's behalf.
type Client struct {
	logger *zap.Logger
	exec   *httpclient.Executor
	cfg    Config
}

// New constructs a Client. Requests are sent at most once.
func New(logger *zap.Logger, cfg Config, rateMgr *rate.Manager, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	exec := httpclient.New(logger, rateMgr, httpClient, 0, upstream, func(status int, body []byte) error {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = gjson.GetBytes(body, "error").String()
		}
		return &httpclient.StatusError{Upstream: upstream + ": " + msg, Status: status, Body: body}
	})
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{logger: logger, exec: exec, cfg: cfg}
}

type submitRequest struct {
	SwapID          uuid.UUID `json:"swapId"`
	Wallet          string    `json:"wallet"`
	FromToken       string    `json:"fromToken"`
	ToToken         string    `json:"toToken"`
	FromAmount      string    `json:"fromAmount"`
	MinimumReceived string    `json:"minimumReceived"`
	Slippage        string    `json:"slippage"`
}

type submitResponse struct {
	SubmissionID    string `json:"submissionId"`
	TransactionHash string `json:"transactionHash"`
}

type lookupResponse struct {
	State           string `json:"state"`
	TransactionHash string `json:"transactionHash"`
	Reason          string `json:"reason"`
}

type walletResponse struct {
	Address string `json:"address"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.WalletRequests.WithLabelValues(op, outcome).Inc()
}

// Submit hands a priced swap to the wallet service.
func (c *Client) Submit(ctx context.Context, wallet string, p swap.SwapParams) (*swap.Submission, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/swaps", submitRequest{
		SwapID:          p.SwapID,
		Wallet:          wallet,
		FromToken:       p.FromToken.Address,
		ToToken:         p.ToToken.Address,
		FromAmount:      p.FromToken.ToBaseUnits(p.FromAmount).String(),
		MinimumReceived: p.ToToken.ToBaseUnits(p.MinimumReceived).String(),
		Slippage:        p.Slippage.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Idempotency-Key", p.SwapID.String())

	var resp submitResponse
	err = c.exec.DoJSON(ctx, req, upstream, &resp)
	observe("submit", err)
	if err != nil {
		return nil, err
	}
	if resp.SubmissionID == "" && resp.TransactionHash == "" {
		return nil, errors.New("wallet service returned no submission id")
	}
	c.logger.Info("wallet.swap_submitted",
		zap.String("swap_id", p.SwapID.String()),
		zap.String("submission_id", resp.SubmissionID),
		zap.String("tx_hash", resp.TransactionHash))
	return &swap.Submission{SubmissionID: resp.SubmissionID, TransactionHash: resp.TransactionHash}, nil
}

// Lookup asks the wallet service what became of a submission.
func (c *Client) Lookup(ctx context.Context, submissionID string) (*swap.SubmissionState, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/swaps/"+url.PathEscape(submissionID), nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	var resp lookupResponse
	err = c.exec.DoJSON(ctx, req, upstream, &resp)
	observe("lookup", err)
	if err != nil {
		return nil, err
	}

	state := &swap.SubmissionState{TransactionHash: resp.TransactionHash}
	if strings.EqualFold(resp.State, "failed") {
		state.Rejected = true
		state.Reason = resp.Reason
		if state.Reason == "" {
			state.Reason = "submission rejected by wallet service"
		}
	}
	return state, nil
}

// WalletFor resolves the wallet address registered for userID.
func (c *Client) WalletFor(ctx context.Context, userID uuid.UUID) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/users/"+userID.String()+"/wallet", nil)
	if err != nil {
		return "", fmt.Errorf("build wallet request: %w", err)
	}
	var resp walletResponse
	err = c.exec.DoJSON(ctx, req, upstream, &resp)
	observe("wallet", err)
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return "", ErrNoWallet
	}
	if err != nil {
		return "", err
	}
	if !common.IsHexAddress(resp.Address) {
		return "", ErrNoWallet
	}
	return resp.Address, nil
}
