// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/courier"
	"github.com/luxfi/courier/cache"
	"github.com/luxfi/courier/guardian"
	"github.com/luxfi/courier/utils"
)

const (
	defaultRequestTimeout = 5 * time.Second

	// quoteCacheTTL is short relative to quote validity so cached
	// quotes are always redeemable when attached to a send.
	quoteCacheTTL = 1 * time.Minute
)

// ClientQuote is a priced relay offer as seen by a sender
type ClientQuote struct {
	EstimatedCost *uint256.Int
	SignedQuote   []byte
}

type quoteKey struct {
	srcChain uint16
	dstChain uint16
	gasLimit string
	msgValue string
}

// Client queries an executor's quote and status API
type Client struct {
	logger     log.Logger
	baseURL    string
	httpClient *http.Client
	quotes     *cache.TTLCache[quoteKey, *ClientQuote]
}

func NewClient(logger log.Logger, baseURL string) *Client {
	return &Client{
		logger:     logger,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		quotes:     cache.NewTTLCache[quoteKey, *ClientQuote](quoteCacheTTL),
	}
}

// RequestQuote prices a relay, serving repeated identical requests from
// a short-lived cache
func (c *Client) RequestQuote(
	ctx context.Context,
	srcChain uint16,
	dstChain uint16,
	instructions RelayInstructions,
) (*ClientQuote, error) {
	gasLimit := valueOrZero(instructions.GasLimit)
	msgValue := valueOrZero(instructions.MsgValue)
	key := quoteKey{
		srcChain: srcChain,
		dstChain: dstChain,
		gasLimit: gasLimit.Dec(),
		msgValue: msgValue.Dec(),
	}
	return c.quotes.Get(key, func(k quoteKey) (*ClientQuote, error) {
		return c.fetchQuote(ctx, k)
	}, false)
}

func (c *Client) fetchQuote(ctx context.Context, key quoteKey) (*ClientQuote, error) {
	reqBody, err := json.Marshal(QuoteRequest{
		SrcChain: key.srcChain,
		DstChain: key.dstChain,
		GasLimit: key.gasLimit,
		MsgValue: key.msgValue,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+quotePath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query executor API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &courier.Error{Code: int32(resp.StatusCode), Message: "unexpected executor API status"}
	}

	var body QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	cost, err := parseUint256(body.EstimatedCost)
	if err != nil {
		return nil, fmt.Errorf("failed to parse estimated cost: %w", err)
	}
	token, err := hex.DecodeString(body.SignedQuote)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote token: %w", err)
	}
	return &ClientQuote{EstimatedCost: cost, SignedQuote: token}, nil
}

// Status fetches the relay attempt tracked for a source transaction.
// Returns guardian.ErrNotFound while the executor has not observed it.
func (c *Client) Status(ctx context.Context, sourceChain uint16, txHash common.Hash) (*StatusResponse, error) {
	url := fmt.Sprintf("%s/v0/status/tx/%d/%s", c.baseURL, sourceChain, txHash.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query executor API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, guardian.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &courier.Error{Code: int32(resp.StatusCode), Message: "unexpected executor API status"}
	}

	var body StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &body, nil
}

// AwaitTerminalStatus polls the status API until the attempt leaves the
// pending state or the policy deadline elapses. The final status
// observed (which may still be pending on timeout) is returned.
func (c *Client) AwaitTerminalStatus(
	ctx context.Context,
	sourceChain uint16,
	txHash common.Hash,
	policy utils.PollPolicy,
) (*StatusResponse, utils.Outcome, error) {
	var last *StatusResponse
	outcome, err := utils.Poll(ctx, policy, func(ctx context.Context) (bool, error) {
		status, err := c.Status(ctx, sourceChain, txHash)
		if errors.Is(err, guardian.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			c.logger.Debug("relay status check failed", log.Err(err))
			return false, nil
		}
		last = status
		return status.Status != StatusPending, nil
	})
	if err != nil {
		return last, outcome, err
	}
	return last, outcome, nil
}
