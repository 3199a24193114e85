// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package guardian

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/courier"
	"github.com/luxfi/courier/utils"
)

const defaultRequestTimeout = 5 * time.Second

// Client queries a guardian signature-status API
type Client struct {
	logger     log.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(logger log.Logger, baseURL string) *Client {
	return &Client{
		logger:     logger,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// SignedMessage fetches the quorum-signed message for
// (chain, emitter, sequence). Returns ErrNotFound while the guardians
// have not yet attested it.
func (c *Client) SignedMessage(
	ctx context.Context,
	chain uint16,
	emitter ids.ID,
	sequence uint64,
) (*courier.Message, error) {
	url := fmt.Sprintf("%s/v1/signed/%d/%s/%d",
		c.baseURL, chain, hex.EncodeToString(emitter[:]), sequence)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardian API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &courier.Error{Code: int32(resp.StatusCode), Message: "unexpected guardian API status"}
	}

	var body SignedMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode guardian API response: %w", err)
	}
	msgBytes, err := hex.DecodeString(body.SignedMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signed message hex: %w", err)
	}
	return courier.ParseMessage(msgBytes)
}

// AwaitSignedMessage polls the API until the signed message is
// available or the policy deadline elapses. A still-unsigned message at
// the deadline yields Outcome utils.TimedOut with a nil message and nil
// error.
func (c *Client) AwaitSignedMessage(
	ctx context.Context,
	chain uint16,
	emitter ids.ID,
	sequence uint64,
	policy utils.PollPolicy,
) (*courier.Message, utils.Outcome, error) {
	var msg *courier.Message
	outcome, err := utils.Poll(ctx, policy, func(ctx context.Context) (bool, error) {
		m, err := c.SignedMessage(ctx, chain, emitter, sequence)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			// Transient transport errors keep the poll alive.
			c.logger.Debug("signature status check failed", log.Err(err))
			return false, nil
		}
		msg = m
		return true, nil
	})
	if err != nil {
		return nil, outcome, err
	}
	return msg, outcome, nil
}
