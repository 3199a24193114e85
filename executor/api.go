// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/courier/api"
	"github.com/luxfi/courier/guardian"
)

const (
	quotePath  = "/v0/quote"
	statusPath = "/v0/status/tx/{chain}/{txHash}"
)

// QuoteRequest asks the executor to price a relay
type QuoteRequest struct {
	SrcChain uint16 `json:"srcChain"`
	DstChain uint16 `json:"dstChain"`
	// Numeric strings so values above 2^53 survive JSON
	GasLimit string `json:"gasLimit"`
	MsgValue string `json:"msgValue"`
}

// QuoteResponse carries the price and the signed quote token the
// sender must attach to its relay request
type QuoteResponse struct {
	EstimatedCost string `json:"estimatedCost"`
	SignedQuote   string `json:"signedQuote"`
}

// StatusResponse describes a tracked relay attempt
type StatusResponse struct {
	Status        Status `json:"status"`
	EstimatedCost string `json:"estimatedCost,omitempty"`
	AmtPaid       string `json:"amtPaid,omitempty"`
	FailureCause  string `json:"failureCause,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
}

// NewRouter exposes the executor's quote and status API
func NewRouter(logger log.Logger, executor *Executor) http.Handler {
	r := chi.NewRouter()
	r.Post(quotePath, quoteHandler(logger, executor))
	r.Get(statusPath, statusHandler(logger, executor))
	return r
}

func quoteHandler(logger log.Logger, executor *Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QuoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteJSONError(logger, w, http.StatusBadRequest, "could not decode request body")
			return
		}

		gasLimit, err := parseUint256(req.GasLimit)
		if err != nil {
			api.WriteJSONError(logger, w, http.StatusBadRequest, "invalid gas limit")
			return
		}
		msgValue, err := parseUint256(req.MsgValue)
		if err != nil {
			api.WriteJSONError(logger, w, http.StatusBadRequest, "invalid message value")
			return
		}

		executor.metrics.quoteRequestCount.WithLabelValues(fmt.Sprintf("%d", req.DstChain)).Inc()

		quote, token, err := executor.Quoter().RequestQuote(req.SrcChain, req.DstChain, RelayInstructions{
			GasLimit: gasLimit,
			MsgValue: msgValue,
		})
		if errors.Is(err, ErrUnknownRoute) {
			api.WriteJSONError(logger, w, http.StatusBadRequest, err.Error())
			return
		} else if err != nil {
			logger.Error("failed to issue quote", log.Err(err))
			api.WriteJSONError(logger, w, http.StatusInternalServerError, "failed to issue quote")
			return
		}

		api.WriteJSON(logger, w, QuoteResponse{
			EstimatedCost: quote.EstimatedCost.Dec(),
			SignedQuote:   hex.EncodeToString(token),
		})
	}
}

func statusHandler(logger log.Logger, executor *Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chain, err := strconv.ParseUint(chi.URLParam(r, "chain"), 10, 16)
		if err != nil {
			api.WriteJSONError(logger, w, http.StatusBadRequest, "invalid chain ID")
			return
		}
		txHashHex := strings.TrimPrefix(chi.URLParam(r, "txHash"), "0x")
		txHashBytes, err := hex.DecodeString(txHashHex)
		if err != nil || len(txHashBytes) != common.HashLength {
			api.WriteJSONError(logger, w, http.StatusBadRequest, "invalid transaction hash")
			return
		}

		attempt, err := executor.Status(uint16(chain), common.BytesToHash(txHashBytes))
		if errors.Is(err, guardian.ErrNotFound) {
			api.WriteJSONError(logger, w, http.StatusNotFound, "unknown transaction")
			return
		} else if err != nil {
			api.WriteJSONError(logger, w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := StatusResponse{
			Status:       attempt.Status,
			FailureCause: attempt.FailureCause,
			AmtPaid:      attempt.AmtPaid.Dec(),
		}
		if attempt.EstimatedCost != nil {
			resp.EstimatedCost = attempt.EstimatedCost.Dec()
		}
		if attempt.TxHash != (common.Hash{}) {
			resp.TxHash = attempt.TxHash.Hex()
		}
		api.WriteJSON(logger, w, resp)
	}
}

func parseUint256(s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	v := new(uint256.Int)
	if err := v.SetFromDecimal(s); err != nil {
		return nil, err
	}
	return v, nil
}
