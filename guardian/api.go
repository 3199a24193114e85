// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package guardian

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/courier/api"
)

const signedMessagePath = "/v1/signed/{chain}/{emitter}/{sequence}"

// SignedMessageResponse carries the hex-encoded signed message bytes
type SignedMessageResponse struct {
	SignedMessage string `json:"signed-message"`
}

// NewRouter exposes the guardian network's signature-status API
func NewRouter(logger log.Logger, network *Network) http.Handler {
	r := chi.NewRouter()
	r.Get(signedMessagePath, signedMessageHandler(logger, network))
	return r
}

func signedMessageHandler(logger log.Logger, network *Network) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chain, err := strconv.ParseUint(chi.URLParam(r, "chain"), 10, 16)
		if err != nil {
			api.WriteJSONError(logger, w, http.StatusBadRequest, "invalid chain ID")
			return
		}
		emitter, err := parseEmitter(chi.URLParam(r, "emitter"))
		if err != nil {
			api.WriteJSONError(logger, w, http.StatusBadRequest, "invalid emitter address")
			return
		}
		sequence, err := strconv.ParseUint(chi.URLParam(r, "sequence"), 10, 64)
		if err != nil {
			api.WriteJSONError(logger, w, http.StatusBadRequest, "invalid sequence")
			return
		}

		msg, err := network.SignedMessage(uint16(chain), emitter, sequence)
		if errors.Is(err, ErrNotFound) {
			api.WriteJSONError(logger, w, http.StatusNotFound, err.Error())
			return
		} else if err != nil {
			api.WriteJSONError(logger, w, http.StatusInternalServerError, err.Error())
			return
		}

		api.WriteJSON(logger, w, SignedMessageResponse{
			SignedMessage: hex.EncodeToString(msg.Bytes()),
		})
	}
}

func parseEmitter(s string) (ids.ID, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return ids.Empty, err
	}
	var id ids.ID
	if len(b) != len(id) {
		return ids.Empty, fmt.Errorf("expected %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}
