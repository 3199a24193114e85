// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api holds the JSON response helpers shared by the guardian
// and executor HTTP services.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/luxfi/log"
)

// ErrorResponse is the error body every service API returns
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as the JSON response body
func WriteJSON(logger log.Logger, w http.ResponseWriter, v interface{}) {
	resp, err := json.Marshal(v)
	if err != nil {
		WriteJSONError(logger, w, http.StatusInternalServerError, "failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		logger.Error("failed to write response", log.Err(err))
	}
}

// WriteJSONError writes an ErrorResponse with the given status code
func WriteJSONError(logger log.Logger, w http.ResponseWriter, statusCode int, errorMsg string) {
	resp, err := json.Marshal(ErrorResponse{Error: errorMsg})
	if err != nil {
		msg := "failed to marshal error response"
		logger.Error(msg, log.Err(err))
		resp = []byte(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(resp); err != nil {
		logger.Error("failed to write error response", log.Err(err))
	}
}
