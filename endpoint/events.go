// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/holiman/uint256"

	"github.com/luxfi/courier"
)

// Event is a chain log record. Data is one of the event types below.
type Event struct {
	Block  uint64
	TxHash common.Hash
	Data   interface{}
}

// LogMessagePublished is recorded by the core for every published
// message. Guardians watch for these.
type LogMessagePublished struct {
	Message *courier.UnsignedMessage
}

// RelayRequest is recorded when a publisher also pays for relay to a
// target chain. The relay network watches for these.
type RelayRequest struct {
	Emitter       ids.ID
	Sequence      uint64
	TargetChain   uint16
	GasLimit      *uint256.Int
	RefundAddress ids.ID
	// Authorization is the opaque signed-quote token obtained from the
	// relay pricing service.
	Authorization []byte
	// AmtPaid is the value forwarded to the relay network, after the
	// protocol message fee is taken.
	AmtPaid *uint256.Int
}

// MessageSent is emitted by the greeting endpoint on the source chain
type MessageSent struct {
	Text        string
	TargetChain uint16
	Sequence    uint64
}

// MessageReceived is emitted by the greeting endpoint on the
// destination chain once a greeting is executed
type MessageReceived struct {
	Text        string
	SourceChain uint16
	Source      ids.ID
}
