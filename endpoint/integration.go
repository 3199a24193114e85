// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

// Integration is the capability surface an application endpoint exposes
// to the core delivery pipeline: peer lookup, replay-strategy selection,
// and payload execution. The fourth capability, encode-and-publish, is
// the endpoint's send path into Core.PublishWithRelay.
type Integration interface {
	// Peer returns the trusted counterpart endpoint on chainID, or the
	// zero ID if none is set. A zero peer rejects all messages claiming
	// to originate from that chain.
	Peer(chainID uint16) ids.ID

	// ReplayMode selects how the core marks delivered messages
	ReplayMode() ReplayMode

	// Receive executes a verified message payload. value is the value
	// attached to the delivery call by the relayer.
	Receive(payload []byte, sourceChain uint16, source ids.ID, value *uint256.Int) error
}
