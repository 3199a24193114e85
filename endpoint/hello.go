// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/courier/payload"
)

var _ Integration = (*Hello)(nil)

// HelloConfig configures a greeting endpoint
type HelloConfig struct {
	// Address is the endpoint's own address, used as the emitter of
	// outbound messages.
	Address ids.ID

	// Admin is the only account allowed to manage the peer registry
	Admin ids.ID

	// Consistency is the fixed consistency level for outbound messages
	Consistency uint8

	// Replay selects the replay-protection strategy delegated to the
	// core on delivery.
	Replay ReplayMode
}

// Hello is the demonstration greeting endpoint. It owns the peer
// registry and the greeting encode/decode hooks; everything else
// (signature verification, replay accounting, fee charging, sequence
// assignment) is delegated to the chain core.
type Hello struct {
	logger log.Logger
	core   *Core
	cfg    HelloConfig

	peersMu sync.RWMutex
	peers   map[uint16]ids.ID
}

// NewHello creates a greeting endpoint on the given core. The
// replay/consistency pairing is validated here: an endpoint that would
// send instant messages while relying on sequence-keyed replay
// protection is a misconfiguration, not a runtime surprise.
func NewHello(logger log.Logger, core *Core, cfg HelloConfig) (*Hello, error) {
	if err := ValidateReplayMode(cfg.Replay, cfg.Consistency); err != nil {
		return nil, err
	}
	return &Hello{
		logger: logger,
		core:   core,
		cfg:    cfg,
		peers:  make(map[uint16]ids.ID),
	}, nil
}

// Address returns the endpoint's address
func (h *Hello) Address() ids.ID {
	return h.cfg.Address
}

// Core returns the chain core this endpoint lives on
func (h *Hello) Core() *Core {
	return h.core
}

// SetPeer registers the trusted counterpart endpoint for a chain,
// overwriting any previous value. Setting the zero ID disables the
// chain. Restricted to the admin account.
func (h *Hello) SetPeer(caller ids.ID, chainID uint16, peer ids.ID) error {
	if caller != h.cfg.Admin {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}

	h.peersMu.Lock()
	h.peers[chainID] = peer
	h.peersMu.Unlock()

	h.logger.Info("peer updated",
		log.Uint64("chainID", uint64(chainID)),
		log.Stringer("peer", peer),
	)
	return nil
}

// Peer returns the trusted counterpart for a chain, or the zero ID if
// none is set
func (h *Hello) Peer(chainID uint16) ids.ID {
	h.peersMu.RLock()
	defer h.peersMu.RUnlock()
	return h.peers[chainID]
}

// ReplayMode implements Integration
func (h *Hello) ReplayMode() ReplayMode {
	return h.cfg.Replay
}

// Receive implements Integration. Invoked by the core only after
// signature, peer, and replay checks have passed.
func (h *Hello) Receive(body []byte, sourceChain uint16, source ids.ID, value *uint256.Int) error {
	if !value.IsZero() {
		return ErrNoValueAllowed
	}

	text, err := payload.DecodeGreeting(body)
	if err != nil {
		return fmt.Errorf("failed to decode greeting: %w", err)
	}

	receipt := h.core.appRecord()
	h.core.Emit(receipt, MessageReceived{
		Text:        text,
		SourceChain: sourceChain,
		Source:      source,
	})

	h.logger.Info("greeting received",
		log.String("text", text),
		log.Uint64("sourceChain", uint64(sourceChain)),
		log.Stringer("source", source),
	)
	return nil
}

// SendGreeting encodes the greeting and hands it to the
// publish-and-request-relay primitive with the endpoint's fixed
// consistency level, the caller as refund address, and the given relay
// authorization token. The attached value must cover totalCost.
func (h *Hello) SendGreeting(
	caller ids.ID,
	text string,
	targetChain uint16,
	gasLimit *uint256.Int,
	totalCost *uint256.Int,
	relayAuthorization []byte,
	value *uint256.Int,
) (*Receipt, error) {
	receipt, err := h.core.PublishWithRelay(PublishParams{
		Caller:        caller,
		Emitter:       h.cfg.Address,
		Payload:       payload.EncodeGreeting(text),
		Consistency:   h.cfg.Consistency,
		TargetChain:   targetChain,
		GasLimit:      gasLimit,
		TotalCost:     totalCost,
		RefundAddress: caller,
		Authorization: relayAuthorization,
		Value:         value,
	})
	if err != nil {
		return nil, err
	}

	h.core.Emit(receipt, MessageSent{
		Text:        text,
		TargetChain: targetChain,
		Sequence:    receipt.Sequence,
	})

	h.logger.Info("greeting sent",
		log.String("text", text),
		log.Uint64("targetChain", uint64(targetChain)),
		log.Uint64("sequence", receipt.Sequence),
	)
	return receipt, nil
}
