// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/courier"
)

// ReplayMode selects how delivered messages are marked against replay
type ReplayMode int

const (
	// ReplayByHash keys the delivered-message ledger by message hash.
	// Valid for any consistency level.
	ReplayByHash ReplayMode = iota

	// ReplayBySequence keys the ledger by (chain, emitter, sequence).
	// Sequence numbers are only stable once the publication block is
	// final, so this mode requires finalized consistency.
	ReplayBySequence
)

var ErrReplayConsistencyMismatch = errors.New(
	"sequence replay protection requires finalized consistency")

// ValidateReplayMode rejects replay/consistency pairings that would
// allow sequence reuse. The pairing is an explicit configuration
// choice; an invalid one fails at construction, not at delivery time.
func ValidateReplayMode(mode ReplayMode, consistency uint8) error {
	if mode == ReplayBySequence && consistency != courier.ConsistencyFinalized {
		return fmt.Errorf("%w (consistency level %d)", ErrReplayConsistencyMismatch, consistency)
	}
	return nil
}

// replayKey identifies a delivered message under either mode. Unused
// fields stay zero.
type replayKey struct {
	chain    uint16
	emitter  ids.ID
	sequence uint64
	hash     ids.ID
}

func keyFor(mode ReplayMode, msg *courier.UnsignedMessage) replayKey {
	switch mode {
	case ReplayBySequence:
		return replayKey{
			chain:    msg.EmitterChain,
			emitter:  msg.EmitterAddress,
			sequence: msg.Sequence,
		}
	default:
		return replayKey{hash: msg.ID()}
	}
}

// replayLedger marks messages already executed on this chain
type replayLedger struct {
	seen map[replayKey]struct{}
}

func newReplayLedger() *replayLedger {
	return &replayLedger{seen: make(map[replayKey]struct{})}
}

func (l *replayLedger) contains(k replayKey) bool {
	_, ok := l.seen[k]
	return ok
}

func (l *replayLedger) mark(k replayKey) {
	l.seen[k] = struct{}{}
}
