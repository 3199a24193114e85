// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package guardian

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"

	"github.com/luxfi/courier"
)

var ErrNotFound = errors.New("signed message not found")

type storeKey struct {
	chain    uint16
	emitter  ids.ID
	sequence uint64
}

// store holds quorum-signed messages keyed by (chain, emitter,
// sequence) for retrieval over the API
type store struct {
	mu     sync.RWMutex
	signed map[storeKey]*courier.Message
}

func newStore() *store {
	return &store{signed: make(map[storeKey]*courier.Message)}
}

func (s *store) put(msg *courier.Message) {
	u := msg.UnsignedMessage
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signed[storeKey{
		chain:    u.EmitterChain,
		emitter:  u.EmitterAddress,
		sequence: u.Sequence,
	}] = msg
}

func (s *store) get(chain uint16, emitter ids.ID, sequence uint64) (*courier.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.signed[storeKey{chain: chain, emitter: emitter, sequence: sequence}]
	if !ok {
		return nil, ErrNotFound
	}
	return msg, nil
}
