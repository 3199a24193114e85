// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package courier

import (
	"errors"

	"github.com/luxfi/crypto/bls"
)

var (
	_ Signer = (*signer)(nil)

	ErrWrongEmitterChain = errors.New("wrong emitter chain")
)

// Signer produces a single guardian's signature over unsigned messages
type Signer interface {
	Sign(msg *UnsignedMessage) (*bls.Signature, error)

	// PublicKey returns the guardian public key
	PublicKey() *bls.PublicKey
}

// NewSigner creates a signer scoped to a single source chain
func NewSigner(sk *bls.SecretKey, emitterChain uint16) Signer {
	return &signer{
		sk:           sk,
		emitterChain: emitterChain,
	}
}

type signer struct {
	sk           *bls.SecretKey
	emitterChain uint16
}

func (s *signer) Sign(msg *UnsignedMessage) (*bls.Signature, error) {
	if msg.EmitterChain != s.emitterChain {
		return nil, ErrWrongEmitterChain
	}
	return s.sk.Sign(msg.Bytes())
}

func (s *signer) PublicKey() *bls.PublicKey {
	return s.sk.PublicKey()
}
