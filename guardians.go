// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package courier

import (
	"bytes"
	"errors"

	"github.com/luxfi/crypto/bls"
)

var ErrEmptyGuardianSet = errors.New("empty guardian set")

// GuardianSet is the set of signer keys whose attestation makes a
// message executable. All guardians carry equal weight.
type GuardianSet struct {
	Index uint32
	Keys  []*bls.PublicKey
}

// NewGuardianSet creates a guardian set with the given index and keys
func NewGuardianSet(index uint32, keys []*bls.PublicKey) (*GuardianSet, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyGuardianSet
	}
	return &GuardianSet{
		Index: index,
		Keys:  keys,
	}, nil
}

// Quorum returns the number of signatures required for a message to be
// considered attested: strictly more than 2/3 of the set.
func (s *GuardianSet) Quorum() int {
	return len(s.Keys)*2/3 + 1
}

// IndexOf returns the index of the guardian with the given public key,
// or -1 if the key is not in the set.
func (s *GuardianSet) IndexOf(pk *bls.PublicKey) int {
	pkBytes := bls.PublicKeyToCompressedBytes(pk)
	for i, key := range s.Keys {
		if bytes.Equal(bls.PublicKeyToCompressedBytes(key), pkBytes) {
			return i
		}
	}
	return -1
}
