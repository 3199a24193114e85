// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package courier

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
)

// Signature is an attestation over a message by some subset of a
// guardian set
type Signature interface {
	// Verify verifies the signature over msg against the guardian set
	Verify(msg []byte, set *GuardianSet) error

	// NumSigners returns the number of guardians that signed
	NumSigners() (int, error)

	// Equal returns true if two signatures are equal
	Equal(other Signature) bool
}

// GuardianSignature is an aggregate BLS signature with a bit set
// indicating which guardians signed
type GuardianSignature struct {
	Signers   Bits                   `serialize:"true"`
	Signature [bls.SignatureLen]byte `serialize:"true"`
}

// Verify verifies the aggregate signature against the guardian set
func (s *GuardianSignature) Verify(msg []byte, set *GuardianSet) error {
	if s.Signers.Len() == 0 {
		return fmt.Errorf("%w: no signers", ErrInvalidSignature)
	}
	if s.Signers.BitLen() > len(set.Keys)+7 {
		return fmt.Errorf("%w: bit set length %d exceeds guardian count %d",
			ErrInvalidSignature, s.Signers.BitLen(), len(set.Keys))
	}

	pks := make([]*bls.PublicKey, 0, s.Signers.Len())
	for i := 0; i < s.Signers.BitLen(); i++ {
		if !s.Signers.Contains(i) {
			continue
		}
		if i >= len(set.Keys) {
			return fmt.Errorf("%w: signer index %d exceeds guardian count %d",
				ErrInvalidSignature, i, len(set.Keys))
		}
		pks = append(pks, set.Keys[i])
	}

	aggPK, err := bls.AggregatePublicKeys(pks)
	if err != nil {
		return fmt.Errorf("failed to aggregate public keys: %w", err)
	}

	sig, err := bls.SignatureFromBytes(s.Signature[:])
	if err != nil {
		return fmt.Errorf("failed to parse signature: %w", err)
	}

	if !bls.Verify(aggPK, sig, msg) {
		return ErrInvalidSignature
	}
	return nil
}

// NumSigners returns the number of guardians that signed
func (s *GuardianSignature) NumSigners() (int, error) {
	return s.Signers.Len(), nil
}

// Equal returns true if two signatures are equal
func (s *GuardianSignature) Equal(other Signature) bool {
	o, ok := other.(*GuardianSignature)
	if !ok {
		return false
	}
	return s.Signers.Equal(o.Signers) && s.Signature == o.Signature
}

// AggregateSignatures aggregates multiple guardian signatures into one
func AggregateSignatures(signatures []*bls.Signature) (*bls.Signature, error) {
	if len(signatures) == 0 {
		return nil, errors.New("no signatures to aggregate")
	}
	return bls.AggregateSignatures(signatures)
}

// SignMessage attests an unsigned message with the given guardian
// secret keys. Every key must belong to the guardian set.
func SignMessage(
	msg *UnsignedMessage,
	sks []*bls.SecretKey,
	set *GuardianSet,
) (*Message, error) {
	if len(sks) == 0 {
		return nil, errors.New("no signers provided")
	}

	msgBytes := msg.Bytes()

	signerBits := NewBits()
	signatures := make([]*bls.Signature, 0, len(sks))
	for _, sk := range sks {
		index := set.IndexOf(sk.PublicKey())
		if index == -1 {
			return nil, errors.New("signer not in guardian set")
		}

		sig, err := sk.Sign(msgBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to sign: %w", err)
		}

		signerBits.Add(index)
		signatures = append(signatures, sig)
	}

	aggSig, err := AggregateSignatures(signatures)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate signatures: %w", err)
	}

	aggSigBytes := [bls.SignatureLen]byte{}
	copy(aggSigBytes[:], bls.SignatureToBytes(aggSig))

	return NewMessage(msg, &GuardianSignature{
		Signers:   signerBits,
		Signature: aggSigBytes,
	})
}
