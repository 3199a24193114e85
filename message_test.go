// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package courier

import (
	"testing"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestUnsignedMessage(t *testing.T) {
	emitter := ids.ID{31: 1}
	payload := []byte("Hello from Sepolia!")

	msg, err := NewUnsignedMessage(10002, emitter, 7, ConsistencyInstant, payload)
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.Equal(t, uint16(10002), msg.EmitterChain)
	require.Equal(t, emitter, msg.EmitterAddress)
	require.Equal(t, uint64(7), msg.Sequence)
	require.Equal(t, payload, msg.Payload)

	b := msg.Bytes()
	require.NotEmpty(t, b)

	id := msg.ID()
	require.Len(t, id, 32)

	parsed, err := ParseUnsignedMessage(b)
	require.NoError(t, err)
	require.Equal(t, msg.EmitterChain, parsed.EmitterChain)
	require.Equal(t, msg.EmitterAddress, parsed.EmitterAddress)
	require.Equal(t, msg.Sequence, parsed.Sequence)
	require.Equal(t, msg.Payload, parsed.Payload)
	require.Equal(t, id, parsed.ID())
}

func TestInvalidUnsignedMessage(t *testing.T) {
	// Unknown consistency level
	_, err := NewUnsignedMessage(10002, ids.ID{}, 0, 42, []byte("hi"))
	require.ErrorIs(t, err, ErrInvalidConsistency)

	// Oversize payload
	_, err = NewUnsignedMessage(10002, ids.ID{}, 0, ConsistencyFinalized, make([]byte, MaxPayloadSize+1))
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestGuardianSetQuorum(t *testing.T) {
	tests := []struct {
		name      string
		guardians int
		quorum    int
	}{
		{name: "single guardian", guardians: 1, quorum: 1},
		{name: "three guardians", guardians: 3, quorum: 3},
		{name: "four guardians", guardians: 4, quorum: 3},
		{name: "nineteen guardians", guardians: 19, quorum: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := make([]*bls.PublicKey, tt.guardians)
			for i := range keys {
				sk, err := bls.NewSecretKey()
				require.NoError(t, err)
				keys[i] = sk.PublicKey()
			}
			set, err := NewGuardianSet(0, keys)
			require.NoError(t, err)
			require.Equal(t, tt.quorum, set.Quorum())
		})
	}
}

func TestEmptyGuardianSet(t *testing.T) {
	_, err := NewGuardianSet(0, nil)
	require.ErrorIs(t, err, ErrEmptyGuardianSet)
}

func TestSignAndVerifyMessage(t *testing.T) {
	sks := make([]*bls.SecretKey, 4)
	keys := make([]*bls.PublicKey, 4)
	for i := range sks {
		sk, err := bls.NewSecretKey()
		require.NoError(t, err)
		sks[i] = sk
		keys[i] = sk.PublicKey()
	}
	set, err := NewGuardianSet(0, keys)
	require.NoError(t, err)

	unsigned, err := NewUnsignedMessage(10002, ids.ID{1}, 0, ConsistencyInstant, []byte("greetings"))
	require.NoError(t, err)

	// Quorum of 3/4 signs
	msg, err := SignMessage(unsigned, sks[:3], set)
	require.NoError(t, err)
	require.NoError(t, VerifyMessage(msg, set))

	// Codec round trip preserves verifiability
	parsed, err := ParseMessage(msg.Bytes())
	require.NoError(t, err)
	require.True(t, msg.Equal(parsed))
	require.NoError(t, VerifyMessage(parsed, set))
}

func TestVerifyMessageBelowQuorum(t *testing.T) {
	sks := make([]*bls.SecretKey, 4)
	keys := make([]*bls.PublicKey, 4)
	for i := range sks {
		sk, err := bls.NewSecretKey()
		require.NoError(t, err)
		sks[i] = sk
		keys[i] = sk.PublicKey()
	}
	set, err := NewGuardianSet(0, keys)
	require.NoError(t, err)

	unsigned, err := NewUnsignedMessage(10002, ids.ID{1}, 0, ConsistencyInstant, []byte("greetings"))
	require.NoError(t, err)

	msg, err := SignMessage(unsigned, sks[:2], set)
	require.NoError(t, err)
	require.ErrorIs(t, VerifyMessage(msg, set), ErrNoQuorum)
}

func TestVerifyMessageWrongSet(t *testing.T) {
	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	set, err := NewGuardianSet(0, []*bls.PublicKey{sk.PublicKey()})
	require.NoError(t, err)

	other, err := bls.NewSecretKey()
	require.NoError(t, err)
	otherSet, err := NewGuardianSet(1, []*bls.PublicKey{other.PublicKey()})
	require.NoError(t, err)

	unsigned, err := NewUnsignedMessage(10002, ids.ID{1}, 0, ConsistencyInstant, []byte("greetings"))
	require.NoError(t, err)

	msg, err := SignMessage(unsigned, []*bls.SecretKey{sk}, set)
	require.NoError(t, err)
	require.ErrorIs(t, VerifyMessage(msg, otherSet), ErrInvalidSignature)
}

func TestSignerWrongChain(t *testing.T) {
	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	s := NewSigner(sk, 10002)

	unsigned, err := NewUnsignedMessage(10004, ids.ID{1}, 0, ConsistencyInstant, []byte("greetings"))
	require.NoError(t, err)

	_, err = s.Sign(unsigned)
	require.ErrorIs(t, err, ErrWrongEmitterChain)
}
