// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package courier

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/ids"
)

const (
	CodecVersion   = 0
	MaxPayloadSize = 4 * KiB

	// ConsistencyInstant makes a message eligible for guardian signing
	// as soon as it is published.
	ConsistencyInstant uint8 = 200

	// ConsistencyFinalized makes a message eligible for guardian signing
	// only once its publication block is final.
	ConsistencyFinalized uint8 = 1
)

var (
	ErrInvalidMessage     = errors.New("invalid message")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidConsistency = errors.New("invalid consistency level")
	ErrNoQuorum           = errors.New("insufficient signatures for quorum")
)

// UnsignedMessage is a published cross-chain message before guardian
// attestation. The (EmitterChain, EmitterAddress, Sequence) tuple is
// unique per message on a well-behaved chain.
type UnsignedMessage struct {
	EmitterChain   uint16 `serialize:"true"`
	EmitterAddress ids.ID `serialize:"true"`
	Sequence       uint64 `serialize:"true"`
	Consistency    uint8  `serialize:"true"`
	Payload        []byte `serialize:"true"`
}

// NewUnsignedMessage creates and validates an unsigned message
func NewUnsignedMessage(
	emitterChain uint16,
	emitterAddress ids.ID,
	sequence uint64,
	consistency uint8,
	payload []byte,
) (*UnsignedMessage, error) {
	msg := &UnsignedMessage{
		EmitterChain:   emitterChain,
		EmitterAddress: emitterAddress,
		Sequence:       sequence,
		Consistency:    consistency,
		Payload:        payload,
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Verify verifies the unsigned message
func (u *UnsignedMessage) Verify() error {
	if u.Consistency != ConsistencyInstant && u.Consistency != ConsistencyFinalized {
		return fmt.Errorf("%w: %d", ErrInvalidConsistency, u.Consistency)
	}
	if len(u.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d", ErrInvalidMessage, len(u.Payload), MaxPayloadSize)
	}
	return nil
}

// Bytes returns the canonical byte representation of the unsigned message
func (u *UnsignedMessage) Bytes() []byte {
	b, _ := Codec.Marshal(CodecVersion, u)
	return b
}

// ID returns the hash of the unsigned message
func (u *UnsignedMessage) ID() ids.ID {
	return ids.ID(ComputeHash256Array(u.Bytes()))
}

// ParseUnsignedMessage parses an unsigned message from bytes
func ParseUnsignedMessage(b []byte) (*UnsignedMessage, error) {
	msg := &UnsignedMessage{}
	if _, err := Codec.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal unsigned message: %w", err)
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Message is a guardian-attested cross-chain message
type Message struct {
	UnsignedMessage *UnsignedMessage `serialize:"true"`
	Signature       Signature        `serialize:"true"`
}

// NewMessage creates a new attested message
func NewMessage(unsigned *UnsignedMessage, signature Signature) (*Message, error) {
	msg := &Message{
		UnsignedMessage: unsigned,
		Signature:       signature,
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Verify verifies the message format. It does not verify the signature
// against a guardian set; see VerifyMessage.
func (m *Message) Verify() error {
	if m.UnsignedMessage == nil {
		return fmt.Errorf("%w: unsigned message is nil", ErrInvalidMessage)
	}
	if err := m.UnsignedMessage.Verify(); err != nil {
		return err
	}
	if m.Signature == nil {
		return fmt.Errorf("%w: signature is nil", ErrInvalidSignature)
	}
	return nil
}

// Bytes returns the byte representation of the message
func (m *Message) Bytes() []byte {
	b, _ := Codec.Marshal(CodecVersion, m)
	return b
}

// ID returns the ID of the message (hash of the unsigned message)
func (m *Message) ID() ids.ID {
	return m.UnsignedMessage.ID()
}

// ParseMessage parses an attested message from bytes
func ParseMessage(b []byte) (*Message, error) {
	msg := &Message{}
	if _, err := Codec.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// VerifyMessage verifies a message against a guardian set, requiring a
// 2/3+ quorum of the set to have signed.
func VerifyMessage(msg *Message, set *GuardianSet) error {
	if err := msg.Verify(); err != nil {
		return err
	}
	numSigners, err := msg.Signature.NumSigners()
	if err != nil {
		return err
	}
	if numSigners < set.Quorum() {
		return fmt.Errorf("%w: %d of %d required", ErrNoQuorum, numSigners, set.Quorum())
	}
	return msg.Signature.Verify(msg.UnsignedMessage.Bytes(), set)
}

// Equal returns true if two messages are equal
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.UnsignedMessage == nil || other.UnsignedMessage == nil {
		return m.UnsignedMessage == other.UnsignedMessage
	}
	if m.UnsignedMessage.EmitterChain != other.UnsignedMessage.EmitterChain ||
		m.UnsignedMessage.EmitterAddress != other.UnsignedMessage.EmitterAddress ||
		m.UnsignedMessage.Sequence != other.UnsignedMessage.Sequence ||
		m.UnsignedMessage.Consistency != other.UnsignedMessage.Consistency {
		return false
	}
	if !bytes.Equal(m.UnsignedMessage.Payload, other.UnsignedMessage.Payload) {
		return false
	}
	return m.Signature.Equal(other.Signature)
}

// EncodeRLP implements rlp.Encoder for Message
func (m *Message) EncodeRLP(w io.Writer) error {
	sig, ok := m.Signature.(*GuardianSignature)
	if !ok {
		return errors.New("unknown signature type")
	}
	return rlp.Encode(w, []interface{}{m.UnsignedMessage, uint8(0), sig})
}

// DecodeRLP implements rlp.Decoder for Message
func (m *Message) DecodeRLP(s *rlp.Stream) error {
	if _, err := s.List(); err != nil {
		return err
	}

	m.UnsignedMessage = &UnsignedMessage{}
	if err := s.Decode(m.UnsignedMessage); err != nil {
		return fmt.Errorf("failed to decode unsigned message: %w", err)
	}

	var sigType uint8
	if err := s.Decode(&sigType); err != nil {
		return fmt.Errorf("failed to decode signature type: %w", err)
	}

	switch sigType {
	case 0:
		sig := &GuardianSignature{}
		if err := s.Decode(sig); err != nil {
			return fmt.Errorf("failed to decode guardian signature: %w", err)
		}
		m.Signature = sig
	default:
		return fmt.Errorf("unknown signature type: %d", sigType)
	}

	return s.ListEnd()
}
