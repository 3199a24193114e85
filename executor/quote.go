// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/rlp"

	"github.com/luxfi/courier"
)

var (
	ErrUnknownRoute     = errors.New("no route to target chain")
	ErrQuoteExpired     = errors.New("quote expired")
	ErrInvalidQuote     = errors.New("invalid quote token")
	ErrQuoteBadSignedBy = errors.New("quote not signed by this executor")
)

// DefaultQuoteValidity is how long an issued quote stays redeemable
const DefaultQuoteValidity = 10 * time.Minute

// RelayInstructions describe the execution the sender is paying for on
// the target chain
type RelayInstructions struct {
	GasLimit *uint256.Int
	MsgValue *uint256.Int
}

// Quote is a priced relay commitment. Its serialized form, signed by
// the executor, is the authorization token the sender attaches to the
// relay request on chain.
type Quote struct {
	SrcChain      uint16
	DstChain      uint16
	GasLimit      *uint256.Int
	MsgValue      *uint256.Int
	EstimatedCost *uint256.Int
	Expiry        uint64
}

// Pricing sets the executor's fee schedule for one route
type Pricing struct {
	BaseFee  *uint256.Int
	GasPrice *uint256.Int
}

// Cost prices the requested execution
func (p Pricing) Cost(instructions RelayInstructions) *uint256.Int {
	cost := p.BaseFee.Clone()
	gas := new(uint256.Int).Mul(p.GasPrice, valueOrZero(instructions.GasLimit))
	cost.Add(cost, gas)
	cost.Add(cost, valueOrZero(instructions.MsgValue))
	return cost
}

// Quoter prices relay requests and issues signed quote tokens. The
// executor later refuses to relay any request whose token it did not
// itself sign.
type Quoter struct {
	sk       *bls.SecretKey
	pricing  map[uint16]Pricing
	validity time.Duration
	now      func() time.Time
}

func NewQuoter(sk *bls.SecretKey, pricing map[uint16]Pricing) *Quoter {
	return &Quoter{
		sk:       sk,
		pricing:  pricing,
		validity: DefaultQuoteValidity,
		now:      time.Now,
	}
}

// PublicKey returns the key quote tokens are verified against
func (q *Quoter) PublicKey() *bls.PublicKey {
	return q.sk.PublicKey()
}

// RequestQuote prices a relay to dstChain and returns the quote with
// its signed token
func (q *Quoter) RequestQuote(
	srcChain uint16,
	dstChain uint16,
	instructions RelayInstructions,
) (*Quote, []byte, error) {
	pricing, ok := q.pricing[dstChain]
	if !ok {
		return nil, nil, fmt.Errorf("%w: chain %d", ErrUnknownRoute, dstChain)
	}

	quote := &Quote{
		SrcChain:      srcChain,
		DstChain:      dstChain,
		GasLimit:      valueOrZero(instructions.GasLimit),
		MsgValue:      valueOrZero(instructions.MsgValue),
		EstimatedCost: pricing.Cost(instructions),
		Expiry:        uint64(q.now().Add(q.validity).Unix()),
	}

	token, err := signQuote(q.sk, quote)
	if err != nil {
		return nil, nil, err
	}
	return quote, token, nil
}

func signQuote(sk *bls.SecretKey, quote *Quote) ([]byte, error) {
	body, err := rlp.EncodeToBytes(quote)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quote: %w", err)
	}
	sig, err := sk.Sign(courier.ComputeHash256(body))
	if err != nil {
		return nil, fmt.Errorf("failed to sign quote: %w", err)
	}
	return append(body, bls.SignatureToBytes(sig)...), nil
}

// verifyQuoteToken checks the token's signature against pk and returns
// the embedded quote. Expiry is checked against now.
func verifyQuoteToken(pk *bls.PublicKey, token []byte, now time.Time) (*Quote, error) {
	if len(token) <= bls.SignatureLen {
		return nil, ErrInvalidQuote
	}
	body := token[:len(token)-bls.SignatureLen]
	sigBytes := token[len(token)-bls.SignatureLen:]

	sig, err := bls.SignatureFromBytes(sigBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuote, err)
	}
	if !bls.Verify(pk, sig, courier.ComputeHash256(body)) {
		return nil, ErrQuoteBadSignedBy
	}

	quote := &Quote{}
	if err := rlp.DecodeBytes(body, quote); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuote, err)
	}
	if quote.Expiry < uint64(now.Unix()) {
		return nil, ErrQuoteExpired
	}
	return quote, nil
}

func valueOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}
