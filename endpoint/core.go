// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/event"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/courier"
)

// FinalityDepth is the number of blocks after which a publication block
// is considered final on a simulated chain.
const FinalityDepth = 2

var (
	ErrUnauthorized      = errors.New("caller is not the admin")
	ErrNoValueAllowed    = errors.New("no value allowed")
	ErrInsufficientValue = errors.New("attached value below required total cost")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrUnknownEmitter    = errors.New("unknown emitter")
	ErrAlreadyDelivered  = errors.New("message already delivered")
)

// Config configures a simulated chain core
type Config struct {
	ChainID    uint16
	MessageFee *uint256.Int
	Guardians  *courier.GuardianSet
}

// Receipt describes an included transaction on a simulated chain
type Receipt struct {
	Sequence uint64
	TxHash   common.Hash
	Block    uint64
}

// Core is the per-chain messaging contract: it keeps the account
// ledger, assigns message sequence numbers, charges the protocol fee
// on publish, and runs the verification pipeline on delivery. Every
// exported mutating call executes atomically, mirroring a ledger
// transaction.
type Core struct {
	logger    log.Logger
	chainID   uint16
	guardians *courier.GuardianSet

	deliverMu sync.Mutex

	mu          sync.Mutex
	messageFee  *uint256.Int
	collected   *uint256.Int
	balances    map[ids.ID]*uint256.Int
	sequences   map[ids.ID]uint64
	replay      *replayLedger
	blockHeight uint64
	txCounter   uint64
	events      []Event

	// feed delivery happens outside mu: Send blocks until every
	// subscriber has received.
	feed event.Feed
}

// New creates a simulated chain core
func New(logger log.Logger, cfg Config) *Core {
	fee := uint256.NewInt(0)
	if cfg.MessageFee != nil {
		fee = cfg.MessageFee.Clone()
	}
	return &Core{
		logger:     logger,
		chainID:    cfg.ChainID,
		guardians:  cfg.Guardians,
		messageFee: fee,
		collected:  uint256.NewInt(0),
		balances:   make(map[ids.ID]*uint256.Int),
		sequences:  make(map[ids.ID]uint64),
		replay:     newReplayLedger(),
	}
}

// ChainID returns the chain identifier
func (c *Core) ChainID() uint16 {
	return c.chainID
}

// Guardians returns the guardian set attesting this chain's messages
func (c *Core) Guardians() *courier.GuardianSet {
	return c.guardians
}

// MessageFee returns the flat protocol fee charged per published
// message. This is the base-fee oracle of the chain.
func (c *Core) MessageFee() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageFee.Clone()
}

// Credit adds funds to an account
func (c *Core) Credit(addr ids.ID, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.balances[addr]
	if !ok {
		b = uint256.NewInt(0)
		c.balances[addr] = b
	}
	b.Add(b, amount)
}

// Balance returns the current balance of an account
func (c *Core) Balance(addr ids.ID) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[addr]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

// BlockHeight returns the current block height
func (c *Core) BlockHeight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockHeight
}

// AdvanceBlock advances the chain by one empty block
func (c *Core) AdvanceBlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockHeight++
}

// PublishParams are the arguments to PublishWithRelay
type PublishParams struct {
	Caller      ids.ID
	Emitter     ids.ID
	Payload     []byte
	Consistency uint8

	// Relay request fields. TargetChain zero means publish only.
	TargetChain   uint16
	GasLimit      *uint256.Int
	TotalCost     *uint256.Int
	RefundAddress ids.ID
	Authorization []byte

	// Value attached to the call
	Value *uint256.Int
}

// Publish publishes a message without requesting relay. The attached
// value must cover the protocol message fee.
func (c *Core) Publish(
	caller ids.ID,
	emitter ids.ID,
	payload []byte,
	consistency uint8,
	value *uint256.Int,
) (*Receipt, error) {
	return c.PublishWithRelay(PublishParams{
		Caller:      caller,
		Emitter:     emitter,
		Payload:     payload,
		Consistency: consistency,
		TotalCost:   c.MessageFee(),
		Value:       value,
	})
}

// PublishWithRelay is the publish-and-request-relay primitive. It
// rejects the call before any state change if the attached value does
// not cover the total cost, then charges the caller, assigns the next
// sequence number for the emitter, and records the publication (and
// relay request, if any) in the chain log. Returns the sequence number
// in the receipt.
func (c *Core) PublishWithRelay(p PublishParams) (*Receipt, error) {
	receipt, pending, err := c.publishLocked(p)
	if err != nil {
		return nil, err
	}
	for _, ev := range pending {
		c.feed.Send(ev)
	}
	c.logger.Debug("published message",
		log.Uint64("sequence", receipt.Sequence),
		log.Stringer("emitter", p.Emitter),
		log.Stringer("txHash", receipt.TxHash),
	)
	return receipt, nil
}

func (c *Core) publishLocked(p PublishParams) (*Receipt, []Event, error) {
	value := valueOrZero(p.Value)
	totalCost := valueOrZero(p.TotalCost)

	c.mu.Lock()
	defer c.mu.Unlock()

	if value.Lt(totalCost) {
		return nil, nil, fmt.Errorf("%w: value %s < total cost %s", ErrInsufficientValue, value, totalCost)
	}
	if value.Lt(c.messageFee) {
		return nil, nil, fmt.Errorf("%w: value %s < message fee %s", ErrInsufficientValue, value, c.messageFee)
	}

	balance, ok := c.balances[p.Caller]
	if !ok || balance.Lt(value) {
		return nil, nil, fmt.Errorf("%w: account %s", ErrInsufficientFunds, p.Caller)
	}

	sequence := c.sequences[p.Emitter]
	msg, err := courier.NewUnsignedMessage(c.chainID, p.Emitter, sequence, p.Consistency, p.Payload)
	if err != nil {
		return nil, nil, err
	}

	// All checks passed; commit.
	balance.Sub(balance, value)
	c.collected.Add(c.collected, c.messageFee)
	c.sequences[p.Emitter] = sequence + 1

	receipt := c.beginTxLocked()
	receipt.Sequence = sequence

	pending := []Event{c.recordLocked(receipt, LogMessagePublished{Message: msg})}
	if p.TargetChain != 0 {
		amtPaid := value.Clone()
		amtPaid.Sub(amtPaid, c.messageFee)
		pending = append(pending, c.recordLocked(receipt, RelayRequest{
			Emitter:       p.Emitter,
			Sequence:      sequence,
			TargetChain:   p.TargetChain,
			GasLimit:      valueOrZero(p.GasLimit).Clone(),
			RefundAddress: p.RefundAddress,
			Authorization: p.Authorization,
			AmtPaid:       amtPaid,
		}))
	}
	return receipt, pending, nil
}

// Deliver runs the verification pipeline for an attested message and,
// if every check passes, executes the integration's receive hook. The
// replay mark commits only when the hook succeeds, so a failed hook
// leaves no partial state, matching ledger transaction semantics.
func (c *Core) Deliver(
	msg *courier.Message,
	integration Integration,
	value *uint256.Int,
) (*Receipt, error) {
	// Serialize deliveries so the replay check and the hook execute
	// at-most-once per message even under concurrent relayers.
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if err := courier.VerifyMessage(msg, c.guardians); err != nil {
		return nil, err
	}

	u := msg.UnsignedMessage
	peer := integration.Peer(u.EmitterChain)
	if peer == ids.Empty || peer != u.EmitterAddress {
		return nil, fmt.Errorf("%w: chain %d emitter %s", ErrUnknownEmitter, u.EmitterChain, u.EmitterAddress)
	}

	key := keyFor(integration.ReplayMode(), u)

	c.mu.Lock()
	if c.replay.contains(key) {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: sequence %d from chain %d", ErrAlreadyDelivered, u.Sequence, u.EmitterChain)
	}
	c.mu.Unlock()

	if err := integration.Receive(u.Payload, u.EmitterChain, u.EmitterAddress, valueOrZero(value)); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.replay.mark(key)
	receipt := c.beginTxLocked()
	receipt.Sequence = u.Sequence
	c.mu.Unlock()

	c.logger.Debug("delivered message",
		log.Uint64("sequence", u.Sequence),
		log.Stringer("messageID", msg.ID()),
	)
	return receipt, nil
}

// Emit records an application event against an existing receipt
func (c *Core) Emit(r *Receipt, data interface{}) {
	c.mu.Lock()
	ev := c.recordLocked(r, data)
	c.mu.Unlock()
	c.feed.Send(ev)
}

// EventsSince returns chain log records at or after the given block
func (c *Core) EventsSince(block uint64) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, 0)
	for _, ev := range c.events {
		if ev.Block >= block {
			out = append(out, ev)
		}
	}
	return out
}

// SubscribeEvents subscribes to chain log records as they are recorded.
// Subscriber channels should be buffered: delivery happens on the
// publishing goroutine.
func (c *Core) SubscribeEvents(ch chan<- Event) event.Subscription {
	return c.feed.Subscribe(ch)
}

// beginTxLocked assigns a tx hash and includes it in a fresh block
func (c *Core) beginTxLocked() *Receipt {
	c.blockHeight++
	c.txCounter++

	var seed [10]byte
	binary.BigEndian.PutUint16(seed[0:2], c.chainID)
	binary.BigEndian.PutUint64(seed[2:10], c.txCounter)
	txHash := common.BytesToHash(courier.ComputeHash256(seed[:]))

	return &Receipt{
		TxHash: txHash,
		Block:  c.blockHeight,
	}
}

// appRecord begins a fresh tx receipt for an application-level event
// emitted outside an existing transaction
func (c *Core) appRecord() *Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginTxLocked()
}

func (c *Core) recordLocked(r *Receipt, data interface{}) Event {
	ev := Event{
		Block:  r.Block,
		TxHash: r.TxHash,
		Data:   data,
	}
	c.events = append(c.events, ev)
	return ev
}

func valueOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}
