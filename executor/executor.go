// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package executor implements the relay network for the demo: it
// prices relays, watches source chains for paid relay requests,
// fetches guardian attestations, and submits verified messages to the
// destination chain, tracking each attempt for the status API.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/courier"
	"github.com/luxfi/courier/cache"
	"github.com/luxfi/courier/endpoint"
	"github.com/luxfi/courier/guardian"
	"github.com/luxfi/courier/utils"
)

// Status of a relay attempt
type Status string

const (
	StatusPending   Status = "pending"
	StatusUnderpaid Status = "underpaid"
	StatusError     Status = "error"
	StatusCompleted Status = "completed"
)

const (
	// attestationCacheSize bounds the cache of fetched signed messages
	attestationCacheSize = 256

	// DefaultAttestationTimeout bounds how long a relay attempt waits
	// for the guardians to attest a message.
	DefaultAttestationTimeout = 30 * time.Second
)

// RelayAttempt is the tracked lifecycle of one relay request,
// addressable by source chain and source transaction hash
type RelayAttempt struct {
	Status        Status
	EstimatedCost *uint256.Int
	AmtPaid       *uint256.Int
	FailureCause  string
	// TxHash is the destination chain transaction, set on completion
	TxHash common.Hash
}

// Destination is a chain the executor can deliver to
type Destination struct {
	Core        *endpoint.Core
	Integration endpoint.Integration
}

type attestationKey struct {
	chain    uint16
	emitter  ids.ID
	sequence uint64
}

// Executor consumes relay requests from a source chain and delivers
// attested messages to destination chains
type Executor struct {
	logger       log.Logger
	quoter       *Quoter
	guardians    *guardian.Client
	destinations map[uint16]Destination
	metrics      *Metrics

	attestations *cache.LRUCache[attestationKey, *courier.Message]

	attemptsMu sync.RWMutex
	attempts   map[uint16]map[common.Hash]*RelayAttempt

	attestationTimeout time.Duration
}

func New(
	logger log.Logger,
	quoter *Quoter,
	guardians *guardian.Client,
	destinations map[uint16]Destination,
	metrics *Metrics,
) *Executor {
	return &Executor{
		logger:             logger,
		quoter:             quoter,
		guardians:          guardians,
		destinations:       destinations,
		metrics:            metrics,
		attestations:       cache.NewLRUCache[attestationKey, *courier.Message](attestationCacheSize),
		attempts:           make(map[uint16]map[common.Hash]*RelayAttempt),
		attestationTimeout: DefaultAttestationTimeout,
	}
}

// Quoter returns the pricing service quotes are requested from
func (e *Executor) Quoter() *Quoter {
	return e.quoter
}

// Status returns the tracked attempt for a source transaction, or
// guardian.ErrNotFound if the executor never saw a relay request in it
func (e *Executor) Status(sourceChain uint16, txHash common.Hash) (*RelayAttempt, error) {
	e.attemptsMu.RLock()
	defer e.attemptsMu.RUnlock()
	attempt, ok := e.attempts[sourceChain][txHash]
	if !ok {
		return nil, guardian.ErrNotFound
	}
	cp := *attempt
	return &cp, nil
}

// Run consumes relay requests from the source core until ctx is
// cancelled. Each request is processed on its own goroutine so a slow
// attestation does not stall the queue.
func (e *Executor) Run(ctx context.Context, source *endpoint.Core) error {
	events := make(chan endpoint.Event, 64)
	sub := source.SubscribeEvents(events)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			req, ok := ev.Data.(endpoint.RelayRequest)
			if !ok {
				continue
			}
			e.track(source.ChainID(), ev.TxHash, req.AmtPaid)
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.process(ctx, source.ChainID(), ev.TxHash, req)
			}()
		}
	}
}

func (e *Executor) track(sourceChain uint16, txHash common.Hash, amtPaid *uint256.Int) {
	e.attemptsMu.Lock()
	defer e.attemptsMu.Unlock()
	if e.attempts[sourceChain] == nil {
		e.attempts[sourceChain] = make(map[common.Hash]*RelayAttempt)
	}
	e.attempts[sourceChain][txHash] = &RelayAttempt{
		Status:  StatusPending,
		AmtPaid: amtPaid.Clone(),
	}
}

func (e *Executor) update(sourceChain uint16, txHash common.Hash, fn func(*RelayAttempt)) {
	e.attemptsMu.Lock()
	defer e.attemptsMu.Unlock()
	if attempt, ok := e.attempts[sourceChain][txHash]; ok {
		fn(attempt)
	}
}

func (e *Executor) process(ctx context.Context, sourceChain uint16, txHash common.Hash, req endpoint.RelayRequest) {
	chainLabel := fmt.Sprintf("%d", sourceChain)

	fail := func(status Status, cause string) {
		e.update(sourceChain, txHash, func(a *RelayAttempt) {
			a.Status = status
			a.FailureCause = cause
		})
		e.metrics.relayCount.WithLabelValues(chainLabel, string(status)).Inc()
		e.logger.Warn("relay attempt failed",
			log.Stringer("sourceTx", txHash),
			log.String("status", string(status)),
			log.String("cause", cause),
		)
	}

	quote, err := verifyQuoteToken(e.quoter.PublicKey(), req.Authorization, time.Now())
	if err != nil {
		fail(StatusError, err.Error())
		return
	}
	if quote.DstChain != req.TargetChain {
		fail(StatusError, fmt.Sprintf("quote is for chain %d, request targets chain %d", quote.DstChain, req.TargetChain))
		return
	}
	e.update(sourceChain, txHash, func(a *RelayAttempt) {
		a.EstimatedCost = quote.EstimatedCost.Clone()
	})

	// The request is dropped, not refunded, when underpaid. The sender
	// can query the shortfall from the status API and resend.
	if req.AmtPaid.Lt(quote.EstimatedCost) {
		shortfall := new(uint256.Int).Sub(quote.EstimatedCost, req.AmtPaid)
		fail(StatusUnderpaid, fmt.Sprintf("paid %s below estimated cost %s, shortfall %s",
			req.AmtPaid, quote.EstimatedCost, shortfall))
		return
	}

	dest, ok := e.destinations[req.TargetChain]
	if !ok {
		fail(StatusError, fmt.Sprintf("no route to chain %d", req.TargetChain))
		return
	}

	msg, err := e.fetchAttestation(ctx, sourceChain, req.Emitter, req.Sequence)
	if err != nil {
		fail(StatusError, fmt.Sprintf("attestation unavailable: %s", err))
		return
	}

	receipt, err := dest.Core.Deliver(msg, dest.Integration, quote.MsgValue)
	if err != nil {
		fail(StatusError, fmt.Sprintf("delivery failed: %s", err))
		return
	}

	e.update(sourceChain, txHash, func(a *RelayAttempt) {
		a.Status = StatusCompleted
		a.TxHash = receipt.TxHash
	})
	e.metrics.relayCount.WithLabelValues(chainLabel, string(StatusCompleted)).Inc()
	e.logger.Info("relay completed",
		log.Stringer("sourceTx", txHash),
		log.Stringer("destinationTx", receipt.TxHash),
		log.Uint64("sequence", req.Sequence),
	)
}

// fetchAttestation retries the guardian API with backoff until the
// signed message is available, caching results so repeated deliveries
// of one message hit the API once
func (e *Executor) fetchAttestation(
	ctx context.Context,
	chain uint16,
	emitter ids.ID,
	sequence uint64,
) (*courier.Message, error) {
	key := attestationKey{chain: chain, emitter: emitter, sequence: sequence}
	return e.attestations.Get(key, func(k attestationKey) (*courier.Message, error) {
		var msg *courier.Message
		operation := func() error {
			m, err := e.guardians.SignedMessage(ctx, k.chain, k.emitter, k.sequence)
			if err != nil {
				return err
			}
			msg = m
			return nil
		}
		if err := utils.WithRetriesTimeout(e.logger, operation, e.attestationTimeout); err != nil {
			return nil, fmt.Errorf("guardians did not attest sequence %d within %s: %w", k.sequence, e.attestationTimeout, err)
		}
		return msg, nil
	}, false)
}
