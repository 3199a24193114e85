// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package guardian implements the attestation network for the demo:
// watchers observe published messages on a chain core, wait for the
// configured consistency level, collect individual guardian signatures,
// and store the quorum-aggregated message for retrieval over the API.
package guardian

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/courier"
	"github.com/luxfi/courier/endpoint"
)

// DefaultFinalityCheckInterval is how often a watcher re-checks the
// chain height for messages awaiting finality.
const DefaultFinalityCheckInterval = 100 * time.Millisecond

// Network simulates the guardian network in-process. It holds one
// signer per guardian and aggregates their signatures into a single
// quorum attestation per observed message.
type Network struct {
	logger  log.Logger
	set     *courier.GuardianSet
	metrics *Metrics
	store   *store
}

// NewNetwork creates a guardian network attesting under the given
// guardian set
func NewNetwork(logger log.Logger, set *courier.GuardianSet, metrics *Metrics) *Network {
	return &Network{
		logger:  logger,
		set:     set,
		metrics: metrics,
		store:   newStore(),
	}
}

// SignedMessage returns the stored quorum-signed message for
// (chain, emitter, sequence), or ErrNotFound
func (n *Network) SignedMessage(chain uint16, emitter ids.ID, sequence uint64) (*courier.Message, error) {
	return n.store.get(chain, emitter, sequence)
}

// Watch observes the core's chain log until ctx is cancelled. Messages
// published at the instant consistency level are attested immediately;
// finalized messages wait until the chain has advanced FinalityDepth
// blocks past the publication block.
func (n *Network) Watch(ctx context.Context, core *endpoint.Core, signers []courier.Signer) error {
	if len(signers) < n.set.Quorum() {
		return fmt.Errorf("%d signers cannot reach quorum of %d", len(signers), n.set.Quorum())
	}

	chainLabel := fmt.Sprintf("%d", core.ChainID())

	events := make(chan endpoint.Event, 64)
	sub := core.SubscribeEvents(events)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(DefaultFinalityCheckInterval)
	defer ticker.Stop()

	type pending struct {
		msg     *courier.UnsignedMessage
		finalAt uint64
	}
	var waiting []pending

	flush := func() {
		height := core.BlockHeight()
		remaining := waiting[:0]
		for _, p := range waiting {
			if height >= p.finalAt {
				n.attest(p.msg, signers, chainLabel)
			} else {
				remaining = append(remaining, p)
			}
		}
		waiting = remaining
		n.metrics.pendingFinalityCount.WithLabelValues(chainLabel).Set(float64(len(waiting)))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			pub, ok := ev.Data.(endpoint.LogMessagePublished)
			if !ok {
				continue
			}
			n.metrics.observedMessageCount.WithLabelValues(chainLabel).Inc()
			if pub.Message.Consistency == courier.ConsistencyInstant {
				n.attest(pub.Message, signers, chainLabel)
				continue
			}
			waiting = append(waiting, pending{
				msg:     pub.Message,
				finalAt: ev.Block + endpoint.FinalityDepth,
			})
			n.metrics.pendingFinalityCount.WithLabelValues(chainLabel).Set(float64(len(waiting)))
		case <-ticker.C:
			flush()
		}
	}
}

// attest collects one signature per signer, aggregates them, and stores
// the signed message
func (n *Network) attest(msg *courier.UnsignedMessage, signers []courier.Signer, chainLabel string) {
	signerBits := courier.NewBits()
	signatures := make([]*bls.Signature, 0, len(signers))
	for _, s := range signers {
		index := n.set.IndexOf(s.PublicKey())
		if index == -1 {
			n.logger.Warn("signer not in guardian set, skipping")
			continue
		}
		sig, err := s.Sign(msg)
		if err != nil {
			n.logger.Warn("guardian refused to sign",
				log.Uint64("sequence", msg.Sequence),
				log.Err(err),
			)
			continue
		}
		signerBits.Add(index)
		signatures = append(signatures, sig)
	}

	numSigners := len(signatures)
	if numSigners < n.set.Quorum() {
		n.logger.Error("failed to reach quorum",
			log.Uint64("sequence", msg.Sequence),
			log.Int("signers", numSigners),
			log.Int("quorum", n.set.Quorum()),
		)
		return
	}

	aggSig, err := courier.AggregateSignatures(signatures)
	if err != nil {
		n.logger.Error("failed to aggregate signatures", log.Err(err))
		return
	}
	aggSigBytes := [bls.SignatureLen]byte{}
	copy(aggSigBytes[:], bls.SignatureToBytes(aggSig))

	signed, err := courier.NewMessage(msg, &courier.GuardianSignature{
		Signers:   signerBits,
		Signature: aggSigBytes,
	})
	if err != nil {
		n.logger.Error("failed to assemble signed message", log.Err(err))
		return
	}

	n.store.put(signed)
	n.metrics.signedMessageCount.WithLabelValues(chainLabel).Inc()
	n.logger.Info("message attested",
		log.Uint64("sequence", msg.Sequence),
		log.Stringer("messageID", msg.ID()),
		log.Int("signers", numSigners),
	)
}
