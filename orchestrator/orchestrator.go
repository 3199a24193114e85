// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package orchestrator drives the end-to-end greeting flow: it funds
// checks the sender, registers peers, requests a relay quote, sends the
// greeting, and watches the message through attestation, relay, and
// delivery, producing a final report.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/courier/endpoint"
	"github.com/luxfi/courier/executor"
	"github.com/luxfi/courier/guardian"
	"github.com/luxfi/courier/utils"
)

// Status is the terminal state of an orchestrated run
type Status string

const (
	// StatusPass means the greeting was delivered and verified
	StatusPass Status = "pass"
	// StatusIncomplete means a wait timed out with the flow still
	// plausibly in flight
	StatusIncomplete Status = "incomplete"
	// StatusFailed means a step failed outright
	StatusFailed Status = "failed"
)

const deliveryPollInterval = 100 * time.Millisecond

// Report is the outcome of one orchestrated greeting
type Report struct {
	Status      Status
	Sequence    uint64
	TxHash      common.Hash
	ExplorerURL string
	Diagnostics []string
}

// Chains are the handles to the two simulated chains the orchestrator
// drives
type Chains struct {
	SourceCore *endpoint.Core
	SourceApp  *endpoint.Hello
	DestCore   *endpoint.Core
	DestApp    *endpoint.Hello
}

// Orchestrator runs the greeting flow against a pair of chains and the
// guardian and executor services
type Orchestrator struct {
	logger   log.Logger
	cfg      Config
	chains   Chains
	guardian *guardian.Client
	executor *executor.Client
}

func New(logger log.Logger, cfg Config, chains Chains) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		cfg:      cfg,
		chains:   chains,
		guardian: guardian.NewClient(logger, cfg.GuardianAPIURL),
		executor: executor.NewClient(logger, cfg.ExecutorAPIURL),
	}
}

// Run executes the full flow and always returns a report; the error is
// non-nil only when the report status is not pass.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{Status: StatusFailed}
	report.Diagnostics = append(report.Diagnostics,
		fmt.Sprintf("source rpc: %s", o.cfg.SourceRPCURL),
		fmt.Sprintf("dest rpc: %s", o.cfg.DestRPCURL),
	)

	fail := func(format string, args ...interface{}) (*Report, error) {
		msg := fmt.Sprintf(format, args...)
		report.Diagnostics = append(report.Diagnostics, msg)
		o.logger.Error("run failed", log.String("cause", msg))
		return report, fmt.Errorf("%s", msg)
	}
	incomplete := func(format string, args ...interface{}) (*Report, error) {
		msg := fmt.Sprintf(format, args...)
		report.Status = StatusIncomplete
		report.Diagnostics = append(report.Diagnostics, msg)
		o.logger.Warn("run incomplete", log.String("cause", msg))
		return report, fmt.Errorf("%s", msg)
	}

	srcChain := o.chains.SourceCore.ChainID()
	dstChain := o.chains.DestCore.ChainID()

	// Register the trusted endpoints on both chains. SetPeer overwrites,
	// so re-running against configured chains is harmless.
	if err := o.chains.SourceApp.SetPeer(o.cfg.AdminAddress, dstChain, o.cfg.DestEndpoint); err != nil {
		return fail("failed to set peer on source chain: %s", err)
	}
	if err := o.chains.DestApp.SetPeer(o.cfg.AdminAddress, srcChain, o.cfg.SourceEndpoint); err != nil {
		return fail("failed to set peer on destination chain: %s", err)
	}
	o.logger.Info("peers registered",
		log.Uint64("sourceChain", uint64(srcChain)),
		log.Uint64("destChain", uint64(dstChain)),
	)

	// Price the relay
	quote, err := o.executor.RequestQuote(ctx, srcChain, dstChain, executor.RelayInstructions{
		GasLimit: uint256.NewInt(o.cfg.GasLimit),
	})
	if err != nil {
		return fail("failed to obtain relay quote: %s", err)
	}
	totalCost := new(uint256.Int).Add(quote.EstimatedCost, o.chains.SourceCore.MessageFee())
	report.Diagnostics = append(report.Diagnostics,
		fmt.Sprintf("relay quote: %s, total cost with message fee: %s", quote.EstimatedCost, totalCost))

	// Funds check before anything is submitted
	balance := o.chains.SourceCore.Balance(o.cfg.SenderAddress)
	if balance.Lt(totalCost) {
		return fail("sender balance %s does not cover total cost %s", balance, totalCost)
	}

	// Send the greeting
	receipt, err := o.chains.SourceApp.SendGreeting(
		o.cfg.SenderAddress,
		o.cfg.Greeting,
		dstChain,
		uint256.NewInt(o.cfg.GasLimit),
		totalCost,
		quote.SignedQuote,
		totalCost,
	)
	if err != nil {
		return fail("failed to send greeting: %s", err)
	}
	report.Sequence = receipt.Sequence
	report.TxHash = receipt.TxHash
	report.ExplorerURL = fmt.Sprintf("%s/tx/%s", o.cfg.ExplorerURL, receipt.TxHash.Hex())
	o.logger.Info("greeting submitted",
		log.Uint64("sequence", receipt.Sequence),
		log.Stringer("txHash", receipt.TxHash),
	)

	// Wait for the guardian attestation
	_, outcome, err := o.guardian.AwaitSignedMessage(ctx, srcChain, o.cfg.SourceEndpoint, receipt.Sequence, utils.PollPolicy{
		Interval: deliveryPollInterval,
		Deadline: o.cfg.SignatureTimeout,
	})
	if err != nil {
		return fail("signature wait failed: %s", err)
	}
	if outcome == utils.TimedOut {
		return incomplete("guardians did not attest sequence %d within %s", receipt.Sequence, o.cfg.SignatureTimeout)
	}
	o.logger.Info("message attested", log.Uint64("sequence", receipt.Sequence))

	// Wait for the relay to reach a terminal status
	status, outcome, err := o.executor.AwaitTerminalStatus(ctx, srcChain, receipt.TxHash, utils.PollPolicy{
		Interval: deliveryPollInterval,
		Deadline: o.cfg.RelayTimeout,
	})
	if err != nil {
		return fail("relay status wait failed: %s", err)
	}
	if outcome == utils.TimedOut {
		return incomplete("relay still pending after %s", o.cfg.RelayTimeout)
	}
	if status.Status != executor.StatusCompleted {
		return fail("relay ended with status %q: %s", status.Status, status.FailureCause)
	}
	report.Diagnostics = append(report.Diagnostics,
		fmt.Sprintf("relay completed in destination tx %s", status.TxHash))

	// Verify the greeting arrived on the destination chain
	outcome, err = utils.Poll(ctx, utils.PollPolicy{
		Interval: deliveryPollInterval,
		Deadline: o.cfg.DeliveryTimeout,
	}, func(context.Context) (bool, error) {
		return o.greetingDelivered(srcChain), nil
	})
	if err != nil {
		return fail("delivery wait failed: %s", err)
	}
	if outcome == utils.TimedOut {
		return incomplete("greeting not observed on destination chain within %s", o.cfg.DeliveryTimeout)
	}

	report.Status = StatusPass
	o.logger.Info("greeting delivered",
		log.String("greeting", o.cfg.Greeting),
		log.String("explorer", report.ExplorerURL),
	)
	return report, nil
}

func (o *Orchestrator) greetingDelivered(srcChain uint16) bool {
	for _, ev := range o.chains.DestCore.EventsSince(0) {
		received, ok := ev.Data.(endpoint.MessageReceived)
		if !ok {
			continue
		}
		if received.Text == o.cfg.Greeting &&
			received.SourceChain == srcChain &&
			received.Source == o.cfg.SourceEndpoint {
			return true
		}
	}
	return false
}
