// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"context"
	"encoding/hex"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/courier"
	"github.com/luxfi/courier/endpoint"
	"github.com/luxfi/courier/executor"
	"github.com/luxfi/courier/guardian"
)

const (
	srcChain uint16 = 10002
	dstChain uint16 = 10004
)

var (
	adminAddr  = ids.ID{31: 0xAA}
	senderAddr = ids.ID{31: 0xA1}
	srcAddr    = ids.ID{31: 0x01}
	destAddr   = ids.ID{31: 0x02}
)

func TestConfigValidation(t *testing.T) {
	v, err := BuildViper(nil)
	require.NoError(t, err)

	// All required settings missing: every one is named at once
	_, err = NewConfig(v)
	require.Error(t, err)
	require.Contains(t, err.Error(), "COURIER_SENDER_ADDRESS")
	require.Contains(t, err.Error(), "COURIER_ADMIN_ADDRESS")
	require.Contains(t, err.Error(), "COURIER_SOURCE_ENDPOINT")
	require.Contains(t, err.Error(), "COURIER_DEST_ENDPOINT")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("COURIER_SENDER_ADDRESS", hex.EncodeToString(senderAddr[:]))
	t.Setenv("COURIER_ADMIN_ADDRESS", hex.EncodeToString(adminAddr[:]))
	t.Setenv("COURIER_SOURCE_ENDPOINT", hex.EncodeToString(srcAddr[:]))
	t.Setenv("COURIER_DEST_ENDPOINT", hex.EncodeToString(destAddr[:]))
	t.Setenv("COURIER_GREETING", "howdy")
	t.Setenv("COURIER_RELAY_TIMEOUT_SECONDS", "30")

	v, err := BuildViper(nil)
	require.NoError(t, err)
	cfg, err := NewConfig(v)
	require.NoError(t, err)

	require.Equal(t, senderAddr, cfg.SenderAddress)
	require.Equal(t, adminAddr, cfg.AdminAddress)
	require.Equal(t, srcAddr, cfg.SourceEndpoint)
	require.Equal(t, destAddr, cfg.DestEndpoint)
	require.Equal(t, "howdy", cfg.Greeting)
	require.Equal(t, 30*time.Second, cfg.RelayTimeout)

	// Defaults fill the rest
	require.Equal(t, defaultSourceRPCURL, cfg.SourceRPCURL)
	require.Equal(t, uint64(defaultGasLimit), cfg.GasLimit)
	require.Equal(t, 120*time.Second, cfg.SignatureTimeout)
}

func TestConfigRejectsBadAddress(t *testing.T) {
	t.Setenv("COURIER_SENDER_ADDRESS", "nothex")
	t.Setenv("COURIER_ADMIN_ADDRESS", hex.EncodeToString(adminAddr[:]))
	t.Setenv("COURIER_SOURCE_ENDPOINT", hex.EncodeToString(srcAddr[:]))
	t.Setenv("COURIER_DEST_ENDPOINT", hex.EncodeToString(destAddr[:]))

	v, err := BuildViper(nil)
	require.NoError(t, err)
	_, err = NewConfig(v)
	require.Error(t, err)
	require.Contains(t, err.Error(), SenderAddressKey)
}

type testStack struct {
	chains      Chains
	cfg         Config
	guardianSet *courier.GuardianSet
}

// newTestStack wires two simulated chains, a watching guardian network,
// and a running executor behind loopback HTTP servers. withGuardians
// false leaves the guardian network idle so attestation never happens.
func newTestStack(t *testing.T, withGuardians bool) *testStack {
	t.Helper()

	sks := make([]*bls.SecretKey, 4)
	pks := make([]*bls.PublicKey, 4)
	signers := make([]courier.Signer, 4)
	for i := range sks {
		sk, err := bls.NewSecretKey()
		require.NoError(t, err)
		sks[i] = sk
		pks[i] = sk.PublicKey()
		signers[i] = courier.NewSigner(sk, srcChain)
	}
	set, err := courier.NewGuardianSet(0, pks)
	require.NoError(t, err)

	srcCore := endpoint.New(log.NoLog{}, endpoint.Config{
		ChainID:    srcChain,
		MessageFee: uint256.NewInt(100),
		Guardians:  set,
	})
	dstCore := endpoint.New(log.NoLog{}, endpoint.Config{
		ChainID:    dstChain,
		MessageFee: uint256.NewInt(100),
		Guardians:  set,
	})

	srcHello, err := endpoint.NewHello(log.NoLog{}, srcCore, endpoint.HelloConfig{
		Address:     srcAddr,
		Admin:       adminAddr,
		Consistency: courier.ConsistencyInstant,
		Replay:      endpoint.ReplayByHash,
	})
	require.NoError(t, err)
	dstHello, err := endpoint.NewHello(log.NoLog{}, dstCore, endpoint.HelloConfig{
		Address:     destAddr,
		Admin:       adminAddr,
		Consistency: courier.ConsistencyInstant,
		Replay:      endpoint.ReplayByHash,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	guardians := guardian.NewNetwork(log.NoLog{}, set, guardian.NewMetrics(prometheus.NewRegistry()))
	if withGuardians {
		go func() {
			_ = guardians.Watch(ctx, srcCore, signers)
		}()
	}
	guardianServer := httptest.NewServer(guardian.NewRouter(log.NoLog{}, guardians))
	t.Cleanup(guardianServer.Close)

	quoterSK, err := bls.NewSecretKey()
	require.NoError(t, err)
	exec := executor.New(
		log.NoLog{},
		executor.NewQuoter(quoterSK, map[uint16]executor.Pricing{
			dstChain: {BaseFee: uint256.NewInt(1000), GasPrice: uint256.NewInt(0)},
		}),
		guardian.NewClient(log.NoLog{}, guardianServer.URL),
		map[uint16]executor.Destination{
			dstChain: {Core: dstCore, Integration: dstHello},
		},
		executor.NewMetrics(prometheus.NewRegistry()),
	)
	go func() {
		_ = exec.Run(ctx, srcCore)
	}()
	executorServer := httptest.NewServer(executor.NewRouter(log.NoLog{}, exec))
	t.Cleanup(executorServer.Close)

	time.Sleep(50 * time.Millisecond)

	cfg := Config{
		SenderAddress:    senderAddr,
		AdminAddress:     adminAddr,
		SourceEndpoint:   srcAddr,
		DestEndpoint:     destAddr,
		SourceRPCURL:     defaultSourceRPCURL,
		DestRPCURL:       defaultDestRPCURL,
		GuardianAPIURL:   guardianServer.URL,
		ExecutorAPIURL:   executorServer.URL,
		ExplorerURL:      defaultExplorerURL,
		Greeting:         defaultGreeting,
		GasLimit:         defaultGasLimit,
		SignatureTimeout: 10 * time.Second,
		RelayTimeout:     10 * time.Second,
		DeliveryTimeout:  10 * time.Second,
	}

	return &testStack{
		chains: Chains{
			SourceCore: srcCore,
			SourceApp:  srcHello,
			DestCore:   dstCore,
			DestApp:    dstHello,
		},
		cfg:         cfg,
		guardianSet: set,
	}
}

func TestRunPass(t *testing.T) {
	stack := newTestStack(t, true)
	stack.chains.SourceCore.Credit(senderAddr, uint256.NewInt(100_000))

	o := New(log.NoLog{}, stack.cfg, stack.chains)
	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusPass, report.Status)
	require.NotEqual(t, report.TxHash.Hex(), "0x0000000000000000000000000000000000000000000000000000000000000000")
	require.Contains(t, report.ExplorerURL, report.TxHash.Hex())
}

func TestRunInsufficientFunds(t *testing.T) {
	stack := newTestStack(t, true)
	stack.chains.SourceCore.Credit(senderAddr, uint256.NewInt(10))

	o := New(log.NoLog{}, stack.cfg, stack.chains)
	report, err := o.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusFailed, report.Status)

	// Nothing was submitted
	require.Equal(t, uint256.NewInt(10), stack.chains.SourceCore.Balance(senderAddr))
	for _, ev := range stack.chains.SourceCore.EventsSince(0) {
		_, isPublished := ev.Data.(endpoint.LogMessagePublished)
		require.False(t, isPublished)
	}
}

func TestRunIncompleteOnSignatureTimeout(t *testing.T) {
	stack := newTestStack(t, false)
	stack.chains.SourceCore.Credit(senderAddr, uint256.NewInt(100_000))

	cfg := stack.cfg
	cfg.SignatureTimeout = 500 * time.Millisecond
	cfg.RelayTimeout = 500 * time.Millisecond

	o := New(log.NoLog{}, cfg, stack.chains)
	report, err := o.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusIncomplete, report.Status)
	// The send happened, so the report still carries the tx reference
	require.Contains(t, report.ExplorerURL, report.TxHash.Hex())
}
