// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/courier"
	"github.com/luxfi/courier/payload"
)

const (
	testSourceChain uint16 = 10002
	testDestChain   uint16 = 10004
)

var (
	admin     = ids.ID{31: 0xAA}
	alice     = ids.ID{31: 0xA1}
	helloAddr = ids.ID{31: 0x01}
	peerAddr  = ids.ID{31: 0x02}
)

type testFixture struct {
	sks       []*bls.SecretKey
	guardians *courier.GuardianSet
	srcCore   *Core
	dstCore   *Core
	srcHello  *Hello
	dstHello  *Hello
}

func newTestFixture(t *testing.T, guardians int) *testFixture {
	t.Helper()

	sks := make([]*bls.SecretKey, guardians)
	pks := make([]*bls.PublicKey, guardians)
	for i := range sks {
		sk, err := bls.NewSecretKey()
		require.NoError(t, err)
		sks[i] = sk
		pks[i] = sk.PublicKey()
	}
	set, err := courier.NewGuardianSet(0, pks)
	require.NoError(t, err)

	srcCore := New(log.NoLog{}, Config{
		ChainID:    testSourceChain,
		MessageFee: uint256.NewInt(100),
		Guardians:  set,
	})
	dstCore := New(log.NoLog{}, Config{
		ChainID:    testDestChain,
		MessageFee: uint256.NewInt(100),
		Guardians:  set,
	})

	srcHello, err := NewHello(log.NoLog{}, srcCore, HelloConfig{
		Address:     helloAddr,
		Admin:       admin,
		Consistency: courier.ConsistencyInstant,
		Replay:      ReplayByHash,
	})
	require.NoError(t, err)
	dstHello, err := NewHello(log.NoLog{}, dstCore, HelloConfig{
		Address:     peerAddr,
		Admin:       admin,
		Consistency: courier.ConsistencyInstant,
		Replay:      ReplayByHash,
	})
	require.NoError(t, err)

	return &testFixture{
		sks:       sks,
		guardians: set,
		srcCore:   srcCore,
		dstCore:   dstCore,
		srcHello:  srcHello,
		dstHello:  dstHello,
	}
}

func (f *testFixture) attest(t *testing.T, u *courier.UnsignedMessage) *courier.Message {
	t.Helper()
	msg, err := courier.SignMessage(u, f.sks, f.guardians)
	require.NoError(t, err)
	return msg
}

// publish a greeting on the source chain and return the unsigned
// message recorded in the chain log
func (f *testFixture) sendGreeting(t *testing.T, text string) (*Receipt, *courier.UnsignedMessage) {
	t.Helper()
	f.srcCore.Credit(alice, uint256.NewInt(10_000))
	receipt, err := f.srcHello.SendGreeting(
		alice, text, testDestChain,
		uint256.NewInt(250_000), uint256.NewInt(1000), []byte("quote"), uint256.NewInt(1000),
	)
	require.NoError(t, err)

	for _, ev := range f.srcCore.EventsSince(0) {
		if pub, ok := ev.Data.(LogMessagePublished); ok && pub.Message.Sequence == receipt.Sequence {
			return receipt, pub.Message
		}
	}
	t.Fatal("no LogMessagePublished event recorded")
	return nil, nil
}

func TestValidateReplayMode(t *testing.T) {
	require.NoError(t, ValidateReplayMode(ReplayByHash, courier.ConsistencyInstant))
	require.NoError(t, ValidateReplayMode(ReplayByHash, courier.ConsistencyFinalized))
	require.NoError(t, ValidateReplayMode(ReplayBySequence, courier.ConsistencyFinalized))

	err := ValidateReplayMode(ReplayBySequence, courier.ConsistencyInstant)
	require.ErrorIs(t, err, ErrReplayConsistencyMismatch)

	_, err = NewHello(log.NoLog{}, New(log.NoLog{}, Config{ChainID: 1}), HelloConfig{
		Address:     helloAddr,
		Admin:       admin,
		Consistency: courier.ConsistencyInstant,
		Replay:      ReplayBySequence,
	})
	require.ErrorIs(t, err, ErrReplayConsistencyMismatch)
}

func TestSetPeer(t *testing.T) {
	f := newTestFixture(t, 1)

	// Unset peer reads as zero
	require.Equal(t, ids.Empty, f.srcHello.Peer(testDestChain))

	require.NoError(t, f.srcHello.SetPeer(admin, testDestChain, peerAddr))
	require.Equal(t, peerAddr, f.srcHello.Peer(testDestChain))

	// Overwrite, then disable with the zero ID
	other := ids.ID{31: 0x03}
	require.NoError(t, f.srcHello.SetPeer(admin, testDestChain, other))
	require.Equal(t, other, f.srcHello.Peer(testDestChain))
	require.NoError(t, f.srcHello.SetPeer(admin, testDestChain, ids.Empty))
	require.Equal(t, ids.Empty, f.srcHello.Peer(testDestChain))
}

func TestSetPeerUnauthorized(t *testing.T) {
	f := newTestFixture(t, 1)
	require.NoError(t, f.srcHello.SetPeer(admin, testDestChain, peerAddr))

	err := f.srcHello.SetPeer(alice, testDestChain, ids.ID{31: 0xFF})
	require.ErrorIs(t, err, ErrUnauthorized)

	// No mutation on rejected call
	require.Equal(t, peerAddr, f.srcHello.Peer(testDestChain))
}

func TestSendGreeting(t *testing.T) {
	f := newTestFixture(t, 1)
	f.srcCore.Credit(alice, uint256.NewInt(10_000))

	receipt, err := f.srcHello.SendGreeting(
		alice, "Hello from Sepolia!", testDestChain,
		uint256.NewInt(250_000), uint256.NewInt(1000), []byte("quote"), uint256.NewInt(1000),
	)
	require.NoError(t, err)
	require.Equal(t, uint64(0), receipt.Sequence)

	// Value debited from the sender
	require.Equal(t, uint256.NewInt(9_000), f.srcCore.Balance(alice))

	// Sequence advances per send
	receipt, err = f.srcHello.SendGreeting(
		alice, "again", testDestChain,
		uint256.NewInt(250_000), uint256.NewInt(1000), []byte("quote"), uint256.NewInt(1000),
	)
	require.NoError(t, err)
	require.Equal(t, uint64(1), receipt.Sequence)

	var published, relayRequests, sent int
	for _, ev := range f.srcCore.EventsSince(0) {
		switch data := ev.Data.(type) {
		case LogMessagePublished:
			published++
			require.Equal(t, helloAddr, data.Message.EmitterAddress)
			require.Equal(t, testSourceChain, data.Message.EmitterChain)
		case RelayRequest:
			relayRequests++
			require.Equal(t, testDestChain, data.TargetChain)
			require.Equal(t, alice, data.RefundAddress)
			// AmtPaid is the attached value net of the message fee
			require.Equal(t, uint256.NewInt(900), data.AmtPaid)
		case MessageSent:
			sent++
		}
	}
	require.Equal(t, 2, published)
	require.Equal(t, 2, relayRequests)
	require.Equal(t, 2, sent)
}

func TestSendGreetingUnderfunded(t *testing.T) {
	f := newTestFixture(t, 1)
	f.srcCore.Credit(alice, uint256.NewInt(10_000))

	// Attached value below the quoted total cost: rejected before any
	// state change.
	_, err := f.srcHello.SendGreeting(
		alice, "hi", testDestChain,
		uint256.NewInt(250_000), uint256.NewInt(1000), []byte("quote"), uint256.NewInt(600),
	)
	require.ErrorIs(t, err, ErrInsufficientValue)
	require.Equal(t, uint256.NewInt(10_000), f.srcCore.Balance(alice))
	require.Empty(t, f.srcCore.EventsSince(0))

	// Attached value covers the cost but the sender cannot pay it
	f.srcCore.Credit(ids.ID{31: 0xB0}, uint256.NewInt(1))
	_, err = f.srcHello.SendGreeting(
		ids.ID{31: 0xB0}, "hi", testDestChain,
		uint256.NewInt(250_000), uint256.NewInt(1000), []byte("quote"), uint256.NewInt(1000),
	)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Empty(t, f.srcCore.EventsSince(0))

	// Sequence zero is still unassigned
	receipt, err := f.srcHello.SendGreeting(
		alice, "hi", testDestChain,
		uint256.NewInt(250_000), uint256.NewInt(1000), []byte("quote"), uint256.NewInt(1000),
	)
	require.NoError(t, err)
	require.Equal(t, uint64(0), receipt.Sequence)
}

func TestDeliverGreeting(t *testing.T) {
	f := newTestFixture(t, 4)
	require.NoError(t, f.dstHello.SetPeer(admin, testSourceChain, helloAddr))

	_, unsigned := f.sendGreeting(t, "Hello from Sepolia!")
	msg := f.attest(t, unsigned)

	receipt, err := f.dstCore.Deliver(msg, f.dstHello, nil)
	require.NoError(t, err)
	require.NotZero(t, receipt.Block)

	var received []MessageReceived
	for _, ev := range f.dstCore.EventsSince(0) {
		if r, ok := ev.Data.(MessageReceived); ok {
			received = append(received, r)
		}
	}
	require.Len(t, received, 1)
	require.Equal(t, "Hello from Sepolia!", received[0].Text)
	require.Equal(t, testSourceChain, received[0].SourceChain)
	require.Equal(t, helloAddr, received[0].Source)
}

func TestDeliverUnknownEmitter(t *testing.T) {
	f := newTestFixture(t, 4)

	_, unsigned := f.sendGreeting(t, "hi")
	msg := f.attest(t, unsigned)

	// No peer registered for the source chain
	_, err := f.dstCore.Deliver(msg, f.dstHello, nil)
	require.ErrorIs(t, err, ErrUnknownEmitter)

	// Peer registered but does not match the emitter
	require.NoError(t, f.dstHello.SetPeer(admin, testSourceChain, ids.ID{31: 0x99}))
	_, err = f.dstCore.Deliver(msg, f.dstHello, nil)
	require.ErrorIs(t, err, ErrUnknownEmitter)

	require.Empty(t, f.dstCore.EventsSince(0))
}

func TestDeliverBelowQuorum(t *testing.T) {
	f := newTestFixture(t, 4)
	require.NoError(t, f.dstHello.SetPeer(admin, testSourceChain, helloAddr))

	_, unsigned := f.sendGreeting(t, "hi")

	// Only one of four guardians signed; quorum is three
	msg, err := courier.SignMessage(unsigned, f.sks[:1], f.guardians)
	require.NoError(t, err)

	_, err = f.dstCore.Deliver(msg, f.dstHello, nil)
	require.ErrorIs(t, err, courier.ErrNoQuorum)
}

func TestDeliverAtMostOnce(t *testing.T) {
	f := newTestFixture(t, 4)
	require.NoError(t, f.dstHello.SetPeer(admin, testSourceChain, helloAddr))

	_, unsigned := f.sendGreeting(t, "hi")
	msg := f.attest(t, unsigned)

	_, err := f.dstCore.Deliver(msg, f.dstHello, nil)
	require.NoError(t, err)

	_, err = f.dstCore.Deliver(msg, f.dstHello, nil)
	require.ErrorIs(t, err, ErrAlreadyDelivered)

	var received int
	for _, ev := range f.dstCore.EventsSince(0) {
		if _, ok := ev.Data.(MessageReceived); ok {
			received++
		}
	}
	require.Equal(t, 1, received)
}

func TestDeliverValueRejected(t *testing.T) {
	f := newTestFixture(t, 4)
	require.NoError(t, f.dstHello.SetPeer(admin, testSourceChain, helloAddr))

	_, unsigned := f.sendGreeting(t, "hi")
	msg := f.attest(t, unsigned)

	_, err := f.dstCore.Deliver(msg, f.dstHello, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrNoValueAllowed)
	require.Empty(t, f.dstCore.EventsSince(0))

	// Rejection does not consume the replay slot; a value-free retry
	// succeeds.
	_, err = f.dstCore.Deliver(msg, f.dstHello, nil)
	require.NoError(t, err)
}

func TestDeliverBadPayload(t *testing.T) {
	f := newTestFixture(t, 4)
	require.NoError(t, f.dstHello.SetPeer(admin, testSourceChain, helloAddr))

	f.srcCore.Credit(alice, uint256.NewInt(10_000))
	receipt, err := f.srcCore.PublishWithRelay(PublishParams{
		Caller:      alice,
		Emitter:     helloAddr,
		Payload:     []byte{0xFF, 0xFE, 0xFD},
		Consistency: courier.ConsistencyInstant,
		TargetChain: testDestChain,
		TotalCost:   uint256.NewInt(1000),
		Value:       uint256.NewInt(1000),
	})
	require.NoError(t, err)

	var unsigned *courier.UnsignedMessage
	for _, ev := range f.srcCore.EventsSince(0) {
		if pub, ok := ev.Data.(LogMessagePublished); ok && pub.Message.Sequence == receipt.Sequence {
			unsigned = pub.Message
		}
	}
	require.NotNil(t, unsigned)

	msg := f.attest(t, unsigned)
	_, err = f.dstCore.Deliver(msg, f.dstHello, nil)
	require.ErrorIs(t, err, payload.ErrInvalidUTF8)
	require.Empty(t, f.dstCore.EventsSince(0))
}

func TestPublishWithoutRelay(t *testing.T) {
	f := newTestFixture(t, 1)
	f.srcCore.Credit(alice, uint256.NewInt(1000))

	receipt, err := f.srcCore.Publish(alice, helloAddr, []byte("plain"), courier.ConsistencyFinalized, uint256.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, uint64(0), receipt.Sequence)

	for _, ev := range f.srcCore.EventsSince(0) {
		_, isRelay := ev.Data.(RelayRequest)
		require.False(t, isRelay)
	}
}

func TestSubscribeEvents(t *testing.T) {
	f := newTestFixture(t, 1)
	f.srcCore.Credit(alice, uint256.NewInt(10_000))

	ch := make(chan Event, 8)
	sub := f.srcCore.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	_, err := f.srcHello.SendGreeting(
		alice, "hi", testDestChain,
		uint256.NewInt(250_000), uint256.NewInt(1000), []byte("quote"), uint256.NewInt(1000),
	)
	require.NoError(t, err)

	// Publication, relay request, and the endpoint's own event
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case ev := <-ch:
			switch ev.Data.(type) {
			case LogMessagePublished:
				seen["published"] = true
			case RelayRequest:
				seen["relay"] = true
			case MessageSent:
				seen["sent"] = true
			}
		default:
			t.Fatalf("expected 3 events, got %d", i)
		}
	}
	require.True(t, seen["published"])
	require.True(t, seen["relay"])
	require.True(t, seen["sent"])
}

func TestFinality(t *testing.T) {
	f := newTestFixture(t, 1)
	start := f.srcCore.BlockHeight()
	for i := 0; i < FinalityDepth; i++ {
		f.srcCore.AdvanceBlock()
	}
	require.Equal(t, start+uint64(FinalityDepth), f.srcCore.BlockHeight())
}
