/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package engine is the handshake core: it drives a neighbor through
// TENTATIVE -> TENTATIVE_AWAITING_ACK -> PERMANENT on receipt of HELLO,
// HELLOACK and ACK command frames, deriving the fresh pairwise key and
// defending against HELLO floods, reflection and replay along the way.
// It never touches a socket or a radio directly; all of that is reached
// through the llsec.SecurityModule and llsec.SchemeProvider collaborators
// supplied at construction, matching how ptp/sptp/client.Client only ever
// speaks to UDPConnWithTS, never to a raw fd.
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/apkes-project/apkes/codec"
	"github.com/apkes-project/apkes/llsec"
	"github.com/apkes-project/apkes/neighbor"
	"github.com/apkes-project/apkes/nonce"
	"github.com/apkes-project/apkes/platform"
	"github.com/apkes-project/apkes/timerpool"
)

// Recorder is the subset of stats.Recorder the engine needs. Kept local
// so engine does not import the stats package's Prometheus machinery
// just to count events; stats.PromRecorder satisfies this implicitly.
type Recorder interface {
	IncSent(cmd codec.CommandID)
	IncReceived(cmd codec.CommandID)
	IncDrop(reason string)
	IncPromoted()
}

// BroadcastKeySource supplies the EBEAP broadcast key material carried as
// the HELLOACK/ACK trailer when encryption of that material is enabled.
// Nil means EBEAP trailer encryption is not in use; the trailer then
// carries the sender's own short address instead, per spec.
type BroadcastKeySource func() []byte

// Config bundles the tunables spec.md calls out by name, mirroring
// ptp/sptp/client.Config's shape of "every magic number gets a field".
type Config struct {
	// ShortAddr is this node's own short address, embedded in outgoing
	// HELLO/HELLOACK/ACK trailers when EBEAP encryption is off.
	ShortAddr uint16
	// MaxWaitingPeriod upper-bounds the jittered HELLOACK delay.
	MaxWaitingPeriod time.Duration
	// AckDelay is added to MaxWaitingPeriod to compute how long a
	// TENTATIVE_AWAITING_ACK neighbor is kept before expiring.
	AckDelay time.Duration
	// EBEAPEncryptionEnabled selects SecurityLevelAuthEnc and a
	// BroadcastKeySource-derived trailer over SecurityLevelAuth and a
	// short-address trailer.
	EBEAPEncryptionEnabled bool
	// BroadcastKeyLen is the trailer width to expect when
	// EBEAPEncryptionEnabled is set; ignored otherwise (the trailer is
	// then 2 bytes, a short address).
	BroadcastKeyLen int
}

func (c Config) trailerLen() int {
	if c.EBEAPEncryptionEnabled {
		return c.BroadcastKeyLen
	}
	return 2
}

// Engine is the handshake core. Its exported methods — BroadcastHello,
// OnHello, OnHelloAck, OnAck — are safe to call from independent
// goroutines (one per inbound frame, one per firing wait-timer): a single
// internal mutex renders them atomic with respect to each other, the Go
// rendering of the cooperative single-threaded scheduler the protocol was
// designed against.
type Engine struct {
	cfg Config

	table   neighbor.Table
	sec     llsec.SecurityModule
	scheme  llsec.SchemeProvider
	nonces  nonce.Source
	timers  *timerpool.Pool
	clock   platform.Clock
	stats   Recorder
	keySrc  BroadcastKeySource

	mu           sync.Mutex
	ourChallenge [codec.ChallengeLen]byte
}

// New builds an Engine. timers' capacity bounds the number of neighbors
// concurrently in TENTATIVE state, i.e. MAX_TENTATIVE_NEIGHBORS.
func New(cfg Config, table neighbor.Table, sec llsec.SecurityModule, scheme llsec.SchemeProvider, nonces nonce.Source, timers *timerpool.Pool, clock platform.Clock, stats Recorder, keySrc BroadcastKeySource) *Engine {
	if clock == nil {
		clock = platform.RealClock{}
	}
	return &Engine{
		cfg:    cfg,
		table:  table,
		sec:    sec,
		scheme: scheme,
		nonces: nonces,
		timers: timers,
		clock:  clock,
		stats:  stats,
		keySrc: keySrc,
	}
}

func (e *Engine) drop(reason string) {
	if e.stats != nil {
		e.stats.IncDrop(reason)
	}
}

// logSent and logReceive trace handshake traffic the way
// ptp/sptp/client.Client.logSent/logReceive do for PTP messages: green
// for outbound, blue for inbound, at debug level only.
func (e *Engine) logSent(id codec.CommandID, peer uint64) {
	log.Debug(color.GreenString("apkes/engine: %s -> %#x", id, peer))
}

func (e *Engine) logReceive(id codec.CommandID, peer uint64) {
	log.Debug(color.BlueString("apkes/engine: %#x -> %s", peer, id))
}

func (e *Engine) recordSent(id codec.CommandID, peer uint64) {
	e.logSent(id, peer)
	if e.stats != nil {
		e.stats.IncSent(id)
	}
}

func (e *Engine) recordReceived(id codec.CommandID, peer uint64) {
	e.logReceive(id, peer)
	if e.stats != nil {
		e.stats.IncReceived(id)
	}
}

// outgoingTrailer returns the bytes appended after the fixed HELLOACK/ACK
// fields: the EBEAP broadcast key when encryption is enabled, otherwise
// this node's own short address.
func (e *Engine) outgoingTrailer() []byte {
	if e.cfg.EBEAPEncryptionEnabled && e.keySrc != nil {
		return e.keySrc()
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, e.cfg.ShortAddr)
	return b
}

// peerShortAddr recovers the sender's short address from a received
// HELLOACK/ACK: the key-source attribute under EBEAP encryption, or the
// trailer field otherwise.
func (e *Engine) peerShortAddr(trailer []byte) (uint16, error) {
	if e.cfg.EBEAPEncryptionEnabled {
		v := e.sec.Attr(llsec.AttrKeySourceShort)
		addr, ok := v.(uint16)
		if !ok {
			return 0, errors.New("apkes/engine: key-source attribute missing or wrong type")
		}
		return addr, nil
	}
	if len(trailer) < 2 {
		return 0, codec.ErrShortBuffer
	}
	return binary.LittleEndian.Uint16(trailer), nil
}

// BroadcastHello refreshes this node's challenge and broadcasts a HELLO.
// Must be called before any of the node's neighbors can begin a
// handshake; the bootstrap driver calls it once per round.
func (e *Engine) BroadcastHello() error {
	e.mu.Lock()
	if err := e.nonces.FreshChallenge(e.ourChallenge[:]); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("apkes/engine: refreshing challenge: %w", err)
	}
	challenge := e.ourChallenge
	e.mu.Unlock()

	payload, err := e.sec.PrepareCommandFrame(codec.CommandHello, llsec.BroadcastAddress)
	if err != nil {
		return fmt.Errorf("apkes/engine: preparing HELLO frame: %w", err)
	}
	hello := codec.Hello{ChallengeA: challenge, ShortAddrA: e.cfg.ShortAddr}
	if _, err := hello.MarshalBinaryTo(payload); err != nil {
		return fmt.Errorf("apkes/engine: encoding HELLO: %w", err)
	}
	e.sec.AddSecurityHeader(llsec.SecurityLevelNone)
	if err := e.sec.SendCommandFrame(); err != nil {
		return fmt.Errorf("apkes/engine: sending HELLO: %w", err)
	}
	e.recordSent(codec.CommandHello, llsec.BroadcastAddress)
	return nil
}

// OnHello handles a received HELLO from senderExtended. It allocates a
// wait-timer and a TENTATIVE neighbor entry, both of which may fail
// silently by design: a node under a HELLO flood simply stops answering
// once its bounded resources are exhausted, rather than spending memory
// per attacker-controlled message.
func (e *Engine) OnHello(senderExtended uint64, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var hello codec.Hello
	if err := hello.UnmarshalBinary(payload); err != nil {
		e.drop("hello_decode")
		return
	}
	e.recordReceived(codec.CommandHello, senderExtended)

	if e.table.ByExtended(senderExtended) != nil {
		e.drop("hello_duplicate")
		return
	}

	slot, ok := e.timers.Allocate()
	if !ok {
		e.drop("timer_pool_exhausted")
		return
	}

	n := e.table.New()
	if n == nil {
		e.timers.Release(slot)
		e.drop("table_full")
		return
	}
	n.SetStatus(neighbor.StatusTentative)
	e.table.UpdateIDs(n, neighbor.IDs{Extended: senderExtended, Short: hello.ShortAddrA})

	n.Lock()
	copy(n.Metadata[:codec.ChallengeLen], hello.ChallengeA[:])
	n.Unlock()
	var ourHalf [codec.ChallengeLen]byte
	if err := e.nonces.FreshChallenge(ourHalf[:]); err != nil {
		e.timers.Release(slot)
		e.table.Remove(n)
		e.drop("challenge_generation")
		return
	}
	n.Lock()
	copy(n.Metadata[codec.ChallengeLen:], ourHalf[:])
	n.Unlock()

	n.SetExpiration(e.clock.Now().Add(e.cfg.MaxWaitingPeriod + e.cfg.AckDelay))

	slot.NeighborKey = senderExtended
	jitter := e.nonces.Jitter(e.cfg.MaxWaitingPeriod)
	slot.Timer.Reset(jitter)
	go e.watchSlot(slot)
}

// watchSlot blocks until slot's wait-timer fires, then hands off to
// waitCallback. One goroutine per allocated slot; bounded by the timer
// pool's fixed capacity.
func (e *Engine) watchSlot(slot *timerpool.Slot) {
	<-slot.Timer.Fire()
	e.waitCallback(slot)
}

// waitCallback fires once the jittered wait period elapses for a
// TENTATIVE neighbor: it promotes to TENTATIVE_AWAITING_ACK and sends the
// HELLOACK. The slot is always released, regardless of outcome.
func (e *Engine) waitCallback(slot *timerpool.Slot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.timers.Release(slot)

	n := e.table.ByExtended(slot.NeighborKey)
	if n == nil {
		return
	}
	if n.GetStatus() != neighbor.StatusTentative {
		return
	}
	n.SetStatus(neighbor.StatusTentativeAwaitingAck)
	if err := e.sendHelloAck(n); err != nil {
		e.drop("helloack_send_error")
	}
}

// sendHelloAck derives the fresh pairwise key from the long-term secret
// for n and sends HELLOACK.
func (e *Engine) sendHelloAck(n *neighbor.Neighbor) error {
	secret, ok := e.scheme.GetSecretWithHelloSender(n.IDs)
	if !ok {
		e.drop("no_shared_secret")
		return nil
	}

	n.Lock()
	metadata := n.Metadata
	key, err := derivePairwiseKey(secret, metadata)
	if err == nil {
		n.PairwiseKey = key
	}
	n.Unlock()
	if err != nil {
		return fmt.Errorf("apkes/engine: deriving pairwise key: %w", err)
	}

	payload, err := e.sec.PrepareCommandFrame(codec.CommandHelloAck, n.IDs.Extended)
	if err != nil {
		return fmt.Errorf("apkes/engine: preparing HELLOACK frame: %w", err)
	}

	level := llsec.SecurityLevelAuth
	if e.cfg.EBEAPEncryptionEnabled {
		level = llsec.SecurityLevelAuthEnc
	}
	e.sec.AddSecurityHeader(level)
	e.sec.SetAttr(llsec.AttrKeyIDMode, llsec.KeyIDMode5Byte)
	e.sec.SetAttr(llsec.AttrKeyIndex, codec.CommandHelloAck)
	e.sec.SetAttr(llsec.AttrKeySourceShort, e.cfg.ShortAddr)
	e.sec.SetAttr(llsec.AttrKeyMaterial, key)

	ha := codec.HelloAck{
		ChallengeA:  [codec.ChallengeLen]byte(metadata[:codec.ChallengeLen]),
		ChallengeB:  [codec.ChallengeLen]byte(metadata[codec.ChallengeLen:]),
		LocalIndexA: n.LocalIndex,
		Trailer:     e.outgoingTrailer(),
	}
	if _, err := ha.MarshalBinaryTo(payload); err != nil {
		return fmt.Errorf("apkes/engine: encoding HELLOACK: %w", err)
	}
	if err := e.sec.SendCommandFrame(); err != nil {
		return fmt.Errorf("apkes/engine: sending HELLOACK: %w", err)
	}
	e.recordSent(codec.CommandHelloAck, n.IDs.Extended)
	return nil
}

// OnHelloAck handles a received HELLOACK from senderExtended, the result
// of a HELLO this node broadcast earlier. It authenticates the peer via
// DecryptVerifyUnicast, rejects reflected HELLOs (challenge_A must match
// what this node actually sent), and on success derives the pairwise key
// and answers with ACK.
func (e *Engine) OnHelloAck(senderExtended uint64, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ha codec.HelloAck
	if err := ha.UnmarshalBinary(payload, e.cfg.trailerLen()); err != nil {
		e.drop("helloack_decode")
		return
	}
	e.recordReceived(codec.CommandHelloAck, senderExtended)

	if ha.ChallengeA != e.ourChallenge {
		e.drop("helloack_reflection")
		return
	}

	shortAddr, err := e.peerShortAddr(ha.Trailer)
	if err != nil {
		e.drop("helloack_no_short_addr")
		return
	}
	ids := neighbor.IDs{Extended: senderExtended, Short: shortAddr}

	secret, ok := e.scheme.GetSecretWithHelloAckSender(ids)
	if !ok {
		e.drop("no_shared_secret")
		return
	}

	var metadata [neighbor.PairwiseKeyLen]byte
	copy(metadata[:codec.ChallengeLen], ha.ChallengeA[:])
	copy(metadata[codec.ChallengeLen:], ha.ChallengeB[:])
	key, err := derivePairwiseKey(secret, metadata)
	if err != nil {
		e.drop("key_derivation_error")
		return
	}
	if !e.sec.DecryptVerifyUnicast(key) {
		e.drop("helloack_auth_failed")
		return
	}

	existing := e.table.ByExtended(senderExtended)
	n := existing
	if existing != nil {
		switch existing.GetStatus() {
		case neighbor.StatusPermanent:
			if e.table.WasReplayed(existing) {
				e.drop("helloack_replay")
				return
			}
		case neighbor.StatusTentative:
			// Accept: we both broadcast HELLO and will settle the race by
			// whichever HELLOACK/ACK completes first.
		default:
			e.drop("helloack_bad_state")
			return
		}
	} else {
		n = e.table.New()
		if n == nil {
			e.drop("table_full")
			return
		}
	}

	n.Lock()
	n.Metadata = metadata
	n.PairwiseKey = key
	n.Unlock()
	e.table.UpdateIDs(n, ids)
	e.table.Update(n, ha.Trailer)

	if err := e.sendAck(n); err != nil {
		e.drop("ack_send_error")
	}
}

// sendAck answers a verified HELLOACK, confirming the pairwise key back
// to the peer.
func (e *Engine) sendAck(n *neighbor.Neighbor) error {
	payload, err := e.sec.PrepareCommandFrame(codec.CommandAck, n.IDs.Extended)
	if err != nil {
		return fmt.Errorf("apkes/engine: preparing ACK frame: %w", err)
	}

	level := llsec.SecurityLevelAuth
	if e.cfg.EBEAPEncryptionEnabled {
		level = llsec.SecurityLevelAuthEnc
	}
	n.Lock()
	key := n.PairwiseKey
	n.Unlock()

	e.sec.AddSecurityHeader(level)
	e.sec.SetAttr(llsec.AttrKeyIDMode, llsec.KeyIDMode1Byte)
	e.sec.SetAttr(llsec.AttrKeyIndex, codec.CommandAck)
	e.sec.SetAttr(llsec.AttrKeyMaterial, key)

	ack := codec.Ack{LocalIndexB: n.LocalIndex, Trailer: e.outgoingTrailer()}
	if _, err := ack.MarshalBinaryTo(payload); err != nil {
		return fmt.Errorf("apkes/engine: encoding ACK: %w", err)
	}
	if err := e.sec.SendCommandFrame(); err != nil {
		return fmt.Errorf("apkes/engine: sending ACK: %w", err)
	}
	e.recordSent(codec.CommandAck, n.IDs.Extended)
	return nil
}

// OnAck handles a received ACK from senderExtended, completing the
// handshake this node initiated as the HELLOACK sender.
func (e *Engine) OnAck(senderExtended uint64, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.table.ByExtended(senderExtended)
	if n == nil {
		e.drop("ack_unknown_sender")
		return
	}
	if n.GetStatus() != neighbor.StatusTentativeAwaitingAck {
		e.drop("ack_bad_state")
		return
	}

	var ack codec.Ack
	if err := ack.UnmarshalBinary(payload, e.cfg.trailerLen()); err != nil {
		e.drop("ack_decode")
		return
	}
	e.recordReceived(codec.CommandAck, senderExtended)

	n.Lock()
	key := n.PairwiseKey
	n.Unlock()
	if !e.sec.DecryptVerifyUnicast(key) {
		e.drop("ack_auth_failed")
		return
	}

	e.table.Update(n, ack.Trailer)
	e.recordPromoted()
}

func (e *Engine) recordPromoted() {
	if e.stats != nil {
		e.stats.IncPromoted()
	}
}
