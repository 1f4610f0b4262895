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

// Package llsecudp is a reference llsec.SecurityModule over UDP,
// standing in for a real 802.15.4 radio with AES-CCM* security the way
// ptp/sptp/client.UDPConn stands in for a raw PTP event-port socket:
// same Read/Write-bytes shape, none of the actual hardware underneath.
// It exists so the demo daemon (cmd/apkes-node) can run the handshake
// between real OS processes on a single host or LAN, authenticating
// HELLOACK/ACK with HMAC-SHA256 under the key the engine just derived
// rather than a real CCM* MIC.
package llsecudp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/apkes-project/apkes/codec"
	"github.com/apkes-project/apkes/llsec"
	"github.com/apkes-project/apkes/neighbor"
)

// tagLen is the truncated HMAC-SHA256 authentication tag width attached
// to SecurityLevelAuth/SecurityLevelAuthEnc frames.
const tagLen = 8

// Handler receives dispatched command frames. *engine.Engine satisfies
// this implicitly.
type Handler interface {
	OnHello(sender uint64, payload []byte)
	OnHelloAck(sender uint64, payload []byte)
	OnAck(sender uint64, payload []byte)
}

// Radio is a UDP-backed llsec.SecurityModule. Extended is this node's
// own extended address, sent in every envelope so peers can identify
// the sender without a separate address-resolution step.
type Radio struct {
	conn          *net.UDPConn
	broadcastAddr *net.UDPAddr
	extended      uint64

	mu    sync.Mutex
	peers map[uint64]*net.UDPAddr

	// outgoing frame under construction
	outCmd   codec.CommandID
	outDest  uint64
	outBuf   []byte
	outLevel llsec.SecurityLevel
	outAttrs map[llsec.Attr]any

	// most recently received frame, cached for DecryptVerifyUnicast
	inFrame []byte
	inTag   []byte
	inAttrs map[llsec.Attr]any
}

// NewRadio opens a UDP socket on listenAddr and targets broadcastAddr
// for HELLO. extended is this node's own extended address.
func NewRadio(listenAddr, broadcastAddr string, extended uint64) (*Radio, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("apkes/llsecudp: resolving %s: %w", listenAddr, err)
	}
	baddr, err := net.ResolveUDPAddr("udp", broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("apkes/llsecudp: resolving %s: %w", broadcastAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("apkes/llsecudp: listening on %s: %w", listenAddr, err)
	}
	return &Radio{
		conn:          conn,
		broadcastAddr: baddr,
		extended:      extended,
		peers:         make(map[uint64]*net.UDPAddr),
		outAttrs:      make(map[llsec.Attr]any),
		inAttrs:       make(map[llsec.Attr]any),
	}, nil
}

// Close closes the underlying socket.
func (r *Radio) Close() error { return r.conn.Close() }

// RegisterPeer records where to send unicast frames addressed to
// extended. Required before PrepareCommandFrame(..., extended) can
// succeed for anything but the broadcast address.
func (r *Radio) RegisterPeer(extended uint64, addr string) error {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("apkes/llsecudp: resolving peer %s: %w", addr, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[extended] = uaddr
	return nil
}

// PrepareCommandFrame implements llsec.SecurityModule.
func (r *Radio) PrepareCommandFrame(id codec.CommandID, dest uint64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dest != llsec.BroadcastAddress {
		if _, ok := r.peers[dest]; !ok {
			return nil, fmt.Errorf("apkes/llsecudp: no registered UDP address for peer %#x", dest)
		}
	}
	r.outCmd = id
	r.outDest = dest
	r.outBuf = make([]byte, 512)
	r.outAttrs = make(map[llsec.Attr]any)
	r.outLevel = llsec.SecurityLevelNone
	return r.outBuf, nil
}

// AddSecurityHeader implements llsec.SecurityModule.
func (r *Radio) AddSecurityHeader(level llsec.SecurityLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outLevel = level
}

// SetAttr implements llsec.SecurityModule.
func (r *Radio) SetAttr(attr llsec.Attr, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outAttrs[attr] = value
}

// Attr implements llsec.SecurityModule.
func (r *Radio) Attr(attr llsec.Attr) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inAttrs[attr]
}

// SendCommandFrame implements llsec.SecurityModule: it wraps the
// prepared frame in an envelope of [sender extended addr][tag], appends
// an HMAC-SHA256 tag when level is not SecurityLevelNone, and sends it
// unicast or to the broadcast address.
func (r *Radio) SendCommandFrame() error {
	r.mu.Lock()
	frame := r.outBuf
	level := r.outLevel
	dest := r.outDest
	cmd := r.outCmd
	var key [neighbor.PairwiseKeyLen]byte
	if v, ok := r.outAttrs[llsec.AttrKeyMaterial]; ok {
		key, _ = v.([neighbor.PairwiseKeyLen]byte)
	}
	addr := r.broadcastAddr
	if dest != llsec.BroadcastAddress {
		addr = r.peers[dest]
	}
	r.mu.Unlock()

	envelope := make([]byte, 8, 8+len(frame)+tagLen)
	binary.LittleEndian.PutUint64(envelope, r.extended)
	envelope = append(envelope, frame...)
	if level != llsec.SecurityLevelNone {
		envelope = append(envelope, tag(key, frame)...)
	}

	if addr == nil {
		return fmt.Errorf("apkes/llsecudp: no destination address for %s frame to %#x", cmd, dest)
	}
	if _, err := r.conn.WriteToUDP(envelope, addr); err != nil {
		return fmt.Errorf("apkes/llsecudp: sending %s to %s: %w", cmd, addr, err)
	}
	return nil
}

// DecryptVerifyUnicast implements llsec.SecurityModule: it recomputes
// the HMAC tag of the most recently received unicast frame under key
// and compares it to the tag the sender attached.
func (r *Radio) DecryptVerifyUnicast(key [neighbor.PairwiseKeyLen]byte) bool {
	r.mu.Lock()
	frame := r.inFrame
	gotTag := r.inTag
	r.mu.Unlock()
	if len(gotTag) != tagLen {
		return false
	}
	return hmac.Equal(gotTag, tag(key, frame))
}

func tag(key [neighbor.PairwiseKeyLen]byte, frame []byte) []byte {
	mac := hmac.New(sha256.New, key[:])
	mac.Write(frame)
	return mac.Sum(nil)[:tagLen]
}

// Serve reads envelopes off the socket until the socket is closed,
// dispatching each to h. Run it in its own goroutine.
func (r *Radio) Serve(h Handler) error {
	buf := make([]byte, 1500)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return fmt.Errorf("apkes/llsecudp: reading: %w", err)
		}
		if n < 8 {
			log.Debugf("apkes/llsecudp: dropping short envelope (%d bytes)", n)
			continue
		}
		sender := binary.LittleEndian.Uint64(buf[:8])
		body := append([]byte(nil), buf[8:n]...)

		id, err := codec.ProbeCommandID(body)
		if err != nil {
			log.Debugf("apkes/llsecudp: dropping frame from %#x: %v", sender, err)
			continue
		}

		var frame, tagBytes []byte
		if len(body) >= tagLen && id != codec.CommandHello {
			frame, tagBytes = body[:len(body)-tagLen], body[len(body)-tagLen:]
		} else {
			frame = body
		}

		r.mu.Lock()
		r.inFrame = frame
		r.inTag = tagBytes
		r.mu.Unlock()

		switch id {
		case codec.CommandHello:
			h.OnHello(sender, frame)
		case codec.CommandHelloAck:
			h.OnHelloAck(sender, frame)
		case codec.CommandAck:
			h.OnAck(sender, frame)
		}
	}
}
