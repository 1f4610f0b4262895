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

// Package llsec defines the interfaces APKES consumes from collaborators
// that are explicitly out of scope for this module: frame construction
// and AES-CCM* security on the radio (SecurityModule), and the long-lived
// shared-secret policy (SchemeProvider). Concrete 802.15.4 drivers and
// keying policies implement these; APKES itself only calls through them.
package llsec

import (
	"github.com/apkes-project/apkes/codec"
	"github.com/apkes-project/apkes/neighbor"
)

// SecurityLevel mirrors the 802.15.4 security-level nibble: the low two
// bits select MIC length/encryption, bit 2 toggles encryption in addition
// to authentication.
type SecurityLevel uint8

// Security levels used by the handshake, see spec §4.4.
const (
	// SecurityLevelNone is used for HELLO, which is unauthenticated by
	// design (anyone may announce themselves; authentication happens on
	// HELLOACK/ACK).
	SecurityLevelNone SecurityLevel = 0
	// SecurityLevelAuth is used for HELLOACK/ACK when EBEAP encryption of
	// the broadcast key is disabled: authenticated only.
	SecurityLevelAuth SecurityLevel = 1 << 2
	// SecurityLevelAuthEnc is used for HELLOACK/ACK when EBEAP encryption
	// is enabled: authenticated and encrypted.
	SecurityLevelAuthEnc SecurityLevel = SecurityLevelAuth | (1 << 0)
)

// BroadcastAddress is the sentinel extended address meaning "address this
// command frame to everyone", mirroring Contiki's linkaddr_null. No real
// node may hold this as its own address.
const BroadcastAddress uint64 = 0

// Attr identifies a frame attribute SecurityModule exposes get/set access
// to, mirroring 802.15.4 packetbuf attributes used for key identification.
type Attr int

// Attributes used to let the peer locate the fresh pairwise key.
const (
	AttrKeyIDMode Attr = iota
	AttrKeyIndex
	AttrKeySourceShort
	// AttrKeyMaterial carries the [neighbor.PairwiseKeyLen]byte key this
	// frame must be authenticated (and, at SecurityLevelAuthEnc,
	// encrypted) under. A real 802.15.4 driver ordinarily resolves the
	// key itself from its own neighbor table via AttrKeyIndex and
	// ignores this attribute entirely; it exists so a reference
	// transport with no neighbor-table access of its own (see package
	// llsecudp) can still perform the cryptographic operation the
	// security level demands.
	AttrKeyMaterial
)

// KeyIDMode is the value set under AttrKeyIDMode.
type KeyIDMode int

// Key-id-mode values, see spec §4.4 send_helloack/send_ack.
const (
	KeyIDMode1Byte KeyIDMode = iota // index only, used by ACK
	KeyIDMode5Byte                  // index + 2-byte source, used by HELLOACK
)

// SecurityModule is the link-layer security collaborator: frame
// construction, security-header attachment, and AEAD encrypt/verify.
// APKES never touches radio bytes directly; it always goes through this
// interface so a real 802.15.4 AES-CCM* implementation slots in
// unchanged.
type SecurityModule interface {
	// PrepareCommandFrame allocates a command frame addressed to dest
	// (the broadcast address for HELLO, a unicast extended address
	// otherwise) and returns its writable payload region.
	PrepareCommandFrame(id codec.CommandID, dest uint64) ([]byte, error)
	// AddSecurityHeader attaches authentication/encryption metadata at
	// the requested level to the frame currently under construction.
	AddSecurityHeader(level SecurityLevel)
	// SetAttr sets a frame attribute (key-id mode, key-index, key-source)
	// on the frame currently under construction.
	SetAttr(attr Attr, value any)
	// Attr reads a frame attribute off the most recently received frame.
	Attr(attr Attr) any
	// SendCommandFrame hands the prepared frame to the radio.
	SendCommandFrame() error
	// DecryptVerifyUnicast decrypts and MIC-verifies the most recently
	// received unicast frame under key, reporting success. A false
	// return means "drop": either the key is wrong or the frame was
	// tampered with.
	DecryptVerifyUnicast(key [neighbor.PairwiseKeyLen]byte) bool
}

// SchemeProvider supplies the long-lived shared secret for a given peer,
// with two variants distinguished by which handshake message triggered
// the lookup so a provider can apply role-asymmetric policy (e.g. only
// the network coordinator answers every HELLO, while leaves only answer
// HELLOACKs from the coordinator).
type SchemeProvider interface {
	// Init performs one-time setup (e.g. loading preshared secrets from
	// flash).
	Init() error
	// GetSecretWithHelloSender returns the long-term secret to use when
	// responding to a HELLO from ids, or ok=false if none is configured.
	GetSecretWithHelloSender(ids neighbor.IDs) (secret [neighbor.PairwiseKeyLen]byte, ok bool)
	// GetSecretWithHelloAckSender is the same, for responding to a
	// HELLOACK.
	GetSecretWithHelloAckSender(ids neighbor.IDs) (secret [neighbor.PairwiseKeyLen]byte, ok bool)
}
