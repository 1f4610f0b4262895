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

// Package codec encodes and decodes the three APKES command-frame
// payloads bit-exactly. All multi-byte fields are little-endian; the
// codec never interprets the EBEAP trailer bytes it carries.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ChallengeLen is L in the spec: half of the 16-byte pairwise key.
const ChallengeLen = 8

// CommandID identifies a command frame's payload layout.
type CommandID uint8

// Reserved command-frame identifiers, per spec.
const (
	CommandHello    CommandID = 0x0A
	CommandHelloAck CommandID = 0x0B
	CommandAck      CommandID = 0x0C
)

func (c CommandID) String() string {
	switch c {
	case CommandHello:
		return "HELLO"
	case CommandHelloAck:
		return "HELLOACK"
	case CommandAck:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN(%#x)", uint8(c))
	}
}

// ErrUnknownCommand is returned by ProbeCommandID for identifiers outside
// the reserved 0x0A-0x0C range; callers drop the frame and log it.
var ErrUnknownCommand = errors.New("apkes/codec: unknown command frame identifier")

// ErrShortBuffer is returned when decoding a payload shorter than its
// fixed-size layout requires.
var ErrShortBuffer = errors.New("apkes/codec: payload too short")

// ProbeCommandID reads the first byte of data and classifies it.
func ProbeCommandID(data []byte) (CommandID, error) {
	if len(data) < 1 {
		return 0, ErrShortBuffer
	}
	id := CommandID(data[0])
	switch id {
	case CommandHello, CommandHelloAck, CommandAck:
		return id, nil
	default:
		return id, ErrUnknownCommand
	}
}

// Hello is the HELLO command frame: [id][challenge_A : L][short_addr_A : 2].
type Hello struct {
	ChallengeA [ChallengeLen]byte
	ShortAddrA uint16
}

// Len is the encoded size of Hello.
const HelloLen = 1 + ChallengeLen + 2

// MarshalBinaryTo encodes h into buf, returning the number of bytes written.
func (h *Hello) MarshalBinaryTo(buf []byte) (int, error) {
	if len(buf) < HelloLen {
		return 0, ErrShortBuffer
	}
	buf[0] = byte(CommandHello)
	copy(buf[1:1+ChallengeLen], h.ChallengeA[:])
	binary.LittleEndian.PutUint16(buf[1+ChallengeLen:], h.ShortAddrA)
	return HelloLen, nil
}

// MarshalBinary encodes h into a freshly allocated slice.
func (h *Hello) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HelloLen)
	n, err := h.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary decodes a HELLO payload. b must start with the command
// identifier byte.
func (h *Hello) UnmarshalBinary(b []byte) error {
	if len(b) < HelloLen {
		return ErrShortBuffer
	}
	copy(h.ChallengeA[:], b[1:1+ChallengeLen])
	h.ShortAddrA = binary.LittleEndian.Uint16(b[1+ChallengeLen:])
	return nil
}

// HelloAck is the HELLOACK command frame:
// [id][challenge_A : L][challenge_B : L][local_index_A : 1][tail].
// Trailer is the opaque EBEAP tail; the codec never interprets it.
type HelloAck struct {
	ChallengeA  [ChallengeLen]byte
	ChallengeB  [ChallengeLen]byte
	LocalIndexA uint8
	Trailer     []byte
}

// HelloAckFixedLen is the encoded size of HelloAck excluding the trailer.
const HelloAckFixedLen = 1 + ChallengeLen + ChallengeLen + 1

// MarshalBinaryTo encodes h into buf, returning the number of bytes written.
func (h *HelloAck) MarshalBinaryTo(buf []byte) (int, error) {
	need := HelloAckFixedLen + len(h.Trailer)
	if len(buf) < need {
		return 0, ErrShortBuffer
	}
	buf[0] = byte(CommandHelloAck)
	pos := 1
	copy(buf[pos:pos+ChallengeLen], h.ChallengeA[:])
	pos += ChallengeLen
	copy(buf[pos:pos+ChallengeLen], h.ChallengeB[:])
	pos += ChallengeLen
	buf[pos] = h.LocalIndexA
	pos++
	copy(buf[pos:], h.Trailer)
	return need, nil
}

// MarshalBinary encodes h into a freshly allocated slice.
func (h *HelloAck) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HelloAckFixedLen+len(h.Trailer))
	n, err := h.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary decodes a HELLOACK payload, including the command
// identifier byte at b[0]. Whatever bytes follow the fixed fields become
// the opaque Trailer, sized by trailerLen.
func (h *HelloAck) UnmarshalBinary(b []byte, trailerLen int) error {
	need := HelloAckFixedLen + trailerLen
	if len(b) < need {
		return ErrShortBuffer
	}
	pos := 1
	copy(h.ChallengeA[:], b[pos:pos+ChallengeLen])
	pos += ChallengeLen
	copy(h.ChallengeB[:], b[pos:pos+ChallengeLen])
	pos += ChallengeLen
	h.LocalIndexA = b[pos]
	pos++
	h.Trailer = append([]byte(nil), b[pos:pos+trailerLen]...)
	return nil
}

// Ack is the ACK command frame: [id][local_index_B : 1][tail'].
type Ack struct {
	LocalIndexB uint8
	Trailer     []byte
}

// AckFixedLen is the encoded size of Ack excluding the trailer.
const AckFixedLen = 1 + 1

// MarshalBinaryTo encodes a into buf, returning the number of bytes written.
func (a *Ack) MarshalBinaryTo(buf []byte) (int, error) {
	need := AckFixedLen + len(a.Trailer)
	if len(buf) < need {
		return 0, ErrShortBuffer
	}
	buf[0] = byte(CommandAck)
	buf[1] = a.LocalIndexB
	copy(buf[2:], a.Trailer)
	return need, nil
}

// MarshalBinary encodes a into a freshly allocated slice.
func (a *Ack) MarshalBinary() ([]byte, error) {
	buf := make([]byte, AckFixedLen+len(a.Trailer))
	n, err := a.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary decodes an ACK payload, including the command
// identifier byte at b[0].
func (a *Ack) UnmarshalBinary(b []byte, trailerLen int) error {
	need := AckFixedLen + trailerLen
	if len(b) < need {
		return ErrShortBuffer
	}
	a.LocalIndexB = b[1]
	a.Trailer = append([]byte(nil), b[2:2+trailerLen]...)
	return nil
}
