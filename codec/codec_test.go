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

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHelloRoundTrip(t *testing.T) {
	h := &Hello{ShortAddrA: 0x0001}
	for i := range h.ChallengeA {
		h.ChallengeA[i] = byte(i)
	}
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, HelloLen)
	require.Equal(t, byte(CommandHello), b[0])

	var got Hello
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, h.ChallengeA, got.ChallengeA)
	require.Equal(t, h.ShortAddrA, got.ShortAddrA)
}

func TestHelloAckRoundTripWithTrailer(t *testing.T) {
	h := &HelloAck{LocalIndexA: 7, Trailer: []byte{0xAA, 0xBB}}
	for i := range h.ChallengeA {
		h.ChallengeA[i] = byte(i)
		h.ChallengeB[i] = byte(0x10 + i)
	}
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, byte(CommandHelloAck), b[0])

	var got HelloAck
	require.NoError(t, got.UnmarshalBinary(b, len(h.Trailer)))
	require.Equal(t, h.ChallengeA, got.ChallengeA)
	require.Equal(t, h.ChallengeB, got.ChallengeB)
	require.Equal(t, h.LocalIndexA, got.LocalIndexA)
	require.Equal(t, h.Trailer, got.Trailer)
}

func TestAckRoundTrip(t *testing.T) {
	a := &Ack{LocalIndexB: 3, Trailer: []byte("broadcastkey1234")}
	b, err := a.MarshalBinary()
	require.NoError(t, err)

	var got Ack
	require.NoError(t, got.UnmarshalBinary(b, len(a.Trailer)))
	require.Equal(t, a.LocalIndexB, got.LocalIndexB)
	require.Equal(t, a.Trailer, got.Trailer)
}

func TestProbeCommandID(t *testing.T) {
	id, err := ProbeCommandID([]byte{0x0A, 0x00})
	require.NoError(t, err)
	require.Equal(t, CommandHello, id)

	_, err = ProbeCommandID([]byte{0xFF})
	require.ErrorIs(t, err, ErrUnknownCommand)

	_, err = ProbeCommandID(nil)
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestHelloUnmarshalShortBuffer(t *testing.T) {
	var h Hello
	require.ErrorIs(t, h.UnmarshalBinary([]byte{0x0A, 0x01}), ErrShortBuffer)
}

func TestCommandIDString(t *testing.T) {
	require.Equal(t, "HELLO", CommandHello.String())
	require.Equal(t, "HELLOACK", CommandHelloAck.String())
	require.Equal(t, "ACK", CommandAck.String())
	require.Contains(t, CommandID(0xFF).String(), "UNKNOWN")
}
