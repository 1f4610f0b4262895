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

package llsecudp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apkes-project/apkes/codec"
	"github.com/apkes-project/apkes/llsec"
	"github.com/apkes-project/apkes/neighbor"
)

type recordingHandler struct {
	mu     sync.Mutex
	hellos []uint64
	acks   []uint64
}

func (h *recordingHandler) OnHello(sender uint64, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hellos = append(h.hellos, sender)
}

func (h *recordingHandler) OnHelloAck(sender uint64, payload []byte) {}

func (h *recordingHandler) OnAck(sender uint64, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acks = append(h.acks, sender)
}

func (h *recordingHandler) sawHelloFrom(sender uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.hellos {
		if s == sender {
			return true
		}
	}
	return false
}

func TestRadioBroadcastHelloDelivered(t *testing.T) {
	rxRadio, err := NewRadio("127.0.0.1:0", "127.0.0.1:0", 0xB)
	require.NoError(t, err)
	defer rxRadio.Close()

	txRadio, err := NewRadio("127.0.0.1:0", rxRadio.conn.LocalAddr().String(), 0xA)
	require.NoError(t, err)
	defer txRadio.Close()

	h := &recordingHandler{}
	go rxRadio.Serve(h)

	payload, err := txRadio.PrepareCommandFrame(codec.CommandHello, llsec.BroadcastAddress)
	require.NoError(t, err)
	hello := codec.Hello{ShortAddrA: 0x1111}
	_, err = hello.MarshalBinaryTo(payload)
	require.NoError(t, err)
	txRadio.AddSecurityHeader(llsec.SecurityLevelNone)
	require.NoError(t, txRadio.SendCommandFrame())

	require.Eventually(t, func() bool { return h.sawHelloFrom(0xA) }, time.Second, time.Millisecond)
}

func TestRadioUnicastAuthTagRoundTrip(t *testing.T) {
	rxRadio, err := NewRadio("127.0.0.1:0", "127.0.0.1:0", 0xB)
	require.NoError(t, err)
	defer rxRadio.Close()

	txRadio, err := NewRadio("127.0.0.1:0", "127.0.0.1:0", 0xA)
	require.NoError(t, err)
	defer txRadio.Close()
	require.NoError(t, txRadio.RegisterPeer(0xB, rxRadio.conn.LocalAddr().String()))

	var key [neighbor.PairwiseKeyLen]byte
	for i := range key {
		key[i] = byte(i + 1)
	}

	h := &recordingHandler{}
	go rxRadio.Serve(h)

	payload, err := txRadio.PrepareCommandFrame(codec.CommandAck, 0xB)
	require.NoError(t, err)
	ack := codec.Ack{LocalIndexB: 3}
	_, err = ack.MarshalBinaryTo(payload)
	require.NoError(t, err)
	txRadio.AddSecurityHeader(llsec.SecurityLevelAuth)
	txRadio.SetAttr(llsec.AttrKeyMaterial, key)
	require.NoError(t, txRadio.SendCommandFrame())

	require.Eventually(t, func() bool { return len(h.acks) == 1 }, time.Second, time.Millisecond)
	require.True(t, rxRadio.DecryptVerifyUnicast(key))

	var wrongKey [neighbor.PairwiseKeyLen]byte
	require.False(t, rxRadio.DecryptVerifyUnicast(wrongKey))
}
