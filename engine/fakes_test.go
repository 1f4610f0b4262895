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

package engine

import (
	"sync"
	"time"

	"github.com/apkes-project/apkes/codec"
	"github.com/apkes-project/apkes/llsec"
	"github.com/apkes-project/apkes/neighbor"
	"github.com/apkes-project/apkes/platform"
)

// fakeSecModule is a hand-written test double for llsec.SecurityModule,
// in the same spirit as the teacher's fake UDPConnWithTS in
// ptp/sptp/client: llsec is explicitly out of scope for this module, so
// engine tests exercise the handshake state machine against a fake
// rather than pulling in a generated-mock framework for an interface
// this small.
type fakeSecModule struct {
	mu sync.Mutex

	lastCmd  codec.CommandID
	lastDest uint64
	lastBuf  []byte

	outAttrs map[llsec.Attr]any
	inAttrs  map[llsec.Attr]any

	acceptVerify   bool
	lastVerifyKey  [neighbor.PairwiseKeyLen]byte
	verifyCalls    int
}

func newFakeSecModule() *fakeSecModule {
	return &fakeSecModule{
		outAttrs:     make(map[llsec.Attr]any),
		inAttrs:      make(map[llsec.Attr]any),
		acceptVerify: true,
	}
}

func (f *fakeSecModule) PrepareCommandFrame(id codec.CommandID, dest uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCmd = id
	f.lastDest = dest
	f.lastBuf = make([]byte, 256)
	return f.lastBuf, nil
}

func (f *fakeSecModule) AddSecurityHeader(level llsec.SecurityLevel) {}

func (f *fakeSecModule) SetAttr(attr llsec.Attr, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outAttrs[attr] = value
}

func (f *fakeSecModule) Attr(attr llsec.Attr) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inAttrs[attr]
}

func (f *fakeSecModule) SendCommandFrame() error { return nil }

func (f *fakeSecModule) DecryptVerifyUnicast(key [neighbor.PairwiseKeyLen]byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	f.lastVerifyKey = key
	return f.acceptVerify
}

// sentFrame snapshots the most recently prepared/sent frame, trimmed to
// its actual encoded length by the caller (the fixed-size scratch buffer
// is oversized so MarshalBinaryTo never fails on room).
func (f *fakeSecModule) sentFrame() (codec.CommandID, uint64, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCmd, f.lastDest, f.lastBuf
}

func (f *fakeSecModule) setIncomingAttr(attr llsec.Attr, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inAttrs[attr] = value
}

// fakeSchemeProvider hands out one preshared secret for every peer,
// modeling the simplest possible scheme: a single network-wide key.
type fakeSchemeProvider struct {
	secret [neighbor.PairwiseKeyLen]byte
	deny   bool
}

func (f *fakeSchemeProvider) Init() error { return nil }

func (f *fakeSchemeProvider) GetSecretWithHelloSender(ids neighbor.IDs) ([neighbor.PairwiseKeyLen]byte, bool) {
	return f.secret, !f.deny
}

func (f *fakeSchemeProvider) GetSecretWithHelloAckSender(ids neighbor.IDs) ([neighbor.PairwiseKeyLen]byte, bool) {
	return f.secret, !f.deny
}

// fakeTimer is a manually-fired platform.Timer: Reset is a no-op and the
// test fires it directly via its fire method, avoiding any dependency on
// wall-clock jitter to make the handshake tests deterministic.
type fakeTimer struct {
	ch chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{ch: make(chan time.Time, 1)}
}

func (t *fakeTimer) Reset(d time.Duration) {}

func (t *fakeTimer) Stop() bool { return true }

func (t *fakeTimer) Fire() <-chan time.Time { return t.ch }

func (t *fakeTimer) fire() {
	select {
	case t.ch <- time.Now():
	default:
	}
}

// fakeTimerFactory hands out fakeTimers in allocation order and remembers
// them so a test can reach in and fire the one backing a particular
// neighbor's wait-timer slot.
type fakeTimerFactory struct {
	mu  sync.Mutex
	all []*fakeTimer
}

func (f *fakeTimerFactory) new() platform.Timer {
	t := newFakeTimer()
	f.mu.Lock()
	f.all = append(f.all, t)
	f.mu.Unlock()
	return t
}

func (f *fakeTimerFactory) latest() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all[len(f.all)-1]
}

// fakeNonceSource is deterministic: FreshChallenge fills a fixed,
// incrementing byte pattern instead of real randomness, and Jitter
// always returns 0, so handshake tests never depend on timing.
type fakeNonceSource struct {
	mu      sync.Mutex
	counter byte
}

func (f *fakeNonceSource) FreshChallenge(out []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	for i := range out {
		out[i] = f.counter
	}
	return nil
}

func (f *fakeNonceSource) Jitter(max time.Duration) time.Duration { return 0 }
