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

// Package nonce supplies the two kinds of randomness the handshake needs:
// CSPRNG challenges, which must resist prediction by an active attacker,
// and weak-PRNG jitter, whose only job is to desynchronize HELLOACK
// senders so they don't collide on the medium.
package nonce

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand"
	"time"
)

// Source supplies challenges and jitter to the handshake engine.
type Source interface {
	// FreshChallenge fills out with CSPRNG output. len(out) must be exactly
	// ChallengeLen.
	FreshChallenge(out []byte) error
	// Jitter returns a uniform duration in [0, max].
	Jitter(max time.Duration) time.Duration
}

// CryptoSource is the default Source: crypto/rand for challenges, and a
// math/rand generator reseeded from crypto/rand at construction time for
// jitter, so that even the "weak" PRNG isn't trivially predictable across
// process restarts (it still need not be unpredictable to an attacker
// observing the wire — only uniform enough to stagger responders).
type CryptoSource struct {
	weak *mrand.Rand
}

// NewCryptoSource builds a CryptoSource, seeding the weak PRNG from the
// CSPRNG.
func NewCryptoSource() (*CryptoSource, error) {
	var seed int64
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("seeding weak PRNG: %w", err)
	}
	for i, v := range b {
		seed |= int64(v) << (8 * uint(i))
	}
	return &CryptoSource{weak: mrand.New(mrand.NewSource(seed))}, nil
}

// FreshChallenge fills out with cryptographically strong random bytes.
func (c *CryptoSource) FreshChallenge(out []byte) error {
	_, err := rand.Read(out)
	return err
}

// Jitter returns a uniform duration in [0, max].
func (c *CryptoSource) Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(c.weak.Int63n(int64(max) + 1))
}
