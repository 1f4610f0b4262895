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

// Package bootstrap runs the fixed-round broadcast phase a node performs
// once at startup to announce itself to every one-hop neighbor, mirroring
// the ticker-driven select loop of ptp/ptp4u/server's SubscriptionClient
// rather than the macro-based protothread the original firmware used for
// the same job.
package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrAlreadyBootstrapped is returned by Run when called a second time on
// the same Driver. Bootstrapping is a one-shot phase: a node that wants
// to re-announce itself constructs a new Driver.
var ErrAlreadyBootstrapped = errors.New("apkes/bootstrap: already run")

// HelloBroadcaster is the subset of engine.Engine the driver depends on.
type HelloBroadcaster interface {
	BroadcastHello() error
}

// Driver runs Rounds broadcast-HELLO rounds, RoundDuration apart, then
// invokes its caller's onBootstrapped callback exactly once.
type Driver struct {
	broadcaster   HelloBroadcaster
	rounds        int
	roundDuration time.Duration

	mu           sync.Mutex
	started      bool
	bootstrapped bool
}

// New builds a Driver. rounds and roundDuration are ROUNDS and
// ROUND_DURATION in the spec.
func New(broadcaster HelloBroadcaster, rounds int, roundDuration time.Duration) *Driver {
	return &Driver{
		broadcaster:   broadcaster,
		rounds:        rounds,
		roundDuration: roundDuration,
	}
}

// IsBootstrapped reports whether Run has completed all of its rounds.
func (d *Driver) IsBootstrapped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bootstrapped
}

// Run broadcasts HELLO once per round, waiting RoundDuration between
// rounds, then calls onBootstrapped exactly once. It blocks until all
// rounds complete, onBootstrapped returns, or ctx is cancelled. Calling
// Run a second time on the same Driver returns ErrAlreadyBootstrapped
// without broadcasting anything.
func (d *Driver) Run(ctx context.Context, onBootstrapped func()) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyBootstrapped
	}
	d.started = true
	d.mu.Unlock()

	ticker := time.NewTicker(d.roundDuration)
	defer ticker.Stop()

	for round := 1; round <= d.rounds; round++ {
		log.Debugf("apkes/bootstrap: broadcasting HELLO, round %d/%d", round, d.rounds)
		if err := d.broadcaster.BroadcastHello(); err != nil {
			log.Warningf("apkes/bootstrap: round %d HELLO broadcast failed: %v", round, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	d.mu.Lock()
	d.bootstrapped = true
	d.mu.Unlock()

	log.Infof("apkes/bootstrap: bootstrapping complete after %d rounds", d.rounds)
	if onBootstrapped != nil {
		onBootstrapped()
	}
	return nil
}
