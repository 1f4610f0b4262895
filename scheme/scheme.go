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

// Package scheme provides a reference llsec.SchemeProvider: a single
// network-wide preshared secret, persisted through a flash.Log so it
// survives a restart. It is the simplest of the pluggable key-agreement
// schemes APKES was designed to support; a deployment wanting
// certificate-based or per-peer secrets implements llsec.SchemeProvider
// directly instead of using this package.
package scheme

import (
	"bytes"
	"fmt"

	"github.com/apkes-project/apkes/flash"
	"github.com/apkes-project/apkes/neighbor"
)

// Preshared is a network-wide preshared-secret scheme: every neighbor,
// regardless of identity, shares the same long-lived secret.
type Preshared struct {
	log           *flash.Log
	defaultSecret [neighbor.PairwiseKeyLen]byte
	secret        [neighbor.PairwiseKeyLen]byte
}

// NewPreshared builds a Preshared scheme backed by log. defaultSecret
// seeds the flash region the first time Init runs against empty flash.
func NewPreshared(log *flash.Log, defaultSecret [neighbor.PairwiseKeyLen]byte) *Preshared {
	return &Preshared{log: log, defaultSecret: defaultSecret}
}

// Init implements llsec.SchemeProvider: it restores the secret from
// flash, or seeds flash with defaultSecret if the region reads as all
// zero (never written).
func (p *Preshared) Init() error {
	var stored [neighbor.PairwiseKeyLen]byte
	if err := p.log.Restore(stored[:], 0); err != nil {
		return fmt.Errorf("apkes/scheme: restoring preshared secret: %w", err)
	}

	var zero [neighbor.PairwiseKeyLen]byte
	if bytes.Equal(stored[:], zero[:]) {
		if err := p.log.Erase(); err != nil {
			return fmt.Errorf("apkes/scheme: seeding preshared secret: %w", err)
		}
		if err := p.log.Append(p.defaultSecret[:]); err != nil {
			return fmt.Errorf("apkes/scheme: seeding preshared secret: %w", err)
		}
		p.secret = p.defaultSecret
		return nil
	}

	p.secret = stored
	return nil
}

// GetSecretWithHelloSender implements llsec.SchemeProvider.
func (p *Preshared) GetSecretWithHelloSender(_ neighbor.IDs) ([neighbor.PairwiseKeyLen]byte, bool) {
	return p.secret, true
}

// GetSecretWithHelloAckSender implements llsec.SchemeProvider.
func (p *Preshared) GetSecretWithHelloAckSender(_ neighbor.IDs) ([neighbor.PairwiseKeyLen]byte, bool) {
	return p.secret, true
}
