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
	"crypto/aes"

	"github.com/apkes-project/apkes/neighbor"
)

// derivePairwiseKey computes the fresh pairwise key as a single AES-128
// block encryption of metadata (challenge_A || challenge_B, exactly one
// block wide) under secret. "Padded encrypt" in the spec degenerates to a
// plain block encryption here because the plaintext is already
// block-aligned; there is never a second block to chain, so this is not
// an ECB-mode footgun in disguise — each handshake uses a distinct,
// single-use plaintext block.
func derivePairwiseKey(secret, metadata [neighbor.PairwiseKeyLen]byte) ([neighbor.PairwiseKeyLen]byte, error) {
	var out [neighbor.PairwiseKeyLen]byte
	block, err := aes.NewCipher(secret[:])
	if err != nil {
		return out, err
	}
	block.Encrypt(out[:], metadata[:])
	return out, nil
}
