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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

// TestValidateAllowsWaitWindowLongerThanRound checks that
// MaxWaitingPeriod+AckDelay is allowed to exceed RoundDuration: the
// original derives a TENTATIVE_AWAITING_ACK neighbor's expiration purely
// from MAX_WAITING_PERIOD+ACK_DELAY with no bound relative to
// ROUND_DURATION, and the mandated defaults (5s+5s against a 7s round)
// rely on that being legal.
func TestValidateAllowsWaitWindowLongerThanRound(t *testing.T) {
	c := DefaultConfig()
	require.Greater(t, c.MaxWaitingPeriod+c.AckDelay, c.RoundDuration)
	require.NoError(t, c.Validate())
}

func TestValidateRejectsNonPositiveRoundDuration(t *testing.T) {
	c := DefaultConfig()
	c.RoundDuration = 0
	require.Error(t, c.Validate())
}

func TestValidateRequiresFlashPath(t *testing.T) {
	c := DefaultConfig()
	c.FlashPath = ""
	require.Error(t, c.Validate())
}

func TestReadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apkes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("short_addr: 4369\nrounds: 3\n"), 0o600))

	c, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, uint16(4369), c.ShortAddr)
	require.Equal(t, 3, c.Rounds)
	require.Equal(t, DefaultConfig().RoundDuration, c.RoundDuration)
}

func TestReadConfigRejectsInvalidResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apkes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rounds: 0\n"), 0o600))

	_, err := ReadConfig(path)
	require.Error(t, err)
}
