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

// Package config loads and validates the tunables a node needs at
// startup, in the same DefaultConfig/Validate/ReadConfig shape as
// ptp/sptp/client.Config.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/apkes-project/apkes/neighbor"
)

// Config bundles every tunable named in the spec, plus the ambient
// pieces (listen address for the metrics exporter, flash paths) a
// runnable node needs.
type Config struct {
	// ShortAddr is this node's own 16-bit short address.
	ShortAddr uint16 `yaml:"short_addr"`

	// Rounds is ROUNDS: the number of bootstrap broadcast rounds.
	Rounds int `yaml:"rounds"`
	// RoundDuration is ROUND_DURATION: time between bootstrap rounds.
	RoundDuration time.Duration `yaml:"round_duration"`

	// MaxTentativeNeighbors is MAX_TENTATIVE_NEIGHBORS: the wait-timer
	// pool's fixed capacity.
	MaxTentativeNeighbors int `yaml:"max_tentative_neighbors"`
	// MaxWaitingPeriod is MAX_WAITING_PERIOD: the upper bound on
	// HELLOACK response jitter.
	MaxWaitingPeriod time.Duration `yaml:"max_waiting_period"`
	// AckDelay is ACK_DELAY: extra grace period before a
	// TENTATIVE_AWAITING_ACK neighbor expires.
	AckDelay time.Duration `yaml:"ack_delay"`

	// EBEAPEncryptionEnabled selects SecurityLevelAuthEnc and an
	// encrypted broadcast-key trailer on HELLOACK/ACK.
	EBEAPEncryptionEnabled bool `yaml:"ebeap_encryption_enabled"`
	// BroadcastKeyLen is the trailer width when EBEAPEncryptionEnabled.
	BroadcastKeyLen int `yaml:"broadcast_key_len"`

	// FlashPath is the backing file for the keying-material flash.Log.
	FlashPath string `yaml:"flash_path"`
	// KeyingMaterialOffset is APKES_FLASH_KEYING_MATERIAL_OFFSET: the
	// byte offset into FlashPath where keying material begins.
	KeyingMaterialOffset int64 `yaml:"keying_material_offset"`
	// EraseUnitSize is XMEM_ERASE_UNIT_SIZE: the width of the
	// keying-material region, erased as a unit.
	EraseUnitSize int `yaml:"erase_unit_size"`

	// MetricsListenAddress is where the Prometheus exporter listens,
	// empty disables it.
	MetricsListenAddress string `yaml:"metrics_listen_address"`
	// AdminListenAddress is where the neighbor-table inspection endpoint
	// the neighbors subcommand queries listens.
	AdminListenAddress string `yaml:"admin_listen_address"`

	// ListenAddress is the demo radio's own UDP listen address.
	ListenAddress string `yaml:"listen_address"`
	// BroadcastAddress is the UDP address HELLO is sent to.
	BroadcastAddress string `yaml:"broadcast_address"`
	// ExtendedAddr is this node's own 64-bit extended address.
	ExtendedAddr uint64 `yaml:"extended_addr"`
	// Peers maps a neighbor's extended address to its UDP address, so
	// the demo radio knows where to send unicast HELLOACK/ACK frames.
	Peers map[uint64]string `yaml:"peers"`

	// PresharedSecret is the network-wide long-term secret, hex-encoded,
	// scheme.Preshared seeds flash with on first run. Exactly
	// 2*neighbor.PairwiseKeyLen hex characters.
	PresharedSecret string `yaml:"preshared_secret"`
}

// DefaultConfig returns a Config with the constants the original
// implementation hardcoded: 6 rounds of 7s, a 2-entry wait-timer pool,
// a 5s MAX_WAITING_PERIOD and a 5s ACK_DELAY.
func DefaultConfig() *Config {
	return &Config{
		Rounds:                6,
		RoundDuration:         7 * time.Second,
		MaxTentativeNeighbors: 2,
		MaxWaitingPeriod:      5 * time.Second,
		AckDelay:              5 * time.Second,
		EBEAPEncryptionEnabled: false,
		BroadcastKeyLen:       16,
		FlashPath:             "apkes-keying.bin",
		KeyingMaterialOffset:  0,
		EraseUnitSize:         4096,
		MetricsListenAddress:  ":9540",
		AdminListenAddress:    ":9541",
		ListenAddress:         ":7154",
		BroadcastAddress:      "255.255.255.255:7154",
		ExtendedAddr:          1,
		PresharedSecret:       "000102030405060708090a0b0c0d0e0f",
	}
}

// Validate reports whether c is internally consistent.
func (c *Config) Validate() error {
	if c.Rounds <= 0 {
		return fmt.Errorf("rounds must be greater than zero")
	}
	if c.RoundDuration <= 0 {
		return fmt.Errorf("round_duration must be greater than zero")
	}
	if c.MaxTentativeNeighbors <= 0 {
		return fmt.Errorf("max_tentative_neighbors must be greater than zero")
	}
	if c.MaxWaitingPeriod <= 0 {
		return fmt.Errorf("max_waiting_period must be greater than zero")
	}
	if c.AckDelay < 0 {
		return fmt.Errorf("ack_delay must be 0 or positive")
	}
	if c.EBEAPEncryptionEnabled && c.BroadcastKeyLen <= 0 {
		return fmt.Errorf("broadcast_key_len must be greater than zero when ebeap_encryption_enabled")
	}
	if c.FlashPath == "" {
		return fmt.Errorf("flash_path must be specified")
	}
	if c.KeyingMaterialOffset < 0 {
		return fmt.Errorf("keying_material_offset must be 0 or positive")
	}
	if c.EraseUnitSize <= 0 {
		return fmt.Errorf("erase_unit_size must be greater than zero")
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address must be specified")
	}
	if c.ExtendedAddr == 0 {
		return fmt.Errorf("extended_addr must be non-zero")
	}
	if len(c.PresharedSecret) != 2*neighbor.PairwiseKeyLen {
		return fmt.Errorf("preshared_secret must be exactly %d hex characters", 2*neighbor.PairwiseKeyLen)
	}
	if _, err := hex.DecodeString(c.PresharedSecret); err != nil {
		return fmt.Errorf("preshared_secret must be valid hex: %w", err)
	}
	return nil
}

// ReadConfig loads YAML from path over top of DefaultConfig, then
// validates the result.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("apkes/config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("apkes/config: parsing %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("apkes/config: %s: %w", path, err)
	}
	return c, nil
}
