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

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/apkes-project/apkes/admin"
	"github.com/apkes-project/apkes/bootstrap"
	"github.com/apkes-project/apkes/config"
	"github.com/apkes-project/apkes/engine"
	"github.com/apkes-project/apkes/flash"
	"github.com/apkes-project/apkes/llsecudp"
	"github.com/apkes-project/apkes/neighbor"
	"github.com/apkes-project/apkes/nonce"
	"github.com/apkes-project/apkes/platform"
	"github.com/apkes-project/apkes/scheme"
	"github.com/apkes-project/apkes/stats"
	"github.com/apkes-project/apkes/sysstats"
	"github.com/apkes-project/apkes/timerpool"
)

// sysStatsInterval is how often runNode refreshes the process/runtime
// gauges sysstats.Collector reports, the same aggregation window
// cmd/sptp's updateSysStatsForever ticks on.
const sysStatsInterval = 10 * time.Second

var runConfigFlag string

func init() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigFlag, "config", "c", "", "path to the node config; defaults are used for anything unset")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bootstrap this node and serve the handshake, metrics and admin endpoints until killed",
	RunE: func(_ *cobra.Command, _ []string) error {
		ConfigureVerbosity()
		cfg := config.DefaultConfig()
		if runConfigFlag != "" {
			c, err := config.ReadConfig(runConfigFlag)
			if err != nil {
				return err
			}
			cfg = c
		} else if err := cfg.Validate(); err != nil {
			return fmt.Errorf("default config failed validation: %w", err)
		}
		return runNode(cfg)
	},
}

// sendSdNotifyReady notifies systemd about service readiness, the same
// way ptp/c4u.SdNotify does for c4u.
func sendSdNotifyReady() {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if !supported && err != nil {
		log.Warningf("apkes-node: sd_notify failed: %v", err)
	} else if !supported {
		log.Debug("apkes-node: sd_notify not supported")
	} else {
		log.Info("apkes-node: sent sd_notify ready")
	}
}

// updateSysStatsForever refreshes recorder's runtime gauges from
// collector every interval until ctx is cancelled, the same
// collect-then-tick loop cmd/sptp's updateSysStatsForever runs against
// client.StatsServer.SetCounter.
func updateSysStatsForever(ctx context.Context, collector *sysstats.Collector, recorder *stats.PromRecorder, interval time.Duration) {
	update := func() {
		snapshot, err := collector.CollectRuntimeStats(interval)
		if err != nil {
			log.Warningf("apkes-node: collecting runtime stats: %v", err)
			return
		}
		recorder.SetRuntimeStats(snapshot)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func runNode(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secretBytes, err := hex.DecodeString(cfg.PresharedSecret)
	if err != nil {
		return fmt.Errorf("apkes-node: decoding preshared_secret: %w", err)
	}
	var secret [neighbor.PairwiseKeyLen]byte
	copy(secret[:], secretBytes)

	flashLog, err := flash.Open(cfg.FlashPath, cfg.KeyingMaterialOffset, cfg.EraseUnitSize)
	if err != nil {
		return fmt.Errorf("apkes-node: opening flash: %w", err)
	}
	defer flashLog.Close()

	schemeProvider := scheme.NewPreshared(flashLog, secret)
	if err := schemeProvider.Init(); err != nil {
		return fmt.Errorf("apkes-node: initializing scheme: %w", err)
	}

	table := neighbor.NewMemTable(0)

	radio, err := llsecudp.NewRadio(cfg.ListenAddress, cfg.BroadcastAddress, cfg.ExtendedAddr)
	if err != nil {
		return fmt.Errorf("apkes-node: opening radio: %w", err)
	}
	defer radio.Close()
	for extended, addr := range cfg.Peers {
		if err := radio.RegisterPeer(extended, addr); err != nil {
			return fmt.Errorf("apkes-node: registering peer %#x: %w", extended, err)
		}
	}

	nonces, err := nonce.NewCryptoSource()
	if err != nil {
		return fmt.Errorf("apkes-node: seeding nonce source: %w", err)
	}

	timers := timerpool.New(cfg.MaxTentativeNeighbors, platform.NewTimer)
	recorder := stats.NewPromRecorder()

	e := engine.New(engine.Config{
		ShortAddr:              cfg.ShortAddr,
		MaxWaitingPeriod:       cfg.MaxWaitingPeriod,
		AckDelay:               cfg.AckDelay,
		EBEAPEncryptionEnabled: cfg.EBEAPEncryptionEnabled,
		BroadcastKeyLen:        cfg.BroadcastKeyLen,
	}, table, radio, schemeProvider, nonces, timers, platform.RealClock{}, recorder, nil)

	driver := bootstrap.New(e, cfg.Rounds, cfg.RoundDuration)
	adminServer := admin.NewServer(table)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return radio.Serve(e) })
	g.Go(func() error {
		<-gctx.Done()
		radio.Close()
		return nil
	})
	if cfg.MetricsListenAddress != "" {
		g.Go(func() error { return recorder.Serve(gctx, cfg.MetricsListenAddress) })
		collector := &sysstats.Collector{}
		g.Go(func() error {
			updateSysStatsForever(gctx, collector, recorder, sysStatsInterval)
			return nil
		})
	}
	if cfg.AdminListenAddress != "" {
		g.Go(func() error { return adminServer.Serve(gctx, cfg.AdminListenAddress) })
	}
	g.Go(func() error {
		return driver.Run(gctx, sendSdNotifyReady)
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		// shutting down on signal, not a real failure
		return nil
	}
	return err
}
