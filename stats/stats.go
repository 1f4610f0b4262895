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

// Package stats exports handshake-event counters over Prometheus, the
// same client_golang/promhttp pair ptp/sptp/stats.PrometheusExporter
// uses, wired directly into the engine rather than scraped from a
// separate process: a node is a single daemon here, not a metrics
// producer and a separate exporter.
package stats

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/apkes-project/apkes/codec"
)

// PromRecorder implements engine.Recorder with Prometheus counters.
type PromRecorder struct {
	registry  *prometheus.Registry
	sent      *prometheus.CounterVec
	received  *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	promoted  prometheus.Counter
	runtime   *prometheus.GaugeVec
}

// NewPromRecorder builds a PromRecorder with its own registry, so a
// caller can host it alongside unrelated metrics without collisions.
func NewPromRecorder() *PromRecorder {
	registry := prometheus.NewRegistry()

	r := &PromRecorder{
		registry: registry,
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apkes_frames_sent_total",
			Help: "Command frames sent, by command type.",
		}, []string{"command"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apkes_frames_received_total",
			Help: "Command frames received, by command type.",
		}, []string{"command"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apkes_frames_dropped_total",
			Help: "Command frames or handshake attempts dropped, by reason.",
		}, []string{"reason"}),
		promoted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apkes_neighbors_promoted_total",
			Help: "Neighbors that reached PERMANENT.",
		}),
		runtime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "apkes_runtime_stat",
			Help: "Process and Go-runtime statistics collected by sysstats.Collector, by stat name.",
		}, []string{"stat"}),
	}
	registry.MustRegister(r.sent, r.received, r.dropped, r.promoted, r.runtime)
	return r
}

// IncSent implements engine.Recorder.
func (r *PromRecorder) IncSent(cmd codec.CommandID) {
	r.sent.WithLabelValues(cmd.String()).Inc()
}

// IncReceived implements engine.Recorder.
func (r *PromRecorder) IncReceived(cmd codec.CommandID) {
	r.received.WithLabelValues(cmd.String()).Inc()
}

// IncDrop implements engine.Recorder.
func (r *PromRecorder) IncDrop(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
}

// IncPromoted implements engine.Recorder.
func (r *PromRecorder) IncPromoted() {
	r.promoted.Inc()
}

// SetRuntimeStats publishes a sysstats.Collector.CollectRuntimeStats
// snapshot as gauges, one per stat name, the same flattening
// cmd/sptp's updateSysStats does for client.StatsServer.SetCounter.
func (r *PromRecorder) SetRuntimeStats(stats map[string]uint64) {
	for name, value := range stats {
		r.runtime.WithLabelValues(name).Set(float64(value))
	}
}

// Serve blocks serving /metrics on addr until ctx is cancelled or the
// server fails.
func (r *PromRecorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("apkes/stats: serving metrics on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("apkes/stats: metrics server: %w", err)
	}
}
