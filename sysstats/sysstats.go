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

// Package sysstats collects process-level runtime statistics for the
// demo daemon's "neighbors"/status CLI and metrics exporter, the same
// gopsutil-based approach as ptp/sptp/client.SysStats. A real
// constrained node has no such thing as a process; this package only
// makes sense for the off-device reference daemon.
package sysstats

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

var processStart = time.Now()

// Collector gathers process and Go-runtime statistics across calls,
// computing simple sum/rate pairs for monotonically increasing counters
// between CollectRuntimeStats invocations.
type Collector struct {
	lastMem *runtime.MemStats
}

// setRate records both the raw delta and the per-second rate of a
// monotonically increasing counter over interval.
func setRate(name string, out map[string]uint64, cur, prev uint64, interval time.Duration) {
	if prev > cur || interval <= 0 {
		return
	}
	secs := uint64(interval.Seconds())
	if secs == 0 {
		return
	}
	out[fmt.Sprintf("%s.sum.%d", name, secs)] = cur - prev
	out[fmt.Sprintf("%s.rate.%d", name, secs)] = (cur - prev) / secs
}

// CollectRuntimeStats gathers process CPU/memory/fd counts and Go
// runtime memory/GC statistics, keyed the way the demo daemon's metrics
// exporter expects to flatten them.
func (c *Collector) CollectRuntimeStats(interval time.Duration) (map[string]uint64, error) {
	out := make(map[string]uint64)

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("apkes/sysstats: looking up own process: %w", err)
	}
	out["process.uptime"] = uint64(time.Since(processStart).Seconds())

	if pct, err := proc.Percent(0); err == nil {
		out[fmt.Sprintf("process.cpu_pct.avg.%d", int(interval.Seconds()))] = uint64(pct * 100)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		out["process.rss"] = mem.RSS
		out["process.vms"] = mem.VMS
	}
	if fds, err := proc.NumFDs(); err == nil {
		out["process.num_fds"] = uint64(fds)
	}
	if threads, err := proc.NumThreads(); err == nil {
		out["process.num_threads"] = uint64(threads)
	}

	out["runtime.goroutines"] = uint64(runtime.NumGoroutine())

	m := &runtime.MemStats{}
	runtime.ReadMemStats(m)
	out["runtime.mem.heap.alloc"] = m.HeapAlloc
	out["runtime.mem.heap.inuse"] = m.HeapInuse
	out["runtime.mem.heap.objects"] = m.HeapObjects
	out["runtime.mem.gc.count"] = uint64(m.NumGC)
	out["runtime.mem.gc.pause_total"] = m.PauseTotalNs

	if c.lastMem != nil {
		setRate("runtime.mem.mallocs", out, m.Mallocs, c.lastMem.Mallocs, interval)
		setRate("runtime.mem.frees", out, m.Frees, c.lastMem.Frees, interval)
		setRate("runtime.gc.count", out, uint64(m.NumGC), uint64(c.lastMem.NumGC), interval)
	}
	c.lastMem = m

	return out, nil
}
