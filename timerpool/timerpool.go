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

// Package timerpool is a fixed-capacity free list of wait-timer slots,
// generalizing the teacher corpus's channel-backed worker-slot pools
// (see ptp/ptp4u/server's sendWorker queue) into the bounded,
// allocate/release shape APKES needs: allocation failure here is not an
// error to retry, it is the defined HELLO-flood defense.
package timerpool

import (
	"sync"

	"github.com/apkes-project/apkes/platform"
)

// Slot is a transient record owning a cooperative timer and a
// non-owning reference (the neighbor's extended address, used as a table
// lookup key) to the neighbor it guards. Slots never own the neighbor
// itself, only a way to find it again when the timer fires.
type Slot struct {
	Timer platform.Timer
	// NeighborKey identifies, via neighbor.Table.ByExtended, the
	// neighbor this slot guards. Zero when the slot is free.
	NeighborKey uint64

	index int
}

// Pool is a fixed-size free list of Slots. Capacity is MAX_TENTATIVE_NEIGHBORS
// in the spec: at most Capacity wait-timers exist at any time.
type Pool struct {
	mu    sync.Mutex
	free  []int
	slots []*Slot
}

// New returns a Pool with the given fixed capacity, each slot backed by a
// fresh timer from newTimer (platform.NewTimer in production, a fake in
// tests).
func New(capacity int, newTimer func() platform.Timer) *Pool {
	p := &Pool{
		slots: make([]*Slot, capacity),
		free:  make([]int, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.slots[i] = &Slot{Timer: newTimer(), index: i}
		p.free[i] = i
	}
	return p
}

// Capacity returns the pool's fixed size.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// InUse returns the number of currently allocated slots.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}

// Allocate returns a free slot, or ok=false if the pool is exhausted —
// the caller must treat this as "drop the HELLO", never retry.
func (p *Pool) Allocate() (slot *Slot, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil, false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return p.slots[idx], true
}

// Release stops slot's timer and returns it to the free list. Safe to
// call unconditionally, as the spec requires of wait_callback.
func (p *Pool) Release(slot *Slot) {
	slot.Timer.Stop()
	slot.NeighborKey = 0
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, slot.index)
}
