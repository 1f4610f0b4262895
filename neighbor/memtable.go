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

package neighbor

import "sync"

// MemTable is an in-memory, map-backed Table. It is the reference
// implementation used by the demo daemon and by engine/bootstrap tests; a
// constrained node backs Table with its real flash-resident table
// instead.
type MemTable struct {
	mu         sync.Mutex
	capacity   int
	byExtended map[uint64]*Neighbor
	nextIndex  uint8
	replayed   map[*Neighbor]bool
}

// NewMemTable returns an empty MemTable bounded to capacity live
// neighbors (0 means unbounded).
func NewMemTable(capacity int) *MemTable {
	return &MemTable{
		capacity:   capacity,
		byExtended: make(map[uint64]*Neighbor),
		replayed:   make(map[*Neighbor]bool),
	}
}

// ByExtended implements Table.
func (t *MemTable) ByExtended(extended uint64) *Neighbor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byExtended[extended]
}

// New implements Table.
func (t *MemTable) New() *Neighbor {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.capacity > 0 && len(t.byExtended) >= t.capacity {
		return nil
	}
	n := &Neighbor{LocalIndex: t.nextIndex}
	t.nextIndex++
	// Not yet indexed: UpdateIDs does that once the peer's address is
	// known, matching how the protocol learns addresses mid-handshake.
	return n
}

// UpdateIDs implements Table.
func (t *MemTable) UpdateIDs(n *Neighbor, ids IDs) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.Lock()
	old := n.IDs.Extended
	n.IDs = ids
	n.Unlock()
	if old != 0 {
		delete(t.byExtended, old)
	}
	t.byExtended[ids.Extended] = n
}

// Update implements Table: it commits the handshake result and promotes
// the neighbor to PERMANENT, regardless of whether trailer came from a
// HELLOACK or an ACK call site.
func (t *MemTable) Update(n *Neighbor, _ []byte) {
	n.SetStatus(StatusPermanent)
}

// WasReplayed implements Table. MemTable has no real anti-replay counters
// wired up; callers that need to exercise the replay-drop path mark a
// neighbor explicitly via MarkReplayed.
func (t *MemTable) WasReplayed(n *Neighbor) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.replayed[n]
}

// MarkReplayed flags n so the next WasReplayed call reports true. Exposed
// for tests exercising the replay-drop invariant.
func (t *MemTable) MarkReplayed(n *Neighbor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replayed[n] = true
}

// Remove implements Table.
func (t *MemTable) Remove(n *Neighbor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.Lock()
	extended := n.IDs.Extended
	n.Unlock()
	delete(t.byExtended, extended)
	delete(t.replayed, n)
}

// All implements Table.
func (t *MemTable) All() []*Neighbor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Neighbor, 0, len(t.byExtended))
	for _, n := range t.byExtended {
		out = append(out, n)
	}
	return out
}
