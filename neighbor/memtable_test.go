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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemTableNewAndLookup(t *testing.T) {
	table := NewMemTable(0)
	n := table.New()
	require.NotNil(t, n)
	require.Nil(t, table.ByExtended(0x1))

	table.UpdateIDs(n, IDs{Extended: 0x1, Short: 0x0002})
	require.Same(t, n, table.ByExtended(0x1))
}

func TestMemTableUpdatePromotesToPermanent(t *testing.T) {
	table := NewMemTable(0)
	n := table.New()
	n.SetStatus(StatusTentative)
	table.Update(n, []byte{0xAA})
	require.Equal(t, StatusPermanent, n.GetStatus())
}

func TestMemTableReplayTracking(t *testing.T) {
	table := NewMemTable(0)
	n := table.New()
	require.False(t, table.WasReplayed(n))
	table.MarkReplayed(n)
	require.True(t, table.WasReplayed(n))
}

func TestMemTableRemove(t *testing.T) {
	table := NewMemTable(0)
	n := table.New()
	table.UpdateIDs(n, IDs{Extended: 0x42})
	require.NotNil(t, table.ByExtended(0x42))
	table.Remove(n)
	require.Nil(t, table.ByExtended(0x42))
}

func TestMemTableCapacity(t *testing.T) {
	table := NewMemTable(1)
	n := table.New()
	table.UpdateIDs(n, IDs{Extended: 0x1})
	require.Nil(t, table.New(), "table at capacity must refuse a second neighbor")
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "TENTATIVE", StatusTentative.String())
	require.Equal(t, "TENTATIVE_AWAITING_ACK", StatusTentativeAwaitingAck.String())
	require.Equal(t, "PERMANENT", StatusPermanent.String())
	require.Equal(t, "NONE", StatusNone.String())
}
