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

package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/apkes-project/apkes/codec"
)

func TestPromRecorderCounters(t *testing.T) {
	r := NewPromRecorder()

	r.IncSent(codec.CommandHello)
	r.IncSent(codec.CommandHello)
	r.IncReceived(codec.CommandHelloAck)
	r.IncDrop("timer_pool_exhausted")
	r.IncPromoted()

	require.Equal(t, float64(2), testutil.ToFloat64(r.sent.WithLabelValues("HELLO")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.received.WithLabelValues("HELLOACK")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.dropped.WithLabelValues("timer_pool_exhausted")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.promoted))
}
