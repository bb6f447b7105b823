// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blecap

import "sync/atomic"

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Accepted        uint64 // packets copied into the ring
	DroppedOversize uint64 // packets larger than a slot
	DroppedFull     uint64 // packets arriving while every slot was in flight
	Delivered       uint64 // frames written and flushed
	TransportErrors uint64 // frames lost to write or flush failures
	ReceiveErrors   uint64 // queue receive failures in the delivery task
	InFlight        int    // accepted but not yet released
}

// Dropped returns all packets rejected at intake.
func (s Stats) Dropped() uint64 {
	return s.DroppedOversize + s.DroppedFull
}

type pipelineCounters struct {
	accepted        atomic.Uint64
	droppedOversize atomic.Uint64
	droppedFull     atomic.Uint64
	delivered       atomic.Uint64
	transportErrors atomic.Uint64
	receiveErrors   atomic.Uint64
}

// Stats returns current pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Accepted:        p.counters.accepted.Load(),
		DroppedOversize: p.counters.droppedOversize.Load(),
		DroppedFull:     p.counters.droppedFull.Load(),
		Delivered:       p.counters.delivered.Load(),
		TransportErrors: p.counters.transportErrors.Load(),
		ReceiveErrors:   p.counters.receiveErrors.Load(),
		InFlight:        p.InFlight(),
	}
}
