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

// Intake accepts one packet from the controller. It is the only writer of
// the ring and the only producer of the queue, and it must be called from
// a single goroutine. It never blocks and never allocates: packets that do
// not fit a slot, or that arrive while every slot is in flight, are
// dropped and reported through the returned error and the counters.
func (p *Pipeline) Intake(packet []byte) error {
	if p.closed.Load() {
		return ErrPipelineClosed
	}

	n := len(packet)
	if n > p.slotSize {
		p.counters.droppedOversize.Add(1)
		if DebugActive() {
			Debugf("dropping %d byte packet: slot holds %d", n, p.slotSize)
		}
		return ErrPacketTooLarge
	}

	// The slot at Next is free whenever fewer than Len descriptors are
	// outstanding: the outstanding ones occupy the slots just behind it.
	if int(p.inFlight.Load()) >= p.slots {
		p.counters.droppedFull.Add(1)
		if DebugActive() {
			Debugf("dropping packet: all %d slots in flight", p.slots)
		}
		return ErrQueueFull
	}

	idx := p.ring.Next()
	copy(p.ring.Slot(idx), packet)
	d := Descriptor{
		Timestamp: p.clock(),
		Length:    uint16(n), //nolint:gosec // bounded by slotSize
		Slot:      uint16(idx), //nolint:gosec // bounded by maxSlots
	}

	p.inFlight.Add(1)
	if !p.queue.TryEnqueue(d) {
		p.inFlight.Add(-1)
		p.counters.droppedFull.Add(1)
		if DebugActive() {
			Debugf("dropping packet: queue rejected slot %d", idx)
		}
		return ErrQueueFull
	}
	p.ring.Advance()
	p.counters.accepted.Add(1)
	return nil
}
