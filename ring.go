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

import (
	"fmt"
)

// Ring is a fixed set of equally sized packet slots backed by one
// allocation. Slots are handed out round-robin. The producer owns the write
// index; the consumer only touches slots named by descriptors it dequeued.
type Ring struct {
	buf      []byte
	slotSize int
	slots    int
	next     int
}

// NewRing allocates slots*slotSize bytes up front.
func NewRing(slots, slotSize int) (*Ring, error) {
	if slots <= 0 || slots > maxSlots {
		return nil, fmt.Errorf("%w: ring slots %d", ErrInvalidParameter, slots)
	}
	if slotSize <= 0 {
		return nil, fmt.Errorf("%w: slot size %d", ErrInvalidParameter, slotSize)
	}
	return &Ring{
		buf:      make([]byte, slots*slotSize),
		slots:    slots,
		slotSize: slotSize,
	}, nil
}

// maxSlots keeps slot indices representable in a descriptor.
const maxSlots = 1 << 16

// Len returns the number of slots.
func (r *Ring) Len() int { return r.slots }

// SlotSize returns the capacity of one slot in bytes.
func (r *Ring) SlotSize() int { return r.slotSize }

// Next returns the index of the slot the producer writes next.
func (r *Ring) Next() int { return r.next }

// Advance moves the write index to the following slot, wrapping at Len.
func (r *Ring) Advance() {
	r.next++
	if r.next == r.slots {
		r.next = 0
	}
}

// Slot returns the full storage of slot i.
func (r *Ring) Slot(i int) []byte {
	off := i * r.slotSize
	return r.buf[off : off+r.slotSize : off+r.slotSize]
}
