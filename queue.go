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
	"context"
	"fmt"
)

// Descriptor is the fixed-size record queued for one captured packet.
type Descriptor struct {
	Timestamp int64  // microseconds, taken when the packet was copied
	Length    uint16 // payload bytes in the slot
	Slot      uint16 // ring slot index
}

// Queue is a bounded FIFO of descriptors between one producer that must
// never block and one consumer that may wait indefinitely.
type Queue struct {
	ch chan Descriptor
}

// NewQueue creates a queue holding at most capacity descriptors.
func NewQueue(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: queue capacity %d", ErrInvalidParameter, capacity)
	}
	return &Queue{ch: make(chan Descriptor, capacity)}, nil
}

// TryEnqueue adds d without blocking. It reports false if the queue is full.
func (q *Queue) TryEnqueue(d Descriptor) bool {
	select {
	case q.ch <- d:
		return true
	default:
		return false
	}
}

// Dequeue waits for the next descriptor or for ctx to end.
func (q *Queue) Dequeue(ctx context.Context) (Descriptor, error) {
	select {
	case d := <-q.ch:
		return d, nil
	case <-ctx.Done():
		return Descriptor{}, ctx.Err() //nolint:wrapcheck // callers compare against context errors
	}
}

// Len returns the number of queued descriptors.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
