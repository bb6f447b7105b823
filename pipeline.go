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
	"sync/atomic"

	"github.com/ZaparooProject/go-blecap/internal/syncutil"
)

// Pipeline owns the capture path from the controller intake callback to
// the serial transport: a ring of packet slots, the descriptor queue, and
// the delivery task. It is constructed once before the intake is registered.
type Pipeline struct {
	transport Transport
	ring      *Ring
	queue     *Queue
	clock     Clock
	cancel    context.CancelFunc
	done      chan struct{}
	counters  pipelineCounters
	slots     int
	slotSize  int
	inFlight  atomic.Int32
	mu        syncutil.Mutex
	started   bool
	closed    atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithSlots sets the number of ring slots, which is also the queue depth.
func WithSlots(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("%w: slots must be positive, got %d", ErrInvalidParameter, n)
		}
		p.slots = n
		return nil
	}
}

// WithSlotSize sets the slot size, which is the largest accepted packet.
func WithSlotSize(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 || n > MaxEventSize {
			return fmt.Errorf("%w: slot size %d outside 1..%d", ErrInvalidParameter, n, MaxEventSize)
		}
		p.slotSize = n
		return nil
	}
}

// WithClock replaces the timestamp source.
func WithClock(c Clock) Option {
	return func(p *Pipeline) error {
		if c == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidParameter)
		}
		p.clock = c
		return nil
	}
}

// NewPipeline allocates every buffer the capture path will ever use.
// Allocation failures are returned here, before any controller setup.
func NewPipeline(transport Transport, opts ...Option) (*Pipeline, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	p := &Pipeline{
		transport: transport,
		clock:     Uptime,
		slots:     DefaultRingSlots,
		slotSize:  MaxEventSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	ring, err := NewRing(p.slots, p.slotSize)
	if err != nil {
		return nil, err
	}
	queue, err := NewQueue(p.slots)
	if err != nil {
		return nil, err
	}
	p.ring = ring
	p.queue = queue
	return p, nil
}

// Start launches the delivery task. It may be called once.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrPipelineClosed
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.deliverLoop(runCtx)

	Debugf("delivery task started: %d slots of %d bytes", p.slots, p.slotSize)
	return nil
}

// Close stops the delivery task and waits for it to exit. Packets still
// queued are discarded. The transport is not closed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	if p.started {
		p.cancel()
		<-p.done
	}
	return nil
}

// Done is closed when the delivery task has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// InFlight returns the number of accepted packets not yet released by the
// delivery task.
func (p *Pipeline) InFlight() int {
	return int(p.inFlight.Load())
}

// Capacity returns the number of ring slots.
func (p *Pipeline) Capacity() int {
	return p.slots
}
