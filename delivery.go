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

	"github.com/ZaparooProject/go-blecap/internal/frame"
)

// deliverLoop is the delivery task. It waits on the queue without a
// timeout and frames each descriptor onto the transport, one flushed
// frame at a time.
func (p *Pipeline) deliverLoop(ctx context.Context) {
	defer close(p.done)

	var hdr [frame.HeaderLen]byte
	failing := false
	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				Debugf("delivery task stopping: %v", ctx.Err())
				return
			}
			p.counters.receiveErrors.Add(1)
			Warnf("capture queue receive failed: %v", err)
			continue
		}

		err = p.deliver(d, hdr[:])
		switch {
		case err == nil:
			if failing {
				Infof("transport recovered")
				failing = false
			}
		case !failing:
			// Log the first failure of a run loudly and the rest quietly.
			Errorf("frame delivery failed: %v", err)
			failing = true
		default:
			Debugf("frame delivery failed: %v", err)
		}
	}
}

// deliver writes one frame, zeroes the slot and releases it.
func (p *Pipeline) deliver(d Descriptor, hdr []byte) error {
	slot := p.ring.Slot(int(d.Slot))
	payload := slot[:d.Length]

	frame.PutHeader(hdr, d.Timestamp, d.Length)
	err := p.transmit(hdr, payload)

	clear(payload)
	p.inFlight.Add(-1)

	if err != nil {
		p.counters.transportErrors.Add(1)
		return err
	}
	p.counters.delivered.Add(1)
	return nil
}

func (p *Pipeline) transmit(hdr, payload []byte) error {
	port := string(p.transport.Type())
	if _, err := p.transport.Write(hdr); err != nil {
		return NewTransportError("write header", port, fmt.Errorf("%w: %w", ErrTransportWrite, err), transportErrorType(err))
	}
	if len(payload) > 0 {
		if _, err := p.transport.Write(payload); err != nil {
			return NewTransportError("write payload", port, fmt.Errorf("%w: %w", ErrTransportWrite, err), transportErrorType(err))
		}
	}
	if err := p.transport.Flush(); err != nil {
		return NewTransportError("flush", port, fmt.Errorf("%w: %w", ErrTransportFlush, err), transportErrorType(err))
	}
	return nil
}

func transportErrorType(err error) ErrorType {
	if IsFatal(err) {
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}
