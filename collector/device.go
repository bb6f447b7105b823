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

package collector

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/transport/uart"
)

// Runner is anything RunAll can drive.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Open opens the serial port of dev, retrying while the port is busy or
// still enumerating, and returns a collector that writes to out. The caller
// owns the returned transport.
func Open(ctx context.Context, dev DeviceConfig, out Sink) (*Collector, *uart.Transport, error) {
	var port *uart.Transport
	retry := blecap.OpenRetryConfig()
	retry.OnRetry = func(attempt int, err error) {
		blecap.Logger().WithField("device", dev.Name).WithError(err).Warnf("open attempt %d failed", attempt)
	}

	err := blecap.RetryWithConfig(ctx, retry, func() error {
		var err error
		port, err = uart.New(dev.Path, uart.WithBaudRate(dev.Baud))
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	var opts []Option
	if dev.Reset {
		opts = append(opts, WithReset())
	}
	c, err := New(dev.Name, port, out, opts...)
	if err != nil {
		_ = port.Close()
		return nil, nil, err
	}
	return c, port, nil
}

// OpenFunc opens one session with a capture node.
type OpenFunc func(ctx context.Context, dev DeviceConfig, out Sink) (*Collector, io.Closer, error)

func openSerial(ctx context.Context, dev DeviceConfig, out Sink) (*Collector, io.Closer, error) {
	return Open(ctx, dev, out)
}

// Recoverer keeps a capture node collected across link failures: when a
// session fails it closes the port, waits, and opens a new session, which
// resets the node and repeats the handshake. It gives up after maxAttempts
// consecutive failed sessions. A session that delivered frames resets the
// count.
type Recoverer struct {
	out         Sink
	open        OpenFunc
	dev         DeviceConfig
	backoff     time.Duration
	maxAttempts int
	sessions    atomic.Uint64
	frames      atomic.Uint64
	bad         atomic.Uint64
}

// NewRecoverer creates a recoverer for dev. A nil open uses the serial port.
func NewRecoverer(dev DeviceConfig, out Sink, open OpenFunc, backoff time.Duration, maxAttempts int) *Recoverer {
	if open == nil {
		open = openSerial
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Recoverer{
		dev:         dev,
		out:         out,
		open:        open,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// Name returns the device name.
func (r *Recoverer) Name() string { return r.dev.Name }

// Sessions returns how many sessions were opened.
func (r *Recoverer) Sessions() uint64 { return r.sessions.Load() }

// Stats sums the counters of every session.
func (r *Recoverer) Stats() Stats {
	return Stats{Frames: r.frames.Load(), BadFrames: r.bad.Load()}
}

// Run collects until ctx is cancelled, the stream ends cleanly, or
// recovery gives up. Cancellation returns nil.
func (r *Recoverer) Run(ctx context.Context) error {
	log := blecap.Logger().WithField("device", r.dev.Name)
	failures := 0

	for {
		before := r.frames.Load()
		err := r.session(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		if r.frames.Load() > before {
			failures = 0
		}
		failures++
		if failures >= r.maxAttempts {
			return err
		}
		log.WithError(err).Warnf("session failed, reopening in %v (%d/%d)", r.backoff, failures, r.maxAttempts)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.backoff):
		}
	}
}

// session runs one open-collect-close cycle.
func (r *Recoverer) session(ctx context.Context) error {
	c, closer, err := r.open(ctx, r.dev, r.out)
	if err != nil {
		return err
	}
	r.sessions.Add(1)
	defer func() { _ = closer.Close() }()

	err = c.Run(ctx)
	s := c.Stats()
	r.frames.Add(s.Frames)
	r.bad.Add(s.BadFrames)
	return err
}

// RunAll runs every runner until ctx is cancelled. A failing runner is
// logged and does not stop the others. The failures are returned joined.
func RunAll[R Runner](ctx context.Context, runners ...R) error {
	errs := make([]error, len(runners))

	var wg sync.WaitGroup
	for i, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				blecap.Errorf("collector %s stopped: %v", r.Name(), err)
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
