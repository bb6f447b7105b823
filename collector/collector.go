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

// Package collector reads capture streams from one or more capture nodes
// and writes the packets to a pcap file with host-aligned timestamps.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/internal/frame"
	"github.com/ZaparooProject/go-blecap/internal/hci"
	"github.com/sirupsen/logrus"
)

// Console lines a capture node prints before it starts framing packets.
const (
	BootLinePrefix    = "Capture started at:"
	ChannelLinePrefix = "Locked to channel:"
)

var (
	// ErrHandshake is returned when the console lines are malformed.
	ErrHandshake = errors.New("capture handshake failed")
	// ErrStreamEnded is returned when the source ends before capture starts.
	ErrStreamEnded = errors.New("capture stream ended")
)

// Sink receives decoded packets.
type Sink interface {
	WritePacket(ts time.Time, packet []byte) error
}

// Resetter restarts the capture node, usually by pulsing DTR.
type Resetter interface {
	Reset() error
}

// Stats counts what a collector has seen.
type Stats struct {
	Frames       uint64
	Preamble     uint64
	BadFrames    uint64
	SkippedBytes uint64
	Resyncs      uint64
}

// Collector reads one capture node.
type Collector struct {
	src      io.Reader
	out      Sink
	now      func() time.Time
	log      *logrus.Entry
	dec      *frame.Decoder
	boot     time.Time
	name     string
	frames   atomic.Uint64
	preamble atomic.Uint64
	bad      atomic.Uint64
	channel  uint8
	reset    bool
}

// Option configures a Collector.
type Option func(*Collector) error

// WithReset resets the node before the handshake. src must implement Resetter.
func WithReset() Option {
	return func(c *Collector) error {
		if _, ok := c.src.(Resetter); !ok {
			return fmt.Errorf("%w: source of %s cannot be reset", blecap.ErrInvalidParameter, c.name)
		}
		c.reset = true
		return nil
	}
}

// WithClock replaces the host clock used to align timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", blecap.ErrInvalidParameter)
		}
		c.now = now
		return nil
	}
}

// New creates a collector reading src and writing packets to out.
func New(name string, src io.Reader, out Sink, opts ...Option) (*Collector, error) {
	if src == nil || out == nil {
		return nil, fmt.Errorf("%w: collector %s needs a source and a sink", blecap.ErrInvalidParameter, name)
	}
	c := &Collector{
		name: name,
		src:  src,
		out:  out,
		now:  time.Now,
		log:  blecap.Logger().WithField("device", name),
		dec:  frame.NewDecoder(src),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Name returns the device name.
func (c *Collector) Name() string { return c.name }

// Channel returns the channel the node reported, once the handshake is done.
func (c *Collector) Channel() uint8 { return c.channel }

// Stats returns a snapshot of the collector's counters.
func (c *Collector) Stats() Stats {
	return Stats{
		Frames:       c.frames.Load(),
		Preamble:     c.preamble.Load(),
		BadFrames:    c.bad.Load(),
		SkippedBytes: c.dec.Skipped(),
		Resyncs:      c.dec.Resyncs(),
	}
}

// Run performs the handshake, waits for scanning to be enabled, then copies
// frames to the sink until ctx is cancelled or the source ends. If src is an
// io.Closer it is closed when ctx is cancelled so blocked reads return.
// Cancellation and a clean end of stream return nil.
func (c *Collector) Run(ctx context.Context) error {
	if closer, ok := c.src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	if c.reset {
		if err := c.src.(Resetter).Reset(); err != nil {
			return fmt.Errorf("reset %s: %w", c.name, err)
		}
		c.log.Debug("node reset")
	}

	if err := c.handshake(); err != nil {
		return c.exit(ctx, err)
	}
	if err := c.awaitScanEnable(); err != nil {
		return c.exit(ctx, err)
	}
	c.log.WithField("channel", c.channel).Info("capture running")

	for {
		fr, err := c.dec.Next()
		if err != nil {
			if isFrameError(err) {
				c.bad.Add(1)
				c.log.WithError(err).Debug("dropped malformed frame")
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return c.exit(ctx, err)
		}
		if err := c.out.WritePacket(c.align(fr.Timestamp), fr.Payload); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		c.frames.Add(1)
	}
}

// handshake reads console lines until both the boot line and the channel
// line have been seen. Other lines are logged and skipped.
func (c *Collector) handshake() error {
	var haveBoot bool
	for {
		line, err := c.dec.ReadLine()
		if errors.Is(err, frame.ErrLineTooLong) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w before handshake", ErrStreamEnded)
			}
			return err
		}
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, BootLinePrefix):
			ms, perr := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, BootLinePrefix)), 10, 64)
			if perr != nil || ms < 0 {
				return fmt.Errorf("%w: bad boot line %q", ErrHandshake, line)
			}
			c.boot = c.now().Add(-time.Duration(ms) * time.Millisecond)
			haveBoot = true
			c.log.WithField("uptime_ms", ms).Debug("boot line")
		case strings.HasPrefix(line, ChannelLinePrefix):
			if !haveBoot {
				return fmt.Errorf("%w: channel line before boot line", ErrHandshake)
			}
			ch, perr := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, ChannelLinePrefix)), 10, 8)
			if perr != nil {
				return fmt.Errorf("%w: bad channel line %q", ErrHandshake, line)
			}
			c.channel = uint8(ch)
			return nil
		default:
			if line != "" {
				c.log.Debugf("console: %s", line)
			}
		}
	}
}

// awaitScanEnable discards frames until the LE Set Scan Enable command
// completes. Earlier frames are replies to initialization commands.
func (c *Collector) awaitScanEnable() error {
	for {
		fr, err := c.dec.Next()
		if err != nil {
			if isFrameError(err) {
				c.bad.Add(1)
				continue
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w before scan enable", ErrStreamEnded)
			}
			return err
		}
		c.preamble.Add(1)
		if hci.IsCommandComplete(fr.Payload, hci.OpcodeLESetScanEnable) {
			return nil
		}
	}
}

// align converts a node timestamp (µs since its boot) to host time.
func (c *Collector) align(us int64) time.Time {
	return c.boot.Add(time.Duration(us) * time.Microsecond)
}

func (c *Collector) exit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%s: %w", c.name, err)
}

func isFrameError(err error) bool {
	return errors.Is(err, frame.ErrPayloadTooLarge) ||
		errors.Is(err, frame.ErrBadMarker) ||
		errors.Is(err, frame.ErrShortFrame)
}
