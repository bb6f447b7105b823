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

// Package hcisocket drives a Bluetooth controller through a Linux HCI
// user channel socket. The kernel stack is detached from the device, so
// every event the controller produces is seen here and forwarded raw to
// the registered intake.
package hcisocket

import (
	"fmt"
	"sync/atomic"

	blecap "github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/internal/hci"
	"github.com/ZaparooProject/go-blecap/internal/syncutil"
	"github.com/sirupsen/logrus"
)

// conn is the packet socket underneath the controller. Read returns (0, nil)
// when nothing arrived within its poll period.
type conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// intakeFunc is stored behind an atomic pointer so the read loop never locks.
type intakeFunc func(packet []byte) error

// readBufferSize covers any H4 packet the user channel hands over.
const readBufferSize = 4096

// Controller implements blecap.Controller. Readiness follows the command
// credits (Num_HCI_Command_Packets) the controller reports in Command
// Complete and Command Status events.
type Controller struct {
	conn     conn
	intake   atomic.Pointer[intakeFunc]
	rejected atomic.Pointer[error]
	readErr  atomic.Pointer[error]
	log      *logrus.Entry
	done     chan struct{}
	name     string
	credits  atomic.Int32
	events   atomic.Uint64
	wmu      syncutil.Mutex
	closeMu  syncutil.Mutex
	closed   atomic.Bool
}

func newController(c conn, name string) *Controller {
	ctrl := &Controller{
		conn: c,
		name: name,
		done: make(chan struct{}),
		log:  blecap.Logger().WithField("controller", name),
	}
	// The host may always send one command after opening the channel.
	ctrl.credits.Store(1)
	go ctrl.readLoop()
	return ctrl
}

// Name returns the device name, e.g. "hci0".
func (c *Controller) Name() string { return c.name }

// SendCommand writes one encoded command. It fails with ErrControllerBusy
// when no command credit is available and with ErrCommandRejected once the
// controller has refused an earlier command.
func (c *Controller) SendCommand(packet []byte) error {
	if c.closed.Load() {
		return blecap.ErrControllerNotOpen
	}
	if err := c.Err(); err != nil {
		return err
	}
	if c.credits.Add(-1) < 0 {
		c.credits.Add(1)
		return blecap.ErrControllerBusy
	}

	c.wmu.Lock()
	_, err := c.conn.Write(packet)
	c.wmu.Unlock()
	if err != nil {
		c.credits.Add(1)
		return blecap.NewTransportError("write", c.name, err, blecap.ErrorTypePermanent)
	}

	if blecap.DebugActive() {
		c.log.Debugf("TX % X", packet)
	}
	return nil
}

// ReadyForCommand reports whether a command credit is available.
func (c *Controller) ReadyForCommand() bool {
	return !c.closed.Load() && c.credits.Load() > 0
}

// RegisterIntake installs fn as the receiver of every packet read from the
// controller. The packet slice is only valid for the duration of the call.
func (c *Controller) RegisterIntake(fn func(packet []byte) error) {
	f := intakeFunc(fn)
	c.intake.Store(&f)
}

// Err returns the first command rejection or read failure, if any.
func (c *Controller) Err() error {
	if p := c.rejected.Load(); p != nil {
		return *p
	}
	if p := c.readErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Events returns how many packets have been read from the controller.
func (c *Controller) Events() uint64 {
	return c.events.Load()
}

// Done is closed when the read loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close stops the read loop and closes the socket.
func (c *Controller) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Swap(true) {
		return nil
	}
	<-c.done
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c.name, err)
	}
	return nil
}

func (c *Controller) readLoop() {
	defer close(c.done)

	buf := make([]byte, readBufferSize)
	for !c.closed.Load() {
		n, err := c.conn.Read(buf)
		if err != nil {
			if c.closed.Load() {
				return
			}
			wrapped := blecap.NewTransportError("read", c.name, fmt.Errorf("%w: %w", blecap.ErrTransportRead, err), blecap.ErrorTypePermanent)
			c.readErr.CompareAndSwap(nil, errPtr(wrapped))
			c.log.Errorf("read loop stopped: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		c.handle(buf[:n])
	}
}

func (c *Controller) handle(pkt []byte) {
	c.events.Add(1)

	if hci.PacketType(pkt[0]) == hci.PacketTypeEvent {
		if e, err := hci.ParseEvent(pkt); err == nil {
			c.trackFlow(e)
		}
	}

	if fn := c.intake.Load(); fn != nil {
		// Drops are counted by the intake itself.
		_ = (*fn)(pkt)
	}
}

func (c *Controller) trackFlow(e hci.Event) {
	credits, op, status, ok := e.CommandFlow()
	if !ok {
		return
	}
	c.credits.Store(int32(credits))

	if status != 0x00 && op.IsVendor() {
		// Vendor commands are best effort; a refusal leaves the controller usable.
		c.log.Warnf("%s refused with status 0x%02X", op, status)
		return
	}
	if status != 0x00 {
		err := fmt.Errorf("%w: %s status 0x%02X", blecap.ErrCommandRejected, op, status)
		c.rejected.CompareAndSwap(nil, errPtr(err))
		c.log.Errorf("%v", err)
		return
	}
	if blecap.DebugActive() {
		c.log.Debugf("%s acknowledged, %d credits", op, credits)
	}
}

func errPtr(err error) *error { return &err }
