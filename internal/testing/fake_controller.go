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

package testing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-blecap/internal/hci"
	"github.com/ZaparooProject/go-blecap/internal/syncutil"
)

// ErrBusy is returned when a command is sent while the fake controller still
// has one in flight.
var ErrBusy = errors.New("fake controller: command already in flight")

// CallKind identifies an entry in the fake controller's call log.
type CallKind string

const (
	CallSend  CallKind = "send"
	CallLock  CallKind = "lock"
	CallStart CallKind = "start"
)

// Call records one interaction with the fake controller.
type Call struct {
	Kind    CallKind
	Packet  []byte
	Opcode  hci.Opcode
	Channel uint8
}

func (c Call) String() string {
	switch c.Kind {
	case CallSend:
		return fmt.Sprintf("send:%s", c.Opcode)
	case CallLock:
		return fmt.Sprintf("lock:%d", c.Channel)
	default:
		return string(c.Kind)
	}
}

// FakeController is an instrumented controller. After each accepted command
// it reports busy for BusyPolls readiness checks, and it records every
// command, channel lock and consumer start in a single ordered log.
type FakeController struct {
	intake     func(packet []byte) error
	sendErrs   map[hci.Opcode]error
	calls      []Call
	busyPolls  int
	remaining  int
	polls      int
	violations int
	mu         syncutil.Mutex
}

// NewFakeController creates a fake that stays busy for busyPolls readiness
// checks after every command.
func NewFakeController(busyPolls int) *FakeController {
	return &FakeController{
		busyPolls: busyPolls,
		sendErrs:  make(map[hci.Opcode]error),
	}
}

// SendCommand implements the controller surface.
func (f *FakeController) SendCommand(packet []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	op, _ := hci.CommandOpcode(packet)
	f.calls = append(f.calls, Call{
		Kind:   CallSend,
		Opcode: op,
		Packet: append([]byte(nil), packet...),
	})

	if f.remaining > 0 {
		f.violations++
		return ErrBusy
	}
	if err, ok := f.sendErrs[op]; ok {
		return err
	}
	f.remaining = f.busyPolls
	return nil
}

// ReadyForCommand implements the controller surface.
func (f *FakeController) ReadyForCommand() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.remaining > 0 {
		f.remaining--
		return false
	}
	return true
}

// RegisterIntake implements the controller surface.
func (f *FakeController) RegisterIntake(fn func(packet []byte) error) {
	f.mu.Lock()
	f.intake = fn
	f.mu.Unlock()
}

// LockChannel records a channel lock.
func (f *FakeController) LockChannel(channel uint8) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Kind: CallLock, Channel: channel})
	f.mu.Unlock()
}

// Emit hands packet to the registered intake as the controller would.
func (f *FakeController) Emit(packet []byte) error {
	f.mu.Lock()
	fn := f.intake
	f.mu.Unlock()
	if fn == nil {
		return errors.New("fake controller: no intake registered")
	}
	return fn(packet)
}

// FailCommand makes every send of op fail with err.
func (f *FakeController) FailCommand(op hci.Opcode, err error) {
	f.mu.Lock()
	f.sendErrs[op] = err
	f.mu.Unlock()
}

// Calls returns a copy of the call log.
func (f *FakeController) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallNames returns the call log as short strings such as "send:Reset".
func (f *FakeController) CallNames() []string {
	calls := f.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.String()
	}
	return names
}

// Violations counts commands sent while the controller was busy.
func (f *FakeController) Violations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.violations
}

// Polls counts readiness checks.
func (f *FakeController) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// Consumer returns a consumer starter that records its start in the same
// call log, so ordering against commands can be asserted.
func (f *FakeController) Consumer() *FakeConsumer {
	return &FakeConsumer{ctrl: f}
}

// FakeConsumer stands in for the delivery task during sequencing tests.
type FakeConsumer struct {
	ctrl    *FakeController
	err     error
	started int
}

// Start records the start.
func (c *FakeConsumer) Start(_ context.Context) error {
	c.ctrl.mu.Lock()
	defer c.ctrl.mu.Unlock()
	c.ctrl.calls = append(c.ctrl.calls, Call{Kind: CallStart})
	c.started++
	return c.err
}

// FailWith makes Start return err.
func (c *FakeConsumer) FailWith(err error) {
	c.ctrl.mu.Lock()
	c.err = err
	c.ctrl.mu.Unlock()
}

// Started returns how many times Start was called.
func (c *FakeConsumer) Started() int {
	c.ctrl.mu.Lock()
	defer c.ctrl.mu.Unlock()
	return c.started
}
