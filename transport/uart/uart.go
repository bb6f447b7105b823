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

package uart

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/internal/syncutil"
	"go.bug.st/serial"
)

// DTR is held low this long when resetting the attached node.
const resetPulse = 100 * time.Millisecond

// Transport is a serial link to or from a capture node. The capture side
// writes frames to it; the collecting side reads them back.
type Transport struct {
	port     serial.Port
	portName string
	mu       syncutil.Mutex
	closed   atomic.Bool
}

// Option configures a Transport at open time.
type Option func(*options) error

type options struct {
	open        func(name string, mode *serial.Mode) (serial.Port, error)
	baudRate    int
	readTimeout time.Duration
}

// WithBaudRate overrides the default link speed.
func WithBaudRate(baud int) Option {
	return func(o *options) error {
		if baud <= 0 {
			return fmt.Errorf("%w: baud rate %d", blecap.ErrInvalidParameter, baud)
		}
		o.baudRate = baud
		return nil
	}
}

// WithReadTimeout sets how long a single read waits before the port is
// polled again. It bounds how quickly Close unblocks a reader.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("%w: read timeout %v", blecap.ErrInvalidParameter, d)
		}
		o.readTimeout = d
		return nil
	}
}

// defaultReadTimeout is longer on Windows, where short timeouts make the
// driver return spurious empty reads.
func defaultReadTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName as 8N1 at blecap.DefaultBaudRate.
func New(portName string, opts ...Option) (*Transport, error) {
	o := options{
		open:        serial.Open,
		baudRate:    blecap.DefaultBaudRate,
		readTimeout: defaultReadTimeout(),
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	port, err := o.open(portName, &serial.Mode{
		BaudRate: o.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, blecap.NewTransportError("open", portName, err, errorType(err))
	}

	if err := port.SetReadTimeout(o.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return newWithPort(port, portName), nil
}

func newWithPort(port serial.Port, name string) *Transport {
	return &Transport{port: port, portName: name}
}

// Write writes all of p, retrying short writes and interrupted calls.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return 0, blecap.ErrTransportClosed
	}

	written := 0
	interrupts := 0
	for written < len(p) {
		n, err := t.port.Write(p[written:])
		written += n
		if err == nil {
			if n == 0 {
				return written, blecap.NewTransportError("write", t.portName,
					errors.New("port accepted no bytes"), blecap.ErrorTypeTransient)
			}
			continue
		}
		if isInterruptedSystemCall(err) && interrupts < 3 {
			interrupts++
			continue
		}
		return written, blecap.NewTransportError("write", t.portName, err, errorType(err))
	}
	return written, nil
}

// Flush blocks until every written byte has left the UART.
func (t *Transport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return blecap.ErrTransportClosed
	}
	return t.drainWithRetry("flush")
}

// Read returns the next bytes from the port. Read timeouts are absorbed so
// callers only see data, an error, or io.EOF once the transport is closed.
func (t *Transport) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if t.closed.Load() {
			return 0, io.EOF
		}
		n, err := t.port.Read(p)
		if err != nil {
			if t.closed.Load() {
				return n, io.EOF
			}
			if isInterruptedSystemCall(err) {
				continue
			}
			return n, blecap.NewTransportError("read", t.portName, err, errorType(err))
		}
		if n > 0 {
			return n, nil
		}
	}
}

// Reset pulses DTR, which restarts boards wired for auto-reset, then drops
// whatever the node printed before the pulse.
func (t *Transport) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.port.SetDTR(false); err != nil {
		return fmt.Errorf("UART reset DTR low failed: %w", err)
	}
	time.Sleep(resetPulse)
	if err := t.port.SetDTR(true); err != nil {
		return fmt.Errorf("UART reset DTR high failed: %w", err)
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART reset input buffer failed: %w", err)
	}
	return nil
}

// Close closes the port. A blocked Read returns io.EOF.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Name returns the port name the transport was opened with.
func (t *Transport) Name() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() blecap.TransportType {
	return blecap.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms, 8ms
			continue
		}

		return blecap.NewTransportError(operation, t.portName,
			fmt.Errorf("UART drain failed: %w", err), errorType(err))
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// errorType classifies serial errors. A closed or vanished port will not
// come back without reopening.
func errorType(err error) blecap.ErrorType {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortClosed, serial.PortNotFound, serial.InvalidSerialPort,
			serial.PermissionDenied:
			return blecap.ErrorTypePermanent
		default:
			return blecap.ErrorTypeTransient
		}
	}
	if blecap.IsFatal(err) {
		return blecap.ErrorTypePermanent
	}
	return blecap.ErrorTypeTransient
}
