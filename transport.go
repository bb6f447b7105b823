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
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-blecap/internal/syncutil"
)

// Transport is the byte-output link to the collecting host. Writes are
// in order; Flush returns once written bytes have physically left.
type Transport interface {
	Write(p []byte) (int, error)
	Flush() error
	Close() error
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockTransport provides a mock implementation of Transport for testing.
// Flushed bytes are recorded in order; each Flush can be gated so tests
// control how fast the delivery task drains.
type MockTransport struct {
	writeErr  error
	flushErr  error
	gate      chan struct{}
	flushed   chan struct{}
	pending   bytes.Buffer
	out       bytes.Buffer
	delay     time.Duration
	writes    int
	flushes   int
	mu        syncutil.Mutex
	closed    bool
	failAfter int
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		flushed:   make(chan struct{}, 1024),
		failAfter: -1,
	}
}

// Write implements Transport
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrTransportClosed
	}
	m.writes++
	if m.writeErr != nil && (m.failAfter < 0 || m.writes > m.failAfter) {
		return 0, m.writeErr
	}
	_, _ = m.pending.Write(p)
	return len(p), nil
}

// Flush implements Transport. It blocks on the gate if one is set.
func (m *MockTransport) Flush() error {
	m.mu.Lock()
	gate := m.gate
	delay := m.delay
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrTransportClosed
	}
	m.flushes++
	if m.flushErr != nil {
		m.pending.Reset()
		m.mu.Unlock()
		return m.flushErr
	}
	_, _ = m.out.Write(m.pending.Bytes())
	m.pending.Reset()
	m.mu.Unlock()

	select {
	case m.flushed <- struct{}{}:
	default:
	}
	return nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("mock transport already closed")
	}
	m.closed = true
	return nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetWriteError makes Write fail with err once failAfter writes have
// succeeded. A negative failAfter fails every write.
func (m *MockTransport) SetWriteError(err error, failAfter int) {
	m.mu.Lock()
	m.writeErr = err
	m.failAfter = failAfter
	m.mu.Unlock()
}

// SetFlushError makes Flush fail and discard pending bytes.
func (m *MockTransport) SetFlushError(err error) {
	m.mu.Lock()
	m.flushErr = err
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate a slow link
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// Hold makes every Flush wait until Release is called once per flush.
func (m *MockTransport) Hold() {
	m.mu.Lock()
	m.gate = make(chan struct{})
	m.mu.Unlock()
}

// Release lets n gated flushes complete.
func (m *MockTransport) Release(n int) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate == nil {
		return
	}
	for range n {
		gate <- struct{}{}
	}
}

// Open removes the gate and lets any waiting flush through.
func (m *MockTransport) Open() {
	m.mu.Lock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
	m.mu.Unlock()
}

// Flushed signals once per successful flush.
func (m *MockTransport) Flushed() <-chan struct{} {
	return m.flushed
}

// WaitFlushes blocks until n successful flushes were signalled or timeout.
func (m *MockTransport) WaitFlushes(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for i := range n {
		select {
		case <-m.flushed:
		case <-deadline:
			return fmt.Errorf("timed out after %d of %d flushes", i, n)
		}
	}
	return nil
}

// Bytes returns everything flushed so far.
func (m *MockTransport) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.out.Bytes()...)
}

// Counts returns how many writes and flushes were attempted.
func (m *MockTransport) Counts() (writes, flushes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes, m.flushes
}
