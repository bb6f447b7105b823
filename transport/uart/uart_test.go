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
	"bytes"
	"errors"
	"io"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ZaparooProject/go-blecap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

var errPortClosed = errors.New("port closed")

// MockSerialPort records what the transport does to the port. Reads are
// served from a queue of chunks; an empty queue behaves like a read timeout.
type MockSerialPort struct {
	drainErrs   []error
	writeErrs   []error
	reads       [][]byte
	dtr         []bool
	written     bytes.Buffer
	readTimeout time.Duration
	maxWrite    int
	drains      int
	inputResets int
	mu          sync.Mutex
	closed      bool
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{readTimeout: 100 * time.Millisecond}
}

func (*MockSerialPort) SetMode(_ *serial.Mode) error {
	return nil
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errPortClosed
	}
	if len(m.reads) == 0 {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		m.mu.Lock()
		return 0, nil
	}
	n := copy(p, m.reads[0])
	m.reads[0] = m.reads[0][n:]
	if len(m.reads[0]) == 0 {
		m.reads = m.reads[1:]
	}
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errPortClosed
	}
	if len(m.writeErrs) > 0 {
		err := m.writeErrs[0]
		m.writeErrs = m.writeErrs[1:]
		return 0, err
	}
	if m.maxWrite > 0 && len(p) > m.maxWrite {
		p = p[:m.maxWrite]
	}
	m.written.Write(p)
	return len(p), nil
}

func (m *MockSerialPort) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drains++
	if len(m.drainErrs) > 0 {
		err := m.drainErrs[0]
		m.drainErrs = m.drainErrs[1:]
		return err
	}
	return nil
}

func (m *MockSerialPort) ResetInputBuffer() error {
	m.mu.Lock()
	m.inputResets++
	m.reads = nil
	m.mu.Unlock()
	return nil
}

func (*MockSerialPort) ResetOutputBuffer() error {
	return nil
}

func (m *MockSerialPort) SetDTR(dtr bool) error {
	m.mu.Lock()
	m.dtr = append(m.dtr, dtr)
	m.mu.Unlock()
	return nil
}

func (*MockSerialPort) SetRTS(_ bool) error {
	return nil
}

func (*MockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.readTimeout = t
	return nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (*MockSerialPort) Break(_ time.Duration) error {
	return nil
}

// Verify interface implementation
var _ serial.Port = (*MockSerialPort)(nil)

var _ blecap.Transport = (*Transport)(nil)

func TestNew_OpensEightNOne(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	var gotName string
	var gotMode serial.Mode
	opener := func(o *options) error {
		o.open = func(name string, mode *serial.Mode) (serial.Port, error) {
			gotName, gotMode = name, *mode
			return port, nil
		}
		return nil
	}

	tr, err := New("/dev/ttyUSB0", opener, WithReadTimeout(20*time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", gotName)
	assert.Equal(t, blecap.DefaultBaudRate, gotMode.BaudRate)
	assert.Equal(t, 8, gotMode.DataBits)
	assert.Equal(t, serial.NoParity, gotMode.Parity)
	assert.Equal(t, serial.OneStopBit, gotMode.StopBits)
	assert.Equal(t, 20*time.Millisecond, port.readTimeout)
	assert.Equal(t, "/dev/ttyUSB0", tr.Name())
	assert.Equal(t, blecap.TransportUART, tr.Type())
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New("x", WithBaudRate(0))
	require.ErrorIs(t, err, blecap.ErrInvalidParameter)

	_, err = New("x", WithReadTimeout(-time.Second))
	require.ErrorIs(t, err, blecap.ErrInvalidParameter)
}

func TestNew_OpenFailure(t *testing.T) {
	t.Parallel()

	notFound := &serial.PortError{}
	opener := func(o *options) error {
		o.open = func(string, *serial.Mode) (serial.Port, error) {
			return nil, notFound
		}
		return nil
	}

	_, err := New("/dev/missing", opener)
	require.Error(t, err)
	var te *blecap.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "open", te.Op)
	assert.Equal(t, "/dev/missing", te.Port)
}

func TestWrite_RetriesShortWrites(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	port.maxWrite = 3
	tr := newWithPort(port, "mock")

	data := []byte("BLE:0123456789")
	n, err := tr.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, port.written.Bytes())
}

func TestWrite_RetriesInterruptedCall(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	port.writeErrs = []error{syscall.EINTR}
	tr := newWithPort(port, "mock")

	n, err := tr.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWrite_Failure(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	port.writeErrs = []error{errors.New("usb unplugged")}
	tr := newWithPort(port, "mock")

	_, err := tr.Write([]byte{1})
	var te *blecap.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "write", te.Op)
	assert.True(t, blecap.IsRetryable(err))
}

func TestFlush_DrainRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		errs       []error
		wantDrains int
		wantErr    bool
	}{
		{name: "clean", wantDrains: 1},
		{name: "one EINTR", errs: []error{syscall.EINTR}, wantDrains: 2},
		{
			name:       "EINTR exhausted",
			errs:       []error{syscall.EINTR, syscall.EINTR, syscall.EINTR},
			wantDrains: 3,
			wantErr:    true,
		},
		{name: "hard failure", errs: []error{errors.New("i/o error")}, wantDrains: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			port := NewMockSerialPort()
			port.drainErrs = tt.errs
			tr := newWithPort(port, "mock")

			err := tr.Flush()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantDrains, port.drains)
		})
	}
}

func TestIsInterruptedSystemCall(t *testing.T) {
	t.Parallel()

	assert.False(t, isInterruptedSystemCall(nil))
	assert.True(t, isInterruptedSystemCall(syscall.EINTR))
	assert.True(t, isInterruptedSystemCall(errors.New("read /dev/ttyUSB0: EINTR")))
	assert.False(t, isInterruptedSystemCall(errors.New("timeout")))
}

func TestRead_SkipsTimeouts(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	tr := newWithPort(port, "mock")

	go func() {
		time.Sleep(10 * time.Millisecond)
		port.mu.Lock()
		port.reads = append(port.reads, []byte("Locked to channel: 37\n"))
		port.mu.Unlock()
	}()

	buf := make([]byte, 64)
	n, err := tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Locked to channel: 37\n", string(buf[:n]))
}

func TestRead_CloseUnblocks(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	tr := newWithPort(port, "mock")

	done := make(chan error, 1)
	go func() {
		_, err := tr.Read(make([]byte, 16))
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestReset_PulsesDTR(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	port.reads = [][]byte{[]byte("stale boot noise")}
	tr := newWithPort(port, "mock")

	require.NoError(t, tr.Reset())
	assert.Equal(t, []bool{false, true}, port.dtr)
	assert.Equal(t, 1, port.inputResets)
	assert.Empty(t, port.reads)
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	tr := newWithPort(port, "mock")

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, port.closed)

	_, err := tr.Write([]byte{1})
	require.ErrorIs(t, err, blecap.ErrTransportClosed)
	require.ErrorIs(t, tr.Flush(), blecap.ErrTransportClosed)
}
