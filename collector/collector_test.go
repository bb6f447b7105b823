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

package collector_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/collector"
	"github.com/ZaparooProject/go-blecap/internal/frame"
	testutil "github.com/ZaparooProject/go-blecap/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resetComplete = []byte{0x04, 0x0E, 0x04, 0x05, 0x03, 0x0C, 0x00}

type packet struct {
	ts   time.Time
	data []byte
}

type recordingSink struct {
	err     error
	packets []packet
	mu      sync.Mutex
}

func (s *recordingSink) WritePacket(ts time.Time, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, packet{ts: ts, data: append([]byte(nil), data...)})
	return nil
}

func (s *recordingSink) Packets() []packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]packet(nil), s.packets...)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func jittery(data []byte) io.Reader {
	return testutil.NewJitteryReader(bytes.NewReader(data), testutil.JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
		Seed:             99,
	})
}

func TestRun_AlignsTimestamps(t *testing.T) {
	t.Parallel()

	r1 := testutil.AdvertisingReport(0x11, 8)
	r2 := testutil.AdvertisingReport(0x22, 31)
	stream := append([]byte("ets Jul 29 2019\nbooting\n"), testutil.CaptureStream(1500, 38,
		testutil.StreamFrame{Payload: resetComplete, Timestamp: 900_000},
		testutil.StreamFrame{Payload: testutil.ScanEnableComplete, Timestamp: 1_000_000},
		testutil.StreamFrame{Payload: r1, Timestamp: 2_000_000},
		testutil.StreamFrame{Payload: r2, Timestamp: 2_500_250},
	)...)

	host := time.Unix(1_700_000_000, 0)
	sink := &recordingSink{}
	c, err := collector.New("left", jittery(stream), sink, collector.WithClock(fixedClock(host)))
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))

	boot := host.Add(-1500 * time.Millisecond)
	got := sink.Packets()
	require.Len(t, got, 2)
	assert.Equal(t, r1, got[0].data)
	assert.Equal(t, boot.Add(2*time.Second), got[0].ts)
	assert.Equal(t, r2, got[1].data)
	assert.Equal(t, boot.Add(2_500_250*time.Microsecond), got[1].ts)

	assert.Equal(t, uint8(38), c.Channel())
	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Equal(t, uint64(2), stats.Preamble)
	assert.Zero(t, stats.BadFrames)
}

func TestRun_RecoversFromCorruption(t *testing.T) {
	t.Parallel()

	r1 := testutil.AdvertisingReport(0x01, 4)
	r2 := testutil.AdvertisingReport(0x02, 4)

	stream := testutil.CaptureStream(0, 37,
		testutil.StreamFrame{Payload: testutil.ScanEnableComplete, Timestamp: 1},
		testutil.StreamFrame{Payload: r1, Timestamp: 10},
	)
	garbage := []byte("\x00\xffBL\x13")
	stream = append(stream, garbage...)
	// A header claiming more than any controller can produce.
	stream = append(stream, frame.Marker...)
	stream = append(stream, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF)
	stream = frame.AppendFrame(stream, 20, r2)

	sink := &recordingSink{}
	c, err := collector.New("noisy", jittery(stream), sink)
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	got := sink.Packets()
	require.Len(t, got, 2)
	assert.Equal(t, r1, got[0].data)
	assert.Equal(t, r2, got[1].data)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.BadFrames)
	assert.Equal(t, uint64(len(garbage)), stats.SkippedBytes)
	assert.Equal(t, uint64(1), stats.Resyncs)
}

func TestRun_HandshakeFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		stream  []byte
	}{
		{
			name:    "bad boot line",
			stream:  []byte("Capture started at: soon\n"),
			wantErr: collector.ErrHandshake,
		},
		{
			name:    "channel before boot",
			stream:  []byte("Locked to channel: 37\nCapture started at: 1\n"),
			wantErr: collector.ErrHandshake,
		},
		{
			name:    "channel out of range",
			stream:  []byte("Capture started at: 1\nLocked to channel: 400\n"),
			wantErr: collector.ErrHandshake,
		},
		{
			name:    "ends before handshake",
			stream:  []byte("Capture started at: 1\n"),
			wantErr: collector.ErrStreamEnded,
		},
		{
			name:    "ends before scan enable",
			stream:  testutil.CaptureStream(1, 37, testutil.StreamFrame{Payload: resetComplete}),
			wantErr: collector.ErrStreamEnded,
		},
		{
			name: "truncated frame",
			stream: testutil.CaptureStream(1, 37,
				testutil.StreamFrame{Payload: testutil.ScanEnableComplete},
				testutil.StreamFrame{Payload: testutil.AdvertisingReport(1, 10)},
			)[:70],
			wantErr: io.ErrUnexpectedEOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := collector.New("dev", bytes.NewReader(tt.stream), &recordingSink{})
			require.NoError(t, err)

			err = c.Run(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "dev")
		})
	}
}

func TestRun_SinkFailure(t *testing.T) {
	t.Parallel()

	stream := testutil.CaptureStream(0, 37,
		testutil.StreamFrame{Payload: testutil.ScanEnableComplete},
		testutil.StreamFrame{Payload: testutil.AdvertisingReport(3, 3)},
	)
	diskFull := errors.New("disk full")

	c, err := collector.New("dev", bytes.NewReader(stream), &recordingSink{err: diskFull})
	require.NoError(t, err)
	require.ErrorIs(t, c.Run(context.Background()), diskFull)
}

type resettableSource struct {
	io.Reader
	resets int
}

func (r *resettableSource) Reset() error {
	r.resets++
	return nil
}

func TestWithReset(t *testing.T) {
	t.Parallel()

	_, err := collector.New("dev", bytes.NewReader(nil), &recordingSink{}, collector.WithReset())
	require.ErrorIs(t, err, blecap.ErrInvalidParameter)

	src := &resettableSource{Reader: bytes.NewReader(testutil.CaptureStream(5, 39,
		testutil.StreamFrame{Payload: testutil.ScanEnableComplete},
	))}
	c, err := collector.New("dev", src, &recordingSink{}, collector.WithReset())
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 1, src.resets)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := collector.New("dev", nil, &recordingSink{})
	require.ErrorIs(t, err, blecap.ErrInvalidParameter)

	_, err = collector.New("dev", bytes.NewReader(nil), nil)
	require.ErrorIs(t, err, blecap.ErrInvalidParameter)

	_, err = collector.New("dev", bytes.NewReader(nil), &recordingSink{}, collector.WithClock(nil))
	require.ErrorIs(t, err, blecap.ErrInvalidParameter)
}

func TestRun_CancelClosesSource(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	sink := &recordingSink{}
	c, err := collector.New("live", pr, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_, err = pw.Write(testutil.CaptureStream(0, 37,
		testutil.StreamFrame{Payload: testutil.ScanEnableComplete},
		testutil.StreamFrame{Payload: testutil.AdvertisingReport(9, 2), Timestamp: 5},
	))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sink.Packets()) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunAll_SharedPcap(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	pw, err := collector.NewPcapWriter(&buf)
	require.NoError(t, err)

	var collectors []*collector.Collector
	for i, name := range []string{"left", "right"} {
		frames := []testutil.StreamFrame{{Payload: testutil.ScanEnableComplete}}
		for j := range 5 {
			frames = append(frames, testutil.StreamFrame{
				Payload:   testutil.AdvertisingReport(byte(i*16+j), 6),
				Timestamp: int64(j * 1000),
			})
		}
		c, err := collector.New(name, jittery(testutil.CaptureStream(100, 37, frames...)), pw)
		require.NoError(t, err)
		collectors = append(collectors, c)
	}

	bad, err := collector.New("broken", bytes.NewReader([]byte("Capture started at: ?\n")), pw)
	require.NoError(t, err)
	collectors = append(collectors, bad)

	err = collector.RunAll(context.Background(), collectors...)
	require.ErrorIs(t, err, collector.ErrHandshake)

	packets := readPcap(t, buf.Bytes())
	assert.Len(t, packets, 10)
}
