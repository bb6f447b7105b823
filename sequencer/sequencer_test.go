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

package sequencer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	blecap "github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/internal/hci"
	testutil "github.com/ZaparooProject/go-blecap/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wantOrder = []string{
	"send:Reset",
	"send:Set Event Mask",
	"send:LE Set Scan Parameters",
	"lock:37",
	"start",
	"send:LE Set Scan Enable",
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	return cfg
}

func newTestSequencer(t *testing.T, busyPolls int, opts ...Option) (*Sequencer, *testutil.FakeController, *testutil.FakeConsumer) {
	t.Helper()
	ctrl := testutil.NewFakeController(busyPolls)
	consumer := ctrl.Consumer()
	seq, err := New(ctrl, ctrl, consumer, testConfig(), opts...)
	require.NoError(t, err)
	return seq, ctrl, consumer
}

func TestRun_StrictOrder(t *testing.T) {
	t.Parallel()

	for _, busy := range []int{0, 1, 3, 7} {
		seq, ctrl, consumer := newTestSequencer(t, busy)

		require.NoError(t, seq.Run(context.Background()))

		assert.Equal(t, wantOrder, ctrl.CallNames(), "busy=%d", busy)
		assert.Zero(t, ctrl.Violations(), "command sent while controller busy (busy=%d)", busy)
		assert.Equal(t, 1, consumer.Started())
	}
}

func TestRun_WaitsForReadinessBeforeEveryStep(t *testing.T) {
	t.Parallel()

	const busy = 4
	seq, ctrl, _ := newTestSequencer(t, busy)
	require.NoError(t, seq.Run(context.Background()))

	// Six ready polls plus busy polls after each of the three commands that
	// precede another step.
	assert.Equal(t, 6+3*busy, ctrl.Polls())
	assert.Equal(t, int64(ctrl.Polls()), seq.Polls())
}

func TestRun_SendsCaptureCommands(t *testing.T) {
	t.Parallel()

	seq, ctrl, _ := newTestSequencer(t, 1)
	require.NoError(t, seq.Run(context.Background()))

	var sent [][]byte
	for _, c := range ctrl.Calls() {
		if c.Kind == testutil.CallSend {
			sent = append(sent, c.Packet)
		}
	}
	require.Len(t, sent, 4)
	assert.Equal(t, hci.Reset(), sent[0])
	assert.Equal(t, hci.SetEventMask(hci.EventMaskLEMeta), sent[1])
	assert.Equal(t, []byte{0x01, 0x0B, 0x20, 0x07, 0x00, 0x50, 0x00, 0x50, 0x00, 0x00, 0x00}, sent[2])
	// Duplicate filtering off: every advertisement is delivered.
	assert.Equal(t, []byte{0x01, 0x0C, 0x20, 0x02, 0x01, 0x00}, sent[3])
}

func TestRun_WritesChannelLine(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	seq, _, _ := newTestSequencer(t, 0, WithConsole(&console))
	require.NoError(t, seq.Run(context.Background()))

	assert.Equal(t, "Locked to channel: 37\n", console.String())
}

func TestRun_FlushesConsoleTransport(t *testing.T) {
	t.Parallel()

	mt := blecap.NewMockTransport()
	seq, _, _ := newTestSequencer(t, 0, WithConsole(mt))
	require.NoError(t, seq.Run(context.Background()))

	assert.Equal(t, []byte("Locked to channel: 37\n"), mt.Bytes())
}

func TestRun_SendFailureIsFatal(t *testing.T) {
	t.Parallel()

	seq, ctrl, consumer := newTestSequencer(t, 2, WithTraceName("hci0"))
	ctrl.FailCommand(hci.OpcodeLESetScanParameters, blecap.ErrCommandRejected)

	err := seq.Run(context.Background())
	require.Error(t, err)
	assert.True(t, blecap.IsFatal(err))
	require.ErrorIs(t, err, blecap.ErrCommandRejected)

	var se *blecap.StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ScanParameters", se.Step)

	// Nothing after the failed step runs.
	assert.Equal(t, wantOrder[:3], ctrl.CallNames())
	assert.Zero(t, consumer.Started())

	trace := blecap.GetTrace(err)
	require.NotNil(t, trace)
	assert.Equal(t, "hci0", trace.Controller)
	assert.Len(t, trace.Trace, 3)
}

func TestRun_ConsumerFailureIsFatal(t *testing.T) {
	t.Parallel()

	seq, ctrl, consumer := newTestSequencer(t, 0)
	consumer.FailWith(errors.New("no memory for delivery task"))

	err := seq.Run(context.Background())
	var se *blecap.StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "StartConsumer", se.Step)
	assert.NotContains(t, ctrl.CallNames(), "send:LE Set Scan Enable")
}

func TestRun_IsOneShot(t *testing.T) {
	t.Parallel()

	seq, ctrl, _ := newTestSequencer(t, 0)
	require.NoError(t, seq.Run(context.Background()))
	require.ErrorIs(t, seq.Run(context.Background()), blecap.ErrAlreadyStarted)
	assert.Len(t, ctrl.Calls(), len(wantOrder))
}

func TestRun_ContextEndsReadinessWait(t *testing.T) {
	t.Parallel()

	seq, ctrl, _ := newTestSequencer(t, 1<<30)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := seq.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var se *blecap.StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "EventMask", se.Step)
	assert.Equal(t, []string{"send:Reset"}, ctrl.CallNames())
}

func TestRun_StartsRealPipeline(t *testing.T) {
	t.Parallel()

	mt := blecap.NewMockTransport()
	p, err := blecap.NewPipeline(mt, blecap.WithSlots(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	ctrl := testutil.NewFakeController(1)
	ctrl.RegisterIntake(p.Intake)
	seq, err := New(ctrl, ctrl, p, testConfig())
	require.NoError(t, err)
	require.NoError(t, seq.Run(context.Background()))

	require.NoError(t, ctrl.Emit(testutil.ScanEnableComplete))
	require.NoError(t, ctrl.Emit(testutil.AdvertisingReport(0x11, 5)))
	require.NoError(t, mt.WaitFlushes(2, 2*time.Second))

	assert.Equal(t, uint64(2), p.Stats().Delivered)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	ctrl := testutil.NewFakeController(0)
	_, err := New(nil, ctrl, ctrl.Consumer(), nil)
	require.ErrorIs(t, err, blecap.ErrInvalidParameter)

	cfg := DefaultConfig()
	cfg.Channel = 0
	_, err = New(ctrl, ctrl, ctrl.Consumer(), cfg)
	require.ErrorIs(t, err, blecap.ErrInvalidParameter)

	seq, err := New(ctrl, ctrl, ctrl.Consumer(), nil)
	require.NoError(t, err)
	assert.Equal(t, *DefaultConfig(), seq.config)
}
