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
	"testing"

	"github.com/ZaparooProject/go-blecap/internal/hci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStep_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Reset", StepReset.String())
	assert.Equal(t, "ScanEnable", StepScanEnable.String())
	assert.Equal(t, "Done", StepDone.String())
	assert.Equal(t, "Step(42)", Step(42).String())
}

func TestTransition_NotReadyHoldsState(t *testing.T) {
	t.Parallel()

	plan, err := NewPlan(DefaultConfig())
	require.NoError(t, err)

	for step := StepReset; step < StepDone; step++ {
		s := State{Step: step, Initializing: true}
		next, action := plan.Transition(s, false)
		assert.Equal(t, s, next, "step %s must not advance while busy", step)
		assert.Equal(t, ActionWait, action.Kind)
		assert.Nil(t, action.Command)
	}
}

func TestTransition_FullSequence(t *testing.T) {
	t.Parallel()

	plan, err := NewPlan(DefaultConfig())
	require.NoError(t, err)

	type want struct {
		kind ActionKind
		op   hci.Opcode
	}
	expected := []want{
		{kind: ActionSendCommand, op: hci.OpcodeReset},
		{kind: ActionSendCommand, op: hci.OpcodeSetEventMask},
		{kind: ActionSendCommand, op: hci.OpcodeLESetScanParameters},
		{kind: ActionLockChannel},
		{kind: ActionStartConsumer},
		{kind: ActionSendCommand, op: hci.OpcodeLESetScanEnable},
	}

	s := InitialState()
	for i, w := range expected {
		require.True(t, s.Initializing, "step %d", i)
		next, action := plan.Transition(s, true)
		assert.Equal(t, w.kind, action.Kind, "step %d", i)
		if w.kind == ActionSendCommand {
			op, ok := hci.CommandOpcode(action.Command)
			require.True(t, ok)
			assert.Equal(t, w.op, op, "step %d", i)
		}
		if w.kind == ActionLockChannel {
			assert.Equal(t, uint8(37), action.Channel)
		}
		assert.Equal(t, s.Step+1, next.Step, "state only moves forward")
		s = next
	}

	assert.Equal(t, State{Step: StepDone}, s)

	// Finished is terminal, whatever the controller reports.
	next, action := plan.Transition(s, true)
	assert.Equal(t, State{Step: StepDone}, next)
	assert.Equal(t, ActionNone, action.Kind)
}

func TestNewPlan_EncodesCaptureConfiguration(t *testing.T) {
	t.Parallel()

	plan, err := NewPlan(DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []byte{0x01, 0x03, 0x0C, 0x00}, plan.reset)
	assert.Equal(t, []byte{0x01, 0x01, 0x0C, 0x08, 0, 0, 0, 0, 0, 0, 0, 0x20}, plan.eventMask)
	assert.Equal(t, []byte{0x01, 0x0B, 0x20, 0x07, 0x00, 0x50, 0x00, 0x50, 0x00, 0x00, 0x00}, plan.scanParams)
	assert.Equal(t, []byte{0x01, 0x0C, 0x20, 0x02, 0x01, 0x00}, plan.scanEnable)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate  func(*Config)
		name    string
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "channel 39", mutate: func(c *Config) { c.Channel = 39 }},
		{name: "data channel", mutate: func(c *Config) { c.Channel = 12 }, wantErr: true},
		{name: "zero poll interval", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: true},
		{name: "window above interval", mutate: func(c *Config) { c.ScanWindow = 0x60 }, wantErr: true},
		{name: "interval too small", mutate: func(c *Config) { c.ScanInterval, c.ScanWindow = 2, 2 }, wantErr: true},
		{name: "active scan", mutate: func(c *Config) { c.ActiveScan = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
