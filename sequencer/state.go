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
	"fmt"

	"github.com/ZaparooProject/go-blecap/internal/hci"
)

// Step is one stage of controller initialization.
type Step int

const (
	StepReset Step = iota
	StepEventMask
	StepScanParameters
	StepChannelLock
	StepStartConsumer
	StepScanEnable
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepReset:
		return "Reset"
	case StepEventMask:
		return "EventMask"
	case StepScanParameters:
		return "ScanParameters"
	case StepChannelLock:
		return "ChannelLock"
	case StepStartConsumer:
		return "StartConsumer"
	case StepScanEnable:
		return "ScanEnable"
	case StepDone:
		return "Done"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// ActionKind says what the caller must do after a transition.
type ActionKind int

const (
	// ActionWait means the controller was not ready: yield and poll again.
	ActionWait ActionKind = iota
	ActionSendCommand
	ActionLockChannel
	ActionStartConsumer
	// ActionNone is returned once initialization has finished.
	ActionNone
)

// Action is the side effect requested by a transition.
type Action struct {
	Command []byte // encoded HCI command for ActionSendCommand
	Kind    ActionKind
	Channel uint8 // for ActionLockChannel
}

// State is the initialization progress. It only moves forward.
type State struct {
	Step         Step
	Initializing bool
}

// InitialState is the state before any command has been sent.
func InitialState() State {
	return State{Step: StepReset, Initializing: true}
}

// Plan holds the pre-encoded commands for one initialization run.
type Plan struct {
	reset      []byte
	eventMask  []byte
	scanParams []byte
	scanEnable []byte
	channel    uint8
}

// NewPlan validates cfg and encodes every command up front, so a
// transition never fails.
func NewPlan(cfg *Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Plan{
		reset:      hci.Reset(),
		eventMask:  hci.SetEventMask(cfg.EventMask),
		scanParams: hci.LESetScanParameters(cfg.scanParameters()),
		scanEnable: hci.LESetScanEnable(true, cfg.FilterDuplicates),
		channel:    cfg.Channel,
	}, nil
}

// Transition is the pure step function. Given the current state and the
// controller's readiness it returns the next state and the action that
// moves there. When the controller is not ready the state is unchanged.
func (p *Plan) Transition(s State, ready bool) (State, Action) {
	if !s.Initializing || s.Step >= StepDone {
		return State{Step: StepDone}, Action{Kind: ActionNone}
	}
	if !ready {
		return s, Action{Kind: ActionWait}
	}

	next := State{Step: s.Step + 1, Initializing: s.Step+1 < StepDone}
	switch s.Step {
	case StepReset:
		return next, Action{Kind: ActionSendCommand, Command: p.reset}
	case StepEventMask:
		return next, Action{Kind: ActionSendCommand, Command: p.eventMask}
	case StepScanParameters:
		return next, Action{Kind: ActionSendCommand, Command: p.scanParams}
	case StepChannelLock:
		return next, Action{Kind: ActionLockChannel, Channel: p.channel}
	case StepStartConsumer:
		return next, Action{Kind: ActionStartConsumer}
	default:
		return next, Action{Kind: ActionSendCommand, Command: p.scanEnable}
	}
}
