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

// Package sequencer brings a radio controller from power-on to scanning:
// reset, event mask, scan parameters, channel lock, delivery task start
// and scan enable, strictly in that order with one command in flight.
package sequencer

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	blecap "github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/internal/hci"
	"github.com/sirupsen/logrus"
)

// Sequencer runs the one-shot initialization.
type Sequencer struct {
	ctrl     blecap.Controller
	locker   blecap.ChannelLocker
	consumer blecap.ConsumerStarter
	console  io.Writer
	plan     *Plan
	trace    *blecap.TraceBuffer
	log      *logrus.Entry
	config   Config
	polls    atomic.Int64
	ran      atomic.Bool
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithConsole sets where human-readable progress lines such as
// "Locked to channel: 37" are written. If w has a Flush method it is
// called after each line.
func WithConsole(w io.Writer) Option {
	return func(s *Sequencer) { s.console = w }
}

// WithTraceName labels the command trace attached to startup errors.
func WithTraceName(name string) Option {
	return func(s *Sequencer) { s.trace = blecap.NewTraceBuffer(name, 16) }
}

// New creates a sequencer. A nil cfg uses DefaultConfig.
func New(
	ctrl blecap.Controller,
	locker blecap.ChannelLocker,
	consumer blecap.ConsumerStarter,
	cfg *Config,
	opts ...Option,
) (*Sequencer, error) {
	if ctrl == nil || locker == nil || consumer == nil {
		return nil, fmt.Errorf("%w: controller, locker and consumer are required", blecap.ErrInvalidParameter)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	plan, err := NewPlan(cfg)
	if err != nil {
		return nil, err
	}

	s := &Sequencer{
		ctrl:     ctrl,
		locker:   locker,
		consumer: consumer,
		console:  io.Discard,
		plan:     plan,
		config:   *cfg,
		trace:    blecap.NewTraceBuffer("controller", 16),
		log:      blecap.Logger().WithField("component", "sequencer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run performs the initialization. It returns nil once scanning is enabled.
// It polls readiness without a deadline; only ctx ends the wait. Any failure
// is returned as a *blecap.StartupError carrying the command trace, and the
// sequence is never resumed.
func (s *Sequencer) Run(ctx context.Context) error {
	if !s.ran.CompareAndSwap(false, true) {
		return blecap.ErrAlreadyStarted
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	state := InitialState()
	for state.Initializing {
		s.polls.Add(1)
		next, action := s.plan.Transition(state, s.ctrl.ReadyForCommand())
		if action.Kind == ActionWait {
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return s.fail(state.Step, ctx.Err())
			}
		}

		if err := s.perform(ctx, state.Step, action); err != nil {
			return s.fail(state.Step, err)
		}
		state = next
	}

	s.log.Info("initialization complete, scanning")
	return nil
}

// Polls returns how many readiness checks Run has made.
func (s *Sequencer) Polls() int64 {
	return s.polls.Load()
}

func (s *Sequencer) perform(ctx context.Context, step Step, action Action) error {
	log := s.log.WithField("step", step.String())

	switch action.Kind {
	case ActionSendCommand:
		op, _ := hci.CommandOpcode(action.Command)
		s.trace.RecordTX(action.Command, op.String())
		log.Debugf("sending %s: % X", op, action.Command)
		if err := s.ctrl.SendCommand(action.Command); err != nil {
			return fmt.Errorf("send %s: %w", op, err)
		}
		log.Infof("%s sent", op)

	case ActionLockChannel:
		s.locker.LockChannel(action.Channel)
		log.Infof("locked to channel %d", action.Channel)
		s.consoleLine(fmt.Sprintf("Locked to channel: %d\n", action.Channel))

	case ActionStartConsumer:
		if err := s.consumer.Start(ctx); err != nil {
			return fmt.Errorf("start delivery task: %w", err)
		}
		log.Info("delivery task started")

	case ActionWait, ActionNone:
	}
	return nil
}

func (s *Sequencer) consoleLine(line string) {
	if _, err := io.WriteString(s.console, line); err != nil {
		s.log.Warnf("console write failed: %v", err)
		return
	}
	if f, ok := s.console.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			s.log.Warnf("console flush failed: %v", err)
		}
	}
}

func (s *Sequencer) fail(step Step, err error) error {
	s.log.WithField("step", step.String()).Errorf("initialization aborted: %v", err)
	return s.trace.WrapError(&blecap.StartupError{Step: step.String(), Err: err})
}
