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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/controller/hcisocket"
	"github.com/ZaparooProject/go-blecap/sequencer"
	"github.com/ZaparooProject/go-blecap/transport/uart"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type captureOptions struct {
	port          string
	statsInterval time.Duration
	hciIndex      int
	baud          int
	lockOCF       uint16
}

func newCaptureCmd() *cobra.Command {
	opts := &captureOptions{}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Scan one advertising channel and stream packets over serial",
		Long: `Take exclusive control of a Bluetooth controller, lock it to channel 37 and
stream every received advertising packet as a "BLE:" frame over the serial
port.

Examples:
  blecap capture --port /dev/ttyAMA0
  blecap capture --hci 1 --port /dev/ttyUSB0 --lock-ocf 0x0123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCapture(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "Serial port to stream frames on")
	cmd.Flags().IntVar(&opts.hciIndex, "hci", 0, "HCI device index (hciN)")
	cmd.Flags().IntVar(&opts.baud, "baud", blecap.DefaultBaudRate, "Serial baud rate")
	cmd.Flags().Uint16Var(&opts.lockOCF, "lock-ocf", 0, "Vendor command OCF that locks the controller to one channel (0 = none)")
	cmd.Flags().DurationVar(&opts.statsInterval, "stats-interval", 0, "Log pipeline statistics at this interval (0 = only on exit)")
	_ = cmd.MarkFlagRequired("port")

	return cmd
}

// captureController is the controller surface a capture session needs.
type captureController interface {
	blecap.Controller
	Done() <-chan struct{}
	Err() error
}

func runCapture(ctx context.Context, opts *captureOptions) error {
	var out *uart.Transport
	err := blecap.RetryWithConfig(ctx, blecap.OpenRetryConfig(), func() error {
		var err error
		out, err = uart.New(opts.port, uart.WithBaudRate(opts.baud))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			blecap.Warnf("failed to close %s: %v", out.Name(), err)
		}
	}()

	var ctrl *hcisocket.Controller
	retry := blecap.OpenRetryConfig()
	retry.OnRetry = func(attempt int, err error) {
		blecap.Warnf("hci%d busy (attempt %d): %v", opts.hciIndex, attempt, err)
	}
	err = blecap.RetryWithConfig(ctx, retry, func() error {
		var err error
		ctrl, err = hcisocket.Open(opts.hciIndex)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to open controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			blecap.Warnf("failed to close %s: %v", ctrl.Name(), err)
		}
	}()

	var locker blecap.ChannelLocker = hcisocket.NoLock
	if opts.lockOCF != 0 {
		locker = hcisocket.NewVendorLocker(ctrl, opts.lockOCF)
	}

	stats, err := capture(ctx, out, ctrl, locker, ctrl.Name(), opts.statsInterval)
	logStats(stats, "capture stopped")
	return err
}

// capture writes the boot line, runs initialization and then keeps the
// pipeline running until ctx ends or the controller goes away.
func capture(
	ctx context.Context,
	out blecap.Transport,
	ctrl captureController,
	locker blecap.ChannelLocker,
	name string,
	statsInterval time.Duration,
) (blecap.Stats, error) {
	if _, err := fmt.Fprintf(out, "Capture started at: %d\n", blecap.Uptime()/1000); err != nil {
		return blecap.Stats{}, fmt.Errorf("failed to write boot line: %w", err)
	}
	if err := out.Flush(); err != nil {
		return blecap.Stats{}, fmt.Errorf("failed to flush boot line: %w", err)
	}

	p, err := blecap.NewPipeline(out)
	if err != nil {
		return blecap.Stats{}, err
	}
	defer func() { _ = p.Close() }()

	ctrl.RegisterIntake(p.Intake)

	seq, err := sequencer.New(ctrl, locker, p, sequencer.DefaultConfig(),
		sequencer.WithConsole(out), sequencer.WithTraceName(name))
	if err != nil {
		return p.Stats(), err
	}
	if err := seq.Run(ctx); err != nil {
		return p.Stats(), err
	}
	blecap.Infof("capturing on %s", name)

	var tick <-chan time.Time
	if statsInterval > 0 {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return p.Stats(), nil
		case <-ctrl.Done():
			cause := ctrl.Err()
			if cause == nil {
				cause = blecap.ErrControllerNotOpen
			}
			return p.Stats(), fmt.Errorf("controller %s stopped: %w", name, cause)
		case <-tick:
			logStats(p.Stats(), "pipeline")
		}
	}
}

func logStats(s blecap.Stats, msg string) {
	blecap.Logger().WithFields(logrus.Fields{
		"accepted":         s.Accepted,
		"delivered":        s.Delivered,
		"dropped_full":     s.DroppedFull,
		"dropped_oversize": s.DroppedOversize,
		"transport_errors": s.TransportErrors,
		"in_flight":        s.InFlight,
	}).Info(msg)
}
