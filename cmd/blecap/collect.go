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
	"os"
	"time"

	"github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/collector"
	"github.com/ZaparooProject/go-blecap/transport/uart"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultOutput = "capture.pcap"

type collectOptions struct {
	config   string
	output   string
	backoff  time.Duration
	attempts int
}

func newCollectCmd() *cobra.Command {
	opts := &collectOptions{}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Read capture nodes and write their packets to a pcap file",
		Long: `Read every enabled capture node listed in the configuration file and write
the packets to one pcap file (LINKTYPE_BLUETOOTH_HCI_H4_WITH_PHDR).

The configuration may be INI, YAML or TOML. Each section is one device:

  [left]
  path = /dev/ttyUSB0
  baud = 115200
  reset = true

Examples:
  blecap collect -c devices.ini
  blecap collect -c devices.yaml -o run1.pcap`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.config, "config", "c", "devices.ini", "Path to the device configuration file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "pcap file to write (overrides the configuration)")
	cmd.Flags().DurationVar(&opts.backoff, "reconnect-backoff", time.Second, "Wait between reopening a failed device")
	cmd.Flags().IntVar(&opts.attempts, "reconnect-attempts", 3, "Consecutive failed sessions before a device is given up")

	return cmd
}

func runCollect(ctx context.Context, opts *collectOptions) error {
	cfg, err := collector.LoadConfig(opts.config)
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = cfg.Output
	}
	if output == "" {
		output = defaultOutput
	}

	f, err := os.Create(output) //nolint:gosec // path chosen by the operator
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			blecap.Warnf("failed to close %s: %v", output, err)
		}
	}()

	pw, err := collector.NewPcapWriter(f)
	if err != nil {
		return err
	}

	var runners []*collector.Recoverer
	for _, dev := range cfg.Enabled() {
		runners = append(runners, collector.NewRecoverer(dev, pw, nil, opts.backoff, opts.attempts))
	}

	blecap.Infof("collecting %d device(s) into %s", len(runners), output)
	err = collector.RunAll(ctx, runners...)

	for _, r := range runners {
		s := r.Stats()
		blecap.Logger().WithFields(logrus.Fields{
			"device":     r.Name(),
			"sessions":   r.Sessions(),
			"frames":     s.Frames,
			"bad_frames": s.BadFrames,
		}).Info("collector stopped")
	}
	return err
}

func newPortsCmd() *cobra.Command {
	opts := uart.DetectOptions{}

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports that may have a capture node attached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := uart.Detect(opts)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, p := range ports {
				desc := p.Bridge
				if desc == "" {
					desc = p.Product
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.VIDPID, desc)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "Include ports without a known USB-serial bridge")
	cmd.Flags().StringSliceVar(&opts.Blocklist, "block", nil, "VID:PID pairs to skip")
	cmd.Flags().StringSliceVar(&opts.IgnorePaths, "ignore", nil, "Port paths to skip")

	return cmd
}
