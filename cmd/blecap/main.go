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

// Command blecap captures BLE advertising traffic on a Linux capture node
// and collects it into pcap files on the host side.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/go-blecap"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	logDir string
	debug  bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "blecap",
		Short: "Capture BLE advertising packets and collect them into pcap files",
		Long: `blecap runs on both ends of a capture setup.

On the capture node, "blecap capture" puts a Bluetooth controller into
passive scanning on one advertising channel and streams every received
packet over a serial link.

On the host, "blecap collect" reads one or more capture nodes and writes
their packets to a single pcap file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			blecap.SetDebugEnabled(opts.debug)
			if opts.logDir == "" {
				return nil
			}
			path, err := blecap.InitSessionLog(opts.logDir)
			if err != nil {
				return fmt.Errorf("failed to open session log: %w", err)
			}
			blecap.Infof("session log: %s", path)
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = blecap.CloseSessionLog()
		},
	}

	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug output")
	root.PersistentFlags().StringVar(&opts.logDir, "log-dir", "", "Write a rotating session log to this directory")

	root.AddCommand(newCaptureCmd(), newCollectCmd(), newPortsCmd())
	return root
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			_, _ = fmt.Fprint(os.Stderr, "\nShutting down gracefully...\n")
			cancel()
		case <-ctx.Done():
		}
	}()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var traced *blecap.TraceableError
		if errors.As(err, &traced) {
			_, _ = fmt.Fprint(os.Stderr, traced.FormatTrace())
		}
		return 1
	}
	return 0
}
