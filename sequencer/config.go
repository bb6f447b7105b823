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
	"time"

	blecap "github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/internal/hci"
)

// Config holds the radio configuration applied once at startup.
type Config struct {
	// PollInterval is how long the sequencer yields when the controller
	// is not ready for the next command.
	PollInterval time.Duration
	// EventMask selects the controller events delivered to the host.
	EventMask uint64
	// ScanInterval and ScanWindow are in 0.625 ms controller slots.
	ScanInterval uint16
	ScanWindow   uint16
	// Channel is the single advertising channel to lock to.
	Channel uint8
	// ActiveScan sends scan requests. Capture nodes scan passively.
	ActiveScan bool
	// FilterDuplicates lets the controller suppress repeated advertisements.
	FilterDuplicates bool
}

// DefaultConfig returns the capture node configuration: LE meta events only,
// passive continuous scanning, channel 37, every advertisement delivered.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 10 * time.Millisecond,
		EventMask:    hci.EventMaskLEMeta,
		ScanInterval: blecap.DefaultScanInterval,
		ScanWindow:   blecap.DefaultScanWindow,
		Channel:      blecap.DefaultChannel,
	}
}

// scanParameters converts the config to controller fields.
func (c *Config) scanParameters() hci.ScanParameters {
	p := hci.ScanParameters{
		Interval:       c.ScanInterval,
		Window:         c.ScanWindow,
		Type:           hci.ScanTypePassive,
		OwnAddressType: hci.OwnAddressPublic,
		FilterPolicy:   hci.FilterPolicyAcceptAll,
	}
	if c.ActiveScan {
		p.Type = hci.ScanTypeActive
	}
	return p
}

// Validate checks the configuration before any command is sent.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", blecap.ErrInvalidParameter)
	}
	if err := c.scanParameters().Validate(); err != nil {
		return fmt.Errorf("%w: %w", blecap.ErrInvalidParameter, err)
	}
	if c.Channel < 37 || c.Channel > 39 {
		return fmt.Errorf("%w: channel %d is not an advertising channel", blecap.ErrInvalidParameter, c.Channel)
	}
	return nil
}
