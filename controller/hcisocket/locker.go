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

package hcisocket

import (
	blecap "github.com/ZaparooProject/go-blecap"
	"github.com/ZaparooProject/go-blecap/internal/hci"
)

// commandSender is the part of a controller a locker needs.
type commandSender interface {
	SendCommand(packet []byte) error
}

// VendorLocker locks the controller to one channel with a vendor-specific
// command whose single parameter is the channel number. The command is
// fire-and-forget: failures are logged, never returned.
type VendorLocker struct {
	sender commandSender
	ocf    uint16
}

// NewVendorLocker creates a locker sending vendor command ocf (OGF 0x3F).
func NewVendorLocker(sender commandSender, ocf uint16) *VendorLocker {
	return &VendorLocker{sender: sender, ocf: ocf}
}

// LockChannel implements blecap.ChannelLocker.
func (l *VendorLocker) LockChannel(channel uint8) {
	cmd, err := hci.Vendor(l.ocf, channel)
	if err != nil {
		blecap.Errorf("channel lock: %v", err)
		return
	}
	if err := l.sender.SendCommand(cmd); err != nil {
		blecap.Errorf("channel lock via %s: %v", hci.VendorOpcode(l.ocf), err)
		return
	}
	blecap.Debugf("channel lock %d sent via %s", channel, hci.VendorOpcode(l.ocf))
}

// NoLock is used for controllers without a channel lock command. The
// controller keeps hopping across the advertising channels.
var NoLock = blecap.ChannelLockerFunc(func(channel uint8) {
	blecap.Warnf("controller has no channel lock; channel %d not enforced, capturing on all advertising channels", channel)
})
