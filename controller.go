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

package blecap

import "context"

// Controller is the radio controller surface the capture node drives. It
// accepts one command at a time.
type Controller interface {
	// SendCommand hands one encoded HCI command to the controller. It
	// returns ErrControllerBusy if a previous command is still in flight.
	SendCommand(packet []byte) error

	// ReadyForCommand reports whether the controller can take another command.
	ReadyForCommand() bool

	// RegisterIntake installs the callback invoked for every packet the
	// controller delivers to the host. The callback must not block.
	RegisterIntake(fn func(packet []byte) error)
}

// ChannelLocker restricts reception to exactly one advertising channel.
// The call is fire-and-forget.
type ChannelLocker interface {
	LockChannel(channel uint8)
}

// ChannelLockerFunc adapts a function to ChannelLocker.
type ChannelLockerFunc func(channel uint8)

// LockChannel implements ChannelLocker.
func (f ChannelLockerFunc) LockChannel(channel uint8) { f(channel) }

// ConsumerStarter launches the delivery task.
type ConsumerStarter interface {
	Start(ctx context.Context) error
}
