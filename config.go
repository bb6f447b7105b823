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

import (
	"time"

	"github.com/ZaparooProject/go-blecap/internal/frame"
)

// Compiled-in capture parameters.
const (
	// DefaultChannel is the single advertising channel the capture node
	// locks to.
	DefaultChannel uint8 = 37

	// DefaultScanInterval and DefaultScanWindow are in 0.625 ms controller
	// slots. Equal values give continuous reception.
	DefaultScanInterval uint16 = 0x0050
	DefaultScanWindow   uint16 = 0x0050

	// DefaultRingSlots bounds the number of packets in flight between the
	// intake and the delivery task.
	DefaultRingSlots = 10

	// MaxEventSize is the largest controller event a slot can hold.
	MaxEventSize = frame.MaxPayloadLen

	// DefaultBaudRate is the serial link speed to the collecting host.
	DefaultBaudRate = 115200
)

var bootTime = time.Now()

// Clock returns a monotonic timestamp in microseconds.
type Clock func() int64

// Uptime returns microseconds since process start. It is monotonic.
func Uptime() int64 {
	return time.Since(bootTime).Microseconds()
}
