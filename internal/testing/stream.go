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

package testing

import (
	"fmt"

	"github.com/ZaparooProject/go-blecap/internal/frame"
)

// ScanEnableComplete is the Command Complete event for LE Set Scan Enable.
var ScanEnableComplete = []byte{0x04, 0x0E, 0x04, 0x05, 0x0C, 0x20, 0x00}

// AdvertisingReport builds a minimal LE Advertising Report event whose data
// bytes are all fill, so reports are easy to tell apart in tests.
func AdvertisingReport(fill byte, dataLen int) []byte {
	// subevent, num reports, event type, address type, address(6), data len, data, rssi
	params := make([]byte, 0, 11+dataLen+1)
	params = append(params, 0x02, 0x01, 0x00, 0x00, fill, fill, fill, fill, fill, fill, byte(dataLen))
	for range dataLen {
		params = append(params, fill)
	}
	params = append(params, 0xC8)
	return append([]byte{0x04, 0x3E, byte(len(params))}, params...)
}

// StreamFrame is one frame in a synthetic capture stream.
type StreamFrame struct {
	Payload   []byte
	Timestamp int64
}

// CaptureStream builds the byte stream a capture node writes to its serial
// link: boot line, channel line, then frames.
func CaptureStream(bootMillis int64, channel uint8, frames ...StreamFrame) []byte {
	out := []byte(fmt.Sprintf("Capture started at: %d\n", bootMillis))
	out = append(out, fmt.Sprintf("Locked to channel: %d\n", channel)...)
	for _, f := range frames {
		out = frame.AppendFrame(out, f.Timestamp, f.Payload)
	}
	return out
}
