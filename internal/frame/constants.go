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

// Package frame implements the host wire format for captured packets:
//
//	"BLE:" | timestamp (int64 LE, µs since boot) | length (uint16 LE) | payload
package frame

// Marker starts every frame on the wire.
const Marker = "BLE:"

// Frame layout
const (
	MarkerLen    = len(Marker)
	TimestampLen = 8
	LengthLen    = 2
	HeaderLen    = MarkerLen + TimestampLen + LengthLen
)

// MaxPayloadLen bounds the payload of a single frame. It matches the largest
// H4 event packet a controller can hand over (3 header bytes + 255).
const MaxPayloadLen = 3 + 255

// MaxLineLen bounds console lines read between frames.
const MaxLineLen = 256
