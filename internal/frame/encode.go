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

package frame

import "encoding/binary"

// PutHeader writes the frame header for a payload of length n into dst,
// which must hold at least HeaderLen bytes.
func PutHeader(dst []byte, timestamp int64, n uint16) {
	_ = dst[HeaderLen-1]
	copy(dst[:MarkerLen], Marker)
	binary.LittleEndian.PutUint64(dst[MarkerLen:MarkerLen+TimestampLen], uint64(timestamp))
	binary.LittleEndian.PutUint16(dst[MarkerLen+TimestampLen:HeaderLen], n)
}

// AppendFrame appends a complete frame to dst and returns the extended slice.
func AppendFrame(dst []byte, timestamp int64, payload []byte) []byte {
	var hdr [HeaderLen]byte
	PutHeader(hdr[:], timestamp, uint16(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}
