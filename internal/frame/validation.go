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

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ParseHeader validates a frame header and returns its timestamp and
// payload length.
func ParseHeader(hdr []byte) (timestamp int64, n uint16, err error) {
	if len(hdr) < HeaderLen {
		return 0, 0, fmt.Errorf("%w: header is %d bytes", ErrShortFrame, len(hdr))
	}
	if !bytes.Equal(hdr[:MarkerLen], []byte(Marker)) {
		return 0, 0, ErrBadMarker
	}
	timestamp = int64(binary.LittleEndian.Uint64(hdr[MarkerLen : MarkerLen+TimestampLen]))
	n = binary.LittleEndian.Uint16(hdr[MarkerLen+TimestampLen : HeaderLen])
	if int(n) > MaxPayloadLen {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	return timestamp, n, nil
}
