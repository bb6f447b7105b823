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
	"testing"
	"time"

	"github.com/ZaparooProject/go-blecap/internal/frame"
	"github.com/ZaparooProject/go-blecap/internal/hci"
	"github.com/stretchr/testify/assert"
)

func TestCompiledDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint8(37), DefaultChannel)
	assert.Equal(t, 10, DefaultRingSlots)
	assert.Equal(t, 115200, DefaultBaudRate)
	assert.Equal(t, hci.MaxEventSize, MaxEventSize, "a slot must hold any controller event")
	assert.LessOrEqual(t, MaxEventSize, frame.MaxPayloadLen)
	assert.NoError(t, hci.ScanParameters{
		Interval: DefaultScanInterval,
		Window:   DefaultScanWindow,
	}.Validate())
}

func TestUptime_Monotonic(t *testing.T) {
	t.Parallel()

	a := Uptime()
	time.Sleep(2 * time.Millisecond)
	b := Uptime()
	assert.GreaterOrEqual(t, a, int64(0))
	assert.GreaterOrEqual(t, b-a, int64(2000))
}
