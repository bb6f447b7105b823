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
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of JitteryReader.
type JitterConfig struct {
	MaxLatency       time.Duration
	FragmentMinBytes int
	Seed             uint64
	FragmentReads    bool
}

// DefaultJitterConfig returns a configuration that fragments reads without
// adding latency, which keeps tests fast.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryReader wraps an io.Reader to simulate a USB-UART bridge delivering
// the capture stream in unpredictable chunks. Data is buffered so nothing
// read from the backend is lost when a read is cut short.
type JitteryReader struct {
	backend io.Reader
	rng     *rand.Rand
	pending []byte
	config  JitterConfig
	reads   int
}

// NewJitteryReader wraps backend with jitter simulation.
func NewJitteryReader(backend io.Reader, config JitterConfig) *JitteryReader {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryReader{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
	}
}

// Read returns between FragmentMinBytes and len(buf) bytes of buffered data.
func (j *JitteryReader) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.pending) == 0 {
		chunk := make([]byte, len(buf))
		n, err := j.backend.Read(chunk)
		if n == 0 {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		j.pending = chunk[:n]
	}

	n := len(j.pending)
	if n > len(buf) {
		n = len(buf)
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}
	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	j.reads++
	return n, nil
}

// Reads returns how many reads returned data.
func (j *JitteryReader) Reads() int {
	return j.reads
}
