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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	ErrBadMarker       = errors.New("frame marker missing")
	ErrShortFrame      = errors.New("short frame")
	ErrPayloadTooLarge = errors.New("frame payload too large")
	ErrLineTooLong     = errors.New("console line too long")
)

// Frame is one decoded capture record.
type Frame struct {
	Payload   []byte
	Timestamp int64
}

// Decoder reads frames from a byte stream. The stream may start with (or
// carry between frames) console text; Next skips anything up to the next
// marker and counts the skipped bytes.
type Decoder struct {
	r       *bufio.Reader
	skipped uint64
	resyncs uint64
}

// NewDecoder wraps r. Fragmented reads are fine.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 4*(HeaderLen+MaxPayloadLen))}
}

// Next returns the next frame. The payload is a fresh slice owned by the caller.
func (d *Decoder) Next() (Frame, error) {
	if err := d.sync(); err != nil {
		return Frame{}, err
	}

	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return Frame{}, unexpected(err)
	}
	ts, n, err := ParseHeader(hdr[:])
	if err != nil {
		return Frame{}, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return Frame{}, unexpected(err)
	}
	return Frame{Timestamp: ts, Payload: payload}, nil
}

// sync discards bytes until the buffered stream starts with the marker.
func (d *Decoder) sync() error {
	first := true
	for {
		peek, err := d.r.Peek(MarkerLen)
		if bytes.Equal(peek, []byte(Marker)) {
			return nil
		}
		if err != nil {
			if len(peek) > 0 && errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err //nolint:wrapcheck // io.EOF must stay comparable
		}
		if first {
			d.resyncs++
			first = false
		}
		_, _ = d.r.Discard(1)
		d.skipped++
	}
}

// ReadLine reads one newline-terminated console line without the line ending.
func (d *Decoder) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := d.r.ReadLine()
		if err != nil {
			return "", err //nolint:wrapcheck // io.EOF must stay comparable
		}
		line = append(line, chunk...)
		if len(line) > MaxLineLen {
			return "", fmt.Errorf("%w: over %d bytes", ErrLineTooLong, MaxLineLen)
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

// Skipped returns how many bytes were dropped while searching for a marker.
func (d *Decoder) Skipped() uint64 { return d.skipped }

// Resyncs returns how many times the decoder had to search for a marker.
func (d *Decoder) Resyncs() uint64 { return d.resyncs }

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
