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

package collector

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-blecap/internal/frame"
	"github.com/ZaparooProject/go-blecap/internal/syncutil"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// LinkTypeH4WithPHDR is LINKTYPE_BLUETOOTH_HCI_H4_WITH_PHDR: an H4 packet
// preceded by a 4-byte big-endian direction word.
const LinkTypeH4WithPHDR = layers.LinkType(201)

// Direction values for the pseudo-header.
const (
	DirectionSent     uint32 = 0
	DirectionReceived uint32 = 1
)

const phdrLen = 4

// PcapWriter writes captured H4 packets to a pcap stream. It is safe for
// concurrent use so several collectors can share one file.
type PcapWriter struct {
	w   *pcapgo.Writer
	buf []byte
	mu  syncutil.Mutex
}

// NewPcapWriter writes the pcap file header to w.
func NewPcapWriter(w io.Writer) (*PcapWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(phdrLen+frame.MaxPayloadLen, LinkTypeH4WithPHDR); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &PcapWriter{
		w:   pw,
		buf: make([]byte, phdrLen+frame.MaxPayloadLen),
	}, nil
}

// WritePacket records one packet received from a controller at ts.
func (p *PcapWriter) WritePacket(ts time.Time, packet []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := phdrLen + len(packet)
	if n > len(p.buf) {
		p.buf = make([]byte, n)
	}
	data := p.buf[:n]
	binary.BigEndian.PutUint32(data, DirectionReceived)
	copy(data[phdrLen:], packet)

	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: n,
		Length:        n,
	}
	if err := p.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write pcap packet: %w", err)
	}
	return nil
}
