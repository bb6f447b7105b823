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

package hci

import (
	"encoding/binary"
	"errors"
)

// Event codes [Vol 4, Part E, 7.7].
const (
	EventCommandComplete uint8 = 0x0E
	EventCommandStatus   uint8 = 0x0F
	EventLEMeta          uint8 = 0x3E

	SubeventLEAdvertisingReport uint8 = 0x02

	eventHeaderLen = 3 // indicator + event code + parameter length
)

// MaxEventSize is the largest H4 event packet: indicator, event code,
// parameter length and 255 parameter bytes [Vol 4, Part E, 5.4.4].
const MaxEventSize = eventHeaderLen + 255

var errShortEvent = errors.New("hci: short event packet")

// Event is a raw H4 event packet, indicator included.
type Event []byte

// ParseEvent checks that b holds a complete H4 event packet.
func ParseEvent(b []byte) (Event, error) {
	if len(b) < eventHeaderLen || PacketType(b[0]) != PacketTypeEvent {
		return nil, errShortEvent
	}
	if int(b[2]) != len(b)-eventHeaderLen {
		return nil, errShortEvent
	}
	return Event(b), nil
}

// Code returns the event code.
func (e Event) Code() uint8 { return e[1] }

// Params returns the event parameters.
func (e Event) Params() []byte { return e[eventHeaderLen:] }

// CommandFlow reports the controller's command credits and the opcode it
// acknowledged. ok is false for events that carry no flow control information.
func (e Event) CommandFlow() (credits uint8, op Opcode, status uint8, ok bool) {
	p := e.Params()
	switch e.Code() {
	case EventCommandComplete:
		// Num_HCI_Command_Packets, Command_Opcode, Return_Parameters (status first)
		if len(p) < 3 {
			return 0, 0, 0, false
		}
		if len(p) > 3 {
			status = p[3]
		}
		return p[0], Opcode(binary.LittleEndian.Uint16(p[1:3])), status, true
	case EventCommandStatus:
		// Status, Num_HCI_Command_Packets, Command_Opcode
		if len(p) < 4 {
			return 0, 0, 0, false
		}
		return p[1], Opcode(binary.LittleEndian.Uint16(p[2:4])), p[0], true
	default:
		return 0, 0, 0, false
	}
}

// IsCommandComplete reports whether the packet completes op with a zero status.
func IsCommandComplete(b []byte, op Opcode) bool {
	e, err := ParseEvent(b)
	if err != nil || e.Code() != EventCommandComplete {
		return false
	}
	_, got, status, ok := e.CommandFlow()
	return ok && got == op && status == 0x00
}
