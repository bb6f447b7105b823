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

// Package hci encodes the controller configuration commands used during
// capture start-up and decodes the few events needed for command flow control.
//
// Commands are returned as complete H4 packets (packet indicator, opcode,
// parameter length, parameters) [Vol 4, Part A, 2] [Vol 4, Part E, 5.4.1].
package hci

import (
	"encoding/binary"
	"fmt"
)

// PacketType is the H4 packet indicator preceding every HCI packet.
type PacketType uint8

const (
	PacketTypeCommand PacketType = 0x01
	PacketTypeACLData PacketType = 0x02
	PacketTypeSCOData PacketType = 0x03
	PacketTypeEvent   PacketType = 0x04
	PacketTypeVendor  PacketType = 0xFF
)

// Opcode is a 16-bit HCI command opcode (OGF << 10 | OCF).
type Opcode uint16

const (
	OpcodeNOP                 Opcode = 0x0000
	OpcodeSetEventMask        Opcode = 0x0C01
	OpcodeReset               Opcode = 0x0C03
	OpcodeLESetScanParameters Opcode = 0x200B
	OpcodeLESetScanEnable     Opcode = 0x200C
)

const (
	ogfVendor                    = 0x3F
	commandHeaderLen             = 4 // indicator + opcode + parameter length
	maxCommandParameterLen       = 255
	leSetScanParametersParamsLen = 7
	leSetScanEnableParamsLen     = 2
)

// OGF returns the opcode group field.
func (o Opcode) OGF() uint8 { return uint8(o >> 10) }

// OCF returns the opcode command field.
func (o Opcode) OCF() uint16 { return uint16(o) & 0x03FF }

func (o Opcode) String() string {
	switch o {
	case OpcodeSetEventMask:
		return "Set Event Mask"
	case OpcodeReset:
		return "Reset"
	case OpcodeLESetScanParameters:
		return "LE Set Scan Parameters"
	case OpcodeLESetScanEnable:
		return "LE Set Scan Enable"
	case OpcodeNOP:
		return "NOP"
	default:
		if o.OGF() == ogfVendor {
			return fmt.Sprintf("Vendor 0x%03X", o.OCF())
		}
		return fmt.Sprintf("Opcode 0x%04X", uint16(o))
	}
}

// IsVendor reports whether o is in the vendor-specific group.
func (o Opcode) IsVendor() bool { return o.OGF() == ogfVendor }

// VendorOpcode builds an opcode in the vendor-specific group.
func VendorOpcode(ocf uint16) Opcode {
	return Opcode(ogfVendor<<10 | ocf&0x03FF)
}

// Event mask bits [Vol 4, Part E, 7.3.1].
const (
	EventMaskNone   uint64 = 0
	EventMaskLEMeta uint64 = 1 << 61
)

// Scan types and policies for LE Set Scan Parameters [Vol 4, Part E, 7.8.10].
const (
	ScanTypePassive uint8 = 0x00
	ScanTypeActive  uint8 = 0x01

	OwnAddressPublic uint8 = 0x00
	OwnAddressRandom uint8 = 0x01

	FilterPolicyAcceptAll uint8 = 0x00
)

// ScanParameters holds the LE Set Scan Parameters fields. Interval and
// Window are expressed in 0.625 ms controller slots.
type ScanParameters struct {
	Interval       uint16
	Window         uint16
	Type           uint8
	OwnAddressType uint8
	FilterPolicy   uint8
}

// Validate checks the ranges allowed by the Bluetooth Core.
func (p ScanParameters) Validate() error {
	if p.Interval < 0x0004 || p.Interval > 0x4000 {
		return fmt.Errorf("scan interval 0x%04X out of range", p.Interval)
	}
	if p.Window < 0x0004 || p.Window > 0x4000 {
		return fmt.Errorf("scan window 0x%04X out of range", p.Window)
	}
	if p.Window > p.Interval {
		return fmt.Errorf("scan window 0x%04X larger than interval 0x%04X", p.Window, p.Interval)
	}
	if p.Type > ScanTypeActive {
		return fmt.Errorf("invalid scan type 0x%02X", p.Type)
	}
	return nil
}

// Command builds an H4 command packet for op with the given parameters.
func Command(op Opcode, params ...byte) ([]byte, error) {
	if len(params) > maxCommandParameterLen {
		return nil, fmt.Errorf("%s: %d parameter bytes exceed %d", op, len(params), maxCommandParameterLen)
	}
	b := make([]byte, commandHeaderLen+len(params))
	b[0] = byte(PacketTypeCommand)
	binary.LittleEndian.PutUint16(b[1:3], uint16(op))
	b[3] = byte(len(params))
	copy(b[commandHeaderLen:], params)
	return b, nil
}

func mustCommand(op Opcode, params ...byte) []byte {
	b, err := Command(op, params...)
	if err != nil {
		panic(err)
	}
	return b
}

// Reset encodes HCI_Reset [Vol 4, Part E, 7.3.2].
func Reset() []byte {
	return mustCommand(OpcodeReset)
}

// SetEventMask encodes HCI_Set_Event_Mask [Vol 4, Part E, 7.3.1].
func SetEventMask(mask uint64) []byte {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], mask)
	return mustCommand(OpcodeSetEventMask, p[:]...)
}

// LESetScanParameters encodes HCI_LE_Set_Scan_Parameters [Vol 4, Part E, 7.8.10].
func LESetScanParameters(p ScanParameters) []byte {
	var b [leSetScanParametersParamsLen]byte
	b[0] = p.Type
	binary.LittleEndian.PutUint16(b[1:3], p.Interval)
	binary.LittleEndian.PutUint16(b[3:5], p.Window)
	b[5] = p.OwnAddressType
	b[6] = p.FilterPolicy
	return mustCommand(OpcodeLESetScanParameters, b[:]...)
}

// LESetScanEnable encodes HCI_LE_Set_Scan_Enable [Vol 4, Part E, 7.8.11].
func LESetScanEnable(enable, filterDuplicates bool) []byte {
	var b [leSetScanEnableParamsLen]byte
	if enable {
		b[0] = 0x01
	}
	if filterDuplicates {
		b[1] = 0x01
	}
	return mustCommand(OpcodeLESetScanEnable, b[:]...)
}

// Vendor encodes a vendor-specific command.
func Vendor(ocf uint16, params ...byte) ([]byte, error) {
	return Command(VendorOpcode(ocf), params...)
}

// CommandOpcode returns the opcode of an encoded command packet.
func CommandOpcode(b []byte) (Opcode, bool) {
	if len(b) < commandHeaderLen || PacketType(b[0]) != PacketTypeCommand {
		return 0, false
	}
	return Opcode(binary.LittleEndian.Uint16(b[1:3])), true
}
