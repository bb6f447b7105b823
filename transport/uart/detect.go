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

package uart

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// knownBridges are USB-serial bridges found on the boards capture nodes
// are usually built from.
var knownBridges = map[string]string{
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "QinHeng CH340",
	"1A86:55D4": "QinHeng CH9102",
	"0403:6001": "FTDI FT232",
	"067B:2303": "Prolific PL2303",
	"303A:1001": "Espressif USB JTAG/serial",
}

// PortInfo describes a serial port and the USB device behind it, if any.
type PortInfo struct {
	Name         string
	VIDPID       string
	Product      string
	SerialNumber string
	Bridge       string
	IsUSB        bool
}

// Likely reports whether the port is behind a known USB-serial bridge.
func (p PortInfo) Likely() bool { return p.Bridge != "" }

// DetectOptions filters the ports Detect returns.
type DetectOptions struct {
	// Blocklist holds VID:PID pairs (hex, case-insensitive) to skip.
	Blocklist []string
	// IgnorePaths holds port paths to skip.
	IgnorePaths []string
	// All includes ports that are not behind a known bridge.
	All bool
}

// Detect lists serial ports, known bridges first.
func Detect(opts DetectOptions) ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return classifyPorts(details, opts), nil
}

func classifyPorts(details []*enumerator.PortDetails, opts DetectOptions) []PortInfo {
	var ports []PortInfo
	for _, d := range details {
		info := PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
		}
		if d.IsUSB && d.VID != "" && d.PID != "" {
			info.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
			info.Bridge = knownBridges[info.VIDPID]
		}

		if info.VIDPID != "" && isBlocked(info.VIDPID, opts.Blocklist) {
			continue
		}
		if isPathIgnored(info.Name, opts.IgnorePaths) {
			continue
		}
		if !opts.All && !info.Likely() {
			continue
		}
		ports = append(ports, info)
	}

	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].Likely() != ports[j].Likely() {
			return ports[i].Likely()
		}
		return ports[i].Name < ports[j].Name
	})
	return ports
}

// isBlocked checks if a USB device is in the blocklist.
func isBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// isPathIgnored compares cleaned, case-folded paths so Windows COM names
// match regardless of case.
func isPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	normalized := strings.ToLower(filepath.Clean(devicePath))
	for _, p := range ignorePaths {
		if p != "" && strings.ToLower(filepath.Clean(p)) == normalized {
			return true
		}
	}
	return false
}
