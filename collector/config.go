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
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ZaparooProject/go-blecap"
	"github.com/spf13/viper"
)

// ErrNoDevices is returned when a configuration names no enabled device.
var ErrNoDevices = errors.New("no enabled capture devices configured")

// DeviceConfig describes one capture node attached over serial.
type DeviceConfig struct {
	Name    string
	Path    string
	Baud    int
	Enabled bool
	Reset   bool
}

// Config is the collector's device list and output.
type Config struct {
	Output  string
	Devices []DeviceConfig
}

// Enabled returns the devices that are switched on.
func (c *Config) Enabled() []DeviceConfig {
	var out []DeviceConfig
	for _, d := range c.Devices {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// LoadConfig reads a device list. Every top-level table (or INI section)
// other than "default" is a device; keys are path, baud, enabled and reset.
// An optional top-level "output" names the pcap file.
//
//	[left]
//	path = /dev/ttyUSB0
//	baud = 115200
//	reset = true
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read collector config %s: %w", path, err)
	}
	return parseConfig(v)
}

func parseConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{Output: v.GetString("output")}
	if cfg.Output == "" {
		cfg.Output = v.GetString("default.output")
	}

	var names []string
	for key, val := range v.AllSettings() {
		if key == "default" {
			continue
		}
		if _, ok := val.(map[string]any); ok {
			names = append(names, key)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		key := func(k string) string { return name + "." + k }

		dev := DeviceConfig{
			Name:    name,
			Path:    strings.TrimSpace(v.GetString(key("path"))),
			Baud:    blecap.DefaultBaudRate,
			Enabled: true,
			Reset:   true,
		}
		if v.IsSet(key("baud")) {
			dev.Baud = v.GetInt(key("baud"))
		}
		if v.IsSet(key("enabled")) {
			dev.Enabled = v.GetBool(key("enabled"))
		}
		if v.IsSet(key("reset")) {
			dev.Reset = v.GetBool(key("reset"))
		}

		if dev.Path == "" {
			return nil, fmt.Errorf("%w: device %q has no path", blecap.ErrInvalidParameter, name)
		}
		if dev.Baud <= 0 {
			return nil, fmt.Errorf("%w: device %q baud %d", blecap.ErrInvalidParameter, name, dev.Baud)
		}
		cfg.Devices = append(cfg.Devices, dev)
	}

	if len(cfg.Enabled()) == 0 {
		return nil, ErrNoDevices
	}
	return cfg, nil
}
