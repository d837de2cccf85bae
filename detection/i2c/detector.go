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

// Package i2c detects NCI controllers on Linux I2C buses.
package i2c

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ZaparooProject/go-nfctag/detection"
	"github.com/ZaparooProject/go-nfctag/transport/i2c"
)

const probeTimeout = time.Second

// detector implements the Detector interface for I2C devices
type detector struct {
	glob  func(pattern string) ([]string, error)
	probe func(ctx context.Context, path string) error
	goos  string
}

// New creates a new I2C detector
func New() detection.Detector {
	return &detector{glob: filepath.Glob, probe: probeDevice, goos: runtime.GOOS}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

// Detect reports a controller at the default address of every bus. Without
// a probe nothing is known about the bus, so Passive results are Low.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if d.goos != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}
	buses, err := d.glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate I2C buses: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if ctx.Err() != nil {
			break
		}
		path := fmt.Sprintf("%s:0x%02x", bus, i2c.DefaultAddress)
		if detection.IsPathIgnored(path, opts.IgnorePaths) || detection.IsPathIgnored(bus, opts.IgnorePaths) {
			continue
		}
		device := detection.DeviceInfo{
			Transport:  "i2c",
			Path:       path,
			Name:       filepath.Base(bus),
			Confidence: detection.Low,
			Metadata:   map[string]string{"address": fmt.Sprintf("0x%02x", i2c.DefaultAddress)},
		}
		if opts.Mode == detection.Safe {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := d.probe(probeCtx, path)
			cancel()
			if err != nil {
				continue
			}
			device.Confidence = detection.High
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func probeDevice(ctx context.Context, path string) error {
	t, err := i2c.New(path)
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()
	return detection.Probe(ctx, t)
}
