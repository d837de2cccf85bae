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

// Package kernel detects controllers exposed by the pn5xx_i2c and nxp-nci
// kernel drivers.
package kernel

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ZaparooProject/go-nfctag/detection"
	"github.com/ZaparooProject/go-nfctag/transport/kernel"
)

const probeTimeout = time.Second

// Device nodes created by the supported drivers.
var nodePatterns = []string{"/dev/pn5*", "/dev/nxp-nci", "/dev/nfc*"}

type detector struct {
	glob  func(pattern string) ([]string, error)
	probe func(ctx context.Context, path string) error
	goos  string
}

// New creates a new kernel device detector
func New() detection.Detector {
	return &detector{glob: filepath.Glob, probe: probeDevice, goos: runtime.GOOS}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "kernel"
}

// Detect lists driver nodes. A node only exists when a driver bound to a
// controller, so Passive results are Medium.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if d.goos != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	seen := make(map[string]bool)
	var devices []detection.DeviceInfo
	for _, pattern := range nodePatterns {
		matches, err := d.glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to match %s: %w", pattern, err)
		}
		for _, path := range matches {
			if ctx.Err() != nil || seen[path] || detection.IsPathIgnored(path, opts.IgnorePaths) {
				continue
			}
			seen[path] = true

			device := detection.DeviceInfo{
				Transport:  "kernel",
				Path:       path,
				Name:       filepath.Base(path),
				Confidence: detection.Medium,
				Metadata:   map[string]string{},
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
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func probeDevice(ctx context.Context, path string) error {
	t, err := kernel.New(path)
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()
	return detection.Probe(ctx, t)
}
