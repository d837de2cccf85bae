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

// Package uart detects NCI controllers behind USB serial bridges and
// built-in serial ports.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-nfctag/detection"
	"github.com/ZaparooProject/go-nfctag/transport/uart"
)

const probeTimeout = 2 * time.Second

// detector implements the Detector interface for UART devices.
type detector struct {
	// listPorts and probe are replaced in tests.
	listPorts func() ([]*enumerator.PortDetails, error)
	probe     func(ctx context.Context, path string) error
}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{
		listPorts: enumerator.GetDetailedPortsList,
		probe:     probeDevice,
	}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect searches for NCI controllers on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	details, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range filterPorts(toSerialPorts(details), opts) {
		if ctx.Err() != nil {
			break
		}
		if device, ok := d.processPort(ctx, port, opts.Mode); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

func toSerialPorts(details []*enumerator.PortDetails) []serialPort {
	ports := make([]serialPort, 0, len(details))
	for _, p := range details {
		port := serialPort{
			Path:         p.Name,
			Product:      p.Product,
			SerialNumber: p.SerialNumber,
			IsUSB:        p.IsUSB,
		}
		if p.IsUSB && p.VID != "" {
			port.VIDPID = strings.ToUpper(p.VID + ":" + p.PID)
		}
		ports = append(ports, port)
	}
	return ports
}

// filterPorts removes blocked and ignored ports.
func filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

// processPort rates one port. Passive mode keeps only likely controllers;
// Safe mode keeps the ports that answer a reset.
func (d *detector) processPort(ctx context.Context, port serialPort, mode detection.Mode) (detection.DeviceInfo, bool) {
	likely := isLikelyController(port)
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       portName(port),
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if likely {
		device.Confidence = detection.Medium
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}

	if mode == detection.Passive {
		return device, likely
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := d.probe(probeCtx, port.Path); err != nil {
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	return device, true
}

func portName(port serialPort) string {
	if port.Product != "" {
		return port.Product
	}
	return port.Path
}

// USB serial bridges found on NCI controller boards.
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

var controllerKeywords = []string{"nfc", "nci", "pn7", "rfid", "13.56"}

// isLikelyController checks if a serial port is likely to host an NCI controller
func isLikelyController(port serialPort) bool {
	for _, known := range knownBridges {
		if port.VIDPID == known {
			return true
		}
	}
	product := strings.ToLower(port.Product)
	for _, keyword := range controllerKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// probeDevice opens the port once and asks for a reset. A failed probe is
// not retried: the port may belong to something that is not a controller.
func probeDevice(ctx context.Context, path string) error {
	t, err := uart.New(path, uart.DefaultBaudRate)
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()
	return detection.Probe(ctx, t)
}
