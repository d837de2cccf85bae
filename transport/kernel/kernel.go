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

// Package kernel implements an NCI transport on the character device of a
// kernel NFC driver such as pn5xx_i2c or nxp-nci. The driver does the bus
// work; packets are read and written as plain bytes.
package kernel

import "time"

// DefaultDevice is the device node of the pn5xx_i2c driver.
const DefaultDevice = "/dev/pn544"

const (
	// pn544SetPower is _IOW(0xE9, 0x01, unsigned int).
	pn544SetPower = 0x4004E901

	powerOff = 0
	powerOn  = 1

	powerSettle         = 10 * time.Millisecond
	defaultPollInterval = 50 * time.Millisecond
	writeRetries        = 3
	writeRetryDelay     = 5 * time.Millisecond
	traceSize           = 16
)

// Option configures a Transport.
type Option func(*options)

type options struct {
	pollInterval time.Duration
	powerCycle   bool
}

// WithPowerCycle switches the controller off and on when opening it.
func WithPowerCycle() Option {
	return func(o *options) { o.powerCycle = true }
}

// WithPollInterval bounds how long a read waits before rechecking its
// context.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}
