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

// Package polling watches the tag reported by an nfctag.Session: it hands
// arriving tags to callbacks, probes the current tag with presence checks
// and restarts the controller after the host wakes from sleep.
package polling

import (
	"fmt"
	"time"
)

// SleepRecoveryConfig configures automatic recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the expected
	// check interval that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before
	// treating as a fatal error. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns the default sleep recovery settings
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep checks if the elapsed time since the last tick indicates a
// system sleep: elapsed exceeds interval plus TimeDiscontinuityThreshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, interval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > interval+cfg.TimeDiscontinuityThreshold
}

// Config holds monitor configuration options
type Config struct {
	// SleepRecovery configures automatic recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
	// PresenceInterval is the time between presence checks of the current tag
	PresenceInterval time.Duration
	// MaxMissedChecks is how many presence checks in a row may fail before
	// the tag is released
	MaxMissedChecks int
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() *Config {
	return &Config{
		PresenceInterval: 250 * time.Millisecond,
		MaxMissedChecks:  2,
		SleepRecovery:    DefaultSleepRecoveryConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PresenceInterval <= 0 {
		return fmt.Errorf("presence interval must be positive, got %v", c.PresenceInterval)
	}
	if c.MaxMissedChecks <= 0 {
		return fmt.Errorf("max missed checks must be positive, got %d", c.MaxMissedChecks)
	}
	return nil
}
