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

package nfctag

import (
	"fmt"
	"time"
)

// Discovery and lifecycle defaults.
const (
	// DefaultMaxTechnologies bounds the technology list of one tag.
	DefaultMaxTechnologies = 10
	// DefaultKovioWindow is the interval in which a repeated Kovio UID is
	// treated as the same barcode still in the field.
	DefaultKovioWindow = 500 * time.Millisecond
	// DefaultKovioMaxUIDLen bounds the Kovio UID kept for de-duplication.
	DefaultKovioMaxUIDLen = 32
)

// Operation timeouts. Each blocking operation waits this long for its
// completion event before giving up.
const (
	DefaultConnectTimeout       = 1 * time.Second
	DefaultDeactivateTimeout    = 1 * time.Second
	DefaultPresenceCheckTimeout = 1 * time.Second
	DefaultTransceiveTimeout    = 1 * time.Second
	DefaultNdefTimeout          = 2 * time.Second
	// DefaultReselectRetryDelay is the pause before the single reselect retry.
	DefaultReselectRetryDelay = 10 * time.Millisecond
)

// Config holds session configuration options
type Config struct {
	// ReconnectRetry controls how Reconnect retries a failed reselect
	ReconnectRetry *RetryConfig

	MaxTechnologies int
	KovioMaxUIDLen  int

	KovioWindow          time.Duration
	ConnectTimeout       time.Duration
	DeactivateTimeout    time.Duration
	PresenceCheckTimeout time.Duration
	TransceiveTimeout    time.Duration
	// NdefTimeout covers NDEF detect, read, write, format and make-read-only
	NdefTimeout        time.Duration
	ReselectRetryDelay time.Duration
}

// DefaultConfig returns the default session configuration
func DefaultConfig() *Config {
	return &Config{
		MaxTechnologies:      DefaultMaxTechnologies,
		KovioWindow:          DefaultKovioWindow,
		KovioMaxUIDLen:       DefaultKovioMaxUIDLen,
		ConnectTimeout:       DefaultConnectTimeout,
		DeactivateTimeout:    DefaultDeactivateTimeout,
		PresenceCheckTimeout: DefaultPresenceCheckTimeout,
		TransceiveTimeout:    DefaultTransceiveTimeout,
		NdefTimeout:          DefaultNdefTimeout,
		ReselectRetryDelay:   DefaultReselectRetryDelay,
		ReconnectRetry:       ReconnectRetryConfig(),
	}
}

// Validate checks that every limit and timeout is usable.
func (c *Config) Validate() error {
	if c.MaxTechnologies <= 0 {
		return fmt.Errorf("%w: MaxTechnologies must be positive, got %d", ErrInvalidParameter, c.MaxTechnologies)
	}
	if c.KovioMaxUIDLen <= 0 {
		return fmt.Errorf("%w: KovioMaxUIDLen must be positive, got %d", ErrInvalidParameter, c.KovioMaxUIDLen)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"KovioWindow", c.KovioWindow},
		{"ConnectTimeout", c.ConnectTimeout},
		{"DeactivateTimeout", c.DeactivateTimeout},
		{"PresenceCheckTimeout", c.PresenceCheckTimeout},
		{"TransceiveTimeout", c.TransceiveTimeout},
		{"NdefTimeout", c.NdefTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidParameter, d.name, d.d)
		}
	}
	if c.ReselectRetryDelay < 0 {
		return fmt.Errorf("%w: ReselectRetryDelay must not be negative", ErrInvalidParameter)
	}
	return nil
}

// withDefaults returns cfg, or the default configuration when cfg is nil.
func withDefaults(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return cfg
}
