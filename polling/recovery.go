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

package polling

import (
	"context"
	"fmt"
	"time"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/syncutil"
)

// DeviceRecoverer brings the controller back after sleep/wake or errors
type DeviceRecoverer interface {
	// AttemptRecovery tries to recover the controller.
	// Returns nil if recovery was successful, error otherwise.
	AttemptRecovery(ctx context.Context) error
}

// Restarter resets the controller and restarts discovery. *nci.Link
// satisfies it.
type Restarter interface {
	Reset(ctx context.Context) error
	StartDiscovery(ctx context.Context, protocols []nfctag.Protocol, modes []nfctag.DiscoveryMode) error
}

// DefaultRecoverer resets the controller and restarts discovery, retrying
// with a fixed backoff.
type DefaultRecoverer struct {
	restarter   Restarter
	protocols   []nfctag.Protocol
	modes       []nfctag.DiscoveryMode
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer that restarts discovery of the
// given protocols and modes.
func NewDefaultRecoverer(
	restarter Restarter,
	protocols []nfctag.Protocol,
	modes []nfctag.DiscoveryMode,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		restarter:   restarter,
		protocols:   protocols,
		modes:       modes,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery resets the controller and restarts discovery, up to
// maxAttempts times.
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		if err := r.restarter.Reset(ctx); err != nil {
			lastErr = fmt.Errorf("reset: %w", err)
			continue
		}
		if err := r.restarter.StartDiscovery(ctx, r.protocols, r.modes); err != nil {
			lastErr = fmt.Errorf("restart discovery: %w", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("recovery failed after %d attempts: %w", r.maxAttempts, lastErr)
}
