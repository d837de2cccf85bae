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

package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/nci"
)

// DefaultProbeTimeout bounds how long Probe waits for a CORE_RESET response.
const DefaultProbeTimeout = 500 * time.Millisecond

// ErrNotController indicates the device answered, but not as an NCI controller.
var ErrNotController = errors.New("device is not an NCI controller")

// Probe resets the controller behind t and waits for a successful
// CORE_RESET response. Unrelated packets are skipped. The caller closes t.
func Probe(ctx context.Context, t nci.Transport) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultProbeTimeout)
		defer cancel()
	}

	if err := t.WritePacket(ctx, nci.BuildCoreReset()); err != nil {
		return fmt.Errorf("send CORE_RESET: %w", err)
	}

	for {
		raw, err := t.ReadPacket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("wait for CORE_RESET response: %w", ErrDetectionTimeout)
			}
			if errors.Is(err, nfctag.ErrTransportTimeout) {
				continue
			}
			return fmt.Errorf("read CORE_RESET response: %w", err)
		}

		pkt, err := nci.ParsePacket(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNotController, err)
		}
		if !pkt.Is(nci.MessageResponse, nci.GroupCore, nci.OIDCoreReset) {
			continue
		}
		if pkt.Status() != nci.StatusOK {
			return fmt.Errorf("%w: CORE_RESET status 0x%02X", ErrNotController, pkt.Status())
		}
		return nil
	}
}
