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
	"bytes"
	"time"

	"github.com/rs/zerolog"
)

// Type 1 tag header ROM HR0 values.
const (
	t1tHR0Topaz96  = 0x11
	t1tHR0Topaz512 = 0x12

	t1tMaxMessageSize96  = 90
	t1tMaxMessageSize512 = 462
)

// kovioRecord remembers the last Kovio barcode seen.
type kovioRecord struct {
	seen time.Time
	uid  []byte
}

// Tracker is the lifecycle state machine of the tag in the field. It also
// suppresses the repeated activations Kovio barcodes produce while they
// stay in the field.
//
// Tracker is not safe for concurrent use; the owning Session serializes
// access with its lock, which also covers the Kovio record.
type Tracker struct {
	log          zerolog.Logger
	kovio        kovioRecord
	kovioWindow  time.Duration
	kovioMaxUID  int
	t1tMaxSize   int
	state        ActivationState
	protocol     Protocol
	ndefTimedOut bool
}

// NewTracker creates a tracker in the Idle state.
func NewTracker(cfg *Config) *Tracker {
	cfg = withDefaults(cfg)
	return &Tracker{
		state:       StateIdle,
		kovioWindow: cfg.KovioWindow,
		kovioMaxUID: cfg.KovioMaxUIDLen,
		log:         componentLogger("tracker"),
	}
}

// OnActivated processes an activation notification and reports whether it
// should be surfaced as a tag. Listen-mode and EE-direct activations are not
// tags; a Kovio barcode reappearing within the window is a duplicate. A
// rejected activation leaves the state untouched.
func (t *Tracker) OnActivated(act *Activated, now time.Time) bool {
	mode, _ := modeOf(act.Params)
	if mode.IsListen() || act.Interface.Type == InterfaceEEDirectRF {
		t.log.Debug().
			Stringer("mode", mode).
			Stringer("interface", act.Interface.Type).
			Msg("ignoring non-tag activation")
		return false
	}

	if mode == ModePollKovio && t.isKovioDuplicate(act, now) {
		t.log.Debug().Msg("suppressing duplicate Kovio activation")
		return false
	}

	t.protocol = act.Protocol
	t.t1tMaxSize = 0
	if act.Protocol == ProtocolT1T {
		t.t1tMaxSize = t.t1tSizeFromHeader(act.Aux.T1THeaderROM[0])
	}
	t.transition(StateActive)
	return true
}

// isKovioDuplicate compares the activation against the last Kovio barcode
// and always records it as the new last one.
func (t *Tracker) isKovioDuplicate(act *Activated, now time.Time) bool {
	var uid []byte
	if pk, ok := knownParams(act.Params).(*ParamsKovio); ok {
		uid = pk.UID
	}
	if len(uid) > t.kovioMaxUID {
		uid = uid[:t.kovioMaxUID]
	}

	dup := !t.kovio.seen.IsZero() &&
		len(uid) == len(t.kovio.uid) &&
		bytes.Equal(uid, t.kovio.uid) &&
		now.Sub(t.kovio.seen) < t.kovioWindow

	t.kovio.uid = append(t.kovio.uid[:0], uid...)
	t.kovio.seen = now
	return dup
}

func (t *Tracker) t1tSizeFromHeader(hr0 byte) int {
	switch hr0 {
	case t1tHR0Topaz96:
		return t1tMaxMessageSize96
	case t1tHR0Topaz512:
		return t1tMaxMessageSize512
	default:
		t.log.Warn().Hex("hr0", []byte{hr0}).Msg("unknown Type 1 tag header ROM")
		return 0
	}
}

// OnReselected marks the tag active again after the coordinator re-selected
// it. The activation is not re-evaluated.
func (t *Tracker) OnReselected() {
	t.transition(StateActive)
}

// OnDeactivated moves to Sleep or Idle. Discard also forgets the protocol.
func (t *Tracker) OnDeactivated(typ DeactivationType) {
	if typ == DeactivateSleep {
		t.transition(StateSleep)
		return
	}
	t.protocol = ProtocolUnknown
	t.t1tMaxSize = 0
	t.transition(StateIdle)
}

// OnNdefDetect records whether the latest NDEF detection timed out. The
// flag is cleared again on the next state change.
func (t *Tracker) OnNdefDetect(status Status) {
	t.ndefTimedOut = status == StatusTimeout
	if t.ndefTimedOut {
		t.log.Warn().Msg("NDEF detection timed out")
	}
}

func (t *Tracker) transition(to ActivationState) {
	if t.state != to {
		t.log.Debug().Stringer("from", t.state).Stringer("to", to).Msg("state change")
	}
	t.state = to
	t.ndefTimedOut = false
}

// State returns the lifecycle state.
func (t *Tracker) State() ActivationState {
	return t.state
}

// Protocol returns the protocol of the activated tag.
func (t *Tracker) Protocol() Protocol {
	return t.protocol
}

// T1TMaxMessageSize returns the NDEF capacity derived from the Type 1 tag
// header ROM, or 0 if the activated tag is not a Type 1 tag.
func (t *Tracker) T1TMaxMessageSize() int {
	if t.protocol != ProtocolT1T {
		t.log.Warn().Stringer("protocol", t.protocol).Msg("max message size requested for non-T1T tag")
		return 0
	}
	return t.t1tMaxSize
}

// NdefDetectionTimedOut reports whether the last NDEF detection timed out.
func (t *Tracker) NdefDetectionTimedOut() bool {
	return t.ndefTimedOut
}
