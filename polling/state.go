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
	"errors"
	"time"

	nfctag "github.com/ZaparooProject/go-nfctag"
)

// CardDetectionState represents the state machine of the watched tag
type CardDetectionState int

const (
	StateIdle CardDetectionState = iota
	StateTagPresent
	// StateBusy means a callback is working with the tag; presence checks
	// are suspended.
	StateBusy
)

func (s CardDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTagPresent:
		return "present"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// CardState tracks the tag currently in the field
type CardState struct {
	LastSeenTime   time.Time
	LastUID        string
	Protocol       nfctag.Protocol
	DetectionState CardDetectionState
	MissedChecks   int
	Present        bool
}

// ErrNoTagInPoll indicates no tag arrived before a deadline
var ErrNoTagInPoll = errors.New("no tag detected before timeout")

// TransitionToPresent records a newly activated tag
func (cs *CardState) TransitionToPresent(uid string, protocol nfctag.Protocol, now time.Time) {
	cs.DetectionState = StateTagPresent
	cs.Present = true
	cs.LastUID = uid
	cs.Protocol = protocol
	cs.LastSeenTime = now
	cs.MissedChecks = 0
}

// TransitionToBusy suspends presence checks while a callback runs
func (cs *CardState) TransitionToBusy() {
	if cs.Present {
		cs.DetectionState = StateBusy
	}
}

// TransitionToIdle resets to idle state
func (cs *CardState) TransitionToIdle() {
	*cs = CardState{}
}

// MarkSeen records a successful presence check
func (cs *CardState) MarkSeen(now time.Time) {
	cs.LastSeenTime = now
	cs.MissedChecks = 0
}

// MarkMissed records a failed presence check and returns the run of misses
func (cs *CardState) MarkMissed() int {
	cs.MissedChecks++
	return cs.MissedChecks
}

// CanPresenceCheck reports whether the tag should be probed. Only Type 2
// and ISO-DEP tags can be probed by the controller.
func (cs *CardState) CanPresenceCheck() bool {
	if cs.DetectionState != StateTagPresent {
		return false
	}
	return cs.Protocol == nfctag.ProtocolT2T || cs.Protocol == nfctag.ProtocolISODEP
}
