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

// Event is a notification delivered by the controller. The concrete types
// below are the complete set.
type Event interface {
	event()
}

// EventHandler receives controller notifications. Session implements it;
// controllers hold a reference to one instead of reaching into global state.
type EventHandler interface {
	HandleEvent(ev Event)
}

// DiscoveryResult reports one candidate found during a multi-target
// discovery round. HasMore is false on the last candidate of the round.
type DiscoveryResult struct {
	Params   RFParams
	Handle   int
	Status   Status
	Protocol Protocol
	HasMore  bool
}

// Activated reports that a remote device was selected and is ready.
type Activated struct {
	Params    RFParams
	Aux       ActivationParams
	Interface InterfaceParams
	Handle    int
	Protocol  Protocol
}

// Deactivated reports the RF link went down.
type Deactivated struct {
	Type DeactivationType
}

// ConnectCompleted reports the outcome of a select command.
type ConnectCompleted struct {
	Status Status
}

// ReadCompleted reports the outcome of an NDEF read. Data holds the raw
// NDEF message bytes on success.
type ReadCompleted struct {
	Data   []byte
	Status Status
}

// WriteCompleted reports the outcome of an NDEF write.
type WriteCompleted struct {
	Status Status
}

// TransceiveCompleted carries the tag's response to a raw command.
type TransceiveCompleted struct {
	Data   []byte
	Status Status
}

// PresenceCheckCompleted reports the outcome of a presence check.
type PresenceCheckCompleted struct {
	Status Status
}

// FormatCompleted reports the outcome of an NDEF format.
type FormatCompleted struct {
	Status Status
}

// MakeReadOnlyCompleted reports the outcome of a set-read-only command.
type MakeReadOnlyCompleted struct {
	Status Status
}

// NdefDetectCompleted reports the outcome of NDEF detection.
type NdefDetectCompleted struct {
	MaxSize     uint32
	CurrentSize uint32
	Status      Status
	Flags       uint8
}

func (*DiscoveryResult) event()        {}
func (*Activated) event()              {}
func (*Deactivated) event()            {}
func (*ConnectCompleted) event()       {}
func (*ReadCompleted) event()          {}
func (*WriteCompleted) event()         {}
func (*TransceiveCompleted) event()    {}
func (*PresenceCheckCompleted) event() {}
func (*FormatCompleted) event()        {}
func (*MakeReadOnlyCompleted) event()  {}
func (*NdefDetectCompleted) event()    {}
