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

// Controller is the command side of the NFC controller stack. Every method
// only queues the command: a non-nil error means the controller refused it,
// otherwise the outcome arrives later as an Event on the controller's
// callback path.
type Controller interface {
	// Select activates the remote device behind handle using the given
	// protocol and RF interface. Success completes with Activated; a
	// failure completes with ConnectCompleted carrying the status.
	Select(handle int, protocol Protocol, iface Interface) error

	// Deactivate drops the RF link. With toSleep the tag is put to sleep so
	// it can be reselected; completes with Deactivated.
	Deactivate(handle int, toSleep bool) error

	// PresenceCheck completes with PresenceCheckCompleted.
	PresenceCheck(handle int) error

	// Transceive sends raw bytes; completes with TransceiveCompleted.
	Transceive(handle int, payload []byte) error

	// DetectNdef completes with NdefDetectCompleted.
	DetectNdef(handle int) error

	// ReadNdef completes with ReadCompleted.
	ReadNdef(handle int) error

	// WriteNdef completes with WriteCompleted.
	WriteNdef(handle int, payload []byte) error

	// Format completes with FormatCompleted.
	Format(handle int) error

	// SetReadOnly completes with MakeReadOnlyCompleted.
	SetReadOnly(handle int) error

	// RegisterNdefTypeHandler asks the controller to report NDEF data.
	RegisterNdefTypeHandler() error

	// DeregisterNdefTypeHandler undoes RegisterNdefTypeHandler.
	DeregisterNdefTypeHandler() error
}

// DataCanceler is implemented by controllers that keep state for an
// outstanding transceive or presence check. CancelData is called when the
// caller stops waiting for that completion, so the data channel can be
// used again.
type DataCanceler interface {
	CancelData()
}

// TagListener is the service-facing side: it learns about tags arriving and
// leaving the field.
type TagListener interface {
	OnTagDiscovered(tag *Tag)
	OnTagLost()
}

// TagTechnology is one resolved technology of a discovered tag.
type TagTechnology struct {
	PollBytes       []byte
	ActivationBytes []byte
	Handle          int
	Technology      Technology
	Protocol        Protocol
}

// Tag is the resolved view of a freshly activated tag, handed to the
// TagListener.
type Tag struct {
	Technologies   []TagTechnology
	UID            []byte
	MaxMessageSize int
	Protocol       Protocol
	NdefType       NdefType
	IsP2P          bool
}

// Has reports whether the tag exposes the given technology.
func (t *Tag) Has(tech Technology) bool {
	for i := range t.Technologies {
		if t.Technologies[i].Technology == tech {
			return true
		}
	}
	return false
}

// TechnologyList returns the technologies in registry order.
func (t *Tag) TechnologyList() []Technology {
	list := make([]Technology, len(t.Technologies))
	for i := range t.Technologies {
		list[i] = t.Technologies[i].Technology
	}
	return list
}

// NdefInfo is the result of NDEF detection.
type NdefInfo struct {
	MaxSize     uint32
	CurrentSize uint32
	Flags       uint8
	NdefType    NdefType
	ReadOnly    bool
	Formatable  bool
}

// NdefFlagReadOnly marks a read-only NDEF tag in NdefDetectCompleted.Flags.
const NdefFlagReadOnly uint8 = 0x01

// TagListenerFuncs adapts plain functions to TagListener. Nil fields are
// ignored.
type TagListenerFuncs struct {
	Discovered func(tag *Tag)
	Lost       func()
}

// OnTagDiscovered implements TagListener.
func (f TagListenerFuncs) OnTagDiscovered(tag *Tag) {
	if f.Discovered != nil {
		f.Discovered(tag)
	}
}

// OnTagLost implements TagListener.
func (f TagListenerFuncs) OnTagLost() {
	if f.Lost != nil {
		f.Lost()
	}
}
