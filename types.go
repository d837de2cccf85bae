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

import "fmt"

// Protocol is the controller's RF protocol identifier as reported in
// discovery and activation notifications.
type Protocol uint8

// RF protocols.
const (
	ProtocolUnknown  Protocol = 0x00
	ProtocolT1T      Protocol = 0x01
	ProtocolT2T      Protocol = 0x02
	ProtocolT3T      Protocol = 0x03
	ProtocolISODEP   Protocol = 0x04
	ProtocolNFCDEP   Protocol = 0x05
	ProtocolISO15693 Protocol = 0x06
	ProtocolKovio    Protocol = 0x8A
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUnknown:
		return "Unknown"
	case ProtocolT1T:
		return "T1T"
	case ProtocolT2T:
		return "T2T"
	case ProtocolT3T:
		return "T3T"
	case ProtocolISODEP:
		return "ISO-DEP"
	case ProtocolNFCDEP:
		return "NFC-DEP"
	case ProtocolISO15693:
		return "ISO15693"
	case ProtocolKovio:
		return "Kovio"
	default:
		return fmt.Sprintf("Protocol(0x%02X)", uint8(p))
	}
}

// DiscoveryMode is the RF technology and mode (poll/listen, active/passive)
// the controller used when it found the remote device.
type DiscoveryMode uint8

// Discovery modes.
const (
	ModePollA          DiscoveryMode = 0x00
	ModePollB          DiscoveryMode = 0x01
	ModePollF          DiscoveryMode = 0x02
	ModePollAActive    DiscoveryMode = 0x03
	ModePollFActive    DiscoveryMode = 0x05
	ModePollISO15693   DiscoveryMode = 0x06
	ModePollKovio      DiscoveryMode = 0x70
	ModePollBPrime     DiscoveryMode = 0x74
	ModeListenA        DiscoveryMode = 0x80
	ModeListenB        DiscoveryMode = 0x81
	ModeListenF        DiscoveryMode = 0x82
	ModeListenAActive  DiscoveryMode = 0x83
	ModeListenFActive  DiscoveryMode = 0x85
	ModeListenISO15693 DiscoveryMode = 0x86
	ModeListenBPrime   DiscoveryMode = 0xF4
)

// IsA reports whether the mode is any NFC-A variant.
func (m DiscoveryMode) IsA() bool {
	switch m {
	case ModePollA, ModePollAActive, ModeListenA, ModeListenAActive:
		return true
	default:
		return false
	}
}

// IsB reports whether the mode is any NFC-B variant, B' included.
func (m DiscoveryMode) IsB() bool {
	switch m {
	case ModePollB, ModePollBPrime, ModeListenB, ModeListenBPrime:
		return true
	default:
		return false
	}
}

// IsF reports whether the mode is any NFC-F variant.
func (m DiscoveryMode) IsF() bool {
	switch m {
	case ModePollF, ModePollFActive, ModeListenF, ModeListenFActive:
		return true
	default:
		return false
	}
}

// IsISO15693 reports whether the mode is an ISO15693 (NFC-V) variant.
func (m DiscoveryMode) IsISO15693() bool {
	return m == ModePollISO15693 || m == ModeListenISO15693
}

// IsListen reports whether the local device acted as the listener, i.e. the
// remote side was polling us.
func (m DiscoveryMode) IsListen() bool {
	return m >= ModeListenA
}

func (m DiscoveryMode) String() string {
	switch m {
	case ModePollA:
		return "PollA"
	case ModePollB:
		return "PollB"
	case ModePollF:
		return "PollF"
	case ModePollAActive:
		return "PollAActive"
	case ModePollFActive:
		return "PollFActive"
	case ModePollISO15693:
		return "PollISO15693"
	case ModePollKovio:
		return "PollKovio"
	case ModePollBPrime:
		return "PollBPrime"
	case ModeListenA:
		return "ListenA"
	case ModeListenB:
		return "ListenB"
	case ModeListenF:
		return "ListenF"
	case ModeListenAActive:
		return "ListenAActive"
	case ModeListenFActive:
		return "ListenFActive"
	case ModeListenISO15693:
		return "ListenISO15693"
	case ModeListenBPrime:
		return "ListenBPrime"
	default:
		return fmt.Sprintf("Mode(0x%02X)", uint8(m))
	}
}

// Interface is the RF interface the controller exposes for an activated
// remote device.
type Interface uint8

// RF interfaces.
const (
	InterfaceEEDirectRF Interface = 0x00
	InterfaceFrame      Interface = 0x01
	InterfaceISODEP     Interface = 0x02
	InterfaceNFCDEP     Interface = 0x03
)

func (i Interface) String() string {
	switch i {
	case InterfaceEEDirectRF:
		return "EE-Direct-RF"
	case InterfaceFrame:
		return "Frame"
	case InterfaceISODEP:
		return "ISO-DEP"
	case InterfaceNFCDEP:
		return "NFC-DEP"
	default:
		return fmt.Sprintf("Interface(0x%02X)", uint8(i))
	}
}

// Technology is the normalized technology a tag exposes to applications.
type Technology int

// Technologies.
const (
	TechnologyUnknown Technology = iota
	TechnologyISO14443_3A
	TechnologyISO14443_3B
	TechnologyISO14443_4
	TechnologyFelica
	TechnologyISO15693
	TechnologyMifareUltralight
	TechnologyKovioBarcode
)

func (t Technology) String() string {
	switch t {
	case TechnologyUnknown:
		return "Unknown"
	case TechnologyISO14443_3A:
		return "ISO14443-3A"
	case TechnologyISO14443_3B:
		return "ISO14443-3B"
	case TechnologyISO14443_4:
		return "ISO14443-4"
	case TechnologyFelica:
		return "Felica"
	case TechnologyISO15693:
		return "ISO15693"
	case TechnologyMifareUltralight:
		return "MifareUltralight"
	case TechnologyKovioBarcode:
		return "KovioBarcode"
	default:
		return fmt.Sprintf("Technology(%d)", int(t))
	}
}

// Status is the outcome carried by a completion event.
type Status int

// Completion statuses.
const (
	StatusOK Status = iota
	StatusFailed
	StatusTimeout
	StatusTagLost
	StatusRejected
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusTimeout:
		return "timeout"
	case StatusTagLost:
		return "tag lost"
	case StatusRejected:
		return "rejected"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// DeactivationType says what happened to the RF link on deactivation.
type DeactivationType int

const (
	// DeactivateDiscard means the tag is gone (or deliberately released).
	DeactivateDiscard DeactivationType = iota
	// DeactivateSleep means the tag was put to sleep and may be reselected.
	DeactivateSleep
)

func (d DeactivationType) String() string {
	if d == DeactivateSleep {
		return "sleep"
	}
	return "discard"
}

// NdefType is the NFC Forum tag platform that carries the NDEF message.
type NdefType int

// NDEF tag platforms.
const (
	NdefTypeUnknown NdefType = iota
	NdefType1
	NdefType2
	NdefType3
	NdefType4
)

// NdefTypeFor maps a controller protocol to the NFC Forum tag platform.
func NdefTypeFor(p Protocol) NdefType {
	switch p {
	case ProtocolT1T:
		return NdefType1
	case ProtocolT2T:
		return NdefType2
	case ProtocolT3T:
		return NdefType3
	case ProtocolISODEP:
		return NdefType4
	default:
		return NdefTypeUnknown
	}
}

func (t NdefType) String() string {
	switch t {
	case NdefType1:
		return "Type1"
	case NdefType2:
		return "Type2"
	case NdefType3:
		return "Type3"
	case NdefType4:
		return "Type4"
	default:
		return "Unknown"
	}
}

// ActivationState is the lifecycle state of the tag currently in the field.
type ActivationState int

// Lifecycle states.
const (
	StateIdle ActivationState = iota
	StateSleep
	StateActive
)

func (s ActivationState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSleep:
		return "Sleep"
	case StateActive:
		return "Active"
	default:
		return fmt.Sprintf("ActivationState(%d)", int(s))
	}
}
