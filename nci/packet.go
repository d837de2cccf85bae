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

// Package nci implements nfctag.Controller on top of an NFC Controller
// Interface (NCI) packet transport.
package nci

import (
	"fmt"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/frame"
)

// MessageType is the MT field of a packet header.
type MessageType uint8

// Message types
const (
	MessageData         MessageType = frame.MTData
	MessageCommand      MessageType = frame.MTCommand
	MessageResponse     MessageType = frame.MTResponse
	MessageNotification MessageType = frame.MTNotification
)

func (m MessageType) String() string {
	switch m {
	case MessageData:
		return "DATA"
	case MessageCommand:
		return "CMD"
	case MessageResponse:
		return "RSP"
	case MessageNotification:
		return "NTF"
	default:
		return fmt.Sprintf("MT(%d)", uint8(m))
	}
}

// NCI groups
const (
	GroupCore        uint8 = 0x00
	GroupRF          uint8 = 0x01
	GroupProprietary uint8 = 0x0F
)

// Core opcodes
const (
	OIDCoreReset          uint8 = 0x00
	OIDCoreInit           uint8 = 0x01
	OIDCoreSetConfig      uint8 = 0x02
	OIDCoreConnCredits    uint8 = 0x06
	OIDCoreGenericError   uint8 = 0x07
	OIDCoreInterfaceError uint8 = 0x08
)

// RF opcodes
const (
	OIDRFDiscoverMap       uint8 = 0x00
	OIDRFDiscover          uint8 = 0x03
	OIDRFDiscoverSelect    uint8 = 0x04
	OIDRFIntfActivated     uint8 = 0x05
	OIDRFDeactivate        uint8 = 0x06
	OIDRFISODEPNakPresence uint8 = 0x10
)

// NCI status codes
const (
	StatusOK                      byte = 0x00
	StatusRejected                byte = 0x01
	StatusRFFrameCorrupted        byte = 0x02
	StatusFailed                  byte = 0x03
	StatusNotInitialized          byte = 0x04
	StatusSyntaxError             byte = 0x05
	StatusSemanticError           byte = 0x06
	StatusDiscoveryAlreadyStarted byte = 0xA0
	StatusTargetActivationFailed  byte = 0xA1
	StatusDiscoveryTearDown       byte = 0xA2
	StatusRFTransmissionError     byte = 0xB0
	StatusRFProtocolError         byte = 0xB1
	StatusRFTimeoutError          byte = 0xB2
)

// Deactivation types of RF_DEACTIVATE_CMD/NTF
const (
	DeactivateIdle      byte = 0x00
	DeactivateSleep     byte = 0x01
	DeactivateSleepAF   byte = 0x02
	DeactivateDiscovery byte = 0x03
)

// RF_DISCOVER_NTF notification types
const (
	discoverLast        byte = 0x00
	discoverLastLimited byte = 0x01
	discoverMore        byte = 0x02
)

// StaticConnID is the logical connection of the activated RF interface.
const StaticConnID uint8 = 0x00

// Packet is one decoded NCI message. Segmented messages are delivered
// reassembled, so Payload may exceed one packet.
type Packet struct {
	Payload []byte
	Type    MessageType
	// GID and OID identify control messages.
	GID uint8
	OID uint8
	// ConnID identifies the logical connection of data messages.
	ConnID uint8
}

// ParsePacket decodes a single unsegmented packet.
func ParsePacket(b []byte) (Packet, error) {
	if err := frame.ValidatePacket(b, "parse", "nci"); err != nil {
		return Packet{}, err
	}
	if frame.IsSegment(b) {
		return Packet{}, fmt.Errorf("parse: segmented packet needs reassembly: %w", nfctag.ErrInvalidPacket)
	}
	var hdr [frame.HeaderLen]byte
	copy(hdr[:], b)
	return packetFrom(hdr, append([]byte(nil), b[frame.HeaderLen:]...)), nil
}

func packetFrom(hdr [frame.HeaderLen]byte, payload []byte) Packet {
	p := Packet{Type: MessageType(frame.MT(hdr[:])), Payload: payload}
	if p.Type == MessageData {
		p.ConnID = frame.ConnID(hdr[:])
	} else {
		p.GID = frame.GID(hdr[:])
		p.OID = frame.OID(hdr[:])
	}
	return p
}

// Is reports whether p is the control message of the given type and opcode.
func (p Packet) Is(mt MessageType, gid, oid uint8) bool {
	return p.Type == mt && p.GID == gid && p.OID == oid
}

// Status returns the leading status byte of responses and of the
// notifications that carry one.
func (p Packet) Status() byte {
	if len(p.Payload) == 0 {
		return StatusSyntaxError
	}
	return p.Payload[0]
}

func (p Packet) String() string {
	if p.Type == MessageData {
		return fmt.Sprintf("DATA conn=%d len=%d", p.ConnID, len(p.Payload))
	}
	return fmt.Sprintf("%s %X/%02X len=%d", p.Type, p.GID, p.OID, len(p.Payload))
}

// BuildCommand encodes a control command. Payloads longer than one packet
// are not used by any command this package sends.
func BuildCommand(gid, oid uint8, payload []byte) []byte {
	hdr := frame.Header(frame.MTCommand, gid, oid, false, len(payload))
	return append(hdr[:], payload...)
}

// BuildData encodes payload as data packets on connID, segmented to at most
// maxPayload bytes each.
func BuildData(connID uint8, payload []byte, maxPayload int) [][]byte {
	if maxPayload <= 0 || maxPayload > frame.MaxPayloadLen {
		maxPayload = frame.MaxPayloadLen
	}
	var pkts [][]byte
	for {
		n := min(len(payload), maxPayload)
		more := n < len(payload)
		hdr := frame.Header(frame.MTData, connID, 0, more, n)
		pkts = append(pkts, append(hdr[:], payload[:n]...))
		payload = payload[n:]
		if !more {
			return pkts
		}
	}
}

// ToStatus maps an NCI status code onto a completion status.
func ToStatus(code byte) nfctag.Status {
	switch code {
	case StatusOK:
		return nfctag.StatusOK
	case StatusRFTimeoutError:
		return nfctag.StatusTimeout
	case StatusDiscoveryTearDown:
		return nfctag.StatusTagLost
	case StatusRejected, StatusSyntaxError, StatusSemanticError, StatusNotInitialized,
		StatusDiscoveryAlreadyStarted:
		return nfctag.StatusRejected
	default:
		return nfctag.StatusFailed
	}
}

// Command builders for the RF management this package performs.

// BuildCoreReset asks the controller to reset and keep its configuration.
func BuildCoreReset() []byte {
	return BuildCommand(GroupCore, OIDCoreReset, []byte{0x00})
}

// BuildCoreInit initializes the controller after a reset.
func BuildCoreInit() []byte {
	return BuildCommand(GroupCore, OIDCoreInit, nil)
}

// BuildDiscover starts polling the given modes.
func BuildDiscover(modes []nfctag.DiscoveryMode) []byte {
	payload := make([]byte, 0, 1+2*len(modes))
	payload = append(payload, byte(len(modes)))
	for _, m := range modes {
		payload = append(payload, byte(m), 0x01)
	}
	return BuildCommand(GroupRF, OIDRFDiscover, payload)
}

// BuildDiscoverMap maps each protocol to the interface it is activated on
// in poll mode.
func BuildDiscoverMap(protocols []nfctag.Protocol) []byte {
	payload := make([]byte, 0, 1+3*len(protocols))
	payload = append(payload, byte(len(protocols)))
	for _, p := range protocols {
		payload = append(payload, byte(p), 0x01, byte(nfctag.InterfaceFor(p)))
	}
	return BuildCommand(GroupRF, OIDRFDiscoverMap, payload)
}

// BuildDiscoverSelect selects one of several discovered targets.
func BuildDiscoverSelect(handle int, protocol nfctag.Protocol, iface nfctag.Interface) []byte {
	return BuildCommand(GroupRF, OIDRFDiscoverSelect, []byte{byte(handle), byte(protocol), byte(iface)})
}

// BuildDeactivate deactivates the RF interface into the given state.
func BuildDeactivate(typ byte) []byte {
	return BuildCommand(GroupRF, OIDRFDeactivate, []byte{typ})
}

// BuildISODEPPresenceCheck asks the controller to probe an ISO-DEP tag.
func BuildISODEPPresenceCheck() []byte {
	return BuildCommand(GroupRF, OIDRFISODEPNakPresence, nil)
}
