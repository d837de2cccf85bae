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

// Package frame holds the NCI packet framing shared by the transports and
// the nci link: header layout, validation, segment reassembly and a buffer
// pool for the read paths.
package frame

// NCI packet header layout. Byte 0 carries the message type, the packet
// boundary flag and the group (or connection) ID; byte 1 the opcode; byte 2
// the payload length.
const (
	HeaderLen     = 3
	MaxPayloadLen = 255
	MaxPacketLen  = HeaderLen + MaxPayloadLen
)

// Message types (MT field).
const (
	MTData         = 0x00
	MTCommand      = 0x01
	MTResponse     = 0x02
	MTNotification = 0x03
)

const (
	mtShift    = 5
	mtMask     = 0x07
	pbfBit     = 0x10
	gidMask    = 0x0F
	oidMask    = 0x3F
	connIDMask = 0x0F
)

// MT returns the message type of a header.
func MT(hdr []byte) byte { return (hdr[0] >> mtShift) & mtMask }

// GID returns the group ID of a control header.
func GID(hdr []byte) byte { return hdr[0] & gidMask }

// OID returns the opcode ID of a control header.
func OID(hdr []byte) byte { return hdr[1] & oidMask }

// ConnID returns the logical connection of a data header.
func ConnID(hdr []byte) byte { return hdr[0] & connIDMask }

// IsSegment reports whether more segments of the same message follow.
func IsSegment(hdr []byte) bool { return hdr[0]&pbfBit != 0 }

// PayloadLen returns the payload length announced by a header.
func PayloadLen(hdr []byte) int { return int(hdr[2]) }

// Header builds a packet header. For data packets gid is the connection ID
// and oid must be zero.
func Header(mt, gid, oid byte, segment bool, length int) [HeaderLen]byte {
	b0 := (mt&mtMask)<<mtShift | gid&gidMask
	if segment {
		b0 |= pbfBit
	}
	return [HeaderLen]byte{b0, oid & oidMask, byte(length)}
}
