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

package testing

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	nfctag "github.com/ZaparooProject/go-nfctag"
)

// Common test UIDs
var (
	TestNTAG213UID = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}
	TestISODEPUID  = []byte{0x08, 0x11, 0x22, 0x33}
)

// TagKind selects what a VirtualTag emulates.
type TagKind int

// Emulated tags
const (
	KindNTAG213 TagKind = iota
	KindISODEP
)

const (
	pageSize      = 4
	ntag213Pages  = 45
	userPageStart = 4
	userPageEnd   = 39

	t2tRead  = 0x30
	t2tWrite = 0xA2
	t2tACK   = 0x0A
	t2tNACK  = 0x00
)

// ErrTagAbsent is returned by a VirtualTag that has been removed.
var ErrTagAbsent = errors.New("tag not present")

// VirtualTag is a simulated NFC-A tag. Type 2 tags answer READ and WRITE
// on their page memory; ISO-DEP tags answer every APDU with 90 00.
type VirtualTag struct {
	UID             []byte
	Memory          [][]byte
	HistoricalBytes []byte
	Kind            TagKind
	Present         bool
	mu              sync.Mutex
}

// NewVirtualNTAG213 creates a virtual NTAG213 with an empty NDEF TLV.
func NewVirtualNTAG213(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestNTAG213UID
	}
	tag := &VirtualTag{
		Kind:    KindNTAG213,
		UID:     slices.Clone(uid),
		Memory:  make([][]byte, ntag213Pages),
		Present: true,
	}
	tag.initNTAG213Memory()
	return tag
}

// NewVirtualISODEP creates a virtual ISO-DEP card with the given ATS
// historical bytes.
func NewVirtualISODEP(uid, hist []byte) *VirtualTag {
	if uid == nil {
		uid = TestISODEPUID
	}
	return &VirtualTag{
		Kind:            KindISODEP,
		UID:             slices.Clone(uid),
		HistoricalBytes: slices.Clone(hist),
		Present:         true,
	}
}

// Protocol is the protocol the tag is activated with.
func (v *VirtualTag) Protocol() nfctag.Protocol {
	if v.Kind == KindISODEP {
		return nfctag.ProtocolISODEP
	}
	return nfctag.ProtocolT2T
}

// Interface is the RF interface the tag is activated on.
func (v *VirtualTag) Interface() nfctag.Interface {
	return nfctag.InterfaceFor(v.Protocol())
}

// TechParams encodes the poll-A parameters of the tag: SENS_RES, NFCID1
// and SEL_RES.
func (v *VirtualTag) TechParams() []byte {
	sensRes, selRes := []byte{0x44, 0x00}, byte(0x00)
	if v.Kind == KindISODEP {
		sensRes, selRes = []byte{0x04, 0x00}, 0x20
	}
	b := append(sensRes, byte(len(v.UID)))
	b = append(b, v.UID...)
	return append(b, 0x01, selRes)
}

// ActivationParams encodes the interface activation parameters: the ATS
// for ISO-DEP, nothing for the frame interface.
func (v *VirtualTag) ActivationParams() []byte {
	if v.Kind != KindISODEP {
		return nil
	}
	// T0 announces TA, TB and TC with FSCI 8.
	ats := append([]byte{0x78, 0x77, 0x81, 0x02}, v.HistoricalBytes...)
	return append([]byte{byte(len(ats))}, ats...)
}

// Exchange runs one tag command and returns the tag's answer.
func (v *VirtualTag) Exchange(cmd []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.Present {
		return nil, ErrTagAbsent
	}
	if v.Kind == KindISODEP {
		return []byte{0x90, 0x00}, nil
	}
	if len(cmd) == 0 {
		return []byte{t2tNACK}, nil
	}

	switch cmd[0] {
	case t2tRead:
		if len(cmd) < 2 || int(cmd[1]) >= len(v.Memory) {
			return []byte{t2tNACK}, nil
		}
		out := make([]byte, 0, 4*pageSize)
		for i := range 4 {
			// Reads wrap around the end of memory.
			out = append(out, v.Memory[(int(cmd[1])+i)%len(v.Memory)]...)
		}
		return out, nil
	case t2tWrite:
		if len(cmd) != 2+pageSize || int(cmd[1]) < userPageStart || int(cmd[1]) > userPageEnd {
			return []byte{t2tNACK}, nil
		}
		copy(v.Memory[cmd[1]], cmd[2:])
		return []byte{t2tACK}, nil
	default:
		return []byte{t2tNACK}, nil
	}
}

// ReadPage returns a copy of one memory page.
func (v *VirtualTag) ReadPage(page int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if page < 0 || page >= len(v.Memory) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	return slices.Clone(v.Memory[page]), nil
}

// SetNDEF stores msg as the tag's NDEF TLV.
func (v *VirtualTag) SetNDEF(msg []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Kind != KindNTAG213 {
		return errors.New("NDEF memory only emulated for NTAG213")
	}
	tlv := append([]byte{0x03, byte(len(msg))}, msg...)
	tlv = append(tlv, 0xFE)
	if len(tlv) > (userPageEnd-userPageStart+1)*pageSize {
		return fmt.Errorf("NDEF message of %d bytes does not fit", len(msg))
	}
	for page := userPageStart; page <= userPageEnd; page++ {
		clear(v.Memory[page])
	}
	for i, b := range tlv {
		v.Memory[userPageStart+i/pageSize][i%pageSize] = b
	}
	return nil
}

// NDEF returns the message of the tag's NDEF TLV, or nil.
func (v *VirtualTag) NDEF() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Kind != KindNTAG213 {
		return nil
	}
	var user []byte
	for page := userPageStart; page <= userPageEnd; page++ {
		user = append(user, v.Memory[page]...)
	}
	if user[0] != 0x03 || int(user[1])+2 > len(user) {
		return nil
	}
	return slices.Clone(user[2 : 2+int(user[1])])
}

// Remove takes the tag out of the field.
func (v *VirtualTag) Remove() {
	v.mu.Lock()
	v.Present = false
	v.mu.Unlock()
}

// Insert puts the tag back into the field.
func (v *VirtualTag) Insert() {
	v.mu.Lock()
	v.Present = true
	v.mu.Unlock()
}

// IsPresent reports whether the tag is in the field.
func (v *VirtualTag) IsPresent() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Present
}

func (v *VirtualTag) initNTAG213Memory() {
	for i := range v.Memory {
		v.Memory[i] = make([]byte, pageSize)
	}
	// Pages 0-2: UID with check bytes, internal and lock bytes.
	uid := v.UID
	if len(uid) == 7 {
		copy(v.Memory[0], []byte{uid[0], uid[1], uid[2], 0x88 ^ uid[0] ^ uid[1] ^ uid[2]})
		copy(v.Memory[1], uid[3:7])
		v.Memory[2][0] = uid[3] ^ uid[4] ^ uid[5] ^ uid[6]
		v.Memory[2][1] = 0x48
	}
	// Capability container: NDEF 1.0, 144 bytes of data area, read/write.
	copy(v.Memory[3], []byte{0xE1, 0x10, 0x12, 0x00})
	// Empty NDEF TLV then terminator.
	copy(v.Memory[4], []byte{0x03, 0x00, 0xFE, 0x00})
	// Configuration pages.
	copy(v.Memory[41], []byte{0x04, 0x00, 0x00, 0xFF})
}
