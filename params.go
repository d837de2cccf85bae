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

// RFParams holds the technology-specific parameters the controller reported
// for a remote device. Each implementation carries only the fields of its
// technology; the concrete type is the tag of the variant.
type RFParams interface {
	Mode() DiscoveryMode
	rfParams()
}

// ParamsA holds NFC-A poll/listen parameters.
type ParamsA struct {
	NFCID1        []byte
	SensRes       [2]byte
	DiscoveryMode DiscoveryMode
	SelRes        byte
}

// Mode implements RFParams.
func (p *ParamsA) Mode() DiscoveryMode { return p.DiscoveryMode }
func (*ParamsA) rfParams()             {}

// ParamsB holds NFC-B parameters. SensBRes starts at NFCID0 (the 0x50
// response code is not included).
type ParamsB struct {
	SensBRes      []byte
	DiscoveryMode DiscoveryMode
}

// Mode implements RFParams.
func (p *ParamsB) Mode() DiscoveryMode { return p.DiscoveryMode }
func (*ParamsB) rfParams()             {}

// NFCID0 returns the 4-byte PUPI at the start of SENSB_RES, zero-filled if
// the response was short.
func (p *ParamsB) NFCID0() [NFCID0Len]byte {
	var id [NFCID0Len]byte
	copy(id[:], p.SensBRes)
	return id
}

// ParamsF holds NFC-F parameters. SensFRes starts at NFCID2 (the response
// code is not included): NFCID2(8) PMm(8) [RD(2)].
type ParamsF struct {
	SensFRes      []byte
	DiscoveryMode DiscoveryMode
	BitRate       byte
}

// Mode implements RFParams.
func (p *ParamsF) Mode() DiscoveryMode { return p.DiscoveryMode }
func (*ParamsF) rfParams()             {}

// NFCID2 returns the 8-byte NFCID2, zero-filled if the response was short.
func (p *ParamsF) NFCID2() [NFCID2Len]byte {
	var id [NFCID2Len]byte
	copy(id[:], p.SensFRes)
	return id
}

// PMm returns the 8-byte manufacturer parameter, zero-filled if absent.
func (p *ParamsF) PMm() [8]byte {
	var pmm [8]byte
	if len(p.SensFRes) > NFCID2Len {
		copy(pmm[:], p.SensFRes[NFCID2Len:])
	}
	return pmm
}

// ParamsV holds ISO15693 (NFC-V) parameters.
type ParamsV struct {
	DiscoveryMode DiscoveryMode
	Flags         byte
	DSFID         byte
	UID           [I93UIDLen]byte
}

// Mode implements RFParams.
func (p *ParamsV) Mode() DiscoveryMode { return p.DiscoveryMode }
func (*ParamsV) rfParams()             {}

// ParamsKovio holds Kovio barcode parameters.
type ParamsKovio struct {
	UID []byte
}

// Mode implements RFParams. Kovio tags are only ever polled.
func (*ParamsKovio) Mode() DiscoveryMode { return ModePollKovio }
func (*ParamsKovio) rfParams()           {}

// Identifier sizes.
const (
	NFCID0Len = 4
	NFCID2Len = 8
	I93UIDLen = 8
)

// modeOf tolerates a nil RFParams.
func modeOf(p RFParams) (DiscoveryMode, bool) {
	p = knownParams(p)
	if p == nil {
		return 0, false
	}
	return p.Mode(), true
}

// knownParams turns a typed nil pointer into an untyped nil, so a nil check
// is enough before using the parameters.
func knownParams(p RFParams) RFParams {
	switch v := p.(type) {
	case *ParamsA:
		if v == nil {
			return nil
		}
	case *ParamsB:
		if v == nil {
			return nil
		}
	case *ParamsF:
		if v == nil {
			return nil
		}
	case *ParamsV:
		if v == nil {
			return nil
		}
	case *ParamsKovio:
		if v == nil {
			return nil
		}
	}
	return p
}

// I93Params are the ISO15693 inventory values reported at activation.
type I93Params struct {
	AFI   byte
	DSFID byte
	UID   [I93UIDLen]byte
}

// ActivationParams carries the protocol-specific values the controller
// gathers while activating a tag, beyond the RF technology parameters.
type ActivationParams struct {
	T3TSystemCodes []uint16
	I93            I93Params
	T1THeaderROM   [2]byte
}

// InterfaceParams carries the RF interface activation response.
type InterfaceParams struct {
	// HistoricalBytes are the RATS historical bytes (ISO-DEP over NFC-A).
	HistoricalBytes []byte
	// HigherLayerResponse is the ATTRIB higher-layer response (ISO-DEP over NFC-B).
	HigherLayerResponse []byte
	Type                Interface
}
