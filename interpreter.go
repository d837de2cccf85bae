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
	"encoding/binary"
	"slices"
)

// t2tAck is the 4-bit ACK a Type 2 tag returns for a successful WRITE.
const t2tAck = 0x0A

// ResolveActivation maps an activation notification onto the technology
// entries it contributes: the primary entry first, then at most one
// synthesized secondary entry.
func ResolveActivation(act *Activated) []TechEntry {
	params := knownParams(act.Params)
	entries := []TechEntry{{
		Handle:   act.Handle,
		Protocol: act.Protocol,
		Params:   params,
	}}

	switch act.Protocol {
	case ProtocolT1T:
		entries[0].Technology = TechnologyISO14443_3A
	case ProtocolT2T:
		entries[0].Technology = TechnologyISO14443_3A
		if pa, ok := params.(*ParamsA); ok {
			// Ultralight-family SAK values. Only SAK 0 yields the extra
			// technology; 0x08/0x18 are MIFARE Classic and stay NFC-A only.
			ulCandidate := (len(pa.NFCID1) > 0 && pa.NFCID1[0] == 0x04 && pa.SelRes == 0) ||
				pa.SelRes == 0x18 || pa.SelRes == 0x08
			if ulCandidate && pa.SelRes == 0 {
				entries = append(entries, secondary(entries[0], TechnologyMifareUltralight))
			}
		}
	case ProtocolT3T:
		entries[0].Technology = TechnologyFelica
	case ProtocolISODEP:
		entries[0].Technology = TechnologyISO14443_4
		entries = appendCarrier(entries)
	case ProtocolISO15693:
		entries[0].Technology = TechnologyISO15693
	case ProtocolKovio:
		entries[0].Technology = TechnologyKovioBarcode
	default:
		entries[0].Technology = TechnologyUnknown
		logUnknownProtocol("activation", act.Protocol)
	}
	return entries
}

// ResolveDiscovery maps one discovery result onto technology entries. It
// differs from ResolveActivation in two places: any SAK-0 T2T becomes
// Ultralight regardless of the UID, and Kovio is not recognized.
func ResolveDiscovery(res *DiscoveryResult) []TechEntry {
	params := knownParams(res.Params)
	entries := []TechEntry{{
		Handle:   res.Handle,
		Protocol: res.Protocol,
		Params:   params,
	}}

	switch res.Protocol {
	case ProtocolT1T:
		entries[0].Technology = TechnologyISO14443_3A
	case ProtocolT2T:
		entries[0].Technology = TechnologyISO14443_3A
		if pa, ok := params.(*ParamsA); ok && pa.SelRes == 0 {
			entries = append(entries, secondary(entries[0], TechnologyMifareUltralight))
		}
	case ProtocolT3T:
		entries[0].Technology = TechnologyFelica
	case ProtocolISODEP:
		entries[0].Technology = TechnologyISO14443_4
		entries = appendCarrier(entries)
	case ProtocolISO15693:
		entries[0].Technology = TechnologyISO15693
	default:
		entries[0].Technology = TechnologyUnknown
		logUnknownProtocol("discovery", res.Protocol)
	}
	return entries
}

func secondary(primary TechEntry, tech Technology) TechEntry {
	e := primary
	e.Technology = tech
	return e
}

// appendCarrier adds the NFC-A or NFC-B entry an ISO-DEP tag is carried on.
func appendCarrier(entries []TechEntry) []TechEntry {
	mode, ok := modeOf(entries[0].Params)
	if !ok {
		return entries
	}
	switch {
	case mode.IsA():
		return append(entries, secondary(entries[0], TechnologyISO14443_3A))
	case mode.IsB():
		return append(entries, secondary(entries[0], TechnologyISO14443_3B))
	default:
		return entries
	}
}

func logUnknownProtocol(path string, p Protocol) {
	Logger().Warn().
		Str("component", "interpreter").
		Str("path", path).
		Stringer("protocol", p).
		Err(ErrUnknownProtocol).
		Msg("unrecognized protocol, using unknown technology")
}

// PollBytes returns the technology-specific discovery response bytes of an
// entry: SENS_RES for NFC-A, the SENSB_RES application data and protocol
// info for NFC-B, PMm plus the first system code for NFC-F, and AFI/DSFID
// for ISO15693.
func PollBytes(e TechEntry, aux ActivationParams) []byte {
	mode, ok := modeOf(e.Params)
	if !ok {
		return []byte{}
	}
	params := knownParams(e.Params)

	switch {
	case mode.IsA():
		if pa, ok := params.(*ParamsA); ok {
			return []byte{pa.SensRes[0], pa.SensRes[1]}
		}
	case mode.IsB():
		pb, ok := params.(*ParamsB)
		if ok && e.Technology == TechnologyISO14443_3B && len(pb.SensBRes) > NFCID0Len {
			return slices.Clone(pb.SensBRes[NFCID0Len:])
		}
	case mode.IsF():
		if pf, ok := params.(*ParamsF); ok {
			pmm := pf.PMm()
			out := make([]byte, 10)
			copy(out, pmm[:])
			if len(aux.T3TSystemCodes) > 0 {
				binary.BigEndian.PutUint16(out[8:], aux.T3TSystemCodes[0])
			}
			return out
		}
	case mode.IsISO15693():
		return []byte{aux.I93.AFI, aux.I93.DSFID}
	default:
		Logger().Debug().Str("component", "interpreter").Stringer("mode", mode).Msg("no poll bytes for mode")
	}
	return []byte{}
}

// ActivationBytes returns the technology-specific activation response bytes
// of an entry: SAK for NFC-A based tags, RATS historical bytes or the ATTRIB
// higher-layer response for ISO-DEP, and AFI/DSFID for ISO15693.
func ActivationBytes(e TechEntry, aux ActivationParams, ifp InterfaceParams) []byte {
	switch e.Protocol {
	case ProtocolT1T, ProtocolT2T:
		return selRes(e.Params)
	case ProtocolISODEP:
		return isoDepActivationBytes(e, ifp)
	case ProtocolISO15693:
		return []byte{aux.I93.AFI, aux.I93.DSFID}
	default:
		return []byte{}
	}
}

func selRes(p RFParams) []byte {
	if pa, ok := knownParams(p).(*ParamsA); ok {
		return []byte{pa.SelRes}
	}
	return []byte{}
}

func isoDepActivationBytes(e TechEntry, ifp InterfaceParams) []byte {
	switch e.Technology {
	case TechnologyISO14443_3A:
		return selRes(e.Params)
	case TechnologyISO14443_4:
	default:
		return []byte{}
	}

	mode, ok := modeOf(e.Params)
	if !ok {
		return []byte{}
	}
	var src []byte
	switch {
	case mode.IsA():
		src = ifp.HistoricalBytes
	case mode.IsB():
		src = ifp.HigherLayerResponse
	default:
		return []byte{}
	}
	if ifp.Type != InterfaceISODEP {
		Logger().Warn().
			Str("component", "interpreter").
			Stringer("mode", mode).
			Stringer("interface", ifp.Type).
			Msg("ISO-DEP activation on wrong interface")
		return []byte{}
	}
	return slices.Clone(src)
}

// UID returns the identifier of the tag, taken from the first entry and
// selected by its discovery mode. Kovio UIDs are truncated to maxKovio bytes.
func UID(entries []TechEntry, aux ActivationParams, maxKovio int) []byte {
	if len(entries) == 0 {
		return []byte{}
	}
	switch p := knownParams(entries[0].Params).(type) {
	case *ParamsKovio:
		n := len(p.UID)
		if maxKovio >= 0 && n > maxKovio {
			n = maxKovio
		}
		return slices.Clone(p.UID[:n])
	case *ParamsA:
		return slices.Clone(p.NFCID1)
	case *ParamsB:
		id := p.NFCID0()
		return id[:]
	case *ParamsF:
		id := p.NFCID2()
		return id[:]
	case *ParamsV:
		uid := aux.I93.UID
		slices.Reverse(uid[:])
		return uid[:]
	default:
		return []byte{}
	}
}

// IsT2TNackResponse reports whether a Type 2 response is a NACK: any single
// byte other than the ACK value.
func IsT2TNackResponse(resp []byte) bool {
	return len(resp) == 1 && resp[0] != t2tAck
}

// IsMifareUltralight reports whether the primary technology looks like a
// MIFARE Ultralight: NFC-A poll or listen with SENS_RES 44 00.
func IsMifareUltralight(entries []TechEntry) bool {
	if len(entries) == 0 {
		return false
	}
	pa, ok := knownParams(entries[0].Params).(*ParamsA)
	if !ok {
		return false
	}
	switch pa.DiscoveryMode {
	case ModePollA, ModeListenA, ModeListenAActive:
		return pa.SensRes[0] == 0x44 && pa.SensRes[1] == 0x00
	default:
		return false
	}
}

// IsP2PDiscovered reports whether any entry is an NFC-DEP peer.
func IsP2PDiscovered(entries []TechEntry) bool {
	return slices.ContainsFunc(entries, func(e TechEntry) bool {
		return e.Protocol == ProtocolNFCDEP
	})
}

// PreferredP2PHandle returns the handle to select for peer-to-peer when
// several NFC-DEP candidates were discovered. NFC-F is preferred over NFC-A.
func PreferredP2PHandle(entries []TechEntry) (int, bool) {
	handleA, foundA := 0, false
	for _, e := range entries {
		if e.Protocol != ProtocolNFCDEP {
			continue
		}
		mode, ok := modeOf(e.Params)
		if !ok {
			continue
		}
		switch mode {
		case ModePollF, ModePollFActive:
			return e.Handle, true
		case ModePollA, ModePollAActive:
			if !foundA {
				handleA, foundA = e.Handle, true
			}
		default:
		}
	}
	return handleA, foundA
}

// InterfaceFor returns the RF interface used to select a protocol.
func InterfaceFor(p Protocol) Interface {
	switch p {
	case ProtocolISODEP:
		return InterfaceISODEP
	case ProtocolNFCDEP:
		return InterfaceNFCDEP
	default:
		return InterfaceFrame
	}
}
