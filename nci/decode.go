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

package nci

import (
	"encoding/binary"
	"fmt"
	"slices"

	nfctag "github.com/ZaparooProject/go-nfctag"
)

// Activation is a decoded RF_INTF_ACTIVATED_NTF: the event for the session
// plus the data-channel parameters the link needs.
type Activation struct {
	Event *nfctag.Activated
	// MaxPayload is the largest data packet payload the controller accepts.
	MaxPayload int
	// Credits is the initial number of data packets the link may send.
	Credits int
}

// reader walks a payload and records the first overrun.
type reader struct {
	err  error
	what string
	buf  []byte
	off  int
}

func newReader(what string, buf []byte) *reader {
	return &reader{what: what, buf: buf}
}

func (r *reader) u8() byte {
	b := r.bytes(1)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%s: need %d bytes at offset %d, have %d: %w",
			r.what, n, r.off, len(r.buf), nfctag.ErrInvalidPacket)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// lv reads a length-prefixed field.
func (r *reader) lv() []byte {
	return r.bytes(int(r.u8()))
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

// DecodeDiscoverNtf decodes RF_DISCOVER_NTF, one candidate of a
// multi-target discovery round.
func DecodeDiscoverNtf(payload []byte) (*nfctag.DiscoveryResult, error) {
	r := newReader("RF_DISCOVER_NTF", payload)
	handle := int(r.u8())
	protocol := nfctag.Protocol(r.u8())
	mode := nfctag.DiscoveryMode(r.u8())
	tech := r.lv()
	ntfType := r.u8()
	if r.err != nil {
		return nil, r.err
	}

	params, _, err := decodeTechParams(mode, tech)
	if err != nil {
		return nil, fmt.Errorf("RF_DISCOVER_NTF: %w", err)
	}
	return &nfctag.DiscoveryResult{
		Handle:   handle,
		Protocol: protocol,
		Params:   params,
		Status:   nfctag.StatusOK,
		HasMore:  ntfType == discoverMore,
	}, nil
}

// DecodeIntfActivatedNtf decodes RF_INTF_ACTIVATED_NTF.
func DecodeIntfActivatedNtf(payload []byte) (*Activation, error) {
	r := newReader("RF_INTF_ACTIVATED_NTF", payload)
	handle := int(r.u8())
	iface := nfctag.Interface(r.u8())
	protocol := nfctag.Protocol(r.u8())
	mode := nfctag.DiscoveryMode(r.u8())
	maxPayload := int(r.u8())
	credits := int(r.u8())
	tech := r.lv()
	r.bytes(3) // data exchange mode and bit rates
	actParams := r.lv()
	if r.err != nil {
		return nil, r.err
	}

	params, aux, err := decodeTechParams(mode, tech)
	if err != nil {
		return nil, fmt.Errorf("RF_INTF_ACTIVATED_NTF: %w", err)
	}
	ifp, err := decodeInterfaceParams(iface, mode, actParams)
	if err != nil {
		return nil, fmt.Errorf("RF_INTF_ACTIVATED_NTF: %w", err)
	}

	return &Activation{
		Event: &nfctag.Activated{
			Handle:    handle,
			Protocol:  protocol,
			Params:    params,
			Aux:       aux,
			Interface: ifp,
		},
		MaxPayload: maxPayload,
		Credits:    credits,
	}, nil
}

// DecodeDeactivateNtf decodes RF_DEACTIVATE_NTF into the deactivation the
// session sees and the NCI reason code.
func DecodeDeactivateNtf(payload []byte) (nfctag.DeactivationType, byte, error) {
	r := newReader("RF_DEACTIVATE_NTF", payload)
	typ := r.u8()
	reason := r.u8()
	if r.err != nil {
		return nfctag.DeactivateDiscard, 0, r.err
	}
	switch typ {
	case DeactivateSleep, DeactivateSleepAF:
		return nfctag.DeactivateSleep, reason, nil
	default:
		return nfctag.DeactivateDiscard, reason, nil
	}
}

// decodeTechParams decodes the RF technology specific parameters of a
// discovery or activation notification. Modes with no parameters of their
// own (listen A/B) yield empty parameter records; unknown modes yield nil.
func decodeTechParams(mode nfctag.DiscoveryMode, b []byte) (nfctag.RFParams, nfctag.ActivationParams, error) {
	var aux nfctag.ActivationParams
	r := newReader(fmt.Sprintf("%s parameters", mode), b)

	var params nfctag.RFParams
	switch mode {
	case nfctag.ModePollA, nfctag.ModePollAActive:
		p := &nfctag.ParamsA{DiscoveryMode: mode}
		copy(p.SensRes[:], r.bytes(2))
		p.NFCID1 = slices.Clone(r.lv())
		if sel := r.lv(); len(sel) > 0 {
			p.SelRes = sel[0]
		}
		// NCI 2.0 appends the Type 1 header ROM.
		if r.remaining() > 0 {
			copy(aux.T1THeaderROM[:], r.lv())
		}
		params = p
	case nfctag.ModeListenA, nfctag.ModeListenAActive:
		params = &nfctag.ParamsA{DiscoveryMode: mode}
	case nfctag.ModePollB:
		params = &nfctag.ParamsB{DiscoveryMode: mode, SensBRes: slices.Clone(r.lv())}
	case nfctag.ModeListenB:
		params = &nfctag.ParamsB{DiscoveryMode: mode}
	case nfctag.ModePollF, nfctag.ModePollFActive:
		p := &nfctag.ParamsF{DiscoveryMode: mode, BitRate: r.u8()}
		p.SensFRes = slices.Clone(r.lv())
		// Request data (the system code) follows NFCID2 and PMm when asked for.
		if len(p.SensFRes) >= nfctag.NFCID2Len+8+2 {
			aux.T3TSystemCodes = []uint16{binary.BigEndian.Uint16(p.SensFRes[16:18])}
		}
		params = p
	case nfctag.ModeListenF, nfctag.ModeListenFActive:
		params = &nfctag.ParamsF{DiscoveryMode: mode, SensFRes: slices.Clone(r.lv())}
	case nfctag.ModePollISO15693:
		p := &nfctag.ParamsV{DiscoveryMode: mode, Flags: r.u8(), DSFID: r.u8()}
		copy(p.UID[:], r.bytes(nfctag.I93UIDLen))
		aux.I93 = nfctag.I93Params{DSFID: p.DSFID, UID: p.UID}
		params = p
	case nfctag.ModePollKovio:
		params = &nfctag.ParamsKovio{UID: slices.Clone(r.lv())}
	default:
		nfctag.Logger().Debug().Str("component", "nci").Stringer("mode", mode).Msg("no parameter decoder for mode")
		return nil, aux, nil
	}
	if r.err != nil {
		return nil, aux, r.err
	}
	return params, aux, nil
}

// decodeInterfaceParams extracts the ISO-DEP activation data: the ATS
// historical bytes for NFC-A, the ATTRIB higher-layer response for NFC-B.
func decodeInterfaceParams(iface nfctag.Interface, mode nfctag.DiscoveryMode, b []byte) (nfctag.InterfaceParams, error) {
	ifp := nfctag.InterfaceParams{Type: iface}
	if iface != nfctag.InterfaceISODEP || mode.IsListen() {
		return ifp, nil
	}

	r := newReader("ISO-DEP activation parameters", b)
	switch {
	case mode.IsA():
		ats := r.lv()
		if r.err != nil {
			return ifp, r.err
		}
		ifp.HistoricalBytes = historicalBytes(ats)
	case mode.IsB():
		attrib := r.lv()
		if r.err != nil {
			return ifp, r.err
		}
		if len(attrib) > 1 {
			ifp.HigherLayerResponse = slices.Clone(attrib[1:])
		}
	default:
	}
	return ifp, nil
}

// historicalBytes skips T0 and the interface bytes it announces. NCI
// delivers the ATS without its length byte.
func historicalBytes(ats []byte) []byte {
	if len(ats) == 0 {
		return nil
	}
	t0 := ats[0]
	off := 1
	for _, bit := range []byte{0x10, 0x20, 0x40} { // TA, TB, TC present
		if t0&bit != 0 {
			off++
		}
	}
	if off >= len(ats) {
		return nil
	}
	return slices.Clone(ats[off:])
}
