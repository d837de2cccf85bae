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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func techs(entries []TechEntry) []Technology {
	out := make([]Technology, len(entries))
	for i, e := range entries {
		out[i] = e.Technology
	}
	return out
}

func TestResolveActivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		act  *Activated
		name string
		want []Technology
	}{
		{
			name: "T1T",
			act:  t1tActivation(0x11),
			want: []Technology{TechnologyISO14443_3A},
		},
		{
			name: "T2T SAK 0 adds Ultralight",
			act:  t2tActivation(1, 0x00),
			want: []Technology{TechnologyISO14443_3A, TechnologyMifareUltralight},
		},
		{
			name: "T2T SAK 0x08 stays NFC-A",
			act:  t2tActivation(1, 0x08),
			want: []Technology{TechnologyISO14443_3A},
		},
		{
			name: "T2T SAK 0x18 stays NFC-A",
			act:  t2tActivation(1, 0x18),
			want: []Technology{TechnologyISO14443_3A},
		},
		{
			name: "T3T",
			act:  felicaActivation(1),
			want: []Technology{TechnologyFelica},
		},
		{
			name: "ISO-DEP on A",
			act:  isoDepAActivation(1),
			want: []Technology{TechnologyISO14443_4, TechnologyISO14443_3A},
		},
		{
			name: "ISO-DEP on B",
			act:  isoDepBActivation(1),
			want: []Technology{TechnologyISO14443_4, TechnologyISO14443_3B},
		},
		{
			name: "ISO-DEP on listen A active",
			act: &Activated{
				Protocol: ProtocolISODEP,
				Params:   &ParamsA{DiscoveryMode: ModeListenAActive},
			},
			want: []Technology{TechnologyISO14443_4, TechnologyISO14443_3A},
		},
		{
			name: "ISO-DEP on B prime",
			act: &Activated{
				Protocol: ProtocolISODEP,
				Params:   &ParamsB{DiscoveryMode: ModePollBPrime},
			},
			want: []Technology{TechnologyISO14443_4, TechnologyISO14443_3B},
		},
		{
			name: "ISO-DEP on F has no carrier",
			act: &Activated{
				Protocol: ProtocolISODEP,
				Params:   &ParamsF{DiscoveryMode: ModePollF},
			},
			want: []Technology{TechnologyISO14443_4},
		},
		{
			name: "ISO-DEP without params",
			act:  &Activated{Protocol: ProtocolISODEP},
			want: []Technology{TechnologyISO14443_4},
		},
		{
			name: "ISO15693",
			act:  iso15693Activation(1),
			want: []Technology{TechnologyISO15693},
		},
		{
			name: "Kovio",
			act:  kovioActivation([]byte{1, 2, 3}),
			want: []Technology{TechnologyKovioBarcode},
		},
		{
			name: "NFC-DEP is unknown",
			act:  &Activated{Protocol: ProtocolNFCDEP, Params: paramsA(ModePollA, 0x40)},
			want: []Technology{TechnologyUnknown},
		},
		{
			name: "unrecognized protocol",
			act:  &Activated{Protocol: Protocol(0x7F)},
			want: []Technology{TechnologyUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ResolveActivation(tt.act)
			assert.Equal(t, tt.want, techs(got))
			for _, e := range got {
				assert.Equal(t, tt.act.Handle, e.Handle)
				assert.Equal(t, tt.act.Protocol, e.Protocol)
				assert.Equal(t, tt.act.Params, e.Params)
			}
		})
	}
}

func TestResolveActivation_T2TSharesHandle(t *testing.T) {
	t.Parallel()

	for _, handle := range []int{0, 1, 7, 255} {
		got := ResolveActivation(t2tActivation(handle, 0))
		require.Len(t, got, 2)
		assert.Equal(t, handle, got[0].Handle)
		assert.Equal(t, handle, got[1].Handle)
		assert.Same(t, got[0].Params, got[1].Params)
	}
}

func TestResolve_TypedNilParams(t *testing.T) {
	t.Parallel()

	params := []RFParams{(*ParamsA)(nil), (*ParamsB)(nil), (*ParamsF)(nil), (*ParamsV)(nil), (*ParamsKovio)(nil)}
	protocols := []Protocol{ProtocolT2T, ProtocolISODEP, ProtocolT3T, ProtocolISO15693, ProtocolKovio}
	for _, p := range params {
		for _, proto := range protocols {
			act := &Activated{Protocol: proto, Params: p}
			require.NotPanics(t, func() {
				entries := ResolveActivation(act)
				require.Len(t, entries, 1)
				assert.Nil(t, entries[0].Params)
				assert.Empty(t, UID(entries, act.Aux, DefaultKovioMaxUIDLen))
				assert.Empty(t, PollBytes(entries[0], act.Aux))
				if proto != ProtocolISO15693 {
					assert.Empty(t, ActivationBytes(entries[0], act.Aux, act.Interface))
				}
				assert.False(t, IsMifareUltralight(entries))
			})
			require.NotPanics(t, func() {
				ResolveDiscovery(&DiscoveryResult{Protocol: proto, Params: p})
			})
		}
	}
}

func TestTracker_TypedNilParams(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	require.NotPanics(t, func() {
		tr.OnActivated(&Activated{
			Protocol:  ProtocolKovio,
			Params:    (*ParamsKovio)(nil),
			Interface: InterfaceParams{Type: InterfaceFrame},
		}, time.Now())
	})
	assert.Equal(t, StateActive, tr.State())
}

func TestResolveDiscovery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		res  *DiscoveryResult
		name string
		want []Technology
	}{
		{
			name: "T2T SAK 0 adds Ultralight",
			res:  &DiscoveryResult{Protocol: ProtocolT2T, Params: paramsA(ModePollA, 0)},
			want: []Technology{TechnologyISO14443_3A, TechnologyMifareUltralight},
		},
		{
			name: "T2T SAK 0 with non-NXP UID adds Ultralight",
			res: &DiscoveryResult{
				Protocol: ProtocolT2T,
				Params:   &ParamsA{DiscoveryMode: ModePollA, NFCID1: []byte{0x05, 1, 2, 3}},
			},
			want: []Technology{TechnologyISO14443_3A, TechnologyMifareUltralight},
		},
		{
			name: "T2T SAK 0x18",
			res:  &DiscoveryResult{Protocol: ProtocolT2T, Params: paramsA(ModePollA, 0x18)},
			want: []Technology{TechnologyISO14443_3A},
		},
		{
			name: "ISO-DEP on B",
			res:  &DiscoveryResult{Protocol: ProtocolISODEP, Params: &ParamsB{DiscoveryMode: ModePollB}},
			want: []Technology{TechnologyISO14443_4, TechnologyISO14443_3B},
		},
		{
			name: "Kovio is not recognized during discovery",
			res:  &DiscoveryResult{Protocol: ProtocolKovio, Params: &ParamsKovio{UID: []byte{1}}},
			want: []Technology{TechnologyUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, techs(ResolveDiscovery(tt.res)))
		})
	}
}

func TestPollBytes(t *testing.T) {
	t.Parallel()

	isoB := isoDepBActivation(1)
	felica := felicaActivation(1)
	v := iso15693Activation(1)

	tests := []struct {
		name  string
		entry TechEntry
		aux   ActivationParams
		want  []byte
	}{
		{
			name:  "NFC-A SENS_RES",
			entry: TechEntry{Technology: TechnologyISO14443_3A, Params: paramsA(ModePollA, 0)},
			want:  []byte{0x44, 0x00},
		},
		{
			name:  "NFC-B strips NFCID0",
			entry: TechEntry{Technology: TechnologyISO14443_3B, Params: isoB.Params},
			want:  []byte{0xA0, 0xA1, 0xA2, 0xA3, 0x00, 0x71, 0x85},
		},
		{
			name:  "NFC-B ISO-DEP entry has none",
			entry: TechEntry{Technology: TechnologyISO14443_4, Params: isoB.Params},
			want:  []byte{},
		},
		{
			name:  "NFC-F PMm and system code",
			entry: TechEntry{Technology: TechnologyFelica, Params: felica.Params},
			aux:   felica.Aux,
			want:  []byte{0x03, 0x01, 0x4B, 0x02, 0x4F, 0x49, 0x93, 0xFF, 0x12, 0xFC},
		},
		{
			name:  "NFC-F without system code",
			entry: TechEntry{Technology: TechnologyFelica, Params: felica.Params},
			want:  []byte{0x03, 0x01, 0x4B, 0x02, 0x4F, 0x49, 0x93, 0xFF, 0x00, 0x00},
		},
		{
			name:  "ISO15693 AFI and DSFID",
			entry: TechEntry{Technology: TechnologyISO15693, Params: v.Params},
			aux:   ActivationParams{I93: I93Params{AFI: 0x07, DSFID: 0x01}},
			want:  []byte{0x07, 0x01},
		},
		{
			name:  "Kovio has none",
			entry: TechEntry{Technology: TechnologyKovioBarcode, Params: &ParamsKovio{UID: []byte{1}}},
			want:  []byte{},
		},
		{
			name:  "nil params",
			entry: TechEntry{},
			want:  []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PollBytes(tt.entry, tt.aux))
		})
	}
}

func TestActivationBytes(t *testing.T) {
	t.Parallel()

	isoA := isoDepAActivation(1)
	isoB := isoDepBActivation(1)
	frame := InterfaceParams{Type: InterfaceFrame, HistoricalBytes: []byte{0x80}}

	tests := []struct {
		name  string
		entry TechEntry
		aux   ActivationParams
		ifp   InterfaceParams
		want  []byte
	}{
		{
			name:  "T2T SAK",
			entry: TechEntry{Protocol: ProtocolT2T, Technology: TechnologyISO14443_3A, Params: paramsA(ModePollA, 0)},
			want:  []byte{0x00},
		},
		{
			name:  "T1T SAK",
			entry: TechEntry{Protocol: ProtocolT1T, Technology: TechnologyISO14443_3A, Params: paramsA(ModePollA, 0x0C)},
			want:  []byte{0x0C},
		},
		{
			name:  "T3T has none",
			entry: TechEntry{Protocol: ProtocolT3T, Technology: TechnologyFelica, Params: felicaActivation(1).Params},
			want:  []byte{},
		},
		{
			name:  "ISO-DEP A historical bytes",
			entry: TechEntry{Protocol: ProtocolISODEP, Technology: TechnologyISO14443_4, Params: isoA.Params},
			ifp:   isoA.Interface,
			want:  []byte{0x80, 0x73},
		},
		{
			name:  "ISO-DEP A on frame interface",
			entry: TechEntry{Protocol: ProtocolISODEP, Technology: TechnologyISO14443_4, Params: isoA.Params},
			ifp:   frame,
			want:  []byte{},
		},
		{
			name:  "ISO-DEP B higher layer response",
			entry: TechEntry{Protocol: ProtocolISODEP, Technology: TechnologyISO14443_4, Params: isoB.Params},
			ifp:   isoB.Interface,
			want:  []byte{0x5A},
		},
		{
			name:  "ISO-DEP carrier A gives SAK",
			entry: TechEntry{Protocol: ProtocolISODEP, Technology: TechnologyISO14443_3A, Params: isoA.Params},
			ifp:   isoA.Interface,
			want:  []byte{0x20},
		},
		{
			name:  "ISO-DEP carrier B has none",
			entry: TechEntry{Protocol: ProtocolISODEP, Technology: TechnologyISO14443_3B, Params: isoB.Params},
			ifp:   isoB.Interface,
			want:  []byte{},
		},
		{
			name:  "ISO15693",
			entry: TechEntry{Protocol: ProtocolISO15693, Technology: TechnologyISO15693},
			aux:   ActivationParams{I93: I93Params{AFI: 0x02, DSFID: 0x03}},
			want:  []byte{0x02, 0x03},
		},
		{
			name:  "Kovio has none",
			entry: TechEntry{Protocol: ProtocolKovio, Technology: TechnologyKovioBarcode},
			want:  []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ActivationBytes(tt.entry, tt.aux, tt.ifp))
		})
	}
}

func TestUID(t *testing.T) {
	t.Parallel()

	v := iso15693Activation(1)
	f := felicaActivation(1)
	b := isoDepBActivation(1)
	long := make([]byte, 40)
	for i := range long {
		long[i] = byte(i)
	}

	tests := []struct {
		name    string
		entries []TechEntry
		aux     ActivationParams
		want    []byte
	}{
		{name: "empty", entries: nil, want: []byte{}},
		{name: "NFC-A", entries: ResolveActivation(t2tActivation(1, 0)), want: testUID7},
		{name: "NFC-B NFCID0", entries: ResolveActivation(b), want: []byte{0x11, 0x22, 0x33, 0x44}},
		{name: "NFC-F NFCID2", entries: ResolveActivation(f), want: []byte{0x01, 0x2E, 0x3D, 0x4C, 0x5B, 0x6A, 0x79, 0x88}},
		{
			name:    "ISO15693 reversed",
			entries: ResolveActivation(v),
			aux:     v.Aux,
			want:    []byte{0xE0, 0x07, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11},
		},
		{name: "Kovio truncated", entries: ResolveActivation(kovioActivation(long)), want: long[:32]},
		{name: "Kovio short", entries: ResolveActivation(kovioActivation([]byte{9, 8})), want: []byte{9, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, UID(tt.entries, tt.aux, DefaultKovioMaxUIDLen))
		})
	}
}

func TestUID_DoesNotAliasAux(t *testing.T) {
	t.Parallel()

	v := iso15693Activation(1)
	_ = UID(ResolveActivation(v), v.Aux, DefaultKovioMaxUIDLen)
	assert.Equal(t, byte(0x11), v.Aux.I93.UID[0])
}

func TestIsT2TNackResponse(t *testing.T) {
	t.Parallel()

	assert.False(t, IsT2TNackResponse([]byte{0x0A}), "ACK")
	assert.True(t, IsT2TNackResponse([]byte{0x00}))
	assert.True(t, IsT2TNackResponse([]byte{0x01}))
	assert.True(t, IsT2TNackResponse([]byte{0x05}))
	assert.False(t, IsT2TNackResponse([]byte{0x00, 0x00}))
	assert.False(t, IsT2TNackResponse(nil))
}

func TestIsMifareUltralight(t *testing.T) {
	t.Parallel()

	assert.True(t, IsMifareUltralight(ResolveActivation(t2tActivation(1, 0))))
	assert.True(t, IsMifareUltralight([]TechEntry{{Params: paramsA(ModeListenAActive, 0)}}))
	assert.False(t, IsMifareUltralight([]TechEntry{{Params: paramsA(ModePollAActive, 0)}}))
	assert.False(t, IsMifareUltralight(ResolveActivation(isoDepAActivation(1))))
	assert.False(t, IsMifareUltralight(ResolveActivation(isoDepBActivation(1))))
	assert.False(t, IsMifareUltralight(nil))
}

func TestPreferredP2PHandle(t *testing.T) {
	t.Parallel()

	a := TechEntry{Handle: 1, Protocol: ProtocolNFCDEP, Params: paramsA(ModePollA, 0x40)}
	f := TechEntry{Handle: 2, Protocol: ProtocolNFCDEP, Params: &ParamsF{DiscoveryMode: ModePollF}}
	tag := TechEntry{Handle: 3, Protocol: ProtocolT2T, Params: paramsA(ModePollA, 0)}

	h, ok := PreferredP2PHandle([]TechEntry{a, tag, f})
	require.True(t, ok)
	assert.Equal(t, 2, h)

	h, ok = PreferredP2PHandle([]TechEntry{tag, a})
	require.True(t, ok)
	assert.Equal(t, 1, h)

	_, ok = PreferredP2PHandle([]TechEntry{tag})
	assert.False(t, ok)

	assert.True(t, IsP2PDiscovered([]TechEntry{tag, a}))
	assert.False(t, IsP2PDiscovered([]TechEntry{tag}))
}

func TestInterfaceFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, InterfaceISODEP, InterfaceFor(ProtocolISODEP))
	assert.Equal(t, InterfaceNFCDEP, InterfaceFor(ProtocolNFCDEP))
	assert.Equal(t, InterfaceFrame, InterfaceFor(ProtocolT2T))
	assert.Equal(t, InterfaceFrame, InterfaceFor(ProtocolISO15693))
}

func TestSelectInterface(t *testing.T) {
	t.Parallel()

	assert.Equal(t, InterfaceISODEP, selectInterface(TechEntry{Protocol: ProtocolISODEP, Technology: TechnologyISO14443_4}))
	assert.Equal(t, InterfaceFrame, selectInterface(TechEntry{Protocol: ProtocolISODEP, Technology: TechnologyISO14443_3A}))
	assert.Equal(t, InterfaceFrame, selectInterface(TechEntry{Protocol: ProtocolISODEP, Technology: TechnologyISO14443_3B}))
	assert.Equal(t, InterfaceNFCDEP, selectInterface(TechEntry{Protocol: ProtocolNFCDEP}))
	assert.Equal(t, InterfaceFrame, selectInterface(TechEntry{Protocol: ProtocolT2T}))
}
