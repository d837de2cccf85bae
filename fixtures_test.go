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

var testUID7 = []byte{0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0xF6}

func paramsA(mode DiscoveryMode, sel byte) *ParamsA {
	return &ParamsA{
		DiscoveryMode: mode,
		SensRes:       [2]byte{0x44, 0x00},
		NFCID1:        append([]byte(nil), testUID7...),
		SelRes:        sel,
	}
}

func t2tActivation(handle int, sel byte) *Activated {
	return &Activated{
		Handle:    handle,
		Protocol:  ProtocolT2T,
		Params:    paramsA(ModePollA, sel),
		Interface: InterfaceParams{Type: InterfaceFrame},
	}
}

func t1tActivation(hr0 byte) *Activated {
	return &Activated{
		Handle:    1,
		Protocol:  ProtocolT1T,
		Params:    &ParamsA{DiscoveryMode: ModePollA, SensRes: [2]byte{0x0C, 0x00}, NFCID1: []byte{1, 2, 3, 4}},
		Aux:       ActivationParams{T1THeaderROM: [2]byte{hr0, 0x48}},
		Interface: InterfaceParams{Type: InterfaceFrame},
	}
}

func isoDepAActivation(handle int) *Activated {
	return &Activated{
		Handle:   handle,
		Protocol: ProtocolISODEP,
		Params: &ParamsA{
			DiscoveryMode: ModePollA,
			SensRes:       [2]byte{0x04, 0x00},
			NFCID1:        []byte{0x08, 0x11, 0x22, 0x33},
			SelRes:        0x20,
		},
		Interface: InterfaceParams{Type: InterfaceISODEP, HistoricalBytes: []byte{0x80, 0x73}},
	}
}

func isoDepBActivation(handle int) *Activated {
	return &Activated{
		Handle:    handle,
		Protocol:  ProtocolISODEP,
		Params:    &ParamsB{DiscoveryMode: ModePollB, SensBRes: []byte{0x11, 0x22, 0x33, 0x44, 0xA0, 0xA1, 0xA2, 0xA3, 0x00, 0x71, 0x85}},
		Interface: InterfaceParams{Type: InterfaceISODEP, HigherLayerResponse: []byte{0x5A}},
	}
}

func felicaActivation(handle int) *Activated {
	return &Activated{
		Handle:   handle,
		Protocol: ProtocolT3T,
		Params: &ParamsF{
			DiscoveryMode: ModePollF,
			BitRate:       1,
			SensFRes: []byte{
				0x01, 0x2E, 0x3D, 0x4C, 0x5B, 0x6A, 0x79, 0x88, // NFCID2
				0x03, 0x01, 0x4B, 0x02, 0x4F, 0x49, 0x93, 0xFF, // PMm
			},
		},
		Aux:       ActivationParams{T3TSystemCodes: []uint16{0x12FC}},
		Interface: InterfaceParams{Type: InterfaceFrame},
	}
}

func iso15693Activation(handle int) *Activated {
	return &Activated{
		Handle:   handle,
		Protocol: ProtocolISO15693,
		Params:   &ParamsV{DiscoveryMode: ModePollISO15693},
		Aux: ActivationParams{I93: I93Params{
			AFI:   0x00,
			DSFID: 0x01,
			UID:   [8]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x07, 0xE0},
		}},
		Interface: InterfaceParams{Type: InterfaceFrame},
	}
}

func kovioActivation(uid []byte) *Activated {
	return &Activated{
		Handle:    1,
		Protocol:  ProtocolKovio,
		Params:    &ParamsKovio{UID: uid},
		Interface: InterfaceParams{Type: InterfaceFrame},
	}
}

// recordingListener collects listener callbacks on channels.
type recordingListener struct {
	discovered chan *Tag
	lost       chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		discovered: make(chan *Tag, 16),
		lost:       make(chan struct{}, 16),
	}
}

func (l *recordingListener) OnTagDiscovered(tag *Tag) { l.discovered <- tag }
func (l *recordingListener) OnTagLost()               { l.lost <- struct{}{} }
