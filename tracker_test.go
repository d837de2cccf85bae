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
)

func TestTracker_InitialState(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	assert.Equal(t, StateIdle, tr.State())
	assert.Equal(t, ProtocolUnknown, tr.Protocol())
	assert.False(t, tr.NdefDetectionTimedOut())
}

func TestTracker_ActivationAndDeactivation(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	now := time.Now()

	assert.True(t, tr.OnActivated(t2tActivation(1, 0), now))
	assert.Equal(t, StateActive, tr.State())
	assert.Equal(t, ProtocolT2T, tr.Protocol())

	tr.OnDeactivated(DeactivateSleep)
	assert.Equal(t, StateSleep, tr.State())
	assert.Equal(t, ProtocolT2T, tr.Protocol())

	tr.OnReselected()
	assert.Equal(t, StateActive, tr.State())

	tr.OnDeactivated(DeactivateDiscard)
	assert.Equal(t, StateIdle, tr.State())
	assert.Equal(t, ProtocolUnknown, tr.Protocol())
}

func TestTracker_DiscardFromAnyState(t *testing.T) {
	t.Parallel()

	for _, setup := range []func(*Tracker){
		func(*Tracker) {},
		func(tr *Tracker) { tr.OnActivated(t2tActivation(1, 0), time.Now()) },
		func(tr *Tracker) {
			tr.OnActivated(t2tActivation(1, 0), time.Now())
			tr.OnDeactivated(DeactivateSleep)
		},
	} {
		tr := NewTracker(nil)
		setup(tr)
		tr.OnDeactivated(DeactivateDiscard)
		assert.Equal(t, StateIdle, tr.State())
	}
}

func TestTracker_IgnoresNonTagActivations(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)

	listen := t2tActivation(1, 0)
	listen.Params = paramsA(ModeListenA, 0)
	assert.False(t, tr.OnActivated(listen, time.Now()))

	ee := isoDepAActivation(1)
	ee.Interface.Type = InterfaceEEDirectRF
	assert.False(t, tr.OnActivated(ee, time.Now()))

	assert.Equal(t, StateIdle, tr.State())
	assert.Equal(t, ProtocolUnknown, tr.Protocol())
}

func TestTracker_T1TMaxMessageSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hr0  byte
		want int
	}{
		{name: "Topaz 96", hr0: 0x11, want: 90},
		{name: "Topaz 512", hr0: 0x12, want: 462},
		{name: "unknown header", hr0: 0x21, want: 0},
		{name: "zero header", hr0: 0x00, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := NewTracker(nil)
			assert.True(t, tr.OnActivated(t1tActivation(tt.hr0), time.Now()))
			assert.Equal(t, tt.want, tr.T1TMaxMessageSize())
		})
	}
}

func TestTracker_T1TMaxMessageSize_NonT1T(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	tr.OnActivated(t1tActivation(0x12), time.Now())
	tr.OnActivated(t2tActivation(1, 0), time.Now())
	assert.Equal(t, 0, tr.T1TMaxMessageSize())
}

func TestTracker_NdefDetectTimeoutFlag(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	tr.OnActivated(t2tActivation(1, 0), time.Now())

	tr.OnNdefDetect(StatusFailed)
	assert.False(t, tr.NdefDetectionTimedOut())

	tr.OnNdefDetect(StatusTimeout)
	assert.True(t, tr.NdefDetectionTimedOut())

	tr.OnDeactivated(DeactivateSleep)
	assert.False(t, tr.NdefDetectionTimedOut(), "cleared on transition")

	tr.OnNdefDetect(StatusTimeout)
	tr.OnActivated(t2tActivation(1, 0), time.Now())
	assert.False(t, tr.NdefDetectionTimedOut(), "cleared on activation")
}

func TestTracker_KovioDeduplication(t *testing.T) {
	t.Parallel()

	uid := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		second  []byte
		name    string
		gap     time.Duration
		wantDup bool
	}{
		{name: "same uid within window", second: uid, gap: 100 * time.Millisecond, wantDup: true},
		{name: "same uid just inside window", second: uid, gap: 499 * time.Millisecond, wantDup: true},
		{name: "same uid at window", second: uid, gap: 500 * time.Millisecond, wantDup: false},
		{name: "same uid after window", second: uid, gap: 2 * time.Second, wantDup: false},
		{name: "different uid", second: []byte{0xAA, 0xBB, 0xCC, 0xDE}, gap: 10 * time.Millisecond, wantDup: false},
		{name: "different length", second: []byte{0xAA, 0xBB, 0xCC}, gap: 10 * time.Millisecond, wantDup: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := NewTracker(nil)
			assert.True(t, tr.OnActivated(kovioActivation(uid), base))
			assert.Equal(t, !tt.wantDup, tr.OnActivated(kovioActivation(tt.second), base.Add(tt.gap)))
		})
	}
}

func TestTracker_KovioRecordAlwaysUpdated(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	uid := []byte{1, 2, 3}
	base := time.Now()

	assert.True(t, tr.OnActivated(kovioActivation(uid), base))
	// A burst of re-activations keeps refreshing the timestamp, so each one
	// is within the window of the previous.
	for i := 1; i <= 5; i++ {
		assert.False(t, tr.OnActivated(kovioActivation(uid), base.Add(time.Duration(i)*400*time.Millisecond)))
	}
}

func TestTracker_KovioCompareTruncatesUID(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.KovioMaxUIDLen = 4
	tr := NewTracker(cfg)
	now := time.Now()

	assert.True(t, tr.OnActivated(kovioActivation([]byte{1, 2, 3, 4, 5}), now))
	assert.False(t, tr.OnActivated(kovioActivation([]byte{1, 2, 3, 4, 9}), now.Add(time.Millisecond)))
}

func TestTracker_SuppressedKovioLeavesStateAlone(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	now := time.Now()
	tr.OnActivated(kovioActivation([]byte{1}), now)
	tr.OnDeactivated(DeactivateDiscard)

	assert.False(t, tr.OnActivated(kovioActivation([]byte{1}), now.Add(10*time.Millisecond)))
	assert.Equal(t, StateIdle, tr.State())
	assert.Equal(t, ProtocolUnknown, tr.Protocol())
}
