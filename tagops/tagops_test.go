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

//nolint:paralleltest // Test file - not using parallel tests
package tagops

import (
	"context"
	"testing"

	"github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nfctag "github.com/ZaparooProject/go-nfctag"
	simtest "github.com/ZaparooProject/go-nfctag/internal/testing"
)

// tagTransceiver answers commands from a virtual tag the way a session
// reports them.
type tagTransceiver struct {
	tag      *simtest.VirtualTag
	commands [][]byte
}

func (f *tagTransceiver) Transceive(_ context.Context, cmd []byte) ([]byte, error) {
	f.commands = append(f.commands, append([]byte(nil), cmd...))
	resp, err := f.tag.Exchange(cmd)
	if err != nil {
		return nil, nfctag.ErrTagLost
	}
	if nfctag.IsT2TNackResponse(resp) {
		return resp, nfctag.ErrTagNACK
	}
	return resp, nil
}

func t2tTag() *nfctag.Tag {
	return &nfctag.Tag{Protocol: nfctag.ProtocolT2T, UID: simtest.TestNTAG213UID}
}

func detected(t *testing.T, vt *simtest.VirtualTag) (*TagOperations, *tagTransceiver) {
	t.Helper()
	tx := &tagTransceiver{tag: vt}
	ops := New(tx)
	require.NoError(t, ops.DetectTag(context.Background(), t2tTag()))
	return ops, tx
}

// --- TagType Tests ---

func TestTagTypeDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		tagType  TagType
	}{
		{"Unknown tag type", "Unknown", TagTypeUnknown},
		{"Type 2 tag", "NFC Forum Type 2", TagTypeType2},
		{"Out of range", "Unknown", TagType(42)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, TagTypeDisplayName(tc.tagType))
		})
	}
}

func TestTagTypeFromProtocol(t *testing.T) {
	assert.Equal(t, TagTypeType2, TagTypeFromProtocol(nfctag.ProtocolT2T))
	assert.Equal(t, TagTypeUnknown, TagTypeFromProtocol(nfctag.ProtocolISODEP))
	assert.Equal(t, TagTypeUnknown, TagTypeFromProtocol(nfctag.ProtocolUnknown))
}

// --- Detection Tests ---

func TestDetectTag_NoTag(t *testing.T) {
	ops := New(&tagTransceiver{})
	require.ErrorIs(t, ops.DetectTag(context.Background(), nil), ErrNoTag)
	assert.Nil(t, ops.GetUID())
}

func TestDetectTag_Unsupported(t *testing.T) {
	ops := New(&tagTransceiver{tag: simtest.NewVirtualISODEP(nil, nil)})
	err := ops.DetectTag(context.Background(), &nfctag.Tag{Protocol: nfctag.ProtocolISODEP})
	require.ErrorIs(t, err, ErrUnsupportedTag)
	assert.Equal(t, TagTypeUnknown, ops.TagType())
}

func TestDetectTag_NTAG213(t *testing.T) {
	ops, tx := detected(t, simtest.NewVirtualNTAG213(nil))

	assert.Equal(t, TagTypeType2, ops.TagType())
	assert.Equal(t, 144, ops.Capacity())
	assert.False(t, ops.IsReadOnly())
	assert.Equal(t, simtest.TestNTAG213UID, ops.GetUID())
	require.Len(t, tx.commands, 1)
	assert.Equal(t, []byte{cmdRead, ccPage}, tx.commands[0])
}

func TestDetectTag_DataAreaBeyondSectorZero(t *testing.T) {
	vt := simtest.NewVirtualNTAG213(nil)
	vt.Memory[3][2] = 0xFF
	for len(vt.Memory) < maxPages {
		vt.Memory = append(vt.Memory, make([]byte, pageSize))
	}
	ops, tx := detected(t, vt)

	assert.Equal(t, (maxPages-userPageStart)*pageSize, ops.Capacity())

	msg, err := ops.ReadNDEF(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msg.Records)
	assert.Equal(t, []byte{cmdRead, 252}, tx.commands[len(tx.commands)-1])

	err = ops.WritePages(context.Background(), 252, make([]byte, 5*pageSize))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestDetectTag_NotFormatted(t *testing.T) {
	vt := simtest.NewVirtualNTAG213(nil)
	vt.Memory[3][0] = 0x00

	err := New(&tagTransceiver{tag: vt}).DetectTag(context.Background(), t2tTag())
	require.ErrorIs(t, err, ErrNotFormatted)
}

func TestDetectTag_TagGone(t *testing.T) {
	vt := simtest.NewVirtualNTAG213(nil)
	vt.Remove()

	err := New(&tagTransceiver{tag: vt}).DetectTag(context.Background(), t2tTag())
	require.ErrorIs(t, err, nfctag.ErrTagLost)
}

// --- Read Tests ---

func TestReadPages(t *testing.T) {
	ops, tx := detected(t, simtest.NewVirtualNTAG213(nil))

	data, err := ops.ReadPages(context.Background(), 3, 9)
	require.NoError(t, err)
	require.Len(t, data, 7*pageSize)
	assert.Equal(t, []byte{0xE1, 0x10, 0x12, 0x00}, data[:4])
	// Detection plus two READs.
	assert.Len(t, tx.commands, 3)
}

func TestReadPages_ClipsToMemory(t *testing.T) {
	ops, _ := detected(t, simtest.NewVirtualNTAG213(nil))

	data, err := ops.ReadPages(context.Background(), 38, 200)
	require.NoError(t, err)
	assert.Len(t, data, 2*pageSize)
}

func TestReadPages_NoTag(t *testing.T) {
	_, err := New(&tagTransceiver{}).ReadPages(context.Background(), 4, 5)
	require.ErrorIs(t, err, ErrNoTag)
}

func TestReadNDEF_Empty(t *testing.T) {
	ops, _ := detected(t, simtest.NewVirtualNTAG213(nil))

	msg, err := ops.ReadNDEF(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msg.Records)
}

func TestReadNDEF_StoredMessage(t *testing.T) {
	vt := simtest.NewVirtualNTAG213(nil)
	want, err := ndef.NewTextMessage("zaparoo", "en").Marshal()
	require.NoError(t, err)
	require.NoError(t, vt.SetNDEF(want))

	ops, _ := detected(t, vt)
	msg, err := ops.ReadNDEF(context.Background())
	require.NoError(t, err)
	require.Len(t, msg.Records, 1)

	got, err := msg.Marshal()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// --- Write Tests ---

func TestWriteText_RoundTrip(t *testing.T) {
	vt := simtest.NewVirtualNTAG213(nil)
	ops, _ := detected(t, vt)

	require.NoError(t, ops.WriteText(context.Background(), "hello tag"))

	want, err := ndef.NewTextMessage("hello tag", "en").Marshal()
	require.NoError(t, err)
	assert.Equal(t, want, vt.NDEF())

	msg, err := ops.ReadNDEF(context.Background())
	require.NoError(t, err)
	got, err := msg.Marshal()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWritePages_Restricted(t *testing.T) {
	ops, _ := detected(t, simtest.NewVirtualNTAG213(nil))
	require.ErrorIs(t, ops.WritePages(context.Background(), 2, []byte{1, 2, 3, 4}), ErrRestrictedPage)
}

func TestWritePages_PadsLastPage(t *testing.T) {
	vt := simtest.NewVirtualNTAG213(nil)
	ops, _ := detected(t, vt)

	require.NoError(t, ops.WritePages(context.Background(), 10, []byte{1, 2, 3, 4, 5}))
	p10, err := vt.ReadPage(10)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, p10)
	p11, err := vt.ReadPage(11)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 0, 0, 0}, p11)
}

func TestWritePages_TooLarge(t *testing.T) {
	ops, _ := detected(t, simtest.NewVirtualNTAG213(nil))
	err := ops.WritePages(context.Background(), 38, make([]byte, 3*pageSize))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestWriteNDEF_TooLarge(t *testing.T) {
	ops, _ := detected(t, simtest.NewVirtualNTAG213(nil))
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	err := ops.WriteText(context.Background(), string(long))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestWriteNDEF_ReadOnly(t *testing.T) {
	vt := simtest.NewVirtualNTAG213(nil)
	vt.Memory[3][3] = 0x0F
	ops, _ := detected(t, vt)

	assert.True(t, ops.IsReadOnly())
	require.ErrorIs(t, ops.WriteText(context.Background(), "x"), ErrReadOnly)
}

// --- TLV Tests ---

func TestFindNDEFTLV(t *testing.T) {
	long := make([]byte, 300)
	tests := []struct {
		name    string
		data    []byte
		want    []byte
		wantErr bool
	}{
		{name: "plain", data: []byte{0x03, 0x02, 0xAA, 0xBB, 0xFE}, want: []byte{0xAA, 0xBB}},
		{name: "empty", data: []byte{0x03, 0x00, 0xFE}, want: []byte{}},
		{name: "after null and lock control", data: []byte{0x00, 0x01, 0x03, 0xA0, 0x0C, 0x34, 0x03, 0x01, 0x55}, want: []byte{0x55}},
		{name: "long form", data: append([]byte{0x03, 0xFF, 0x01, 0x2C}, long...), want: long},
		{name: "terminator first", data: []byte{0xFE, 0x03, 0x01, 0x55}, wantErr: true},
		{name: "truncated length", data: []byte{0x03}, wantErr: true},
		{name: "overrun", data: []byte{0x03, 0x09, 0x01}, wantErr: true},
		{name: "nothing", data: []byte{0x00, 0x00}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := findNDEFTLV(tc.data)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrNoNDEF)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildNDEFTLV(t *testing.T) {
	assert.Equal(t, []byte{0x03, 0x01, 0x55, 0xFE}, buildNDEFTLV([]byte{0x55}))

	long := buildNDEFTLV(make([]byte, 0x120))
	assert.Equal(t, []byte{0x03, 0xFF, 0x01, 0x20}, long[:4])
	assert.Equal(t, byte(0xFE), long[len(long)-1])
}
