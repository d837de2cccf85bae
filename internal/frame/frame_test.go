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

package frame

import (
	"testing"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader(t *testing.T) {
	t.Parallel()

	hdr := Header(MTCommand, 0x01, 0x04, false, 3)
	assert.Equal(t, [HeaderLen]byte{0x21, 0x04, 0x03}, hdr)

	hdr = Header(MTData, 0x00, 0x00, true, 255)
	assert.Equal(t, [HeaderLen]byte{0x10, 0x00, 0xFF}, hdr)
	assert.True(t, IsSegment(hdr[:]))
	assert.Equal(t, 255, PayloadLen(hdr[:]))

	ntf := []byte{0x61, 0x05, 0x00}
	assert.Equal(t, byte(MTNotification), MT(ntf))
	assert.Equal(t, byte(0x01), GID(ntf))
	assert.Equal(t, byte(0x05), OID(ntf))
}

func TestValidateHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hdr     []byte
		wantErr bool
	}{
		{name: "notification", hdr: []byte{0x61, 0x05, 0x10}},
		{name: "response", hdr: []byte{0x41, 0x04, 0x01}},
		{name: "data", hdr: []byte{0x00, 0x00, 0x05}},
		{name: "segmented data", hdr: []byte{0x10, 0x00, 0xFF}},
		{name: "command", hdr: []byte{0x21, 0x04, 0x03}, wantErr: true},
		{name: "reserved OID bits", hdr: []byte{0x61, 0xC5, 0x00}, wantErr: true},
		{name: "data byte 1", hdr: []byte{0x00, 0x01, 0x00}, wantErr: true},
		{name: "unknown type", hdr: []byte{0xE0, 0x00, 0x00}, wantErr: true},
		{name: "short", hdr: []byte{0x61, 0x05}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateHeader(tt.hdr, "read", "test")
			if tt.wantErr {
				require.ErrorIs(t, err, nfctag.ErrInvalidPacket)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidatePacket_LengthMismatch(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidatePacket([]byte{0x40, 0x00, 0x01, 0x00}, "read", "test"))
	require.ErrorIs(t, ValidatePacket([]byte{0x40, 0x00, 0x02, 0x00}, "read", "test"), nfctag.ErrInvalidPacket)
	require.ErrorIs(t, ValidatePacket([]byte{0x40, 0x00, 0x00, 0x00}, "read", "test"), nfctag.ErrInvalidPacket)
}

func TestExtractPacket(t *testing.T) {
	t.Parallel()

	stream := []byte{
		0x40, 0x00, 0x01, 0x00, // CORE_RESET_RSP
		0x61, 0x06, 0x02, 0x01, 0x00, // RF_DEACTIVATE_NTF
		0x00, 0x00, 0x03, // data, incomplete
	}

	pkt, n, err := ExtractPacket(stream, "test")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, stream[:4], pkt)
	stream = stream[n:]

	pkt, n, err = ExtractPacket(stream, "test")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{0x61, 0x06, 0x02, 0x01, 0x00}, pkt)
	stream = stream[n:]

	pkt, n, err = ExtractPacket(stream, "test")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, pkt)
}

func TestExtractPacket_ResyncsOnGarbage(t *testing.T) {
	t.Parallel()

	_, n, err := ExtractPacket([]byte{0x21, 0x00, 0x00, 0x40, 0x00, 0x01, 0x00}, "test")
	require.ErrorIs(t, err, nfctag.ErrInvalidPacket)
	assert.Equal(t, 1, n)
}

func TestReassembler(t *testing.T) {
	t.Parallel()

	var r Reassembler

	_, _, done, err := r.Add([]byte{0x10, 0x00, 0x02, 0x01, 0x02})
	require.NoError(t, err)
	assert.False(t, done)
	assert.True(t, r.Pending())

	hdr, payload, done, err := r.Add([]byte{0x00, 0x00, 0x01, 0x03})
	require.NoError(t, err)
	require.True(t, done)
	assert.False(t, IsSegment(hdr[:]))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, payload)
	assert.False(t, r.Pending())

	// Unsegmented packets pass straight through.
	_, payload, done, err = r.Add([]byte{0x61, 0x06, 0x02, 0x03, 0x00})
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{0x03, 0x00}, payload)
}

func TestReassembler_InterleavedMessageIsRejected(t *testing.T) {
	t.Parallel()

	var r Reassembler
	_, _, _, err := r.Add([]byte{0x10, 0x00, 0x01, 0x01})
	require.NoError(t, err)

	_, _, done, err := r.Add([]byte{0x61, 0x06, 0x02, 0x03, 0x00})
	require.ErrorIs(t, err, nfctag.ErrInvalidPacket)
	assert.False(t, done)
	assert.False(t, r.Pending())
}

func TestBufferPool(t *testing.T) {
	t.Parallel()

	pool := NewBufferPool()
	for _, size := range []int{1, SmallBufferSize, 100, PacketBufferSize, 600, LargeBufferSize, 4096} {
		buf := pool.GetBuffer(size)
		require.Len(t, buf, size)
		buf[0] = 0xAA
		pool.PutBuffer(buf)
	}

	buf := pool.GetBuffer(8)
	assert.Len(t, buf, 8)
	pool.PutBuffer(nil)
}
