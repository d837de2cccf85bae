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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nfctag "github.com/ZaparooProject/go-nfctag"
)

func TestVirtualNTAG213_Layout(t *testing.T) {
	t.Parallel()

	tag := NewVirtualNTAG213(nil)
	assert.Equal(t, nfctag.ProtocolT2T, tag.Protocol())
	assert.Equal(t, nfctag.InterfaceFrame, tag.Interface())

	cc, err := tag.ReadPage(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE1, 0x10, 0x12, 0x00}, cc)
	assert.Empty(t, tag.NDEF())

	_, err = tag.ReadPage(45)
	require.Error(t, err)
}

func TestVirtualNTAG213_ReadWrite(t *testing.T) {
	t.Parallel()

	tag := NewVirtualNTAG213(nil)

	resp, err := tag.Exchange([]byte{t2tWrite, 5, 1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []byte{t2tACK}, resp)

	resp, err = tag.Exchange([]byte{t2tRead, 4})
	require.NoError(t, err)
	require.Len(t, resp, 16)
	assert.Equal(t, []byte{1, 2, 3, 4}, resp[4:8])

	// Writes outside user memory are refused.
	resp, err = tag.Exchange([]byte{t2tWrite, 2, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{t2tNACK}, resp)

	resp, err = tag.Exchange([]byte{0x60})
	require.NoError(t, err)
	assert.Equal(t, []byte{t2tNACK}, resp)
}

func TestVirtualNTAG213_ReadWrapsAround(t *testing.T) {
	t.Parallel()

	tag := NewVirtualNTAG213(nil)
	resp, err := tag.Exchange([]byte{t2tRead, 44})
	require.NoError(t, err)
	page0, err := tag.ReadPage(0)
	require.NoError(t, err)
	assert.Equal(t, page0, resp[4:8])
}

func TestVirtualNTAG213_NDEF(t *testing.T) {
	t.Parallel()

	tag := NewVirtualNTAG213(nil)
	msg := []byte{0xD1, 0x01, 0x04, 0x54, 0x02, 'e', 'n', 'x'}
	require.NoError(t, tag.SetNDEF(msg))
	assert.Equal(t, msg, tag.NDEF())

	require.Error(t, tag.SetNDEF(make([]byte, 200)))
	require.Error(t, NewVirtualISODEP(nil, nil).SetNDEF(msg))
}

func TestVirtualTag_Removed(t *testing.T) {
	t.Parallel()

	tag := NewVirtualNTAG213(nil)
	tag.Remove()
	assert.False(t, tag.IsPresent())
	_, err := tag.Exchange([]byte{t2tRead, 0})
	require.ErrorIs(t, err, ErrTagAbsent)

	tag.Insert()
	_, err = tag.Exchange([]byte{t2tRead, 0})
	require.NoError(t, err)
}

func TestVirtualISODEP(t *testing.T) {
	t.Parallel()

	tag := NewVirtualISODEP(nil, []byte{0x80, 0x73})
	assert.Equal(t, nfctag.ProtocolISODEP, tag.Protocol())
	assert.Equal(t, nfctag.InterfaceISODEP, tag.Interface())
	assert.Equal(t, []byte{0x06, 0x78, 0x77, 0x81, 0x02, 0x80, 0x73}, tag.ActivationParams())

	resp, err := tag.Exchange([]byte{0x00, 0xA4, 0x04, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x00}, resp)
}
