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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, j *JitteryConnection, want int) []byte {
	t.Helper()
	out := make([]byte, 0, want)
	buf := make([]byte, 64)
	deadline := time.Now().Add(time.Second)
	for len(out) < want {
		require.True(t, time.Now().Before(deadline), "timed out after %d of %d bytes", len(out), want)
		n, err := j.Read(buf)
		require.NoError(t, err)
		out = append(out, buf[:n]...)
	}
	return out
}

func TestJitteryConnection_PassThrough(t *testing.T) {
	t.Parallel()

	port := NewStreamPort(10 * time.Millisecond)
	j := NewJitteryConnection(port, JitterConfig{Seed: 12345})

	n, err := j.Write([]byte{0x20, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x20, 0x00, 0x01, 0x00}, port.Written())

	port.Feed(0x40, 0x00, 0x01, 0x00)
	assert.Equal(t, []byte{0x40, 0x00, 0x01, 0x00}, readAll(t, j, 4))
}

func TestJitteryConnection_FragmentationKeepsBytes(t *testing.T) {
	t.Parallel()

	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i)
	}

	for _, seed := range []uint64{1, 42, 999} {
		port := NewStreamPort(10 * time.Millisecond)
		port.Feed(data...)
		j := NewJitteryConnection(port, JitterConfig{
			FragmentReads:    true,
			FragmentMinBytes: 1,
			BoundaryStress:   true,
			Seed:             seed,
		})
		assert.Equal(t, data, readAll(t, j, len(data)), "seed %d", seed)
	}
}

func TestJitteryConnection_StallSplitsRead(t *testing.T) {
	t.Parallel()

	port := NewStreamPort(10 * time.Millisecond)
	port.Feed(1, 2, 3, 4, 5, 6)
	j := NewJitteryConnection(port, JitterConfig{
		StallAfterBytes: 2,
		StallDuration:   20 * time.Millisecond,
		Seed:            7,
	})

	buf := make([]byte, 16)
	n, err := j.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	start := time.Now()
	n, err = j.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestStreamPort_ReadTimesOut(t *testing.T) {
	t.Parallel()

	port := NewStreamPort(5 * time.Millisecond)
	n, err := port.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, port.Close())
	_, err = port.Read(make([]byte, 4))
	require.Error(t, err)
	_, err = port.Write([]byte{1})
	require.Error(t, err)
}
