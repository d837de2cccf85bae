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
	"fmt"
	"slices"
	"sync"

	nfctag "github.com/ZaparooProject/go-nfctag"
)

// BufferPool manages reusable byte slices for the transport read paths.
type BufferPool struct {
	// Small buffers for headers (1-16 bytes)
	smallPool sync.Pool
	// Packet buffers for one complete packet
	packetPool sync.Pool
	// Large buffers for stream reads and reassembly
	largePool sync.Pool
}

// Size thresholds for buffer categories
const (
	SmallBufferSize  = 16
	PacketBufferSize = MaxPacketLen
	LargeBufferSize  = 1024
)

var defaultPool = NewBufferPool()

// NewBufferPool creates a new buffer pool.
func NewBufferPool() *BufferPool {
	newPool := func(size int) sync.Pool {
		return sync.Pool{New: func() any {
			buf := make([]byte, size)
			return &buf
		}}
	}
	return &BufferPool{
		smallPool:  newPool(SmallBufferSize),
		packetPool: newPool(PacketBufferSize),
		largePool:  newPool(LargeBufferSize),
	}
}

// GetBuffer returns a buffer of exactly size bytes. Return it with PutBuffer.
func (p *BufferPool) GetBuffer(size int) []byte {
	var pool *sync.Pool
	switch {
	case size <= SmallBufferSize:
		pool = &p.smallPool
	case size <= PacketBufferSize:
		pool = &p.packetPool
	case size <= LargeBufferSize:
		pool = &p.largePool
	default:
		// Oversized requests bypass the pool.
		return make([]byte, size)
	}
	bufPtr, ok := pool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// PutBuffer clears buf and returns it to the pool. buf must not be used
// afterwards.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	clear(buf)

	switch c := cap(buf); c {
	case SmallBufferSize:
		full := buf[:c]
		p.smallPool.Put(&full)
	case PacketBufferSize:
		full := buf[:c]
		p.packetPool.Put(&full)
	case LargeBufferSize:
		full := buf[:c]
		p.largePool.Put(&full)
	default:
	}
}

// GetBuffer acquires a buffer from the default pool
func GetBuffer(size int) []byte {
	return defaultPool.GetBuffer(size)
}

// PutBuffer returns a buffer to the default pool
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}

// ExtractPacket finds the first complete packet at the start of a byte
// stream. It returns a copy of the packet and how many bytes of buf it
// used. n == 0 with a nil error means more bytes are needed. On a corrupt
// header n is 1, so the caller can drop a byte and resynchronize.
func ExtractPacket(buf []byte, port string) (pkt []byte, n int, err error) {
	if len(buf) < HeaderLen {
		return nil, 0, nil
	}
	if err := ValidateHeader(buf, "extract", port); err != nil {
		return nil, 1, err
	}
	total := HeaderLen + PayloadLen(buf)
	if len(buf) < total {
		return nil, 0, nil
	}
	return slices.Clone(buf[:total]), total, nil
}

// Reassembler joins segmented messages (PBF set) back into one payload.
// A reassembled payload can exceed MaxPayloadLen, so the header and payload
// are returned separately.
type Reassembler struct {
	payload []byte
	hdr     [HeaderLen]byte
	active  bool
}

// Add feeds one validated packet. It returns done once the last segment of
// a message has arrived; the returned header has PBF cleared and the length
// byte of the last segment.
func (r *Reassembler) Add(pkt []byte) (hdr [HeaderLen]byte, payload []byte, done bool, err error) {
	body := pkt[HeaderLen:]

	if r.active && !sameMessage(r.hdr[:], pkt) {
		r.Reset()
		return hdr, nil, false, fmt.Errorf("segment %02X %02X does not continue %02X %02X: %w",
			pkt[0], pkt[1], r.hdr[0], r.hdr[1], nfctag.ErrInvalidPacket)
	}

	if IsSegment(pkt) {
		if !r.active {
			copy(r.hdr[:], pkt[:HeaderLen])
			r.active = true
		}
		r.payload = append(r.payload, body...)
		return hdr, nil, false, nil
	}

	copy(hdr[:], pkt[:HeaderLen])
	if r.active {
		payload = append(r.payload, body...)
		r.Reset()
	} else {
		payload = slices.Clone(body)
	}
	return hdr, payload, true, nil
}

// Reset drops a partially received message.
func (r *Reassembler) Reset() {
	r.payload = nil
	r.active = false
}

// Pending reports whether a message is partially received.
func (r *Reassembler) Pending() bool {
	return r.active
}

func sameMessage(a, b []byte) bool {
	return MT(a) == MT(b) && a[0]&gidMask == b[0]&gidMask && a[1] == b[1]
}
