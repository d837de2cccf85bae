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
	"bytes"
	"io"
	"sync"
	"time"
)

// StreamPort is an in-memory serial port. Bytes passed to Feed are
// returned by Read; a Read with nothing to return waits up to the read
// timeout and then returns 0, nil as a serial port does.
type StreamPort struct {
	readTimeout time.Duration
	in          bytes.Buffer
	out         bytes.Buffer
	notify      chan struct{}
	closed      bool
	mu          sync.Mutex
}

// NewStreamPort creates a port with the given read timeout.
func NewStreamPort(readTimeout time.Duration) *StreamPort {
	return &StreamPort{readTimeout: readTimeout, notify: make(chan struct{}, 1)}
}

// Feed queues bytes for Read.
func (p *StreamPort) Feed(b ...byte) {
	p.mu.Lock()
	p.in.Write(b)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Read implements io.Reader.
func (p *StreamPort) Read(buf []byte) (int, error) {
	deadline := time.NewTimer(p.readTimeout)
	defer deadline.Stop()
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, io.EOF
		}
		if p.in.Len() > 0 {
			n, _ := p.in.Read(buf)
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-deadline.C:
			return 0, nil
		}
	}
}

// Write implements io.Writer.
func (p *StreamPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.out.Write(b)
}

// Close implements io.Closer.
func (p *StreamPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Written returns everything written so far.
func (p *StreamPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}
