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
	"context"
	"slices"
	"sync"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/frame"
	"github.com/ZaparooProject/go-nfctag/nci"
)

const readQueueSize = 256

// Responder answers one packet written by the host with the packets the
// controller sends back.
type Responder func(pkt []byte) [][]byte

// ScriptedTransport is an in-memory nci.Transport. Every written packet is
// recorded and passed to the responder; its answers, and anything passed
// to Inject, are returned by ReadPacket in order.
type ScriptedTransport struct {
	respond   Responder
	writeErr  error
	reads     chan []byte
	closed    chan struct{}
	written   [][]byte
	closeOnce sync.Once
	mu        sync.Mutex
}

// NewScriptedTransport creates a transport answering with r. A nil r never
// answers.
func NewScriptedTransport(r Responder) *ScriptedTransport {
	return &ScriptedTransport{
		respond: r,
		reads:   make(chan []byte, readQueueSize),
		closed:  make(chan struct{}),
	}
}

// NewSimTransport creates a transport wired to sim.
func NewSimTransport(sim *SimController) *ScriptedTransport {
	t := NewScriptedTransport(sim.Handle)
	sim.attach(t.Inject)
	return t
}

// SetResponder replaces the responder.
func (t *ScriptedTransport) SetResponder(r Responder) {
	t.mu.Lock()
	t.respond = r
	t.mu.Unlock()
}

// FailWrites makes every write fail with err. A nil err clears it.
func (t *ScriptedTransport) FailWrites(err error) {
	t.mu.Lock()
	t.writeErr = err
	t.mu.Unlock()
}

// Inject queues packets as if the controller had sent them unprompted.
func (t *ScriptedTransport) Inject(pkts ...[]byte) {
	for _, p := range pkts {
		select {
		case t.reads <- slices.Clone(p):
		case <-t.closed:
			return
		}
	}
}

// ReadPacket implements nci.Transport.
func (t *ScriptedTransport) ReadPacket(ctx context.Context) ([]byte, error) {
	select {
	case p := <-t.reads:
		return p, nil
	case <-t.closed:
		return nil, nfctag.ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WritePacket implements nci.Transport.
func (t *ScriptedTransport) WritePacket(ctx context.Context, pkt []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.closed:
		return nfctag.ErrTransportClosed
	default:
	}

	t.mu.Lock()
	t.written = append(t.written, slices.Clone(pkt))
	respond, err := t.respond, t.writeErr
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if respond != nil {
		t.Inject(respond(pkt)...)
	}
	return nil
}

// Close implements nci.Transport.
func (t *ScriptedTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// Type implements nci.Transport.
func (*ScriptedTransport) Type() nci.TransportType {
	return nci.TransportMock
}

// Written returns the packets written so far.
func (t *ScriptedTransport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.written)
}

// CommandCount returns how many commands with the given opcode were written.
func (t *ScriptedTransport) CommandCount(gid, oid byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.written {
		if frame.MT(p) == frame.MTCommand && frame.GID(p) == gid && frame.OID(p) == oid {
			n++
		}
	}
	return n
}

// DataWritten returns the payloads of the data packets written so far.
func (t *ScriptedTransport) DataWritten() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out [][]byte
	for _, p := range t.written {
		if frame.MT(p) == frame.MTData {
			out = append(out, slices.Clone(p[frame.HeaderLen:]))
		}
	}
	return out
}

var _ nci.Transport = (*ScriptedTransport)(nil)
