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

// Package uart implements an NCI transport over a serial port.
package uart

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/frame"
	"github.com/ZaparooProject/go-nfctag/nci"
)

// DefaultBaudRate is the NCI UART default.
const DefaultBaudRate = 115200

// drainer is implemented by serial.Port.
type drainer interface {
	Drain() error
}

// Transport implements nci.Transport over a UART. The byte stream carries
// bare NCI packets, so packets are cut out of it by their length field.
type Transport struct {
	port     io.ReadWriteCloser
	log      zerolog.Logger
	portName string
	pending  []byte
	closed   atomic.Bool
	readMu   sync.Mutex
	writeMu  sync.Mutex
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// getWindowsTimeout returns the per-read timeout. Windows drivers need longer.
func getWindowsTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay gives Windows drivers time to flush their buffers.
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// New opens portName at baud (DefaultBaudRate when zero), 8N1.
func New(portName string, baud int) (*Transport, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w: %w", portName, nfctag.ErrDeviceNotFound, err)
	}

	if err := port.SetReadTimeout(getWindowsTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to reset UART input: %w", err)
	}

	return newWithPort(port, portName), nil
}

func newWithPort(port io.ReadWriteCloser, portName string) *Transport {
	return &Transport{
		port:     port,
		portName: portName,
		log:      nfctag.Logger().With().Str("component", "uart").Str("port", portName).Logger(),
	}
}

// ReadPacket implements nci.Transport. It blocks until a whole packet has
// arrived or ctx is done.
func (t *Transport) ReadPacket(ctx context.Context) ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	buf := frame.GetBuffer(frame.LargeBufferSize)
	defer frame.PutBuffer(buf)

	for {
		if pkt, ok := t.extract(); ok {
			return pkt, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.closed.Load() {
			return nil, nfctag.ErrTransportClosed
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if t.closed.Load() {
				return nil, nfctag.ErrTransportClosed
			}
			if isInterruptedSystemCall(err) {
				continue
			}
			return nil, fmt.Errorf("UART read: %w: %w", nfctag.ErrTransportRead, err)
		}
		t.pending = append(t.pending, buf[:n]...)
	}
}

// extract cuts the next packet out of the pending bytes, dropping bytes
// that cannot start one.
func (t *Transport) extract() ([]byte, bool) {
	for {
		pkt, n, err := frame.ExtractPacket(t.pending, t.portName)
		if err != nil {
			t.log.Debug().Err(err).Hex("byte", t.pending[:1]).Msg("resynchronizing")
			t.pending = t.pending[n:]
			continue
		}
		if n == 0 {
			return nil, false
		}
		t.pending = t.pending[n:]
		return pkt, true
	}
}

// WritePacket implements nci.Transport.
func (t *Transport) WritePacket(ctx context.Context, pkt []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.closed.Load() {
		return nfctag.ErrTransportClosed
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := t.port.Write(pkt)
	if err != nil {
		return fmt.Errorf("UART write: %w: %w", nfctag.ErrTransportWrite, err)
	}
	if n != len(pkt) {
		return fmt.Errorf("UART short write (%d of %d bytes): %w", n, len(pkt), nfctag.ErrTransportWrite)
	}
	windowsPostWriteDelay()
	return t.drainWithRetry("write")
}

// Close closes the port. Reads in progress return ErrTransportClosed.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type implements nci.Transport.
func (*Transport) Type() nci.TransportType {
	return nci.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for written bytes to leave the port, retrying
// interrupted system calls.
func (t *Transport) drainWithRetry(operation string) error {
	d, ok := t.port.(drainer)
	if !ok {
		return nil
	}

	const maxRetries = 3
	baseDelay := 2 * time.Millisecond
	for attempt := range maxRetries {
		err := d.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) || attempt == maxRetries-1 {
			return fmt.Errorf("UART %s drain failed: %w", operation, err)
		}
		time.Sleep(baseDelay << attempt)
	}
	return nil
}

var _ nci.Transport = (*Transport)(nil)
