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

// Package i2c implements an NCI transport over I2C, as used by NXP PN71xx
// style controllers.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/frame"
	"github.com/ZaparooProject/go-nfctag/nci"
)

const (
	// DefaultAddress is the 7-bit address of PN7150 class controllers.
	DefaultAddress = 0x28

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	defaultPollInterval = 5 * time.Millisecond
	writeRetries        = 3
	// A controller in standby NACKs the first write while it wakes up.
	wakeDelay = 5 * time.Millisecond
	traceSize = 16
)

// irqPin is the part of gpio.PinIn the transport uses.
type irqPin interface {
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// Option configures a Transport.
type Option func(*Transport) error

// WithAddress sets the 7-bit device address.
func WithAddress(addr uint16) Option {
	return func(t *Transport) error {
		if addr == 0 || addr > 0x7F {
			return fmt.Errorf("I2C address 0x%X: %w", addr, nfctag.ErrInvalidParameter)
		}
		t.dev.Addr = addr
		return nil
	}
}

// WithIRQPin waits on the controller's interrupt line, named as known to
// gpioreg (for example "GPIO23"), instead of polling the bus.
func WithIRQPin(name string) Option {
	return func(t *Transport) error {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return fmt.Errorf("IRQ pin %s: %w", name, nfctag.ErrDeviceNotFound)
		}
		if err := pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			return fmt.Errorf("configure IRQ pin %s: %w", name, err)
		}
		t.irq = pin
		return nil
	}
}

// WithPollInterval sets how often the bus is polled for a packet.
func WithPollInterval(d time.Duration) Option {
	return func(t *Transport) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive: %w", nfctag.ErrInvalidParameter)
		}
		t.pollInterval = d
		return nil
	}
}

// Transport implements nci.Transport over I2C. A read transaction returns
// the 3-byte header; a second one returns the payload it announces.
type Transport struct {
	dev          *i2c.Dev
	bus          i2c.BusCloser // held so Close can release the OS file descriptor
	irq          irqPin
	trace        *nfctag.TraceBuffer
	log          zerolog.Logger
	busName      string
	pollInterval time.Duration
	closed       atomic.Bool
	mu           sync.Mutex
}

// parseI2CPath splits "/dev/i2c-1:0x28" into the bus and an address. A bare
// bus path yields address 0.
func parseI2CPath(path string) (string, uint16, error) {
	bus, addr, found := strings.Cut(path, ":")
	if !found {
		return bus, 0, nil
	}
	n, err := strconv.ParseUint(addr, 0, 7)
	if err != nil {
		return "", 0, fmt.Errorf("I2C address %q: %w", addr, nfctag.ErrInvalidParameter)
	}
	return bus, uint16(n), nil
}

// New opens the controller on busName, optionally suffixed with ":addr".
func New(busName string, opts ...Option) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	busPath, addr, err := parseI2CPath(busName)
	if err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w: %w", busPath, nfctag.ErrDeviceNotFound, err)
	}
	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	if addr != 0 {
		opts = append([]Option{WithAddress(addr)}, opts...)
	}
	t, err := newWithBus(bus, busName, opts...)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return t, nil
}

func newWithBus(bus i2c.BusCloser, busName string, opts ...Option) (*Transport, error) {
	t := &Transport{
		dev:          &i2c.Dev{Addr: DefaultAddress, Bus: bus},
		bus:          bus,
		busName:      busName,
		pollInterval: defaultPollInterval,
		trace:        nfctag.NewTraceBuffer("I2C", busName, traceSize),
		log:          nfctag.Logger().With().Str("component", "i2c").Str("bus", busName).Logger(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// sleepCtx performs a context-aware sleep. Returns ctx.Err() if context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadPacket implements nci.Transport.
func (t *Transport) ReadPacket(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.closed.Load() {
			return nil, nfctag.ErrTransportClosed
		}

		if t.irq != nil && t.irq.Read() != gpio.High {
			t.irq.WaitForEdge(t.pollInterval)
			continue
		}

		pkt, err := t.readPacket()
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
		if err := sleepCtx(ctx, t.pollInterval); err != nil {
			return nil, err
		}
	}
}

// readPacket reads one packet, or returns nil if the controller has none.
func (t *Transport) readPacket() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return nil, nfctag.ErrTransportClosed
	}

	hdr := frame.GetBuffer(frame.HeaderLen)
	defer frame.PutBuffer(hdr)

	// Without a pending packet the controller NACKs the read.
	if err := t.dev.Tx(nil, hdr); err != nil {
		return nil, nil //nolint:nilerr // no packet yet
	}
	if err := frame.ValidateHeader(hdr, "read", t.busName); err != nil {
		t.log.Debug().Err(err).Hex("header", hdr).Msg("no packet")
		return nil, nil //nolint:nilerr // idle bus reads as garbage
	}

	pkt := make([]byte, frame.HeaderLen+frame.PayloadLen(hdr))
	copy(pkt, hdr)
	if len(pkt) > frame.HeaderLen {
		if err := t.dev.Tx(nil, pkt[frame.HeaderLen:]); err != nil {
			t.trace.RecordRX(pkt[:frame.HeaderLen], "header")
			return nil, t.trace.WrapError(fmt.Errorf("I2C payload read: %w: %w", nfctag.ErrTransportRead, err))
		}
	}
	t.trace.RecordRX(pkt, "")
	return pkt, nil
}

// WritePacket implements nci.Transport. Writes are retried while the
// controller wakes from standby.
func (t *Transport) WritePacket(ctx context.Context, pkt []byte) error {
	var lastErr error
	for attempt := range writeRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := t.write(pkt)
		if err == nil {
			return nil
		}
		if errors.Is(err, nfctag.ErrTransportClosed) {
			return err
		}
		lastErr = err
		if attempt < writeRetries-1 {
			if err := sleepCtx(ctx, wakeDelay); err != nil {
				return err
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trace.WrapError(fmt.Errorf("I2C write failed after %d attempts: %w: %w",
		writeRetries, nfctag.ErrTransportWrite, lastErr))
}

func (t *Transport) write(pkt []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return nfctag.ErrTransportClosed
	}
	t.trace.RecordTX(pkt, "")
	if err := t.dev.Tx(pkt, nil); err != nil {
		t.trace.RecordTimeout("NACK")
		return err //nolint:wrapcheck // wrapped by WritePacket
	}
	return nil
}

// Close releases the I2C bus file descriptor.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.bus.Close(); err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// Type implements nci.Transport.
func (*Transport) Type() nci.TransportType {
	return nci.TransportI2C
}

var _ nci.Transport = (*Transport)(nil)
