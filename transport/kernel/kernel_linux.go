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

//go:build linux

package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/frame"
	"github.com/ZaparooProject/go-nfctag/nci"
)

// Transport implements nci.Transport on a kernel driver device node.
type Transport struct {
	trace   *nfctag.TraceBuffer
	log     zerolog.Logger
	path    string
	opts    options
	fd      int
	closed  atomic.Bool
	readMu  sync.Mutex
	writeMu sync.Mutex
}

// New opens the device at path (DefaultDevice when empty).
func New(path string, opts ...Option) (*Transport, error) {
	if path == "" {
		path = DefaultDevice
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODEV) {
			return nil, fmt.Errorf("open %s: %w: %w", path, nfctag.ErrDeviceNotFound, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	t := newFromFD(fd, path, opts...)
	if t.opts.powerCycle {
		if err := t.powerCycle(); err != nil {
			_ = unix.Close(fd)
			return nil, err
		}
	}
	return t, nil
}

func newFromFD(fd int, path string, opts ...Option) *Transport {
	o := options{pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return &Transport{
		fd:    fd,
		path:  path,
		opts:  o,
		trace: nfctag.NewTraceBuffer("kernel", path, traceSize),
		log:   nfctag.Logger().With().Str("component", "kernel").Str("device", path).Logger(),
	}
}

func (t *Transport) powerCycle() error {
	for _, level := range []int{powerOff, powerOn} {
		if err := unix.IoctlSetInt(t.fd, pn544SetPower, level); err != nil {
			return fmt.Errorf("set power %d on %s: %w", level, t.path, err)
		}
		time.Sleep(powerSettle)
	}
	t.log.Debug().Msg("controller power cycled")
	return nil
}

// waitReadable polls the device for at most the poll interval.
func (t *Transport) waitReadable() (bool, error) {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}} //nolint:gosec // fd fits in int32
	n, err := unix.Poll(fds, int(t.opts.pollInterval/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("poll %s: %w: %w", t.path, nfctag.ErrTransportRead, err)
	}
	if n > 0 && fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 && fds[0].Revents&unix.POLLIN == 0 {
		return false, fmt.Errorf("poll %s: %w", t.path, nfctag.ErrDeviceNotFound)
	}
	return n > 0, nil
}

// readFull reads exactly len(buf) bytes, waiting for the device as needed.
func (t *Transport) readFull(ctx context.Context, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := unix.Read(t.fd, buf[off:])
		switch {
		case err == nil && n == 0:
			return fmt.Errorf("read %s: %w", t.path, nfctag.ErrTransportClosed)
		case err == nil:
			off += n
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		default:
			return fmt.Errorf("read %s: %w: %w", t.path, nfctag.ErrTransportRead, err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if t.closed.Load() {
			return nfctag.ErrTransportClosed
		}
		if _, err := t.waitReadable(); err != nil {
			return err
		}
	}
	return nil
}

// ReadPacket implements nci.Transport.
func (t *Transport) ReadPacket(ctx context.Context) ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.closed.Load() {
			return nil, nfctag.ErrTransportClosed
		}
		ready, err := t.waitReadable()
		if err != nil {
			return nil, err
		}
		if ready {
			break
		}
	}

	var hdr [frame.HeaderLen]byte
	if err := t.readFull(ctx, hdr[:]); err != nil {
		return nil, t.closedOr(err)
	}
	if err := frame.ValidateHeader(hdr[:], "read", t.path); err != nil {
		return nil, err
	}
	pkt := make([]byte, frame.HeaderLen+frame.PayloadLen(hdr[:]))
	copy(pkt, hdr[:])
	if err := t.readFull(ctx, pkt[frame.HeaderLen:]); err != nil {
		return nil, t.closedOr(err)
	}
	return pkt, nil
}

func (t *Transport) closedOr(err error) error {
	if t.closed.Load() {
		return nfctag.ErrTransportClosed
	}
	return err
}

// WritePacket implements nci.Transport. The driver reports EIO or EREMOTEIO
// while a controller in standby wakes up, so writes are retried.
func (t *Transport) WritePacket(ctx context.Context, pkt []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	var lastErr error
	for attempt := range writeRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.closed.Load() {
			return nfctag.ErrTransportClosed
		}
		t.trace.RecordTX(pkt, "")
		n, err := unix.Write(t.fd, pkt)
		if err == nil && n == len(pkt) {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("short write (%d of %d bytes)", n, len(pkt))
		}
		lastErr = err
		if attempt < writeRetries-1 {
			time.Sleep(writeRetryDelay)
		}
	}
	return t.trace.WrapError(fmt.Errorf("write %s: %w: %w", t.path, nfctag.ErrTransportWrite, lastErr))
}

// Close closes the device. Reads in progress notice within one poll
// interval.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.readMu.Lock()
	defer t.readMu.Unlock()
	if err := unix.Close(t.fd); err != nil {
		return fmt.Errorf("close %s: %w", t.path, err)
	}
	return nil
}

// Type implements nci.Transport.
func (*Transport) Type() nci.TransportType {
	return nci.TransportKernel
}

var _ nci.Transport = (*Transport)(nil)
