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

package nfctag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hsanjuan/go-ndef"
	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-nfctag/internal/syncutil"
)

// connection is the technology the caller currently works through.
type connection struct {
	handle    int
	techIndex int
	iface     Interface
	present   bool
	valid     bool
}

// Coordinator turns controller commands and their asynchronous completions
// into blocking calls. The lock it shares with the Session is only held
// while reading or updating state, never while waiting.
type Coordinator struct {
	ctrl     Controller
	cfg      *Config
	mu       *syncutil.Mutex
	registry *Registry
	tracker  *Tracker
	slots    *slotSet
	log      zerolog.Logger
	conn     connection
	// reselecting is set while Connect or Reconnect re-selects a tag, so
	// the resulting activation is not reported as a new tag.
	reselecting bool
}

func newCoordinator(ctrl Controller, cfg *Config, mu *syncutil.Mutex, reg *Registry, tr *Tracker) *Coordinator {
	return &Coordinator{
		ctrl:     ctrl,
		cfg:      cfg,
		mu:       mu,
		registry: reg,
		tracker:  tr,
		slots:    newSlotSet(),
		log:      componentLogger("coordinator"),
	}
}

// selectInterface returns the RF interface a technology is used through.
// ISO-DEP tags opened as NFC-A or NFC-B go through the frame interface.
func selectInterface(e TechEntry) Interface {
	switch e.Protocol {
	case ProtocolISODEP:
		if e.Technology == TechnologyISO14443_4 {
			return InterfaceISODEP
		}
		return InterfaceFrame
	case ProtocolNFCDEP:
		return InterfaceNFCDEP
	default:
		return InterfaceFrame
	}
}

// Connect makes tech the technology later operations go through. Switching
// between technologies of the same handle and interface is bookkeeping
// only; a different interface or handle re-selects the tag.
func (c *Coordinator) Connect(ctx context.Context, tech Technology) error {
	c.mu.Lock()
	idx := c.registry.IndexOf(tech)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("connect %s: %w", tech, ErrTechnologyNotFound)
	}
	entry, _ := c.registry.At(idx)
	iface := selectInterface(entry)
	cur := c.conn
	if cur.valid && cur.handle == entry.Handle && cur.iface == iface {
		c.conn.techIndex = idx
		c.mu.Unlock()
		c.log.Debug().Stringer("technology", tech).Int("index", idx).Msg("switched technology")
		return nil
	}
	c.mu.Unlock()

	from := -1
	if cur.valid {
		from = cur.handle
	}
	c.log.Debug().
		Stringer("technology", tech).
		Int("from", from).
		Int("handle", entry.Handle).
		Stringer("interface", iface).
		Msg("re-selecting")

	if err := c.reselect(ctx, from, entry.Handle, entry.Protocol, iface); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = connection{handle: entry.Handle, techIndex: idx, iface: iface, present: true, valid: true}
	c.mu.Unlock()
	return nil
}

// Reconnect re-selects the connected technology, retrying per
// Config.ReconnectRetry.
func (c *Coordinator) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	cur := c.conn
	entry, ok := c.registry.At(cur.techIndex)
	c.mu.Unlock()
	if !cur.valid || !ok {
		return fmt.Errorf("reconnect: %w", ErrNotConnected)
	}

	err := RetryWithConfig(ctx, c.cfg.ReconnectRetry, func() error {
		return c.reselect(ctx, cur.handle, cur.handle, entry.Protocol, cur.iface)
	})
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	c.mu.Lock()
	c.conn.present = true
	c.mu.Unlock()
	return nil
}

// reselect puts the tag behind from to sleep (if from >= 0) and selects
// handle on iface. A refused select is retried once after
// Config.ReselectRetryDelay, since it usually means the deactivation is
// still in flight.
func (c *Coordinator) reselect(ctx context.Context, from, handle int, protocol Protocol, iface Interface) error {
	c.setReselecting(true)
	defer c.setReselecting(false)

	if from >= 0 {
		if err := c.deactivateToSleep(ctx, from); err != nil {
			return err
		}
	}

	s := c.slots.get(OpConnect)
	ch, err := s.arm()
	if err != nil {
		return err
	}

	if err := c.ctrl.Select(handle, protocol, iface); err != nil {
		c.log.Debug().Err(err).Msg("select refused, retrying")
		if werr := sleepWithContext(ctx, c.cfg.ReselectRetryDelay, nil); werr != nil {
			s.disarm()
			return fmt.Errorf("%w: %w", ErrConnectFailed, werr)
		}
		if c.tagGone() {
			s.disarm()
			return &OperationError{Op: "select", Handle: handle, Status: StatusTagLost, Err: ErrTagLost}
		}
		if err := c.ctrl.Select(handle, protocol, iface); err != nil {
			s.disarm()
			return &OperationError{
				Op: "select", Handle: handle, Status: StatusRejected,
				Err: fmt.Errorf("%w: %w", ErrConnectFailed, err),
			}
		}
	}

	r, err := s.wait(ctx, ch, c.cfg.ConnectTimeout)
	switch {
	case errors.Is(err, ErrTimeout):
		return &OperationError{Op: "select", Handle: handle, Status: StatusTimeout, Err: fmt.Errorf("%w: %w", ErrTagLost, err)}
	case err != nil:
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	case r.status == StatusOK:
		return nil
	case r.status == StatusTagLost || c.tagGone():
		return &OperationError{Op: "select", Handle: handle, Status: r.status, Err: ErrTagLost}
	default:
		return &OperationError{Op: "select", Handle: handle, Status: r.status, Err: ErrConnectFailed}
	}
}

// deactivateToSleep parks the tag behind handle and waits until the
// controller confirms.
func (c *Coordinator) deactivateToSleep(ctx context.Context, handle int) error {
	s := c.slots.get(OpDeactivate)
	ch, err := s.arm()
	if err != nil {
		return err
	}
	if err := c.ctrl.Deactivate(handle, true); err != nil {
		s.disarm()
		return &OperationError{Op: "deactivate", Handle: handle, Status: StatusRejected, Err: fmt.Errorf("%w: %w", ErrConnectFailed, err)}
	}
	r, err := s.wait(ctx, ch, c.cfg.DeactivateTimeout)
	if err != nil {
		return &OperationError{Op: "deactivate", Handle: handle, Status: r.status, Err: fmt.Errorf("%w: %w", ErrConnectFailed, err)}
	}
	if r.status != StatusOK {
		return errorForStatus("deactivate", handle, r.status)
	}
	return nil
}

func (c *Coordinator) setReselecting(v bool) {
	c.mu.Lock()
	c.reselecting = v
	c.mu.Unlock()
}

// tagGone reports whether the tag was discarded while we were not looking.
func (c *Coordinator) tagGone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.State() == StateIdle
}

// Disconnect releases the tag. The connection is forgotten and any blocked
// operation is cancelled even if the controller refuses the deactivation.
func (c *Coordinator) Disconnect(_ context.Context) error {
	c.mu.Lock()
	cur := c.conn
	c.conn = connection{}
	c.mu.Unlock()

	if n := c.slots.failAll(StatusCancelled); n > 0 {
		c.log.Debug().Int("cancelled", n).Msg("disconnect cancelled pending operations")
	}
	if !cur.valid {
		return nil
	}
	if err := c.ctrl.Deactivate(cur.handle, false); err != nil {
		c.log.Warn().Err(err).Int("handle", cur.handle).Msg("deactivate failed")
		return fmt.Errorf("disconnect handle %d: %w", cur.handle, err)
	}
	return nil
}

// Abort wakes every blocked operation with a cancelled result.
func (c *Coordinator) Abort() {
	if n := c.slots.failAll(StatusCancelled); n > 0 {
		c.log.Debug().Int("cancelled", n).Msg("aborted pending operations")
	}
}

// connected returns the handle and entry of the connected technology.
func (c *Coordinator) connected() (int, TechEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.valid {
		return 0, TechEntry{}, ErrNotConnected
	}
	entry, _ := c.registry.At(c.conn.techIndex)
	return c.conn.handle, entry, nil
}

// run arms the slot of kind, issues the command and waits for its
// completion.
func (c *Coordinator) run(
	ctx context.Context, kind OpKind, timeout time.Duration, issue func(handle int) error,
) (result, int, error) {
	handle, _, err := c.connected()
	if err != nil {
		return result{}, 0, fmt.Errorf("%s: %w", kind, err)
	}

	s := c.slots.get(kind)
	ch, err := s.arm()
	if err != nil {
		return result{}, handle, err
	}

	if err := issue(handle); err != nil {
		s.disarm()
		return result{}, handle, &OperationError{
			Op: kind.String(), Handle: handle, Status: StatusRejected,
			Err: refused(err),
		}
	}

	r, err := s.wait(ctx, ch, timeout)
	if err != nil || r.status == StatusCancelled {
		c.abandonData(kind)
	}
	if err != nil {
		return r, handle, &OperationError{Op: kind.String(), Handle: handle, Status: r.status, Err: err}
	}
	if r.status != StatusOK {
		return r, handle, errorForStatus(kind.String(), handle, r.status)
	}
	return r, handle, nil
}

// refused wraps a controller's refusal to issue a command. ErrBusy stays
// reserved for a second operation of the same kind, so a controller's own
// busy state is reported as a plain failure.
func refused(err error) error {
	if errors.Is(err, ErrBusy) {
		return fmt.Errorf("%w: controller busy: %v", ErrOperationFailed, err)
	}
	return fmt.Errorf("%w: %w", ErrOperationFailed, err)
}

// abandonData tells the controller that a data exchange will not be waited
// for any longer.
func (c *Coordinator) abandonData(kind OpKind) {
	if kind != OpTransceive && kind != OpPresenceCheck {
		return
	}
	if dc, ok := c.ctrl.(DataCanceler); ok {
		dc.CancelData()
	}
}

// PresenceCheck reports whether the tag still answers. Failures and timeouts
// mean "not present"; only busy and not-connected are errors.
func (c *Coordinator) PresenceCheck(ctx context.Context) (bool, error) {
	_, _, err := c.run(ctx, OpPresenceCheck, c.cfg.PresenceCheckTimeout, c.ctrl.PresenceCheck)
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrNotConnected) {
		return false, err
	}
	present := err == nil
	if !present {
		c.log.Debug().Err(err).Msg("presence check failed")
	}

	c.mu.Lock()
	if c.conn.valid {
		c.conn.present = present
	}
	c.mu.Unlock()
	return present, nil
}

// Transceive sends raw bytes to the connected technology and returns the
// response. A Type 2 NACK comes back as ErrTagNACK together with the
// response byte.
func (c *Coordinator) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	_, entry, err := c.connected()
	if err != nil {
		return nil, fmt.Errorf("transceive: %w", err)
	}

	r, handle, err := c.run(ctx, OpTransceive, c.cfg.TransceiveTimeout, func(h int) error {
		return c.ctrl.Transceive(h, cmd)
	})
	if err != nil {
		return nil, err
	}
	if entry.Protocol == ProtocolT2T && IsT2TNackResponse(r.data) {
		return r.data, &OperationError{Op: "transceive", Handle: handle, Status: StatusOK, Err: ErrTagNACK}
	}
	return r.data, nil
}

// ReadNdefInfo runs NDEF detection on the connected tag.
func (c *Coordinator) ReadNdefInfo(ctx context.Context) (NdefInfo, error) {
	r, _, err := c.run(ctx, OpNdefDetect, c.cfg.NdefTimeout, c.ctrl.DetectNdef)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return NdefInfo{}, fmt.Errorf("%w: %w", ErrNdefDetectTimeout, err)
		}
		if errors.Is(err, ErrOperationFailed) {
			return NdefInfo{}, fmt.Errorf("%w: %w", ErrNotNdef, err)
		}
		return NdefInfo{}, err
	}

	c.mu.Lock()
	protocol := c.tracker.Protocol()
	t1tSize := 0
	if protocol == ProtocolT1T {
		t1tSize = c.tracker.T1TMaxMessageSize()
	}
	c.mu.Unlock()

	info := NdefInfo{NdefType: NdefTypeFor(protocol), Formatable: c.IsNdefFormatable()}
	if d := r.detect; d != nil {
		info.MaxSize = d.MaxSize
		info.CurrentSize = d.CurrentSize
		info.Flags = d.Flags
		info.ReadOnly = d.Flags&NdefFlagReadOnly != 0
	}
	if t1tSize > 0 {
		info.MaxSize = uint32(t1tSize) //nolint:gosec // bounded by the T1T header table
	}
	return info, nil
}

// ReadNdef detects and reads the NDEF message of the connected tag. A tag
// that is formatted but empty yields an empty message.
func (c *Coordinator) ReadNdef(ctx context.Context) (*ndef.Message, error) {
	info, err := c.ReadNdefInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("read NDEF: %w", err)
	}
	if info.CurrentSize == 0 {
		return &ndef.Message{}, nil
	}

	r, _, err := c.run(ctx, OpRead, c.cfg.NdefTimeout, c.ctrl.ReadNdef)
	if err != nil {
		return nil, fmt.Errorf("read NDEF: %w", err)
	}

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(r.data); err != nil {
		return nil, fmt.Errorf("failed to parse NDEF message: %w", err)
	}
	return msg, nil
}

// WriteNdef writes msg to the connected tag.
func (c *Coordinator) WriteNdef(ctx context.Context, msg *ndef.Message) error {
	if msg == nil {
		return fmt.Errorf("write NDEF: %w: nil message", ErrInvalidParameter)
	}
	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal NDEF message: %w", err)
	}
	_, _, err = c.run(ctx, OpWrite, c.cfg.NdefTimeout, func(h int) error {
		return c.ctrl.WriteNdef(h, payload)
	})
	if err != nil {
		return fmt.Errorf("write NDEF: %w", err)
	}
	return nil
}

// MakeReadOnly permanently locks the NDEF data of the connected tag.
func (c *Coordinator) MakeReadOnly(ctx context.Context) error {
	if _, _, err := c.run(ctx, OpMakeReadOnly, c.cfg.NdefTimeout, c.ctrl.SetReadOnly); err != nil {
		return fmt.Errorf("make read-only: %w", err)
	}
	return nil
}

// FormatNdef formats the connected tag for NDEF.
func (c *Coordinator) FormatNdef(ctx context.Context) error {
	if _, _, err := c.run(ctx, OpFormat, c.cfg.NdefTimeout, c.ctrl.Format); err != nil {
		return fmt.Errorf("format NDEF: %w", err)
	}
	return nil
}

// IsNdefFormatable reports whether the tag can be NDEF formatted, judged
// from the protocol alone.
func (c *Coordinator) IsNdefFormatable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	protocol := c.tracker.Protocol()
	if c.conn.valid {
		if e, ok := c.registry.At(c.conn.techIndex); ok {
			protocol = e.Protocol
		}
	}
	switch protocol {
	case ProtocolT1T, ProtocolISO15693:
		return true
	case ProtocolT2T:
		return IsMifareUltralight(c.registry.Entries())
	default:
		return false
	}
}
