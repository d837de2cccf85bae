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

package nci

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/frame"
	"github.com/ZaparooProject/go-nfctag/internal/syncutil"
)

const (
	// DefaultCommandTimeout bounds the wait for a command response.
	DefaultCommandTimeout = 500 * time.Millisecond

	eventQueueSize = 64
	traceSize      = 32
	// creditsUnlimited is the initial credit count meaning "no flow control".
	creditsUnlimited = 0xFF
	t2tRead          = 0x30
)

// pendingData is the data-channel operation waiting for the controller.
type pendingData int

const (
	pendingNone pendingData = iota
	pendingTransceive
	pendingPresence
)

// Option configures a Link.
type Option func(*Link) error

// WithCommandTimeout sets how long commands wait for their response.
func WithCommandTimeout(d time.Duration) Option {
	return func(l *Link) error {
		if d <= 0 {
			return fmt.Errorf("command timeout must be positive: %w", nfctag.ErrInvalidParameter)
		}
		l.cmdTimeout = d
		return nil
	}
}

// WithPort names the device in logs and error traces.
func WithPort(port string) Option {
	return func(l *Link) error {
		l.port = port
		return nil
	}
}

// Link implements nfctag.Controller over an NCI packet transport. A reader
// goroutine decodes packets; a second goroutine hands the resulting events
// to the handler, so the handler may issue commands from HandleEvent.
type Link struct {
	transport  Transport
	handler    nfctag.EventHandler
	trace      *nfctag.TraceBuffer
	responses  chan Packet
	events     chan nfctag.Event
	stop       chan struct{}
	log        zerolog.Logger
	port       string
	reasm      frame.Reassembler
	wg         sync.WaitGroup
	closeOnce  sync.Once
	cmdTimeout time.Duration
	cmdMu      syncutil.Mutex
	traceMu    syncutil.Mutex
	mu         syncutil.Mutex
	// guarded by mu
	protocol   nfctag.Protocol
	iface      nfctag.Interface
	pending    pendingData
	maxPayload int
	credits    int
	// credits granted on activation, and those spent on the pending exchange
	maxCredits int
	spent      int
	started    bool
}

// NewLink creates a link on t. Call SetHandler and then Start.
func NewLink(t Transport, opts ...Option) (*Link, error) {
	l := &Link{
		transport:  t,
		responses:  make(chan Packet, 1),
		events:     make(chan nfctag.Event, eventQueueSize),
		stop:       make(chan struct{}),
		cmdTimeout: DefaultCommandTimeout,
		credits:    creditsUnlimited,
		port:       string(t.Type()),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.trace = nfctag.NewTraceBuffer(string(t.Type()), l.port, traceSize)
	l.log = nfctag.Logger().With().Str("component", "nci").Str("port", l.port).Logger()
	return l, nil
}

// SetHandler sets where decoded events are delivered.
func (l *Link) SetHandler(h nfctag.EventHandler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// Start launches the reader and dispatcher goroutines. They run until ctx
// is done or Close is called.
func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errors.New("link already started")
	}
	l.started = true

	ctx, cancel := context.WithCancel(ctx)
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		defer cancel()
		l.readLoop(ctx)
	}()
	go func() {
		defer l.wg.Done()
		l.dispatchLoop(ctx)
	}()
	go func() {
		select {
		case <-l.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return nil
}

// Close stops the goroutines and closes the transport.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		if cerr := l.transport.Close(); cerr != nil {
			err = fmt.Errorf("close transport: %w", cerr)
		}
		l.wg.Wait()
	})
	return err
}

// Reset resets and initializes the controller.
func (l *Link) Reset(ctx context.Context) error {
	if _, err := l.command(ctx, "CORE_RESET", BuildCoreReset()); err != nil {
		return err
	}
	if _, err := l.command(ctx, "CORE_INIT", BuildCoreInit()); err != nil {
		return err
	}
	l.log.Info().Msg("controller initialized")
	return nil
}

// StartDiscovery maps protocols onto their interfaces and starts polling
// the given modes.
func (l *Link) StartDiscovery(ctx context.Context, protocols []nfctag.Protocol, modes []nfctag.DiscoveryMode) error {
	if _, err := l.command(ctx, "RF_DISCOVER_MAP", BuildDiscoverMap(protocols)); err != nil {
		return err
	}
	if _, err := l.command(ctx, "RF_DISCOVER", BuildDiscover(modes)); err != nil {
		return err
	}
	l.log.Info().Int("modes", len(modes)).Msg("discovery started")
	return nil
}

// StopDiscovery returns the controller to idle.
func (l *Link) StopDiscovery(ctx context.Context) error {
	_, err := l.command(ctx, "RF_DEACTIVATE", BuildDeactivate(DeactivateIdle))
	return err
}

// command sends one control command and waits for its response. NCI
// allows a single outstanding command.
func (l *Link) command(ctx context.Context, name string, pkt []byte) (Packet, error) {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	select {
	case stale := <-l.responses:
		l.log.Debug().Stringer("packet", stale).Msg("discarding stale response")
	default:
	}

	l.traceTX(pkt, name)
	if err := l.transport.WritePacket(ctx, pkt); err != nil {
		return Packet{}, l.wrapTrace(fmt.Errorf("%s: %w: %w", name, nfctag.ErrTransportWrite, err))
	}

	timer := time.NewTimer(l.cmdTimeout)
	defer timer.Stop()

	var resp Packet
	select {
	case resp = <-l.responses:
	case <-timer.C:
		l.traceTimeout(name)
		return Packet{}, l.wrapTrace(fmt.Errorf("%s: no response after %v: %w", name, l.cmdTimeout, nfctag.ErrTransportTimeout))
	case <-ctx.Done():
		return Packet{}, fmt.Errorf("%s: %w", name, ctx.Err())
	case <-l.stop:
		return Packet{}, fmt.Errorf("%s: %w", name, nfctag.ErrTransportClosed)
	}

	gid, oid := frame.GID(pkt), frame.OID(pkt)
	if resp.GID != gid || resp.OID != oid {
		return resp, l.wrapTrace(fmt.Errorf("%s: response %X/%02X does not match: %w",
			name, resp.GID, resp.OID, nfctag.ErrInvalidPacket))
	}
	if st := resp.Status(); st != StatusOK {
		return resp, l.wrapTrace(fmt.Errorf("%s: status %02X: %w", name, st, nfctag.ErrOperationFailed))
	}
	return resp, nil
}

func (l *Link) commandCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*l.cmdTimeout)
}

// Select implements nfctag.Controller. Success is reported by the
// activation notification that follows.
func (l *Link) Select(handle int, protocol nfctag.Protocol, iface nfctag.Interface) error {
	ctx, cancel := l.commandCtx()
	defer cancel()
	_, err := l.command(ctx, "RF_DISCOVER_SELECT", BuildDiscoverSelect(handle, protocol, iface))
	return err
}

// Deactivate implements nfctag.Controller. Without sleep the controller
// goes back to discovery.
func (l *Link) Deactivate(handle int, toSleep bool) error {
	typ := DeactivateDiscovery
	if toSleep {
		typ = DeactivateSleep
	}
	l.log.Debug().Int("handle", handle).Bool("sleep", toSleep).Msg("deactivate")

	ctx, cancel := l.commandCtx()
	defer cancel()
	_, err := l.command(ctx, "RF_DEACTIVATE", BuildDeactivate(typ))
	return err
}

// PresenceCheck implements nfctag.Controller for ISO-DEP (controller NAK
// probe) and Type 2 tags (a block read).
func (l *Link) PresenceCheck(int) error {
	l.mu.Lock()
	protocol := l.protocol
	l.mu.Unlock()

	switch protocol {
	case nfctag.ProtocolISODEP:
		if err := l.setPending(pendingPresence); err != nil {
			return err
		}
		ctx, cancel := l.commandCtx()
		defer cancel()
		if _, err := l.command(ctx, "RF_ISO_DEP_NAK_PRESENCE", BuildISODEPPresenceCheck()); err != nil {
			l.clearPending()
			return err
		}
		return nil
	case nfctag.ProtocolT2T:
		return l.sendData(pendingPresence, []byte{t2tRead, 0x00})
	default:
		return fmt.Errorf("presence check for %s: %w", protocol, nfctag.ErrNotSupported)
	}
}

// Transceive implements nfctag.Controller.
func (l *Link) Transceive(_ int, payload []byte) error {
	return l.sendData(pendingTransceive, payload)
}

// DetectNdef implements nfctag.Controller. NDEF handling lives above NCI.
func (*Link) DetectNdef(int) error {
	return fmt.Errorf("detect NDEF: %w", nfctag.ErrNotSupported)
}

// ReadNdef implements nfctag.Controller.
func (*Link) ReadNdef(int) error {
	return fmt.Errorf("read NDEF: %w", nfctag.ErrNotSupported)
}

// WriteNdef implements nfctag.Controller.
func (*Link) WriteNdef(int, []byte) error {
	return fmt.Errorf("write NDEF: %w", nfctag.ErrNotSupported)
}

// Format implements nfctag.Controller.
func (*Link) Format(int) error {
	return fmt.Errorf("format: %w", nfctag.ErrNotSupported)
}

// SetReadOnly implements nfctag.Controller.
func (*Link) SetReadOnly(int) error {
	return fmt.Errorf("set read-only: %w", nfctag.ErrNotSupported)
}

// RegisterNdefTypeHandler implements nfctag.Controller.
func (*Link) RegisterNdefTypeHandler() error { return nil }

// DeregisterNdefTypeHandler implements nfctag.Controller.
func (*Link) DeregisterNdefTypeHandler() error { return nil }

func (l *Link) setPending(p pendingData) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != pendingNone {
		return fmt.Errorf("data exchange in progress: %w", nfctag.ErrBusy)
	}
	l.pending = p
	return nil
}

func (l *Link) clearPending() {
	l.mu.Lock()
	l.pending, l.spent = pendingNone, 0
	l.mu.Unlock()
}

func (l *Link) takePending() pendingData {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.pending
	l.pending, l.spent = pendingNone, 0
	return p
}

// CancelData implements nfctag.DataCanceler. The pending exchange is
// forgotten and the credits it spent are given back, since the controller
// will not return them for a response that never arrived. A response that
// still arrives later is dropped.
func (l *Link) CancelData() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == pendingNone {
		return
	}
	l.log.Debug().Int("credits", l.spent).Msg("abandoning data exchange")
	l.pending = pendingNone
	l.restoreCredits(l.spent)
	l.spent = 0
}

// restoreCredits adds n credits without exceeding the activation grant.
// l.mu must be held.
func (l *Link) restoreCredits(n int) {
	if l.credits == creditsUnlimited {
		return
	}
	l.credits += n
	if l.maxCredits > 0 && l.credits > l.maxCredits {
		l.credits = l.maxCredits
	}
}

// sendData writes payload on the static RF connection, honoring the
// controller's flow-control credits.
func (l *Link) sendData(p pendingData, payload []byte) error {
	l.mu.Lock()
	if l.pending != pendingNone {
		l.mu.Unlock()
		return fmt.Errorf("data exchange in progress: %w", nfctag.ErrBusy)
	}
	pkts := BuildData(StaticConnID, payload, l.maxPayload)
	if l.credits != creditsUnlimited {
		if l.credits < len(pkts) {
			l.mu.Unlock()
			return fmt.Errorf("no data credits (%d for %d packets): %w", l.credits, len(pkts), nfctag.ErrBusy)
		}
		l.credits -= len(pkts)
		l.spent = len(pkts)
	}
	l.pending = p
	l.mu.Unlock()

	ctx, cancel := l.commandCtx()
	defer cancel()
	for _, pkt := range pkts {
		l.traceTX(pkt, "DATA")
		if err := l.transport.WritePacket(ctx, pkt); err != nil {
			l.clearPending()
			return l.wrapTrace(fmt.Errorf("data: %w: %w", nfctag.ErrTransportWrite, err))
		}
	}
	return nil
}

func (l *Link) readLoop(ctx context.Context) {
	for {
		raw, err := l.transport.ReadPacket(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, nfctag.ErrTransportClosed) {
				return
			}
			if nfctag.IsFatal(err) {
				l.log.Error().Err(err).Msg("transport failed, stopping reader")
				return
			}
			if !errors.Is(err, nfctag.ErrTransportTimeout) {
				l.log.Warn().Err(err).Msg("read failed")
			}
			continue
		}

		l.traceRX(raw, "")
		if err := frame.ValidatePacket(raw, "read", l.port); err != nil {
			l.log.Warn().Err(err).Hex("raw", raw).Msg("dropping invalid packet")
			l.reasm.Reset()
			continue
		}
		hdr, payload, done, err := l.reasm.Add(raw)
		if err != nil {
			l.log.Warn().Err(err).Msg("dropping broken segment sequence")
			continue
		}
		if !done {
			continue
		}
		l.route(ctx, packetFrom(hdr, payload))
	}
}

func (l *Link) route(ctx context.Context, pkt Packet) {
	switch pkt.Type {
	case MessageResponse:
		select {
		case l.responses <- pkt:
		default:
			l.log.Warn().Stringer("packet", pkt).Msg("unsolicited response")
		}
	case MessageNotification:
		l.handleNotification(ctx, pkt)
	case MessageData:
		l.handleData(ctx, pkt)
	default:
		l.log.Warn().Stringer("packet", pkt).Msg("unexpected packet")
	}
}

func (l *Link) handleNotification(ctx context.Context, pkt Packet) {
	switch {
	case pkt.Is(MessageNotification, GroupCore, OIDCoreConnCredits):
		l.addCredits(pkt.Payload)
	case pkt.Is(MessageNotification, GroupCore, OIDCoreGenericError):
		st := pkt.Status()
		l.log.Debug().Uint8("status", st).Msg("generic error")
		if st == StatusTargetActivationFailed {
			l.emit(ctx, &nfctag.ConnectCompleted{Status: nfctag.StatusFailed})
		}
	case pkt.Is(MessageNotification, GroupCore, OIDCoreInterfaceError):
		st := pkt.Status()
		l.log.Debug().Uint8("status", st).Msg("interface error")
		l.completeData(ctx, ToStatus(st), nil)
	case pkt.Is(MessageNotification, GroupRF, OIDRFDiscover):
		res, err := DecodeDiscoverNtf(pkt.Payload)
		if err != nil {
			l.log.Warn().Err(err).Msg("bad discovery notification")
			return
		}
		l.emit(ctx, res)
	case pkt.Is(MessageNotification, GroupRF, OIDRFIntfActivated):
		act, err := DecodeIntfActivatedNtf(pkt.Payload)
		if err != nil {
			l.log.Warn().Err(err).Msg("bad activation notification")
			return
		}
		l.mu.Lock()
		l.protocol = act.Event.Protocol
		l.iface = act.Event.Interface.Type
		l.maxPayload = act.MaxPayload
		l.credits, l.maxCredits = act.Credits, act.Credits
		l.pending, l.spent = pendingNone, 0
		l.mu.Unlock()
		l.emit(ctx, act.Event)
	case pkt.Is(MessageNotification, GroupRF, OIDRFDeactivate):
		typ, reason, err := DecodeDeactivateNtf(pkt.Payload)
		if err != nil {
			l.log.Warn().Err(err).Msg("bad deactivation notification")
			return
		}
		l.log.Debug().Stringer("type", typ).Uint8("reason", reason).Msg("deactivated")
		l.mu.Lock()
		l.pending, l.spent = pendingNone, 0
		if typ == nfctag.DeactivateDiscard {
			l.protocol = nfctag.ProtocolUnknown
		}
		l.mu.Unlock()
		l.emit(ctx, &nfctag.Deactivated{Type: typ})
	case pkt.Is(MessageNotification, GroupRF, OIDRFISODEPNakPresence):
		if l.takePending() == pendingPresence {
			l.emit(ctx, &nfctag.PresenceCheckCompleted{Status: ToStatus(pkt.Status())})
		}
	default:
		l.log.Debug().Stringer("packet", pkt).Msg("ignoring notification")
	}
}

// addCredits applies CORE_CONN_CREDITS_NTF: a count followed by
// (connection, credits) pairs.
func (l *Link) addCredits(payload []byte) {
	r := newReader("CORE_CONN_CREDITS_NTF", payload)
	n := int(r.u8())
	l.mu.Lock()
	defer l.mu.Unlock()
	for range n {
		conn, credits := r.u8(), int(r.u8())
		if r.err != nil {
			l.log.Warn().Err(r.err).Msg("bad credits notification")
			return
		}
		if conn == StaticConnID {
			l.restoreCredits(credits)
		}
	}
}

// handleData completes the pending data operation. On the frame interface
// the controller appends a status byte to every received frame.
func (l *Link) handleData(ctx context.Context, pkt Packet) {
	l.mu.Lock()
	iface := l.iface
	l.mu.Unlock()

	data, status := pkt.Payload, nfctag.StatusOK
	if iface == nfctag.InterfaceFrame {
		if len(data) == 0 {
			status = nfctag.StatusFailed
		} else {
			if st := data[len(data)-1]; st != StatusOK {
				status = ToStatus(st)
			}
			data = data[:len(data)-1]
		}
	}
	l.completeData(ctx, status, data)
}

func (l *Link) completeData(ctx context.Context, status nfctag.Status, data []byte) {
	switch l.takePending() {
	case pendingTransceive:
		l.emit(ctx, &nfctag.TransceiveCompleted{Status: status, Data: data})
	case pendingPresence:
		l.emit(ctx, &nfctag.PresenceCheckCompleted{Status: status})
	default:
		l.log.Debug().Stringer("status", status).Int("len", len(data)).Msg("data without a pending operation")
	}
}

func (l *Link) emit(ctx context.Context, ev nfctag.Event) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}

func (l *Link) dispatchLoop(ctx context.Context) {
	for {
		select {
		case ev := <-l.events:
			l.mu.Lock()
			h := l.handler
			l.mu.Unlock()
			if h == nil {
				l.log.Debug().Str("event", fmt.Sprintf("%T", ev)).Msg("no handler, dropping event")
				continue
			}
			h.HandleEvent(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Link) traceTX(pkt []byte, note string) {
	l.traceMu.Lock()
	l.trace.RecordTX(pkt, note)
	l.traceMu.Unlock()
}

func (l *Link) traceRX(pkt []byte, note string) {
	l.traceMu.Lock()
	l.trace.RecordRX(pkt, note)
	l.traceMu.Unlock()
}

func (l *Link) traceTimeout(note string) {
	l.traceMu.Lock()
	l.trace.RecordTimeout(note)
	l.traceMu.Unlock()
}

func (l *Link) wrapTrace(err error) error {
	l.traceMu.Lock()
	defer l.traceMu.Unlock()
	return l.trace.WrapError(err)
}

var (
	_ nfctag.Controller   = (*Link)(nil)
	_ nfctag.DataCanceler = (*Link)(nil)
)
