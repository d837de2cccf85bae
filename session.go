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
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-nfctag/internal/syncutil"
)

// Session is the tag state of one controller: the technology registry, the
// lifecycle tracker and the coordinator, all guarded by a single lock. The
// controller delivers its notifications through HandleEvent; callers use the
// embedded Coordinator operations.
type Session struct {
	*Coordinator
	listener TagListener
	now      func() time.Time
	log      zerolog.Logger
	mu       syncutil.Mutex
}

// NewSession creates a session on ctrl reporting to listener. A nil cfg
// uses DefaultConfig.
func NewSession(ctrl Controller, listener TagListener, cfg *Config) *Session {
	cfg = withDefaults(cfg)
	if listener == nil {
		listener = TagListenerFuncs{}
	}
	s := &Session{
		listener: listener,
		now:      time.Now,
		log:      componentLogger("session"),
	}
	s.Coordinator = newCoordinator(ctrl, cfg, &s.mu, NewRegistry(cfg.MaxTechnologies), NewTracker(cfg))
	return s
}

// Start asks the controller to report NDEF data.
func (s *Session) Start() error {
	if err := s.ctrl.RegisterNdefTypeHandler(); err != nil {
		return fmt.Errorf("register NDEF handler: %w", err)
	}
	return nil
}

// Close unblocks pending operations and deregisters from the controller.
func (s *Session) Close() error {
	s.Abort()
	if err := s.ctrl.DeregisterNdefTypeHandler(); err != nil {
		return fmt.Errorf("deregister NDEF handler: %w", err)
	}
	return nil
}

// HandleEvent implements EventHandler. It may be called from any goroutine.
func (s *Session) HandleEvent(ev Event) {
	switch e := ev.(type) {
	case *DiscoveryResult:
		s.onDiscovery(e)
	case *Activated:
		s.onActivated(e)
	case *Deactivated:
		s.onDeactivated(e)
	case *ConnectCompleted:
		s.complete(OpConnect, result{status: e.Status})
	case *ReadCompleted:
		s.complete(OpRead, result{status: e.Status, data: e.Data})
	case *WriteCompleted:
		s.complete(OpWrite, result{status: e.Status})
	case *TransceiveCompleted:
		s.complete(OpTransceive, result{status: e.Status, data: e.Data})
	case *PresenceCheckCompleted:
		s.complete(OpPresenceCheck, result{status: e.Status})
	case *FormatCompleted:
		s.complete(OpFormat, result{status: e.Status})
	case *MakeReadOnlyCompleted:
		s.complete(OpMakeReadOnly, result{status: e.Status})
	case *NdefDetectCompleted:
		s.mu.Lock()
		s.tracker.OnNdefDetect(e.Status)
		s.mu.Unlock()
		s.complete(OpNdefDetect, result{status: e.Status, detect: e})
	default:
		s.log.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("unhandled event")
	}
}

func (s *Session) complete(kind OpKind, r result) {
	if !s.slots.get(kind).post(r) {
		s.log.Debug().Stringer("op", kind).Stringer("status", r.status).Msg("dropping unexpected completion")
	}
}

// onDiscovery collects a multi-target discovery round and, once it is
// complete, selects peer-to-peer if offered or else the first tag.
func (s *Session) onDiscovery(e *DiscoveryResult) {
	if e.Status != StatusOK {
		s.log.Debug().Stringer("status", e.Status).Msg("ignoring failed discovery result")
		return
	}

	s.mu.Lock()
	if !s.registry.AddDiscovery(e) {
		s.mu.Unlock()
		return
	}
	entries := s.registry.Entries()
	if IsP2PDiscovered(entries) {
		handle, ok := PreferredP2PHandle(entries)
		s.registry.Reset()
		s.mu.Unlock()
		if !ok {
			s.log.Warn().Msg("NFC-DEP discovered without a pollable mode")
			return
		}
		s.log.Debug().Int("handle", handle).Msg("selecting peer-to-peer target")
		if err := s.ctrl.Select(handle, ProtocolNFCDEP, InterfaceNFCDEP); err != nil {
			s.log.Error().Err(err).Msg("select peer-to-peer target failed")
		}
		return
	}
	s.mu.Unlock()

	s.selectFirstTag(entries)
}

// selectFirstTag selects the first non NFC-DEP candidate of a discovery round.
func (s *Session) selectFirstTag(entries []TechEntry) {
	for _, e := range entries {
		if e.Protocol == ProtocolNFCDEP {
			continue
		}
		iface := InterfaceFor(e.Protocol)
		s.log.Debug().
			Int("handle", e.Handle).
			Stringer("protocol", e.Protocol).
			Stringer("interface", iface).
			Msg("selecting first tag")
		if err := s.ctrl.Select(e.Handle, e.Protocol, iface); err != nil {
			s.log.Error().Err(err).Msg("select first tag failed")
		}
		return
	}
	s.log.Warn().Int("candidates", len(entries)).Msg("no tag to select")
}

// onActivated resolves the technologies of a new tag and reports it. An
// activation caused by a re-select only wakes the waiting Connect.
func (s *Session) onActivated(e *Activated) {
	s.mu.Lock()
	if s.reselecting {
		s.tracker.OnReselected()
		s.mu.Unlock()
		s.complete(OpConnect, result{status: StatusOK})
		return
	}

	if !s.tracker.OnActivated(e, s.now()) {
		s.mu.Unlock()
		return
	}

	s.registry.Reset()
	s.registry.AppendAll(ResolveActivation(e))
	first, ok := s.registry.At(0)
	if ok {
		s.conn = connection{handle: first.Handle, iface: e.Interface.Type, present: true, valid: true}
	}
	tag := s.buildTag(e)
	s.mu.Unlock()

	s.log.Info().
		Hex("uid", tag.UID).
		Stringer("protocol", tag.Protocol).
		Strs("technologies", technologyNames(tag)).
		Msg("tag discovered")
	s.listener.OnTagDiscovered(tag)
}

// buildTag assembles the listener view of the registry. Caller holds s.mu.
func (s *Session) buildTag(e *Activated) *Tag {
	entries := s.registry.Entries()
	tag := &Tag{
		Technologies: make([]TagTechnology, len(entries)),
		UID:          UID(entries, e.Aux, s.cfg.KovioMaxUIDLen),
		Protocol:     e.Protocol,
		NdefType:     NdefTypeFor(e.Protocol),
		IsP2P:        e.Protocol == ProtocolNFCDEP,
	}
	if e.Protocol == ProtocolT1T {
		tag.MaxMessageSize = s.tracker.T1TMaxMessageSize()
	}
	for i, entry := range entries {
		tag.Technologies[i] = TagTechnology{
			Technology:      entry.Technology,
			Handle:          entry.Handle,
			Protocol:        entry.Protocol,
			PollBytes:       PollBytes(entry, e.Aux),
			ActivationBytes: ActivationBytes(entry, e.Aux, e.Interface),
		}
	}
	return tag
}

func technologyNames(tag *Tag) []string {
	names := make([]string, len(tag.Technologies))
	for i, t := range tag.Technologies {
		names[i] = t.Technology.String()
	}
	return names
}

// onDeactivated follows the tag to sleep or out of the field. Discard
// forgets the tag, fails whatever was waiting on it and reports it lost.
func (s *Session) onDeactivated(e *Deactivated) {
	s.mu.Lock()
	prev := s.tracker.State()
	s.tracker.OnDeactivated(e.Type)

	if e.Type == DeactivateSleep {
		s.mu.Unlock()
		s.complete(OpDeactivate, result{status: StatusOK})
		return
	}

	s.registry.Reset()
	s.conn = connection{}
	s.mu.Unlock()

	if n := s.slots.failAll(StatusTagLost); n > 0 {
		s.log.Debug().Int("failed", n).Msg("tag lost with operations pending")
	}
	if prev != StateIdle {
		s.log.Info().Msg("tag lost")
		s.listener.OnTagLost()
	}
}

// State returns the lifecycle state of the tag.
func (s *Session) State() ActivationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.State()
}

// Protocol returns the protocol of the activated tag.
func (s *Session) Protocol() Protocol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Protocol()
}

// T1TMaxMessageSize returns the NDEF capacity of an activated Type 1 tag.
func (s *Session) T1TMaxMessageSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.T1TMaxMessageSize()
}

// NdefDetectionTimedOut reports whether the last NDEF detection timed out.
func (s *Session) NdefDetectionTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.NdefDetectionTimedOut()
}

// Technologies returns a copy of the registry.
func (s *Session) Technologies() []TechEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Entries()
}

// Connected returns the handle and technology operations currently use.
func (s *Session) Connected() (handle int, tech Technology, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.conn.valid {
		return 0, TechnologyUnknown, false
	}
	e, _ := s.registry.At(s.conn.techIndex)
	return s.conn.handle, e.Technology, true
}

// IsPresent reports the outcome of the last presence check.
func (s *Session) IsPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.valid && s.conn.present
}
