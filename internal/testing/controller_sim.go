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
	"slices"
	"sync"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/frame"
	"github.com/ZaparooProject/go-nfctag/nci"
)

// SimState is the RF state of a SimController.
type SimState int

// Simulator RF states
const (
	SimIdle SimState = iota
	SimDiscovering
	SimPollActive
	SimSleeping
)

const (
	simMaxPayload = 0xFF
	simCredits    = 1
	// reasonLinkLoss is the RF_DEACTIVATE_NTF reason for a tag leaving.
	reasonLinkLoss = 0x02
)

// SimController is a simulated NCI controller with virtual tags in its
// field. It answers the commands the nci package sends and reports tags
// arriving and leaving.
type SimController struct {
	inject       func(pkts ...[]byte)
	tags         []*VirtualTag
	active       *VirtualTag
	activeIface  nfctag.Interface
	selectStatus byte
	state        SimState
	mu           sync.Mutex
}

// NewSimController creates an idle controller with an empty field.
func NewSimController() *SimController {
	return &SimController{}
}

func (s *SimController) attach(inject func(pkts ...[]byte)) {
	s.mu.Lock()
	s.inject = inject
	s.mu.Unlock()
}

// State returns the RF state.
func (s *SimController) State() SimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FailNextSelect makes the next RF_DISCOVER_SELECT activation fail with
// the given NCI status.
func (s *SimController) FailNextSelect(status byte) {
	s.mu.Lock()
	s.selectStatus = status
	s.mu.Unlock()
}

// PlaceTag puts tag in the field. A discovering controller activates it,
// or reports every candidate when more than one tag is present.
func (s *SimController) PlaceTag(tag *VirtualTag) {
	tag.Insert()
	s.mu.Lock()
	s.tags = append(s.tags, tag)
	var out [][]byte
	if s.state == SimDiscovering {
		out = s.discoverLocked()
	}
	inject := s.inject
	s.mu.Unlock()
	if inject != nil && len(out) > 0 {
		inject(out...)
	}
}

// RemoveTag takes tag out of the field. If it was active the controller
// reports the link loss and resumes discovery.
func (s *SimController) RemoveTag(tag *VirtualTag) {
	tag.Remove()
	s.mu.Lock()
	s.tags = slices.DeleteFunc(s.tags, func(t *VirtualTag) bool { return t == tag })
	var out [][]byte
	if s.active == tag {
		s.active = nil
		s.state = SimDiscovering
		out = append(out, ntf(nci.GroupRF, nci.OIDRFDeactivate, nci.DeactivateDiscovery, reasonLinkLoss))
	}
	inject := s.inject
	s.mu.Unlock()
	if inject != nil && len(out) > 0 {
		inject(out...)
	}
}

// Handle answers one packet from the host.
func (s *SimController) Handle(pkt []byte) [][]byte {
	if len(pkt) < frame.HeaderLen {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if frame.MT(pkt) == frame.MTData {
		return s.handleData(pkt[frame.HeaderLen:])
	}

	gid, oid := frame.GID(pkt), frame.OID(pkt)
	payload := pkt[frame.HeaderLen:]
	switch {
	case gid == nci.GroupCore && oid == nci.OIDCoreReset:
		s.state, s.active = SimIdle, nil
		return [][]byte{rsp(gid, oid, nci.StatusOK, 0x11, 0x01)}
	case gid == nci.GroupCore && oid == nci.OIDCoreInit:
		return [][]byte{rsp(gid, oid, nci.StatusOK, 0x00, 0x00, 0x00, 0x00, 0x00)}
	case gid == nci.GroupRF && oid == nci.OIDRFDiscoverMap:
		return [][]byte{rsp(gid, oid, nci.StatusOK)}
	case gid == nci.GroupRF && oid == nci.OIDRFDiscover:
		if s.state != SimIdle {
			return [][]byte{rsp(gid, oid, nci.StatusDiscoveryAlreadyStarted)}
		}
		s.state = SimDiscovering
		return append([][]byte{rsp(gid, oid, nci.StatusOK)}, s.discoverLocked()...)
	case gid == nci.GroupRF && oid == nci.OIDRFDiscoverSelect:
		return s.handleSelect(payload)
	case gid == nci.GroupRF && oid == nci.OIDRFDeactivate:
		return s.handleDeactivate(payload)
	case gid == nci.GroupRF && oid == nci.OIDRFISODEPNakPresence:
		st := nci.StatusOK
		if s.active == nil || !s.active.IsPresent() {
			st = nci.StatusFailed
		}
		return [][]byte{rsp(gid, oid, nci.StatusOK), ntf(gid, oid, st)}
	default:
		return [][]byte{rsp(gid, oid, nci.StatusRejected)}
	}
}

// discoverLocked reports the tags in the field. Caller holds s.mu.
func (s *SimController) discoverLocked() [][]byte {
	switch len(s.tags) {
	case 0:
		return nil
	case 1:
		return [][]byte{s.activateLocked(1, s.tags[0].Interface())}
	default:
		out := make([][]byte, 0, len(s.tags))
		for i, t := range s.tags {
			more := byte(0x02)
			if i == len(s.tags)-1 {
				more = 0x00
			}
			p := []byte{byte(i + 1), byte(t.Protocol()), byte(nfctag.ModePollA)}
			p = append(p, lv(t.TechParams())...)
			out = append(out, ntf(nci.GroupRF, nci.OIDRFDiscover, append(p, more)...))
		}
		s.state = SimPollActive
		return out
	}
}

// activateLocked activates the tag with handle h on iface. Caller holds s.mu.
func (s *SimController) activateLocked(h int, iface nfctag.Interface) []byte {
	t := s.tags[h-1]
	s.active, s.activeIface = t, iface
	s.state = SimPollActive
	p := []byte{
		byte(h), byte(iface), byte(t.Protocol()), byte(nfctag.ModePollA),
		simMaxPayload, simCredits,
	}
	p = append(p, lv(t.TechParams())...)
	p = append(p, byte(nfctag.ModePollA), 0x00, 0x00)
	var act []byte
	if iface == t.Interface() {
		act = t.ActivationParams()
	}
	p = append(p, byte(len(act)))
	p = append(p, act...)
	return ntf(nci.GroupRF, nci.OIDRFIntfActivated, p...)
}

func (s *SimController) handleSelect(payload []byte) [][]byte {
	out := [][]byte{rsp(nci.GroupRF, nci.OIDRFDiscoverSelect, nci.StatusOK)}
	if st := s.selectStatus; st != nci.StatusOK {
		s.selectStatus = nci.StatusOK
		return append(out, ntf(nci.GroupCore, nci.OIDCoreGenericError, st))
	}
	if len(payload) < 3 || int(payload[0]) < 1 || int(payload[0]) > len(s.tags) ||
		!s.tags[payload[0]-1].IsPresent() {
		return append(out, ntf(nci.GroupCore, nci.OIDCoreGenericError, nci.StatusTargetActivationFailed))
	}
	return append(out, s.activateLocked(int(payload[0]), nfctag.Interface(payload[2])))
}

func (s *SimController) handleDeactivate(payload []byte) [][]byte {
	typ := nci.DeactivateIdle
	if len(payload) > 0 {
		typ = payload[0]
	}
	out := [][]byte{rsp(nci.GroupRF, nci.OIDRFDeactivate, nci.StatusOK)}
	switch typ {
	case nci.DeactivateSleep, nci.DeactivateSleepAF:
		s.state = SimSleeping
	case nci.DeactivateDiscovery:
		s.state = SimDiscovering
	default:
		s.state = SimIdle
	}
	s.active = nil
	return append(out, ntf(nci.GroupRF, nci.OIDRFDeactivate, typ, 0x00))
}

// handleData passes a data packet to the active tag. Frame interface
// answers carry a trailing status byte.
func (s *SimController) handleData(payload []byte) [][]byte {
	credits := ntf(nci.GroupCore, nci.OIDCoreConnCredits, 0x01, nci.StaticConnID, 0x01)
	if s.active == nil {
		return [][]byte{credits, ntf(nci.GroupCore, nci.OIDCoreInterfaceError, nci.StatusRFTimeoutError, nci.StaticConnID)}
	}
	resp, err := s.active.Exchange(payload)
	if err != nil {
		return [][]byte{credits, ntf(nci.GroupCore, nci.OIDCoreInterfaceError, nci.StatusRFTimeoutError, nci.StaticConnID)}
	}
	if s.activeIface == nfctag.InterfaceFrame {
		resp = append(resp, nci.StatusOK)
	}
	return append([][]byte{credits}, nci.BuildData(nci.StaticConnID, resp, simMaxPayload)...)
}

func rsp(gid, oid byte, payload ...byte) []byte {
	hdr := frame.Header(frame.MTResponse, gid, oid, false, len(payload))
	return append(hdr[:], payload...)
}

func ntf(gid, oid byte, payload ...byte) []byte {
	hdr := frame.Header(frame.MTNotification, gid, oid, false, len(payload))
	return append(hdr[:], payload...)
}

func lv(b []byte) []byte {
	return append([]byte{byte(len(b))}, b...)
}
