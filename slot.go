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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-nfctag/internal/syncutil"
)

// OpKind identifies a class of controller operation. At most one operation
// of each kind is outstanding at a time.
type OpKind int

// Operation kinds.
const (
	OpConnect OpKind = iota
	OpDeactivate
	OpRead
	OpWrite
	OpPresenceCheck
	OpTransceive
	OpFormat
	OpMakeReadOnly
	OpNdefDetect
	opKindCount
)

func (k OpKind) String() string {
	switch k {
	case OpConnect:
		return "connect"
	case OpDeactivate:
		return "deactivate"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpPresenceCheck:
		return "presence check"
	case OpTransceive:
		return "transceive"
	case OpFormat:
		return "format"
	case OpMakeReadOnly:
		return "make read-only"
	case OpNdefDetect:
		return "NDEF detect"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// result is what a completion event delivers to a waiting operation.
type result struct {
	detect *NdefDetectCompleted
	data   []byte
	status Status
}

// slot is a single-result completion future for one operation kind. It is
// armed before the command is issued, so a completion that arrives before
// the caller starts waiting is buffered, not lost.
type slot struct {
	ch    chan result
	mu    syncutil.Mutex
	kind  OpKind
	armed bool
}

// arm prepares the slot for one result. A second arm while armed fails
// with ErrBusy.
func (s *slot) arm() (<-chan result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		return nil, fmt.Errorf("%s: %w", s.kind, ErrBusy)
	}
	s.armed = true
	s.ch = make(chan result, 1)
	return s.ch, nil
}

// post delivers a result to the armed slot. It reports false, dropping the
// result, when nothing is waiting. Results carry no operation identity: a
// completion that arrives after its waiter gave up goes to the next
// operation of the same kind if one is already armed. Data exchanges avoid
// this through DataCanceler, which makes the controller drop the late
// response.
func (s *slot) post(r result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return false
	}
	s.armed = false
	s.ch <- r
	return true
}

// disarm gives up on the pending result.
func (s *slot) disarm() {
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()
}

// isArmed reports whether an operation of this kind is outstanding.
func (s *slot) isArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// wait blocks for the result, the timeout or ctx. On timeout the slot is
// disarmed and a result that raced in just before is still honored.
func (s *slot) wait(ctx context.Context, ch <-chan result, timeout time.Duration) (result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r, nil
	case <-timer.C:
		s.disarm()
		select {
		case r := <-ch:
			return r, nil
		default:
		}
		return result{status: StatusTimeout}, fmt.Errorf("%s after %v: %w", s.kind, timeout, ErrTimeout)
	case <-ctx.Done():
		s.disarm()
		select {
		case r := <-ch:
			return r, nil
		default:
		}
		return result{status: StatusCancelled}, fmt.Errorf("%s: %w", s.kind, ctx.Err())
	}
}

// slotSet holds one slot per operation kind.
type slotSet [opKindCount]*slot

func newSlotSet() *slotSet {
	var ss slotSet
	for k := range ss {
		ss[k] = &slot{kind: OpKind(k)}
	}
	return &ss
}

func (ss *slotSet) get(k OpKind) *slot {
	return ss[k]
}

// failAll posts status to every armed slot and returns how many were woken.
func (ss *slotSet) failAll(status Status) int {
	n := 0
	for _, s := range ss {
		if s.post(result{status: status}) {
			n++
		}
	}
	return n
}
