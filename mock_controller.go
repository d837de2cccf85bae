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
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MockCommand identifies a Controller method on MockController.
type MockCommand int

// Controller methods recorded by MockController.
const (
	MockSelect MockCommand = iota
	MockDeactivate
	MockPresenceCheck
	MockTransceive
	MockDetectNdef
	MockReadNdef
	MockWriteNdef
	MockFormat
	MockSetReadOnly
	MockRegisterNdef
	MockDeregisterNdef
	MockCancelData
)

func (c MockCommand) String() string {
	names := [...]string{
		"select", "deactivate", "presence-check", "transceive", "detect-ndef",
		"read-ndef", "write-ndef", "format", "set-read-only", "register-ndef", "deregister-ndef",
		"cancel-data",
	}
	if c >= 0 && int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("MockCommand(%d)", int(c))
}

// MockCall is one recorded Controller call.
type MockCall struct {
	Payload   []byte
	Command   MockCommand
	Handle    int
	Protocol  Protocol
	Interface Interface
	ToSleep   bool
}

// MockResponder produces the events a command completes with.
type MockResponder func(call MockCall) []Event

// MockController provides a mock implementation of Controller for testing.
// Commands complete asynchronously: the scripted events are delivered to
// the handler from a separate goroutine, as a real controller would.
type MockController struct {
	handler    EventHandler
	responders map[MockCommand]MockResponder
	errorMap   map[MockCommand]error
	errorOnce  map[MockCommand]error
	calls      []MockCall
	delay      time.Duration
	wg         sync.WaitGroup
	mu         sync.RWMutex
}

// NewMockController creates a mock controller whose commands succeed.
func NewMockController() *MockController {
	return &MockController{
		responders: make(map[MockCommand]MockResponder),
		errorMap:   make(map[MockCommand]error),
		errorOnce:  make(map[MockCommand]error),
	}
}

// SetHandler sets where completions are delivered.
func (m *MockController) SetHandler(h EventHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// SetResponse makes cmd complete with the given events. With no events the
// command never completes.
func (m *MockController) SetResponse(cmd MockCommand, events ...Event) {
	m.SetResponder(cmd, func(MockCall) []Event { return events })
}

// SetResponder makes cmd complete with whatever fn returns.
func (m *MockController) SetResponder(cmd MockCommand, fn MockResponder) {
	m.mu.Lock()
	m.responders[cmd] = fn
	m.mu.Unlock()
}

// SetError makes cmd fail synchronously with err.
func (m *MockController) SetError(cmd MockCommand, err error) {
	m.mu.Lock()
	m.errorMap[cmd] = err
	m.mu.Unlock()
}

// FailNext makes only the next call of cmd fail synchronously with err.
func (m *MockController) FailNext(cmd MockCommand, err error) {
	m.mu.Lock()
	m.errorOnce[cmd] = err
	m.mu.Unlock()
}

// ClearError removes error injection for cmd.
func (m *MockController) ClearError(cmd MockCommand) {
	m.mu.Lock()
	delete(m.errorMap, cmd)
	m.mu.Unlock()
}

// SetDelay configures a delay before completions are delivered.
func (m *MockController) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// GetCallCount returns how many times cmd was called.
func (m *MockController) GetCallCount(cmd MockCommand) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.calls {
		if c.Command == cmd {
			n++
		}
	}
	return n
}

// Calls returns the recorded calls in order.
func (m *MockController) Calls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.calls)
}

// Wait blocks until every scheduled completion has been delivered.
func (m *MockController) Wait() {
	m.wg.Wait()
}

// Emit delivers events to the handler asynchronously, as if the controller
// had produced them unprompted.
func (m *MockController) Emit(events ...Event) {
	m.mu.RLock()
	delay := m.delay
	m.mu.RUnlock()
	m.deliver(delay, events)
}

func (m *MockController) deliver(delay time.Duration, events []Event) {
	m.mu.RLock()
	h := m.handler
	m.mu.RUnlock()
	if h == nil || len(events) == 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		for _, ev := range events {
			h.HandleEvent(ev)
		}
	}()
}

func (m *MockController) invoke(call MockCall) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	if err, ok := m.errorOnce[call.Command]; ok {
		delete(m.errorOnce, call.Command)
		m.mu.Unlock()
		return err
	}
	if err, ok := m.errorMap[call.Command]; ok {
		m.mu.Unlock()
		return err
	}
	responder, ok := m.responders[call.Command]
	delay := m.delay
	m.mu.Unlock()

	var events []Event
	if ok {
		events = responder(call)
	} else {
		events = defaultCompletion(call)
	}
	m.deliver(delay, events)
	return nil
}

// defaultCompletion is the successful completion of each command.
func defaultCompletion(call MockCall) []Event {
	switch call.Command {
	case MockSelect:
		return []Event{&ConnectCompleted{Status: StatusOK}}
	case MockDeactivate:
		if call.ToSleep {
			return []Event{&Deactivated{Type: DeactivateSleep}}
		}
		return []Event{&Deactivated{Type: DeactivateDiscard}}
	case MockPresenceCheck:
		return []Event{&PresenceCheckCompleted{Status: StatusOK}}
	case MockTransceive:
		return []Event{&TransceiveCompleted{Status: StatusOK}}
	case MockDetectNdef:
		return []Event{&NdefDetectCompleted{Status: StatusOK}}
	case MockReadNdef:
		return []Event{&ReadCompleted{Status: StatusOK}}
	case MockWriteNdef:
		return []Event{&WriteCompleted{Status: StatusOK}}
	case MockFormat:
		return []Event{&FormatCompleted{Status: StatusOK}}
	case MockSetReadOnly:
		return []Event{&MakeReadOnlyCompleted{Status: StatusOK}}
	default:
		return nil
	}
}

// ErrMockControllerRefused is a convenience error for SetError.
var ErrMockControllerRefused = errors.New("mock controller refused command")

// Select implements Controller.
func (m *MockController) Select(handle int, protocol Protocol, iface Interface) error {
	return m.invoke(MockCall{Command: MockSelect, Handle: handle, Protocol: protocol, Interface: iface})
}

// Deactivate implements Controller.
func (m *MockController) Deactivate(handle int, toSleep bool) error {
	return m.invoke(MockCall{Command: MockDeactivate, Handle: handle, ToSleep: toSleep})
}

// PresenceCheck implements Controller.
func (m *MockController) PresenceCheck(handle int) error {
	return m.invoke(MockCall{Command: MockPresenceCheck, Handle: handle})
}

// Transceive implements Controller.
func (m *MockController) Transceive(handle int, payload []byte) error {
	return m.invoke(MockCall{Command: MockTransceive, Handle: handle, Payload: slices.Clone(payload)})
}

// DetectNdef implements Controller.
func (m *MockController) DetectNdef(handle int) error {
	return m.invoke(MockCall{Command: MockDetectNdef, Handle: handle})
}

// ReadNdef implements Controller.
func (m *MockController) ReadNdef(handle int) error {
	return m.invoke(MockCall{Command: MockReadNdef, Handle: handle})
}

// WriteNdef implements Controller.
func (m *MockController) WriteNdef(handle int, payload []byte) error {
	return m.invoke(MockCall{Command: MockWriteNdef, Handle: handle, Payload: slices.Clone(payload)})
}

// Format implements Controller.
func (m *MockController) Format(handle int) error {
	return m.invoke(MockCall{Command: MockFormat, Handle: handle})
}

// SetReadOnly implements Controller.
func (m *MockController) SetReadOnly(handle int) error {
	return m.invoke(MockCall{Command: MockSetReadOnly, Handle: handle})
}

// RegisterNdefTypeHandler implements Controller.
func (m *MockController) RegisterNdefTypeHandler() error {
	return m.invoke(MockCall{Command: MockRegisterNdef})
}

// DeregisterNdefTypeHandler implements Controller.
func (m *MockController) DeregisterNdefTypeHandler() error {
	return m.invoke(MockCall{Command: MockDeregisterNdef})
}

// CancelData implements DataCanceler.
func (m *MockController) CancelData() {
	_ = m.invoke(MockCall{Command: MockCancelData})
}
