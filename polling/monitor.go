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

package polling

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/internal/syncutil"
)

const eventQueueSize = 16

// Monitor errors
var (
	ErrAlreadyRunning  = errors.New("monitor already running")
	ErrNotRunning      = errors.New("monitor not running")
	ErrRecoveryFailed  = errors.New("controller recovery failed")
	ErrWriteInProgress = errors.New("a write is already waiting for a tag")
)

// TagSession is the part of *nfctag.Session the monitor drives.
type TagSession interface {
	PresenceCheck(ctx context.Context) (bool, error)
	Disconnect(ctx context.Context) error
}

type tagEvent struct {
	tag  *nfctag.Tag
	lost bool
}

type writeRequest struct {
	ctx  context.Context
	fn   func(context.Context, *nfctag.Tag) error
	done chan error
}

// Monitor implements nfctag.TagListener. Pass it to nfctag.NewSession,
// Attach the session and run Start; callbacks run on the Start goroutine.
type Monitor struct {
	session   TagSession
	recoverer DeviceRecoverer
	config    *Config
	events    chan tagEvent
	writes    chan writeRequest
	now       func() time.Time

	onDetected func(context.Context, *nfctag.Tag) error
	onRemoved  func()

	log        zerolog.Logger
	state      CardState
	stateMu    syncutil.RWMutex
	callbackMu syncutil.RWMutex
	running    atomic.Bool
}

// NewMonitor creates a monitor. A nil config uses DefaultConfig; a nil
// recoverer disables sleep recovery.
func NewMonitor(config *Config, recoverer DeviceRecoverer) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		recoverer: recoverer,
		config:    config,
		events:    make(chan tagEvent, eventQueueSize),
		writes:    make(chan writeRequest),
		now:       time.Now,
		log:       nfctag.Logger().With().Str("component", "polling").Logger(),
	}
}

// Attach sets the session presence checks go to. Call before Start.
func (m *Monitor) Attach(session TagSession) {
	m.session = session
}

// SetOnCardDetected sets the callback for newly activated tags.
func (m *Monitor) SetOnCardDetected(callback func(context.Context, *nfctag.Tag) error) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onDetected = callback
}

// SetOnCardRemoved sets the callback for tags leaving the field.
func (m *Monitor) SetOnCardRemoved(callback func()) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onRemoved = callback
}

// GetState returns a copy of the current card state.
func (m *Monitor) GetState() CardState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// OnTagDiscovered implements nfctag.TagListener.
func (m *Monitor) OnTagDiscovered(tag *nfctag.Tag) {
	m.enqueue(tagEvent{tag: tag})
}

// OnTagLost implements nfctag.TagListener.
func (m *Monitor) OnTagLost() {
	m.enqueue(tagEvent{lost: true})
}

func (m *Monitor) enqueue(ev tagEvent) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn().Bool("lost", ev.lost).Msg("event queue full, dropping tag event")
	}
}

// Start runs the monitor until ctx is done or recovery fails.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.config.Validate(); err != nil {
		return err
	}
	if m.session == nil {
		return errors.New("monitor has no session attached")
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	interval := m.config.PresenceInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastTick := m.now()

	var pending *writeRequest
	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.done <- ctx.Err()
			}
			return ctx.Err()

		case req := <-m.writes:
			if pending != nil && pending.ctx.Err() == nil {
				req.done <- ErrWriteInProgress
				continue
			}
			pending = &req

		case ev := <-m.events:
			if ev.lost {
				m.handleRemoval()
				continue
			}
			if pending != nil && pending.ctx.Err() == nil {
				m.handleWrite(pending, ev.tag)
			} else {
				m.handleDetected(ctx, ev.tag)
			}
			pending = nil
			// A slow callback is not a sleep.
			lastTick = m.now()

		case <-ticker.C:
			now := m.now()
			elapsed := now.Sub(lastTick)
			lastTick = now
			if m.config.SleepRecovery.DetectSleep(elapsed, interval) {
				if err := m.recover(ctx, elapsed); err != nil {
					return err
				}
				lastTick = m.now()
				continue
			}
			m.checkPresence(ctx)
		}
	}
}

// WriteToNextTag waits up to timeout for the next tag and runs fn on it
// instead of the detected callback.
func (m *Monitor) WriteToNextTag(
	ctx context.Context, timeout time.Duration, fn func(context.Context, *nfctag.Tag) error,
) error {
	if !m.running.Load() {
		return ErrNotRunning
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := writeRequest{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case m.writes <- req:
	case <-ctx.Done():
		return waitError(ctx)
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return waitError(ctx)
	}
}

func waitError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrNoTagInPoll
	}
	return ctx.Err()
}

func (m *Monitor) present(tag *nfctag.Tag) {
	m.stateMu.Lock()
	m.state.TransitionToPresent(hex.EncodeToString(tag.UID), tag.Protocol, m.now())
	m.state.TransitionToBusy()
	m.stateMu.Unlock()
}

func (m *Monitor) settle() {
	m.stateMu.Lock()
	if m.state.DetectionState == StateBusy {
		m.state.DetectionState = StateTagPresent
	}
	m.stateMu.Unlock()
}

func (m *Monitor) handleDetected(ctx context.Context, tag *nfctag.Tag) {
	m.present(tag)
	defer m.settle()

	m.callbackMu.RLock()
	callback := m.onDetected
	m.callbackMu.RUnlock()
	if callback == nil {
		return
	}
	if err := safeCallCallback(ctx, callback, tag, "OnCardDetected"); err != nil {
		m.log.Warn().Err(err).Msg("tag callback failed")
	}
}

func (m *Monitor) handleWrite(req *writeRequest, tag *nfctag.Tag) {
	m.present(tag)
	defer m.settle()
	req.done <- safeCallCallback(req.ctx, req.fn, tag, "write")
}

func (m *Monitor) handleRemoval() {
	m.stateMu.Lock()
	if !m.state.Present {
		m.stateMu.Unlock()
		return
	}
	m.state.TransitionToIdle()
	m.stateMu.Unlock()

	m.callbackMu.RLock()
	callback := m.onRemoved
	m.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// checkPresence probes the current tag and releases it after too many
// missed checks. Removal is reported once the controller deactivates it.
func (m *Monitor) checkPresence(ctx context.Context) {
	m.stateMu.RLock()
	ok := m.state.CanPresenceCheck()
	m.stateMu.RUnlock()
	if !ok {
		return
	}

	present, err := m.session.PresenceCheck(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("presence check skipped")
		return
	}

	m.stateMu.Lock()
	if present {
		m.state.MarkSeen(m.now())
		m.stateMu.Unlock()
		return
	}
	misses := m.state.MarkMissed()
	release := misses >= m.config.MaxMissedChecks
	if release {
		m.state.DetectionState = StateBusy
	}
	m.stateMu.Unlock()
	if !release {
		return
	}

	m.log.Info().Int("missed", misses).Msg("tag stopped answering, releasing it")
	if err := m.session.Disconnect(ctx); err != nil {
		m.log.Warn().Err(err).Msg("release failed")
		m.handleRemoval()
	}
}

// recover restarts the controller after a sleep. Any tag in the field is
// considered gone.
func (m *Monitor) recover(ctx context.Context, elapsed time.Duration) error {
	m.log.Warn().Dur("elapsed", elapsed).Msg("host sleep detected")

	m.stateMu.RLock()
	hadTag := m.state.Present
	m.stateMu.RUnlock()
	if hadTag {
		_ = m.session.Disconnect(ctx)
		m.handleRemoval()
	}

	if m.recoverer == nil {
		return nil
	}
	if err := m.recoverer.AttemptRecovery(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
	}
	m.log.Info().Msg("controller recovered")
	return nil
}

// safeCallCallback executes a callback with panic recovery
func safeCallCallback(
	ctx context.Context,
	callback func(context.Context, *nfctag.Tag) error,
	tag *nfctag.Tag,
	callbackName string,
) (callbackErr error) {
	defer func() {
		if r := recover(); r != nil {
			callbackErr = fmt.Errorf("%s callback panicked: %v", callbackName, r)
		}
	}()
	if err := callback(ctx, tag); err != nil {
		return fmt.Errorf("%s callback failed: %w", callbackName, err)
	}
	return nil
}

// Running reports whether Start is running.
func (m *Monitor) Running() bool {
	return m.running.Load()
}
