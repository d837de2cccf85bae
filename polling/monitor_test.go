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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nfctag "github.com/ZaparooProject/go-nfctag"
)

type fakeSession struct {
	onDisconnect  func()
	checkErr      error
	disconnectErr error
	checks        atomic.Int32
	disconnects   atomic.Int32
	present       atomic.Bool
}

func (f *fakeSession) PresenceCheck(context.Context) (bool, error) {
	f.checks.Add(1)
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.present.Load(), nil
}

func (f *fakeSession) Disconnect(context.Context) error {
	f.disconnects.Add(1)
	if f.disconnectErr != nil {
		return f.disconnectErr
	}
	if f.onDisconnect != nil {
		f.onDisconnect()
	}
	return nil
}

type fakeRecoverer struct {
	err   error
	calls atomic.Int32
}

func (f *fakeRecoverer) AttemptRecovery(context.Context) error {
	f.calls.Add(1)
	return f.err
}

type fakeClock struct {
	offset atomic.Int64
}

func (c *fakeClock) now() time.Time {
	return time.Now().Add(time.Duration(c.offset.Load()))
}

func (c *fakeClock) advance(d time.Duration) {
	c.offset.Add(int64(d))
}

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.PresenceInterval = 10 * time.Millisecond
	return cfg
}

func t2tTag() *nfctag.Tag {
	return &nfctag.Tag{UID: []byte{0x04, 0xAB, 0xCD}, Protocol: nfctag.ProtocolT2T}
}

// startMonitor runs m until the test ends and returns Start's result channel.
func startMonitor(t *testing.T, m *Monitor) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- m.Start(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	require.Eventually(t, m.running.Load, time.Second, time.Millisecond)
	return done
}

func TestMonitor_DetectedAndRemoved(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{}
	fs.present.Store(true)
	m := NewMonitor(fastConfig(), nil)
	m.Attach(fs)

	detected := make(chan *nfctag.Tag, 1)
	var removed atomic.Int32
	m.SetOnCardDetected(func(_ context.Context, tag *nfctag.Tag) error {
		detected <- tag
		return nil
	})
	m.SetOnCardRemoved(func() { removed.Add(1) })
	startMonitor(t, m)

	m.OnTagDiscovered(t2tTag())
	select {
	case tag := <-detected:
		assert.Equal(t, nfctag.ProtocolT2T, tag.Protocol)
	case <-time.After(time.Second):
		t.Fatal("tag not delivered")
	}

	require.Eventually(t, func() bool {
		return m.GetState().DetectionState == StateTagPresent
	}, time.Second, time.Millisecond)
	state := m.GetState()
	assert.True(t, state.Present)
	assert.Equal(t, "04abcd", state.LastUID)

	// A present tag keeps answering presence checks.
	require.Eventually(t, func() bool { return fs.checks.Load() >= 2 }, time.Second, time.Millisecond)
	assert.Zero(t, fs.disconnects.Load())

	m.OnTagLost()
	require.Eventually(t, func() bool { return removed.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, m.GetState().Present)

	// A second loss reports nothing.
	m.OnTagLost()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), removed.Load())
}

func TestMonitor_ReleasesSilentTag(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{}
	m := NewMonitor(fastConfig(), nil)
	fs.onDisconnect = m.OnTagLost
	m.Attach(fs)

	removed := make(chan struct{}, 1)
	m.SetOnCardRemoved(func() { removed <- struct{}{} })
	startMonitor(t, m)

	m.OnTagDiscovered(t2tTag())
	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("silent tag not released")
	}
	assert.Equal(t, int32(1), fs.disconnects.Load())
	assert.GreaterOrEqual(t, fs.checks.Load(), int32(2))
}

func TestMonitor_ReleaseFailureReportsRemoval(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{disconnectErr: errors.New("controller refused")}
	m := NewMonitor(fastConfig(), nil)
	m.Attach(fs)

	removed := make(chan struct{}, 1)
	m.SetOnCardRemoved(func() { removed <- struct{}{} })
	startMonitor(t, m)

	m.OnTagDiscovered(t2tTag())
	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("removal not reported")
	}
	assert.Equal(t, StateIdle, m.GetState().DetectionState)
}

func TestMonitor_SkipsUncheckableTags(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{}
	m := NewMonitor(fastConfig(), nil)
	m.Attach(fs)
	startMonitor(t, m)

	m.OnTagDiscovered(&nfctag.Tag{UID: []byte{1, 2}, Protocol: nfctag.ProtocolT3T})
	require.Eventually(t, func() bool { return m.GetState().Present }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fs.checks.Load())
}

func TestMonitor_CheckErrorKeepsTag(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{checkErr: nfctag.ErrBusy}
	m := NewMonitor(fastConfig(), nil)
	m.Attach(fs)
	startMonitor(t, m)

	m.OnTagDiscovered(t2tTag())
	require.Eventually(t, func() bool { return fs.checks.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, m.GetState().Present)
	assert.Zero(t, fs.disconnects.Load())
}

func TestMonitor_CallbackPanicIsContained(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{}
	fs.present.Store(true)
	m := NewMonitor(fastConfig(), nil)
	m.Attach(fs)

	var calls atomic.Int32
	m.SetOnCardDetected(func(context.Context, *nfctag.Tag) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	startMonitor(t, m)

	m.OnTagDiscovered(t2tTag())
	m.OnTagLost()
	m.OnTagDiscovered(t2tTag())
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
}

func TestMonitor_WriteToNextTag(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{}
	fs.present.Store(true)
	m := NewMonitor(fastConfig(), nil)
	m.Attach(fs)

	var detected atomic.Int32
	m.SetOnCardDetected(func(context.Context, *nfctag.Tag) error {
		detected.Add(1)
		return nil
	})
	startMonitor(t, m)

	var wg sync.WaitGroup
	wg.Add(1)
	var writeErr error
	var written *nfctag.Tag
	go func() {
		defer wg.Done()
		writeErr = m.WriteToNextTag(context.Background(), time.Second, func(_ context.Context, tag *nfctag.Tag) error {
			written = tag
			return nil
		})
	}()

	// Give the request time to reach the monitor.
	time.Sleep(20 * time.Millisecond)
	tag := t2tTag()
	m.OnTagDiscovered(tag)
	wg.Wait()

	require.NoError(t, writeErr)
	assert.Same(t, tag, written)
	assert.Zero(t, detected.Load())
}

func TestMonitor_WriteToNextTagErrors(t *testing.T) {
	t.Parallel()

	m := NewMonitor(fastConfig(), nil)
	err := m.WriteToNextTag(context.Background(), 10*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrNotRunning)

	m.Attach(&fakeSession{})
	startMonitor(t, m)

	err = m.WriteToNextTag(context.Background(), 30*time.Millisecond, func(context.Context, *nfctag.Tag) error {
		return nil
	})
	require.ErrorIs(t, err, ErrNoTagInPoll)

	boom := errors.New("write failed")
	done := make(chan error, 1)
	go func() {
		done <- m.WriteToNextTag(context.Background(), time.Second, func(context.Context, *nfctag.Tag) error {
			return boom
		})
	}()
	time.Sleep(20 * time.Millisecond)
	m.OnTagDiscovered(t2tTag())
	require.ErrorIs(t, <-done, boom)
}

func TestMonitor_SleepTriggersRecovery(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{}
	fs.present.Store(true)
	rec := &fakeRecoverer{}
	clock := &fakeClock{}
	m := NewMonitor(fastConfig(), rec)
	m.now = clock.now
	m.Attach(fs)

	var removed atomic.Int32
	m.SetOnCardRemoved(func() { removed.Add(1) })
	startMonitor(t, m)

	m.OnTagDiscovered(t2tTag())
	require.Eventually(t, func() bool { return m.GetState().Present }, time.Second, time.Millisecond)

	clock.advance(10 * time.Second)
	require.Eventually(t, func() bool { return rec.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), removed.Load())
	assert.Equal(t, int32(1), fs.disconnects.Load())
	assert.False(t, m.GetState().Present)
}

func TestMonitor_RecoveryFailureStops(t *testing.T) {
	t.Parallel()

	rec := &fakeRecoverer{err: errors.New("controller gone")}
	clock := &fakeClock{}
	m := NewMonitor(fastConfig(), rec)
	m.now = clock.now
	m.Attach(&fakeSession{})
	done := startMonitor(t, m)

	clock.advance(time.Minute)
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrRecoveryFailed)
	case <-time.After(time.Second):
		t.Fatal("monitor kept running")
	}
}

func TestMonitor_StartErrors(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil, nil)
	require.Error(t, m.Start(context.Background()), "no session")

	bad := DefaultConfig()
	bad.PresenceInterval = 0
	m = NewMonitor(bad, nil)
	m.Attach(&fakeSession{})
	require.Error(t, m.Start(context.Background()))

	m = NewMonitor(fastConfig(), nil)
	m.Attach(&fakeSession{})
	startMonitor(t, m)
	require.ErrorIs(t, m.Start(context.Background()), ErrAlreadyRunning)
}
