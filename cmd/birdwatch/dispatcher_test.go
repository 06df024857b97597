/*
AUTHORS
  Mira Okafor <mira@ausocean.org>

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean).

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausocean/birdwatch/model"
	"github.com/ausocean/birdwatch/store"
)

const (
	hourCadence = 3600 // Workers sleep until cancelled.
	waitFor     = 5 * time.Second
	tick        = 10 * time.Millisecond
)

// newTestDispatcher returns a dispatcher whose workers block in their
// cadence sleep.
func newTestDispatcher(t *testing.T, capacity int) (*Dispatcher, *harness) {
	t.Helper()
	h := newHarness(t)
	dp := NewDispatcher(capacity, h.d)
	t.Cleanup(dp.Shutdown)
	return dp, h
}

// waitReading waits until the worker for id is sleeping between reads.
func waitReading(t *testing.T, dp *Dispatcher, id int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, info := range dp.Active() {
			if info.StreamID == id && info.State == Reading {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

// replaced waits until the only worker is reading and is not the run given.
func replaced(t *testing.T, dp *Dispatcher, run string) {
	t.Helper()
	require.Eventually(t, func() bool {
		active := dp.Active()
		return len(active) == 1 && active[0].RunID != run && active[0].State == Reading
	}, waitFor, tick)
}

// wait receives from c or fails the test.
func wait[T any](t *testing.T, c chan T, what string) T {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// exitingStore holds the first GetStream that finds the stream not live
// until release is closed.
type exitingStore struct {
	store.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *exitingStore) GetStream(ctx context.Context, id int64) (*model.Stream, error) {
	st, err := s.Store.GetStream(ctx, id)
	if err == nil && !st.Live() {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return st, err
}

func TestAdmitDuplicate(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 1, Active: true, Cadence: hourCadence})

	ctx := context.Background()
	a, err := dp.Admit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Admitted, a)

	a, err = dp.Admit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, a)

	active := dp.Active()
	require.Len(t, active, 1)
	assert.EqualValues(t, 1, active[0].StreamID)
}

func TestAdmitRefused(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 1, Active: false})
	h.putStream(&model.Stream{ID: 2, Active: true, Deleted: true})

	for _, id := range []int64{1, 2, 3} {
		a, err := dp.Admit(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, Refused, a, "stream %d", id)
	}
	assert.Empty(t, dp.Active())
	assert.Equal(t, 0, h.res.calls)
}

func TestAdmitStoreError(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 1, Active: true, Cadence: hourCadence})
	h.d.store = &flakyStore{Store: h.st, fails: 1}

	_, err := dp.Admit(context.Background(), 1)
	assert.Error(t, err)
	assert.Empty(t, dp.Active())

	a, err := dp.Admit(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Admitted, a)
}

func TestAdmitBlocksAtCapacity(t *testing.T) {
	dp, h := newTestDispatcher(t, 1)
	h.putStream(&model.Stream{ID: 1, Active: true, Cadence: hourCadence})
	h.putStream(&model.Stream{ID: 2, Active: true, Cadence: hourCadence})

	a, err := dp.Admit(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, Admitted, a)
	waitReading(t, dp, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = dp.Admit(ctx, 2)
	assert.Error(t, err, "admission must block while all slots are busy")

	// Freeing the slot lets a blocked admission through.
	done := make(chan Admission, 1)
	go func() {
		a, err := dp.Admit(context.Background(), 2)
		assert.NoError(t, err)
		done <- a
	}()
	assert.True(t, dp.Cancel(1))

	select {
	case a := <-done:
		assert.Equal(t, Admitted, a)
	case <-time.After(waitFor):
		t.Fatal("admission did not proceed after a slot was freed")
	}
	waitReading(t, dp, 2)
	require.Len(t, dp.Active(), 1)
}

func TestWorkerLeavesRegistryWhenDone(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 1, Active: true})
	h.opener.err = assert.AnError

	a, err := dp.Admit(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, Admitted, a)

	require.Eventually(t, func() bool { return len(dp.Active()) == 0 }, waitFor, tick)

	// A finished stream may be admitted again.
	h.opener.err = nil
	_, err = h.st.UpdateStream(context.Background(), 1, func(s *model.Stream) { s.Cadence = hourCadence })
	require.NoError(t, err)
	a, err = dp.Admit(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Admitted, a)
}

func TestCancelAndShutdown(t *testing.T) {
	dp, h := newTestDispatcher(t, 3)
	for id := int64(1); id <= 3; id++ {
		h.putStream(&model.Stream{ID: id, Active: true, Cadence: hourCadence})
		_, err := dp.Admit(context.Background(), id)
		require.NoError(t, err)
	}
	assert.False(t, dp.Cancel(9))

	active := dp.Active()
	require.Len(t, active, 3)
	for i, info := range active {
		assert.EqualValues(t, i+1, info.StreamID)
	}

	dp.Shutdown()
	assert.Empty(t, dp.Active())
}

func TestAdmitWaitsForCancelledWorker(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 1, Active: true, Cadence: 1})

	// The first evaluation blocks, so cancellation is not seen until release.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.proc.onProcess = func(s *model.Stream) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	ctx := context.Background()
	a, err := dp.Admit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, Admitted, a)
	first := dp.Active()[0].RunID
	wait(t, entered, "first evaluation")

	// Deactivate and reactivate while the cancelled worker winds down.
	_, err = h.st.UpdateStream(ctx, 1, func(s *model.Stream) { s.Active = false })
	require.NoError(t, err)
	require.True(t, dp.Cancel(1))
	_, err = h.st.UpdateStream(ctx, 1, func(s *model.Stream) { s.Active = true })
	require.NoError(t, err)

	admitted := make(chan Admission, 1)
	go func() {
		a, err := dp.Admit(ctx, 1)
		assert.NoError(t, err)
		admitted <- a
	}()
	select {
	case a := <-admitted:
		t.Fatalf("admission returned %v before the cancelled worker finished", a)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, Admitted, wait(t, admitted, "admission"))
	replaced(t, dp, first)
}

func TestAdmitWaitingForCancelledWorkerTimesOut(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 1, Active: true, Cadence: 1})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.proc.onProcess = func(s *model.Stream) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	defer close(release)

	_, err := dp.Admit(context.Background(), 1)
	require.NoError(t, err)
	wait(t, entered, "first evaluation")
	require.True(t, dp.Cancel(1))

	// The error lets the caller requeue the activation.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = dp.Admit(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDuplicateDuringExitIsReadmitted(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 1, Active: true, Cadence: 1})
	es := &exitingStore{Store: h.st, entered: make(chan struct{}), release: make(chan struct{})}
	h.d.store = es

	ctx := context.Background()
	a, err := dp.Admit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, Admitted, a)
	first := dp.Active()[0].RunID

	// The worker sees the deactivation and is held on its way out.
	_, err = h.st.UpdateStream(ctx, 1, func(s *model.Stream) { s.Active = false })
	require.NoError(t, err)
	wait(t, es.entered, "worker to see the deactivation")

	_, err = h.st.UpdateStream(ctx, 1, func(s *model.Stream) { s.Active = true })
	require.NoError(t, err)
	a, err = dp.Admit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, a)

	close(es.release)
	replaced(t, dp, first)
}

func TestCancelledWorkerIsNotReadmitted(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 1, Active: true, Cadence: hourCadence})

	ctx := context.Background()
	_, err := dp.Admit(ctx, 1)
	require.NoError(t, err)
	a, err := dp.Admit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, Duplicate, a)

	require.True(t, dp.Cancel(1))
	require.Eventually(t, func() bool { return len(dp.Active()) == 0 }, waitFor, tick)
	assert.Never(t, func() bool { return len(dp.Active()) != 0 }, 100*time.Millisecond, tick)
}
