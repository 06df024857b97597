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
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ausocean/birdwatch/store"
)

// Admission is the result of offering a stream to the dispatcher.
type Admission int

const (
	Admitted  Admission = iota // A worker was started.
	Duplicate                  // A worker is already running for the stream.
	Refused                    // The stream does not exist or is not live.
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case Duplicate:
		return "duplicate"
	case Refused:
		return "refused"
	default:
		return fmt.Sprintf("Admission(%d)", int(a))
	}
}

// entry is a registered worker.
type entry struct {
	w      *worker
	cancel context.CancelFunc
	done   chan struct{} // Closed once the worker has left the registry.

	cancelled bool // Cancel was called; the worker is winding down.
	readmit   bool // An admission arrived while the worker was running.
}

// Dispatcher runs at most capacity stream workers, and at most one per
// stream. Admission blocks while all slots are in use.
type Dispatcher struct {
	d   *deps
	sem *semaphore.Weighted

	base     context.Context // Parent of all worker contexts.
	shutdown context.CancelFunc

	mu      sync.Mutex
	workers map[int64]*entry
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher running up to capacity workers.
func NewDispatcher(capacity int, d *deps) *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		d:        d,
		sem:      semaphore.NewWeighted(int64(capacity)),
		base:     base,
		shutdown: cancel,
		workers:  make(map[int64]*entry),
	}
}

// Admit starts a worker for stream id once a slot is free. It returns
// once the worker has been started, not when it finishes. An error is
// returned only if ctx is done while waiting, or the stream cannot be
// read, in which case admission may be retried.
//
// If a cancelled worker for the stream is still winding down, Admit waits
// for it to finish. If a running worker exits on its own after a
// duplicate admission, the stream is admitted again so the activation is
// not lost.
func (dp *Dispatcher) Admit(ctx context.Context, id int64) (Admission, error) {
	for {
		dp.mu.Lock()
		e, ok := dp.workers[id]
		if ok && !e.cancelled {
			e.readmit = true
			dp.mu.Unlock()
			dp.d.log.Info("refusing duplicate admission", "stream", id)
			return Duplicate, nil
		}
		dp.mu.Unlock()
		if ok {
			dp.d.log.Debug("waiting for cancelled worker", "stream", id)
			select {
			case <-e.done:
				continue
			case <-ctx.Done():
				return 0, fmt.Errorf("stream %d still winding down: %w", id, ctx.Err())
			}
		}

		s, err := dp.d.store.GetStream(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			dp.d.log.Warning("refusing unknown stream", "stream", id)
			return Refused, nil
		case err != nil:
			return 0, fmt.Errorf("could not get stream %d: %w", id, err)
		case !s.Live():
			dp.d.log.Info("refusing stream that is not live", "stream", id, "active", s.Active, "deleted", s.Deleted)
			return Refused, nil
		}

		err = dp.sem.Acquire(ctx, 1)
		if err != nil {
			return 0, fmt.Errorf("could not acquire worker slot: %w", err)
		}

		dp.mu.Lock()
		if _, ok := dp.workers[id]; ok {
			// Another admission won the race; decide again against its worker.
			dp.mu.Unlock()
			dp.sem.Release(1)
			continue
		}
		wctx, cancel := context.WithCancel(dp.base)
		e = &entry{w: newWorker(id, dp.d), cancel: cancel, done: make(chan struct{})}
		dp.workers[id] = e
		dp.wg.Add(1)
		dp.mu.Unlock()

		go dp.run(wctx, id, e)

		dp.d.log.Info("admitted stream", "stream", id, "run", e.w.Info().RunID)
		return Admitted, nil
	}
}

// run runs a registered worker, then frees its slot and readmits the
// stream if asked to.
func (dp *Dispatcher) run(ctx context.Context, id int64, e *entry) {
	defer dp.wg.Done()
	e.w.run(ctx)
	e.cancel()

	readmit := dp.remove(id, e)
	dp.sem.Release(1)
	if !readmit || dp.base.Err() != nil {
		return
	}
	a, err := dp.Admit(dp.base, id)
	if err != nil {
		dp.d.log.Warning("could not readmit stream", "stream", id, "error", err)
		return
	}
	dp.d.log.Info("readmitted stream", "stream", id, "admission", a.String())
}

// remove unregisters e, wakes admissions waiting on it and reports
// whether the stream should be readmitted.
func (dp *Dispatcher) remove(id int64, e *entry) bool {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.workers[id] == e {
		delete(dp.workers, id)
	}
	close(e.done)
	return e.readmit && !e.cancelled
}

// Cancel cancels the worker for stream id, reporting whether there was one.
// The worker stops at its next suspension point.
func (dp *Dispatcher) Cancel(id int64) bool {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	e, ok := dp.workers[id]
	if ok {
		e.cancelled = true
		e.readmit = false
		e.cancel()
	}
	return ok
}

// Active returns the running workers ordered by stream ID.
func (dp *Dispatcher) Active() []WorkerInfo {
	dp.mu.Lock()
	infos := make([]WorkerInfo, 0, len(dp.workers))
	for _, e := range dp.workers {
		infos = append(infos, e.w.Info())
	}
	dp.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].StreamID < infos[j].StreamID })
	return infos
}

// Wait waits for all workers to finish.
func (dp *Dispatcher) Wait() {
	dp.wg.Wait()
}

// Shutdown cancels all workers and waits for them to finish.
func (dp *Dispatcher) Shutdown() {
	dp.shutdown()
	dp.Wait()
}
