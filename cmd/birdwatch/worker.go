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
	"runtime/debug"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"

	"github.com/ausocean/birdwatch/capture"
	"github.com/ausocean/birdwatch/classify"
	"github.com/ausocean/birdwatch/gate"
	"github.com/ausocean/birdwatch/model"
	"github.com/ausocean/birdwatch/store"
)

// State is the state of a stream worker.
type State int

const (
	Resolving State = iota
	Reading
	Evaluating
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "RESOLVING"
	case Reading:
		return "READING"
	case Evaluating:
		return "EVALUATING"
	case Stopped:
		return "STOPPED"
	case Failed:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// WorkerInfo describes a running worker.
type WorkerInfo struct {
	StreamID    int64     `json:"stream_id"`
	RunID       string    `json:"run_id"`
	State       State     `json:"state"`
	Started     time.Time `json:"started"`
	Iterations  int64     `json:"iterations"`
	LastOutcome string    `json:"last_outcome,omitempty"`
}

// processor gates classified frames. It is implemented by *gate.Gate.
type processor interface {
	Process(ctx context.Context, s *model.Stream, f capture.Frame, v classify.Verdict) (gate.Outcome, error)
}

// deps holds what stream workers need. sleep and now may be replaced for
// testing.
type deps struct {
	store       store.Store
	resolver    capture.Resolver
	opener      capture.Opener
	classifier  classify.Classifier
	interpreter *classify.Interpreter
	gate        processor
	log         logging.Logger
	dog         *watchdogNotifier // Optional.
	sleep       func(ctx context.Context, d time.Duration) bool
	now         func() time.Time
}

// retryDelay is the wait before retrying a failed store read.
const retryDelay = 5 * time.Second

// sleep sleeps for d, returning false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// worker polls one stream until it is deactivated, its context is
// cancelled, or its capture cannot be opened.
type worker struct {
	id  int64
	d   *deps
	cap capture.Capture

	mu   sync.Mutex
	info WorkerInfo
}

func newWorker(id int64, d *deps) *worker {
	return &worker{
		id: id,
		d:  d,
		info: WorkerInfo{
			StreamID: id,
			RunID:    uuid.NewString(),
			State:    Resolving,
			Started:  d.now(),
		},
	}
}

// Info returns a snapshot of the worker's state.
func (w *worker) Info() WorkerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.info
}

func (w *worker) setState(s State) {
	w.mu.Lock()
	w.info.State = s
	w.mu.Unlock()
}

func (w *worker) setOutcome(o string) {
	w.mu.Lock()
	w.info.LastOutcome = o
	w.mu.Unlock()
}

// run runs the worker to completion and returns its final state. Panics
// are recovered so they never reach the dispatcher.
func (w *worker) run(ctx context.Context) (final State) {
	log := w.d.log
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked", "stream", w.id, "panic", r, "stack", string(debug.Stack()))
			final = Failed
		}
		if w.cap != nil {
			if err := w.cap.Close(); err != nil {
				log.Warning("could not close capture", "stream", w.id, "error", err)
			}
		}
		w.setState(final)
		log.Info("worker finished", "stream", w.id, "run", w.Info().RunID, "state", final.String())
	}()

	log.Info("worker started", "stream", w.id, "run", w.Info().RunID)
	if !w.start(ctx) {
		return w.Info().State
	}

	fresh := true // The capture was opened by start.
	for {
		s, ok := w.reload(ctx)
		if !ok {
			return Stopped
		}
		w.mu.Lock()
		w.info.Iterations++
		w.mu.Unlock()

		if !fresh {
			w.setState(Resolving)
			err := w.open(ctx, s)
			if err != nil {
				log.Warning("could not reopen stream, will retry", "stream", w.id, "error", err)
				if !w.d.sleep(ctx, s.Interval()) {
					return Stopped
				}
				continue
			}
		}
		fresh = false

		w.setState(Reading)
		if !w.d.sleep(ctx, s.Interval()) {
			return Stopped
		}
		w.iterate(ctx, s)
	}
}

// start loads the stream and opens its capture. A capture that cannot be
// opened at startup is terminal.
func (w *worker) start(ctx context.Context) bool {
	s, ok := w.reload(ctx)
	if !ok {
		w.setState(Stopped)
		return false
	}
	err := w.open(ctx, s)
	if err != nil && ctx.Err() != nil {
		w.setState(Stopped)
		return false
	}
	if err != nil {
		w.d.log.Error("could not open stream", "stream", w.id, "error", err)
		w.setOutcome(err.Error())
		w.setState(Failed)
		return false
	}
	return true
}

// reload reads the stream from the store, retrying transient store
// failures. It reports false if the worker should stop.
func (w *worker) reload(ctx context.Context) (*model.Stream, bool) {
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		s, err := w.d.store.GetStream(ctx, w.id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			w.d.log.Info("stream no longer exists", "stream", w.id)
			return nil, false
		case err != nil:
			w.d.log.Error("could not reload stream, will retry", "stream", w.id, "error", err)
			if !w.d.sleep(ctx, retryDelay) {
				return nil, false
			}
			continue
		case !s.Live():
			w.d.log.Info("stream no longer live", "stream", w.id, "active", s.Active, "deleted", s.Deleted)
			return nil, false
		}
		err = s.Validate()
		if err != nil {
			w.d.log.Error("invalid stream", "stream", w.id, "error", err)
			return nil, false
		}
		return s, true
	}
}

// open resolves the stream's URL and (re)opens its capture. Failures are
// recorded on the stream's note; success clears it.
func (w *worker) open(ctx context.Context, s *model.Stream) error {
	mediaURL, err := w.d.resolver.Resolve(ctx, s.URL)
	if err != nil {
		w.note(ctx, resolveNote(err))
		return err
	}

	c, err := w.d.opener.Open(ctx, mediaURL)
	if err != nil {
		w.note(ctx, "Could not open stream: "+err.Error())
		return err
	}
	if w.cap != nil {
		w.cap.Close()
	}
	w.cap = c

	if s.Note != "" {
		w.note(ctx, "")
	}
	return nil
}

func resolveNote(err error) string {
	var re *capture.ResolveError
	if errors.As(err, &re) && re.Diagnostic != "" {
		return re.Diagnostic
	}
	return err.Error()
}

func (w *worker) note(ctx context.Context, note string) {
	if ctx.Err() != nil {
		return
	}
	_, err := w.d.store.UpdateStream(ctx, w.id, func(s *model.Stream) { s.Note = note })
	if err != nil {
		w.d.log.Warning("could not update stream note", "stream", w.id, "error", err)
	}
}

// iterate seeks, reads and evaluates one frame. Failures are logged and
// abandon the iteration.
func (w *worker) iterate(ctx context.Context, s *model.Stream) {
	if w.d.dog != nil {
		done := w.d.dog.handlerInvoked(fmt.Sprintf("stream %d", w.id))
		defer done()
	}
	log := w.d.log

	if w.cap == nil || !w.cap.Opened() {
		log.Debug("capture not open, skipping", "stream", w.id)
		return
	}
	err := w.cap.Seek(s.Cursor)
	if err != nil {
		log.Warning("could not seek", "stream", w.id, "cursor", s.Cursor, "error", err)
		return
	}

	// The cursor advances whether or not the read succeeds.
	_, err = w.d.store.UpdateStream(ctx, w.id, func(st *model.Stream) {
		st.Cursor += st.Cadence * 1000
	})
	if err != nil {
		log.Error("could not advance cursor", "stream", w.id, "error", err)
		return
	}

	frame, err := w.cap.Read(ctx)
	if err != nil {
		log.Warning("could not read frame", "stream", w.id, "cursor", s.Cursor, "error", err)
		return
	}

	s, err = w.d.store.UpdateStream(ctx, w.id, func(st *model.Stream) {
		st.LastFetch = w.d.now()
	})
	if err != nil {
		log.Error("could not update last fetch", "stream", w.id, "error", err)
		return
	}

	w.setState(Evaluating)
	defer w.setState(Reading)

	labels, err := w.d.classifier.Classify(ctx, frame.Data)
	if err != nil {
		log.Warning("could not classify frame", "stream", w.id, "error", err)
		return
	}
	v := w.d.interpreter.Interpret(labels)
	log.Debug("interpreted frame", "stream", w.id, "detected", v.Detected, "species", v.Species, "confidence", v.Confidence, "others", v.Others)

	out, err := w.d.gate.Process(ctx, s, frame, v)
	if err != nil {
		log.Error("could not process detection", "stream", w.id, "error", err)
		return
	}
	w.setOutcome(out.Reason)
	log.Info("frame processed", "stream", w.id, "decision", out.Decision.String(), "reason", out.Reason, "notify", out.Notify.String())
}
