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
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/ausocean/birdwatch/store"
)

const (
	defaultSweepSpec = "@every 5s"
	sweepTimeout     = 30 * time.Second
)

// sweeper periodically cancels workers whose streams have been
// deactivated, so they stop mid-sleep rather than after it.
type sweeper struct {
	cron *cron.Cron
	id   cron.EntryID
	dp   *Dispatcher
}

// newSweeper returns a sweeper running on the given cron spec.
func newSweeper(spec string, dp *Dispatcher) (*sweeper, error) {
	if spec == "" {
		spec = defaultSweepSpec
	}
	l := cronLogger{dp.d.log}
	c := cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))
	s := &sweeper{cron: c, dp: dp}
	id, err := c.AddFunc(spec, s.sweep)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep spec %q: %w", spec, err)
	}
	s.id = id
	return s, nil
}

// Start starts the sweeper in its own goroutine.
func (s *sweeper) Start() { s.cron.Start() }

// Stop stops the sweeper and waits for a running sweep to finish.
func (s *sweeper) Stop() { <-s.cron.Stop().Done() }

// sweep cancels the workers of streams that are gone or no longer live.
func (s *sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	for _, info := range s.dp.Active() {
		st, err := s.dp.d.store.GetStream(ctx, info.StreamID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			s.dp.d.log.Warning("sweep could not get stream", "stream", info.StreamID, "error", err)
			continue
		case st.Live():
			continue
		}
		if s.dp.Cancel(info.StreamID) {
			s.dp.d.log.Info("cancelled worker for deactivated stream", "stream", info.StreamID)
		}
	}
}
