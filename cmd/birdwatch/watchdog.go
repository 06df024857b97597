/*
AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Mira Okafor <mira@ausocean.org>

LICENSE
  Copyright (C) 2022-2026 the Australian Ocean Lab (AusOcean).

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
	"fmt"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/coreos/go-systemd/v22/daemon"
)

// By default we assume we should be notifying a systemd watchdog. This can be
// toggled off by using the nowatchdog build tag (see nowatchdog.go file).
var notifyWatchdog = true

// unhealthyHandleDuration is how long a worker iteration may take before the
// process is considered unhealthy. It covers URL resolution, frame reads and
// classification, each of which have their own shorter timeouts.
const unhealthyHandleDuration = 5 * time.Minute

// watchdogNotifier keeps track of the watchdog interval from the external
// systemd service settings and the currently active worker iterations.
type watchdogNotifier struct {
	watchdogInterval time.Duration
	activeHandlers   map[int]handlerInfo
	curId            int
	log              logging.Logger
	mu               sync.Mutex
	haveRun          bool
}

// handlerInfo keeps track of a handler's name and the time at which it was
// invoked, which is later used to calculate health.
type handlerInfo struct {
	name string
	time time.Time
}

// newWatchdogNotifier creates a new watchdogNotifier with the provided logger.
func newWatchdogNotifier(l logging.Logger) *watchdogNotifier {
	return &watchdogNotifier{
		activeHandlers:   make(map[int]handlerInfo),
		watchdogInterval: 1 * time.Minute,
		log:              l,
	}
}

// notify is to be called as a routine. It checks that handlers are healthy
// and, if so, notifies the watchdog, otherwise we wait and check again until
// they are. If handlers take too long to become healthy, we exceed the
// watchdog interval, causing a process restart. notify returns when ctx is
// done, or with an error if the watchdog is misconfigured.
func (n *watchdogNotifier) notify(ctx context.Context) error {
	notifyTicker := time.NewTicker(n.watchdogInterval / 2)
	defer notifyTicker.Stop()

	var consecutiveUnhealthyStates int
	for {
		const nUnhealthyStatesForTrace = 10
		if n.handlersUnhealthy() {
			consecutiveUnhealthyStates++
			if consecutiveUnhealthyStates >= nUnhealthyStatesForTrace {
				logTrace(n.log.Debug, n.log.Warning)
				consecutiveUnhealthyStates = 0
			}
			const unhealthyHandlerWait = 1 * time.Second
			if !sleep(ctx, unhealthyHandlerWait) {
				return nil
			}
			continue
		}
		consecutiveUnhealthyStates = 0

		select {
		case <-ctx.Done():
			return nil
		case <-notifyTicker.C:
		}

		if !notifyWatchdog {
			continue
		}

		if !n.haveRun {
			n.haveRun = true

			const clearEnvVars = false
			ok, err := daemon.SdNotify(clearEnvVars, daemon.SdNotifyReady)
			if err != nil {
				return fmt.Errorf("unexpected watchdog notify ready error: %w", err)
			}
			if !ok {
				n.log.Warning("watchdog notification not supported, not notifying")
				return nil
			}

			interval, err := daemon.SdWatchdogEnabled(clearEnvVars)
			if err != nil {
				return fmt.Errorf("unexpected watchdog error: %w", err)
			}
			if interval == 0 {
				return fmt.Errorf("watchdog not enabled or this is the wrong PID")
			}
			n.watchdogInterval = interval
			notifyTicker.Reset(n.watchdogInterval / 2)
		}

		n.log.Debug("notifying watchdog")
		supported, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		if err != nil {
			return fmt.Errorf("error from systemd watchdog notify: %w", err)
		}
		if !supported {
			return fmt.Errorf("watchdog notification not supported")
		}
	}
}

// handlersUnhealthy returns true if any handler has been running for longer
// than unhealthyHandleDuration.
func (n *watchdogNotifier) handlersUnhealthy() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, info := range n.activeHandlers {
		if time.Since(info.time) > unhealthyHandleDuration {
			n.log.Warning("handler unhealthy", "name", info.name)
			return true
		}
	}
	return false
}

// handlerInvoked is to be called at the start of a unit of work to indicate
// that it has begun. The returned function must be called when the work is
// done, normally with a defer statement immediately after receiving it.
func (n *watchdogNotifier) handlerInvoked(name string) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.curId
	n.curId++
	n.activeHandlers[id] = handlerInfo{time: time.Now(), name: name}

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.activeHandlers[id]; !ok {
			n.log.Error("handler id not in map", "name", name)
			return
		}
		delete(n.activeHandlers, id)
	}
}
