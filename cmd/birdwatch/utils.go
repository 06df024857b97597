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
	"runtime"

	"github.com/ausocean/utils/logging"
)

type Log func(msg string, args ...interface{})

func logTrace(debug, warning Log) {
	const (
		maxStackTraceSize = 100000
		allStacks         = true
	)
	buf := make([]byte, maxStackTraceSize)
	n := runtime.Stack(buf, allStacks)
	if n > maxStackTraceSize && warning != nil {
		warning("stacktrace exceeded buffer size")
	}
	debug("got stacktrace", "stacktrace", string(buf[:n]))
}

// cronLogger adapts a logging.Logger to the cron.Logger interface.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
