/*
DESCRIPTION
  Package capture resolves stream page URLs to media URLs and reads
  single frames from them at a playback position.

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

package capture

import (
	"context"
	"errors"
	"time"
)

// ErrNotOpen is returned when operating on a capture that is not open.
var ErrNotOpen = errors.New("capture not open")

// Frame is a single JPEG encoded video frame.
type Frame struct {
	Data     []byte    // JPEG data.
	Position int64     // Playback position in milliseconds.
	Captured time.Time // Wall clock time the frame was read.
}

// Resolver resolves a stream page URL to a directly readable media URL.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// Capture reads frames from an opened media URL.
type Capture interface {
	// Opened reports whether the capture can currently be read.
	Opened() bool

	// Seek sets the playback position, in milliseconds, of the next Read.
	Seek(ms int64) error

	// Read reads one frame at the current playback position.
	Read(ctx context.Context) (Frame, error)

	// Close releases the capture.
	Close() error
}

// Opener opens captures on media URLs.
type Opener interface {
	Open(ctx context.Context, mediaURL string) (Capture, error)
}

// ResolveError is returned when a page URL cannot be resolved. Diagnostic
// holds the resolver's own explanation, suitable for showing to a user.
type ResolveError struct {
	URL        string
	Diagnostic string
	Err        error
}

func (e *ResolveError) Error() string {
	if e.Diagnostic == "" {
		return "could not resolve " + e.URL + ": " + e.Err.Error()
	}
	return "could not resolve " + e.URL + ": " + e.Diagnostic
}

func (e *ResolveError) Unwrap() error { return e.Err }
