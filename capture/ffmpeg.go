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

package capture

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultProbeTimeout = 30 * time.Second
	defaultReadTimeout  = 30 * time.Second
)

// FFmpeg opens captures that read frames with ffmpeg, after checking the
// media URL is readable with ffprobe.
type FFmpeg struct {
	FFmpegPath  string        // Path to ffmpeg, "ffmpeg" if empty.
	FFprobePath string        // Path to ffprobe, "ffprobe" if empty.
	ReadTimeout time.Duration // Per frame timeout, 30s if zero.
}

// Open implements Opener.Open.
func (f *FFmpeg) Open(ctx context.Context, mediaURL string) (Capture, error) {
	probe := f.FFprobePath
	if probe == "" {
		probe = "ffprobe"
	}
	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, probe, "-v", "error", "-show_entries", "format=format_name", "-of", "default=nw=1", mediaURL)
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return nil, errors.Wrapf(err, "could not probe media: %s", strings.TrimSpace(stderr.String()))
	}

	path := f.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	timeout := f.ReadTimeout
	if timeout == 0 {
		timeout = defaultReadTimeout
	}
	return &ffmpegCapture{path: path, url: mediaURL, timeout: timeout, open: true}, nil
}

// ffmpegCapture reads single frames by running ffmpeg per read.
type ffmpegCapture struct {
	path    string
	url     string
	timeout time.Duration

	mu   sync.Mutex
	pos  int64 // Milliseconds.
	open bool
}

func (c *ffmpegCapture) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *ffmpegCapture) Seek(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if ms < 0 {
		return errors.Errorf("invalid seek position %d", ms)
	}
	c.pos = ms
	return nil
}

func (c *ffmpegCapture) Read(ctx context.Context) (Frame, error) {
	c.mu.Lock()
	pos, open := c.pos, c.open
	c.mu.Unlock()
	if !open {
		return Frame{}, ErrNotOpen
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, readArgs(c.url, pos)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return Frame{}, errors.Wrapf(err, "could not read frame at %dms: %s", pos, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return Frame{}, errors.Errorf("no frame at %dms", pos)
	}
	return Frame{Data: stdout.Bytes(), Position: pos, Captured: time.Now()}, nil
}

func (c *ffmpegCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// readArgs returns the ffmpeg arguments to read one JPEG frame at pos
// milliseconds into url, written to stdout.
func readArgs(url string, pos int64) []string {
	ss := strconv.FormatFloat(float64(pos)/1000, 'f', 3, 64)
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", ss,
		"-i", url,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "mjpeg",
		"-",
	}
}
