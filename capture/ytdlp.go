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
	"strings"
	"time"

	"github.com/pkg/errors"
)

const defaultResolveTimeout = 60 * time.Second

// YTDLP resolves page URLs using the yt-dlp command.
type YTDLP struct {
	Path    string        // Path to yt-dlp, "yt-dlp" if empty.
	Timeout time.Duration // Per resolution timeout, one minute if zero.
}

// Resolve implements Resolver.Resolve. The best single-file format is
// requested and playlists are ignored.
func (y *YTDLP) Resolve(ctx context.Context, pageURL string) (string, error) {
	path := y.Path
	if path == "" {
		path = "yt-dlp"
	}
	timeout := y.Timeout
	if timeout == 0 {
		timeout = defaultResolveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-g", "-f", "b", "--no-playlist", pageURL)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return "", &ResolveError{
			URL:        pageURL,
			Diagnostic: strings.TrimSpace(stderr.String()),
			Err:        errors.Wrap(err, "yt-dlp failed"),
		}
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
	}
	return "", &ResolveError{URL: pageURL, Err: errors.New("yt-dlp returned no media URL")}
}
