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

package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores thumbnails on the local file system, for standalone use.
type Local struct {
	dir     string // Base directory.
	baseURL string // URL prefix returned for stored files, e.g., http://localhost:8080/media.
}

// NewLocal returns a Local uploader writing under dir. When baseURL is
// empty, file:// URLs are returned.
func NewLocal(dir, baseURL string) *Local {
	return &Local{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Upload implements Uploader.Upload.
func (u *Local) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", errors.New("invalid key")
	}
	full := filepath.Join(u.dir, filepath.FromSlash(key))
	err := os.MkdirAll(filepath.Dir(full), 0755)
	if err != nil {
		return "", fmt.Errorf("could not create storage directory: %w", err)
	}
	err = os.WriteFile(full, data, 0644)
	if err != nil {
		return "", fmt.Errorf("could not write %s: %w", full, err)
	}
	if u.baseURL == "" {
		abs, err := filepath.Abs(full)
		if err != nil {
			abs = full
		}
		return "file://" + filepath.ToSlash(abs), nil
	}
	return u.baseURL + "/" + key, nil
}
