/*
DESCRIPTION
  Package thumbnail scales detection frames down to thumbnails and
  uploads them to blob storage.

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
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	"golang.org/x/image/draw"
)

// Thumbnail dimensions and encoding quality.
const (
	Width   = 320
	Height  = 240
	Quality = 85
)

// ContentType is the MIME type of encoded thumbnails.
const ContentType = "image/jpeg"

// Uploader stores an object and returns a URL from which it can be retrieved.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// Key returns the storage key for a stream's thumbnail captured at t,
// e.g., thumbnails/42/20260102030405.jpg. The time is formatted in UTC.
func Key(streamID int64, t time.Time) string {
	return fmt.Sprintf("thumbnails/%d/%s.jpg", streamID, t.UTC().Format("20060102150405"))
}

// Scale decodes an encoded image and returns a Width x Height JPEG.
func Scale(img []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: Quality})
	if err != nil {
		return nil, fmt.Errorf("could not encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Put scales frame and uploads it under the stream's thumbnail key for
// the capture time, returning the thumbnail URL.
func Put(ctx context.Context, up Uploader, streamID int64, captured time.Time, frame []byte) (string, error) {
	thumb, err := Scale(frame)
	if err != nil {
		return "", err
	}
	key := Key(streamID, captured)
	url, err := up.Upload(ctx, key, thumb)
	if err != nil {
		return "", fmt.Errorf("could not upload thumbnail %s: %w", key, err)
	}
	return url, nil
}
