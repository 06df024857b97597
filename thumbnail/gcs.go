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
	"fmt"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS uploads thumbnails to a Google Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS returns a GCS uploader for a gs://<bucket>[/<prefix>] address.
func NewGCS(ctx context.Context, addr string) (*GCS, error) {
	bkt, prefix, err := googleStorageAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("could not parse address: %w", err)
	}
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not create storage client: %w", err)
	}
	return &GCS{client: c, bucket: bkt, prefix: prefix}, nil
}

// Upload implements Uploader.Upload.
func (u *GCS) Upload(ctx context.Context, key string, data []byte) (string, error) {
	name := path.Join(u.prefix, key)
	w := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	w.ContentType = ContentType
	_, err := w.Write(data)
	if err != nil {
		w.Close()
		return "", fmt.Errorf("could not write object %s: %w", name, err)
	}
	err = w.Close()
	if err != nil {
		return "", fmt.Errorf("could not close written object: %w", err)
	}
	return "https://storage.googleapis.com/" + u.bucket + "/" + name, nil
}

// Close closes the underlying storage client.
func (u *GCS) Close() error {
	return u.client.Close()
}

// googleStorageAddr splits a gs://bucket/object address.
func googleStorageAddr(addr string) (bucket, object string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("url does not have gs scheme: %s", u)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
