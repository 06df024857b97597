/*
DESCRIPTION
  Package store provides the persistence interface used by stream workers
  and the detection gate, with implementations backed by the openfish
  datastore (file or cloud) and by SQL databases (SQLite or Postgres).

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

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ausocean/birdwatch/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence capability required by the core.
type Store interface {
	// GetStream returns the stream with the given ID.
	GetStream(ctx context.Context, id int64) (*model.Stream, error)

	// UpdateStream applies fn to the stored stream and persists the result.
	UpdateStream(ctx context.Context, id int64, fn func(*model.Stream)) (*model.Stream, error)

	// GetOwner returns the owner with the given UUID.
	GetOwner(ctx context.Context, id string) (*model.Owner, error)

	// GetStreamsByOwner returns the owner's streams ordered by creation time.
	GetStreamsByOwner(ctx context.Context, ownerID string) ([]model.Stream, error)

	// CreateDetection appends a detection record.
	CreateDetection(ctx context.Context, d *model.Detection) error

	// GetLatestDetection returns the most recently recorded detection for
	// the stream, or ErrNotFound if there is none.
	GetLatestDetection(ctx context.Context, streamID int64) (*model.Detection, error)
}

// Admin is implemented by stores that can also create the entities the
// core only reads. It is used by tooling and tests.
type Admin interface {
	Store
	PutStream(ctx context.Context, s *model.Stream) error
	PutOwner(ctx context.Context, o *model.Owner) error
	GetDetectionsByStream(ctx context.Context, streamID int64) ([]model.Detection, error)

	// DeleteStream permanently deletes a stream and its detections, or
	// returns ErrNotFound if there is no such stream.
	DeleteStream(ctx context.Context, id int64) error
}

// Config selects and configures a store backend.
type Config struct {
	Kind string // One of "file", "cloud", "sqlite" or "postgres".
	ID   string // Datastore project ID for file and cloud stores.
	URL  string // Directory for file stores, DSN for SQL stores.
}

// Open opens the store described by cfg.
func Open(ctx context.Context, cfg Config) (Admin, error) {
	switch cfg.Kind {
	case "file", "cloud":
		return NewDatastore(ctx, cfg.Kind, cfg.ID, cfg.URL)
	case "sqlite", "postgres":
		return NewSQL(cfg.Kind, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
