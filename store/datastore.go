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

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ausocean/birdwatch/model"
	"github.com/ausocean/openfish/datastore"
)

// Datastore implements Store using an openfish datastore.
type Datastore struct {
	ds datastore.Store
}

// NewDatastore returns a Datastore backed by a new openfish store of the
// given kind ("file" or "cloud"). Entities are registered as a side effect.
func NewDatastore(ctx context.Context, kind, id, url string) (*Datastore, error) {
	ds, err := datastore.NewStore(ctx, kind, id, url)
	if err != nil {
		return nil, fmt.Errorf("could not create %s datastore: %w", kind, err)
	}
	model.RegisterEntities()
	return &Datastore{ds: ds}, nil
}

// notFound maps datastore.ErrNoSuchEntity to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func (s *Datastore) GetStream(ctx context.Context, id int64) (*model.Stream, error) {
	st, err := model.GetStream(ctx, s.ds, id)
	return st, notFound(err)
}

func (s *Datastore) UpdateStream(ctx context.Context, id int64, fn func(*model.Stream)) (*model.Stream, error) {
	st, err := model.UpdateStream(ctx, s.ds, id, fn)
	return st, notFound(err)
}

func (s *Datastore) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	o, err := model.GetOwner(ctx, s.ds, id)
	return o, notFound(err)
}

func (s *Datastore) GetStreamsByOwner(ctx context.Context, ownerID string) ([]model.Stream, error) {
	return model.GetStreamsByOwner(ctx, s.ds, ownerID)
}

func (s *Datastore) CreateDetection(ctx context.Context, d *model.Detection) error {
	return model.CreateDetection(ctx, s.ds, d)
}

func (s *Datastore) GetLatestDetection(ctx context.Context, streamID int64) (*model.Detection, error) {
	d, err := model.GetLatestDetection(ctx, s.ds, streamID)
	return d, notFound(err)
}

func (s *Datastore) PutStream(ctx context.Context, st *model.Stream) error {
	return model.PutStream(ctx, s.ds, st)
}

func (s *Datastore) PutOwner(ctx context.Context, o *model.Owner) error {
	return model.PutOwner(ctx, s.ds, o)
}

func (s *Datastore) GetDetectionsByStream(ctx context.Context, streamID int64) ([]model.Detection, error) {
	return model.GetDetectionsByStream(ctx, s.ds, streamID)
}

func (s *Datastore) DeleteStream(ctx context.Context, id int64) error {
	_, err := model.GetStream(ctx, s.ds, id)
	if err != nil {
		return notFound(err)
	}
	err = model.DeleteDetections(ctx, s.ds, id)
	if err != nil {
		return fmt.Errorf("could not delete detections for stream %d: %w", id, err)
	}
	return model.DeleteStream(ctx, s.ds, id)
}
