/*
DESCRIPTION
  Datastore detection type and functions. Detections are append-only
  records of accepted bird sightings.

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

package model

import (
	"context"
	"fmt"
	"time"

	"github.com/ausocean/openfish/datastore"
)

const typeDetection = "Detection" // Detection datastore type.

// Detection is a single accepted sighting for a stream.
type Detection struct {
	StreamID   int64     // Parent stream ID.
	Recorded   time.Time // Time the record was written.
	Captured   time.Time // Wall clock time the frame was read.
	Position   int64     // Stream position of the frame in milliseconds.
	Species    string    // Top ranked species.
	Confidence float64   // Classifier confidence (0-100).
	Thumbnail  string    // Thumbnail URL.
}

// Copy copies a Detection to dst, or returns a copy of the Detection when dst is nil.
func (d *Detection) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var d2 *Detection
	if dst == nil {
		d2 = new(Detection)
	} else {
		var ok bool
		d2, ok = dst.(*Detection)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*d2 = *d
	return d2, nil
}

// GetCache returns nil, indicating no caching.
func (d *Detection) GetCache() datastore.Cache {
	return nil
}

func detectionKey(store datastore.Store, streamID int64, recorded time.Time) *datastore.Key {
	return store.NameKey(typeDetection, fmt.Sprintf("%d.%d", streamID, recorded.UnixNano()))
}

// CreateDetection creates a detection, or returns an error if one with
// the same stream and record time exists. A zero Recorded time is set to
// the current time.
func CreateDetection(ctx context.Context, store datastore.Store, d *Detection) error {
	if d.Recorded.IsZero() {
		d.Recorded = time.Now()
	}
	return store.Create(ctx, detectionKey(store, d.StreamID, d.Recorded), d)
}

// GetDetectionsByStream returns all detections for a stream.
func GetDetectionsByStream(ctx context.Context, store datastore.Store, streamID int64) ([]Detection, error) {
	q := store.NewQuery(typeDetection, false, "StreamID", "Recorded")
	q.FilterField("StreamID", "=", streamID)
	var dets []Detection
	_, err := store.GetAll(ctx, q, &dets)
	if err != nil {
		return nil, fmt.Errorf("error getting detections for stream %d: %w", streamID, err)
	}
	return dets, nil
}

// GetLatestDetection returns the most recently recorded detection for a
// stream, or datastore.ErrNoSuchEntity if the stream has none.
func GetLatestDetection(ctx context.Context, store datastore.Store, streamID int64) (*Detection, error) {
	q := store.NewQuery(typeDetection, false, "StreamID", "Recorded")
	q.FilterField("StreamID", "=", streamID)

	// File stores only order by key, so they return every detection for
	// the stream and Latest picks one.
	if _, ok := store.(*datastore.CloudStore); ok {
		q.Order("-Recorded")
		q.Limit(1)
	}
	var dets []Detection
	_, err := store.GetAll(ctx, q, &dets)
	if err != nil {
		return nil, fmt.Errorf("error getting latest detection for stream %d: %w", streamID, err)
	}
	latest := Latest(dets)
	if latest == nil {
		return nil, datastore.ErrNoSuchEntity
	}
	return latest, nil
}

// Latest returns the detection with the greatest record time, preferring
// the later element on ties, or nil if dets is empty.
func Latest(dets []Detection) *Detection {
	var latest *Detection
	for i := range dets {
		if latest == nil || !dets[i].Recorded.Before(latest.Recorded) {
			latest = &dets[i]
		}
	}
	return latest
}

// DeleteDetections deletes all detections for a stream.
func DeleteDetections(ctx context.Context, store datastore.Store, streamID int64) error {
	q := store.NewQuery(typeDetection, true, "StreamID", "Recorded")
	q.FilterField("StreamID", "=", streamID)
	keys, err := store.GetAll(ctx, q, nil)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return store.DeleteMulti(ctx, keys)
}
