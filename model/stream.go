/*
DESCRIPTION
  Datastore stream type and functions. A stream is a user's subscription
  to a live video source that is periodically sampled for birds.

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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ausocean/openfish/datastore"
)

const typeStream = "Stream" // Stream datastore type.

// DefaultCursor is the playback position, in milliseconds, that a
// newly created stream starts sampling from.
const DefaultCursor = 1

// Stream represents a monitored live video source.
type Stream struct {
	ID        int64     // Unique stream ID.
	OwnerID   string    // Owner UUID.
	URL       string    // Source page URL, e.g., a YouTube live URL.
	Active    bool      // True if the stream should be sampled.
	Deleted   bool      // Soft-deleted streams are never sampled again.
	Notify    bool      // True if the owner wants detection notifications.
	Cadence   int64     // Seconds between frame samples.
	LastFetch time.Time // Time the last frame was successfully read.
	Cursor    int64     // Playback position in milliseconds.
	Targets   string    // JSON list of target species, empty for any species.
	Note      string    // Diagnostic note, e.g., the last resolve failure.
	Created   time.Time // Date/time created.
}

// Copy copies a Stream to dst, or returns a copy of the Stream when dst is nil.
func (s *Stream) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var s2 *Stream
	if dst == nil {
		s2 = new(Stream)
	} else {
		var ok bool
		s2, ok = dst.(*Stream)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*s2 = *s
	return s2, nil
}

// GetCache returns nil, indicating no caching.
func (s *Stream) GetCache() datastore.Cache {
	return nil
}

// Live reports whether the stream should currently be sampled.
// A soft-deleted stream is never live, regardless of its active flag.
func (s *Stream) Live() bool {
	return s.Active && !s.Deleted
}

// Interval returns the stream's cadence as a duration.
func (s *Stream) Interval() time.Duration {
	return time.Duration(s.Cadence) * time.Second
}

// TargetSpecies decodes the stream's target species. An empty Targets
// field decodes to an empty set, which matches any species. A malformed
// payload returns an empty set together with the decoding error.
func (s *Stream) TargetSpecies() ([]string, error) {
	if strings.TrimSpace(s.Targets) == "" {
		return nil, nil
	}
	var targets []string
	err := json.Unmarshal([]byte(s.Targets), &targets)
	if err != nil {
		return nil, fmt.Errorf("malformed target species %q: %w", s.Targets, err)
	}
	return targets, nil
}

// SetTargetSpecies encodes the given species into the Targets field.
func (s *Stream) SetTargetSpecies(species []string) {
	if len(species) == 0 {
		s.Targets = ""
		return
	}
	b, _ := json.Marshal(species)
	s.Targets = string(b)
}

// Validate checks the invariants of a stream.
func (s *Stream) Validate() error {
	if s.Cadence <= 0 {
		return fmt.Errorf("stream %d: cadence must be positive, got %d", s.ID, s.Cadence)
	}
	if s.Cursor < 0 {
		return fmt.Errorf("stream %d: cursor must not be negative, got %d", s.ID, s.Cursor)
	}
	return nil
}

// SortByCreated sorts streams by creation time, oldest first, using the
// stream ID to break ties.
func SortByCreated(streams []Stream) {
	sort.SliceStable(streams, func(i, j int) bool {
		if streams[i].Created.Equal(streams[j].Created) {
			return streams[i].ID < streams[j].ID
		}
		return streams[i].Created.Before(streams[j].Created)
	})
}

// GetStream gets a stream by its ID.
func GetStream(ctx context.Context, store datastore.Store, id int64) (*Stream, error) {
	key := store.IDKey(typeStream, id)
	s := new(Stream)
	err := store.Get(ctx, key, s)
	if err != nil {
		return nil, fmt.Errorf("error getting stream by ID (%d): %w", id, err)
	}
	return s, nil
}

// PutStream creates or updates a stream. A zero Cursor is set to the
// default cursor and a zero Created time is set to the current time.
func PutStream(ctx context.Context, store datastore.Store, s *Stream) error {
	if s.Cursor == 0 {
		s.Cursor = DefaultCursor
	}
	if s.Created.IsZero() {
		s.Created = time.Now()
	}
	key := store.IDKey(typeStream, s.ID)
	_, err := store.Put(ctx, key, s)
	return err
}

// UpdateStream applies fn to the stored stream within a transaction and
// returns the updated stream, or an error if the stream does not exist.
func UpdateStream(ctx context.Context, store datastore.Store, id int64, fn func(*Stream)) (*Stream, error) {
	key := store.IDKey(typeStream, id)
	updated := &Stream{}
	err := store.Update(ctx, key, func(e datastore.Entity) {
		s, ok := e.(*Stream)
		if ok {
			fn(s)
		}
	}, updated)
	if err != nil {
		return nil, fmt.Errorf("error updating stream (%d): %w", id, err)
	}
	return updated, nil
}

// GetStreamsByOwner returns all of an owner's streams ordered by creation time.
func GetStreamsByOwner(ctx context.Context, store datastore.Store, ownerID string) ([]Stream, error) {
	q := store.NewQuery(typeStream, false)
	q.Filter("OwnerID =", ownerID)
	var streams []Stream
	_, err := store.GetAll(ctx, q, &streams)
	if err != nil {
		return nil, fmt.Errorf("error getting streams for owner %s: %w", ownerID, err)
	}
	SortByCreated(streams)
	return streams, nil
}

// DeleteStream deletes a stream.
func DeleteStream(ctx context.Context, store datastore.Store, id int64) error {
	key := store.IDKey(typeStream, id)
	return store.Delete(ctx, key)
}
