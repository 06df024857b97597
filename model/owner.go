/*
DESCRIPTION
  Datastore owner type and functions.

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
	"github.com/google/uuid"
)

const typeOwner = "Owner" // Owner datastore type.

// Owner represents the person notified about a stream's detections.
type Owner struct {
	ID         string    // Owner UUID.
	Email      string    // Contact email address.
	Topic      string    // Notification topic handle, empty until created.
	Subscribed bool      // True if subscribed to the notification topic.
	Created    time.Time // Date/time created.
}

// Copy copies an Owner to dst, or returns a copy of the Owner when dst is nil.
func (o *Owner) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var o2 *Owner
	if dst == nil {
		o2 = new(Owner)
	} else {
		var ok bool
		o2, ok = dst.(*Owner)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*o2 = *o
	return o2, nil
}

// GetCache returns nil, indicating no caching.
func (o *Owner) GetCache() datastore.Cache {
	return nil
}

// GetOwner gets an owner by UUID.
func GetOwner(ctx context.Context, store datastore.Store, id string) (*Owner, error) {
	key := store.NameKey(typeOwner, id)
	o := new(Owner)
	err := store.Get(ctx, key, o)
	if err != nil {
		return nil, fmt.Errorf("error getting owner %s: %w", id, err)
	}
	return o, nil
}

// PutOwner creates or updates an owner. An owner without an ID is
// assigned a new UUID.
func PutOwner(ctx context.Context, store datastore.Store, o *Owner) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	} else if _, err := uuid.Parse(o.ID); err != nil {
		return fmt.Errorf("invalid owner ID %q: %w", o.ID, err)
	}
	if o.Created.IsZero() {
		o.Created = time.Now()
	}
	key := store.NameKey(typeOwner, o.ID)
	_, err := store.Put(ctx, key, o)
	return err
}

// DeleteOwner deletes an owner.
func DeleteOwner(ctx context.Context, store datastore.Store, id string) error {
	return store.Delete(ctx, store.NameKey(typeOwner, id))
}
