/*
DESCRIPTION
  Datastore entity registrations.

AUTHORS
  Alan Noble <alan@ausocean.org>

LICENSE
  Copyright (C) 2023-2026 the Australian Ocean Lab (AusOcean).

  This file is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License in
  gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package model

import (
	"github.com/ausocean/openfish/datastore"
)

// RegisterEntities is a convenience function that registers all of
// the datastore entities in one go.
func RegisterEntities() {
	datastore.RegisterEntity(typeStream, func() datastore.Entity { return new(Stream) })
	datastore.RegisterEntity(typeOwner, func() datastore.Entity { return new(Owner) })
	datastore.RegisterEntity(typeDetection, func() datastore.Entity { return new(Detection) })
}
