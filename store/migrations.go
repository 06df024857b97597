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

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. The SQL is kept to
// types and syntax understood by both SQLite and Postgres.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS owners (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	topic      TEXT NOT NULL DEFAULT '',
	subscribed BOOLEAN NOT NULL DEFAULT FALSE,
	created    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS streams (
	id         BIGINT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	url        TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	deleted    BOOLEAN NOT NULL DEFAULT FALSE,
	notify     BOOLEAN NOT NULL DEFAULT FALSE,
	cadence    BIGINT NOT NULL CHECK (cadence > 0),
	last_fetch TIMESTAMP NULL,
	cursor_ms  BIGINT NOT NULL DEFAULT 1,
	targets    TEXT NOT NULL DEFAULT '',
	note       TEXT NOT NULL DEFAULT '',
	created    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS detections (
	id          TEXT PRIMARY KEY,
	stream_id   BIGINT NOT NULL REFERENCES streams(id),
	recorded    TIMESTAMP NOT NULL,
	captured    TIMESTAMP NOT NULL,
	position_ms BIGINT NOT NULL DEFAULT 0,
	species     TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	thumbnail   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_streams_owner ON streams(owner_id);
CREATE INDEX IF NOT EXISTS idx_detections_stream_recorded ON detections(stream_id, recorded);
`,
	},
}
