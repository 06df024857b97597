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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ausocean/birdwatch/model"
)

// Connection pool limits for Postgres.
const (
	maxOpenConns    = 25
	maxIdleConns    = 25
	connMaxLifetime = 5 * time.Minute
)

// SQL implements Store using a SQLite or Postgres database.
type SQL struct {
	db *sqlx.DB
}

// NewSQL opens a database of the given kind ("sqlite" or "postgres") and
// runs any pending schema migrations.
func NewSQL(kind, dsn string) (*SQL, error) {
	driver := kind
	if kind != "sqlite" && kind != "postgres" {
		return nil, fmt.Errorf("unsupported sql store kind %q", kind)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", kind, err)
	}

	if kind == "sqlite" {
		// A single connection keeps in-memory databases shared and
		// serialises writers.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	} else {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	s := &SQL{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

// runMigrations applies any outstanding migrations in order.
func (s *SQL) runMigrations() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	err = s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := s.db.Exec(s.db.Rebind("INSERT INTO schema_version (version) VALUES (?)"), m.version); err != nil {
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// streamRow is the database representation of a model.Stream.
type streamRow struct {
	ID        int64        `db:"id"`
	OwnerID   string       `db:"owner_id"`
	URL       string       `db:"url"`
	Active    bool         `db:"active"`
	Deleted   bool         `db:"deleted"`
	Notify    bool         `db:"notify"`
	Cadence   int64        `db:"cadence"`
	LastFetch sql.NullTime `db:"last_fetch"`
	Cursor    int64        `db:"cursor_ms"`
	Targets   string       `db:"targets"`
	Note      string       `db:"note"`
	Created   time.Time    `db:"created"`
}

func (r *streamRow) stream() *model.Stream {
	st := &model.Stream{
		ID:      r.ID,
		OwnerID: r.OwnerID,
		URL:     r.URL,
		Active:  r.Active,
		Deleted: r.Deleted,
		Notify:  r.Notify,
		Cadence: r.Cadence,
		Cursor:  r.Cursor,
		Targets: r.Targets,
		Note:    r.Note,
		Created: r.Created,
	}
	if r.LastFetch.Valid {
		st.LastFetch = r.LastFetch.Time
	}
	return st
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

const streamColumns = `id, owner_id, url, active, deleted, notify, cadence, last_fetch, cursor_ms, targets, note, created`

func (s *SQL) GetStream(ctx context.Context, id int64) (*model.Stream, error) {
	var r streamRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind("SELECT "+streamColumns+" FROM streams WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stream %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting stream %d: %w", id, err)
	}
	return r.stream(), nil
}

func (s *SQL) UpdateStream(ctx context.Context, id int64, fn func(*model.Stream)) (*model.Stream, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var r streamRow
	err = tx.GetContext(ctx, &r, tx.Rebind("SELECT "+streamColumns+" FROM streams WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stream %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting stream %d: %w", id, err)
	}

	st := r.stream()
	fn(st)
	st.ID = id

	const query = `
		UPDATE streams SET
			owner_id = ?, url = ?, active = ?, deleted = ?, notify = ?,
			cadence = ?, last_fetch = ?, cursor_ms = ?, targets = ?, note = ?
		WHERE id = ?`
	_, err = tx.ExecContext(ctx, tx.Rebind(query),
		st.OwnerID, st.URL, st.Active, st.Deleted, st.Notify,
		st.Cadence, nullTime(st.LastFetch), st.Cursor, st.Targets, st.Note,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating stream %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing stream %d: %w", id, err)
	}
	return st, nil
}

func (s *SQL) PutStream(ctx context.Context, st *model.Stream) error {
	if st.Cursor == 0 {
		st.Cursor = model.DefaultCursor
	}
	if st.Created.IsZero() {
		st.Created = time.Now()
	}
	const query = `
		INSERT INTO streams (` + streamColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			url = excluded.url,
			active = excluded.active,
			deleted = excluded.deleted,
			notify = excluded.notify,
			cadence = excluded.cadence,
			last_fetch = excluded.last_fetch,
			cursor_ms = excluded.cursor_ms,
			targets = excluded.targets,
			note = excluded.note`
	_, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		st.ID, st.OwnerID, st.URL, st.Active, st.Deleted, st.Notify,
		st.Cadence, nullTime(st.LastFetch), st.Cursor, st.Targets, st.Note, st.Created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("putting stream %d: %w", st.ID, err)
	}
	return nil
}

func (s *SQL) GetStreamsByOwner(ctx context.Context, ownerID string) ([]model.Stream, error) {
	var rows []streamRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind("SELECT "+streamColumns+" FROM streams WHERE owner_id = ? ORDER BY created, id"), ownerID)
	if err != nil {
		return nil, fmt.Errorf("getting streams for owner %s: %w", ownerID, err)
	}
	streams := make([]model.Stream, 0, len(rows))
	for i := range rows {
		streams = append(streams, *rows[i].stream())
	}
	return streams, nil
}

// ownerRow is the database representation of a model.Owner.
type ownerRow struct {
	ID         string    `db:"id"`
	Email      string    `db:"email"`
	Topic      string    `db:"topic"`
	Subscribed bool      `db:"subscribed"`
	Created    time.Time `db:"created"`
}

func (s *SQL) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	var r ownerRow
	err := s.db.GetContext(ctx, &r,
		s.db.Rebind("SELECT id, email, topic, subscribed, created FROM owners WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("owner %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting owner %s: %w", id, err)
	}
	return &model.Owner{ID: r.ID, Email: r.Email, Topic: r.Topic, Subscribed: r.Subscribed, Created: r.Created}, nil
}

func (s *SQL) PutOwner(ctx context.Context, o *model.Owner) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	} else if _, err := uuid.Parse(o.ID); err != nil {
		return fmt.Errorf("invalid owner ID %q: %w", o.ID, err)
	}
	if o.Created.IsZero() {
		o.Created = time.Now()
	}
	const query = `
		INSERT INTO owners (id, email, topic, subscribed, created)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			topic = excluded.topic,
			subscribed = excluded.subscribed`
	_, err := s.db.ExecContext(ctx, s.db.Rebind(query), o.ID, o.Email, o.Topic, o.Subscribed, o.Created.UTC())
	if err != nil {
		return fmt.Errorf("putting owner %s: %w", o.ID, err)
	}
	return nil
}

// detectionRow is the database representation of a model.Detection.
type detectionRow struct {
	ID         string    `db:"id"`
	StreamID   int64     `db:"stream_id"`
	Recorded   time.Time `db:"recorded"`
	Captured   time.Time `db:"captured"`
	Position   int64     `db:"position_ms"`
	Species    string    `db:"species"`
	Confidence float64   `db:"confidence"`
	Thumbnail  string    `db:"thumbnail"`
}

func (r *detectionRow) detection() model.Detection {
	return model.Detection{
		StreamID:   r.StreamID,
		Recorded:   r.Recorded,
		Captured:   r.Captured,
		Position:   r.Position,
		Species:    r.Species,
		Confidence: r.Confidence,
		Thumbnail:  r.Thumbnail,
	}
}

const detectionColumns = `id, stream_id, recorded, captured, position_ms, species, confidence, thumbnail`

func (s *SQL) CreateDetection(ctx context.Context, d *model.Detection) error {
	if d.Recorded.IsZero() {
		d.Recorded = time.Now()
	}
	// Version 7 IDs sort in creation order, breaking ties in record time.
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("creating detection ID: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.db.Rebind("INSERT INTO detections ("+detectionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		id.String(), d.StreamID, d.Recorded.UTC(), d.Captured.UTC(), d.Position, d.Species, d.Confidence, d.Thumbnail,
	)
	if err != nil {
		return fmt.Errorf("creating detection for stream %d: %w", d.StreamID, err)
	}
	return nil
}

func (s *SQL) GetLatestDetection(ctx context.Context, streamID int64) (*model.Detection, error) {
	var r detectionRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(
		"SELECT "+detectionColumns+" FROM detections WHERE stream_id = ? ORDER BY recorded DESC, id DESC LIMIT 1"), streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest detection for stream %d: %w", streamID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest detection for stream %d: %w", streamID, err)
	}
	d := r.detection()
	return &d, nil
}

func (s *SQL) GetDetectionsByStream(ctx context.Context, streamID int64) ([]model.Detection, error) {
	var rows []detectionRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		"SELECT "+detectionColumns+" FROM detections WHERE stream_id = ? ORDER BY recorded, id"), streamID)
	if err != nil {
		return nil, fmt.Errorf("getting detections for stream %d: %w", streamID, err)
	}
	dets := make([]model.Detection, 0, len(rows))
	for i := range rows {
		dets = append(dets, rows[i].detection())
	}
	return dets, nil
}

func (s *SQL) DeleteStream(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM detections WHERE stream_id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting detections for stream %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM streams WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting stream %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting stream %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("stream %d: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing stream %d deletion: %w", id, err)
	}
	return nil
}
