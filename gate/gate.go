/*
DESCRIPTION
  Package gate decides whether a classified frame becomes a detection
  record, and whether the stream's owner is notified about it.

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

package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/birdwatch/capture"
	"github.com/ausocean/birdwatch/classify"
	"github.com/ausocean/birdwatch/model"
	"github.com/ausocean/birdwatch/notify"
	"github.com/ausocean/birdwatch/store"
	"github.com/ausocean/birdwatch/thumbnail"
)

// NotifyThreshold is the confidence above which any accepted detection is
// notified. Specific species are notified regardless of confidence.
const NotifyThreshold = 90.0

// ErrNoTopic is returned when a stream's owner has no notification topic.
var ErrNoTopic = errors.New("owner has no notification topic")

// Decision is the gate's verdict on a classified frame.
type Decision int

const (
	SkipNoDetection Decision = iota
	SkipDuplicate
	SkipNotTargeted
	Accept
)

func (d Decision) String() string {
	switch d {
	case SkipNoDetection:
		return "skip-no-detection"
	case SkipDuplicate:
		return "skip-duplicate"
	case SkipNotTargeted:
		return "skip-not-targeted"
	case Accept:
		return "accept"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// NotifyResult describes what happened to the notification of an accepted
// detection.
type NotifyResult int

const (
	NotNotified  NotifyResult = iota // Notification not called for.
	Notified                         // Published to the owner's topic.
	NoTopic                          // Called for, but the owner has no topic.
	NotifyFailed                     // Called for, but publishing failed.
)

func (r NotifyResult) String() string {
	switch r {
	case NotNotified:
		return "not-notified"
	case Notified:
		return "notified"
	case NoTopic:
		return "no-topic"
	case NotifyFailed:
		return "notify-failed"
	default:
		return fmt.Sprintf("notify(%d)", int(r))
	}
}

// Outcome is the result of gating one frame.
type Outcome struct {
	Accepted  bool
	Reason    string
	Decision  Decision
	Notify    NotifyResult
	Detection *model.Detection // Persisted record, if accepted.
}

// Decide applies the gating rules in order: no detection, duplicate of the
// latest record, not targeted, accept. latest may be nil and an empty
// targets set matches any species.
func Decide(v classify.Verdict, targets []string, latest *model.Detection) Decision {
	if !v.Detected {
		return SkipNoDetection
	}
	if latest != nil && latest.Species == v.Species {
		return SkipDuplicate
	}
	if len(targets) != 0 && !contains(targets, v.Species) {
		return SkipNotTargeted
	}
	return Accept
}

func contains(targets []string, species string) bool {
	for _, t := range targets {
		if strings.EqualFold(strings.TrimSpace(t), species) {
			return true
		}
	}
	return false
}

// ShouldNotify reports whether an accepted verdict is notified. A
// confidence of exactly NotifyThreshold is not enough on its own.
func ShouldNotify(enabled bool, v classify.Verdict) bool {
	return enabled && (v.Confidence > NotifyThreshold || v.HasSpecific)
}

// Announcer announces a detected species, e.g., over a speaker.
type Announcer interface {
	Announce(ctx context.Context, species string) error
}

// Gate applies Decide to classified frames and carries out the side
// effects of accepted ones.
type Gate struct {
	store     store.Store
	uploader  thumbnail.Uploader
	publisher notify.Publisher
	announcer Announcer
	log       logging.Logger
	now       func() time.Time
}

// Option is a functional option supplied to New.
type Option func(*Gate)

// WithAnnouncer announces notified species before publishing.
func WithAnnouncer(a Announcer) Option {
	return func(g *Gate) { g.announcer = a }
}

// WithClock sets the clock used for record times.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New returns a Gate.
func New(s store.Store, up thumbnail.Uploader, pub notify.Publisher, l logging.Logger, opts ...Option) *Gate {
	g := &Gate{store: s, uploader: up, publisher: pub, log: l, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process gates a frame's verdict for stream. Skips are outcomes, not
// errors. An error is returned only when reading or writing persistent
// state fails, in which case the attempt is abandoned.
func (g *Gate) Process(ctx context.Context, stream *model.Stream, frame capture.Frame, v classify.Verdict) (Outcome, error) {
	if !v.Detected {
		return Outcome{Decision: SkipNoDetection, Reason: "no bird detected"}, nil
	}

	latest, err := g.store.GetLatestDetection(ctx, stream.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		latest = nil
	case err != nil:
		return Outcome{}, fmt.Errorf("could not get latest detection: %w", err)
	}

	targets, err := stream.TargetSpecies()
	if err != nil {
		g.log.Warning("ignoring target species", "stream", stream.ID, "error", err)
		targets = nil
	}

	switch Decide(v, targets, latest) {
	case SkipDuplicate:
		return Outcome{Decision: SkipDuplicate, Reason: "duplicate detection of " + v.Species}, nil
	case SkipNotTargeted:
		return Outcome{Decision: SkipNotTargeted, Reason: v.Species + " is not a target species"}, nil
	}

	url, err := thumbnail.Put(ctx, g.uploader, stream.ID, frame.Captured, frame.Data)
	if err != nil {
		return Outcome{}, err
	}
	det := &model.Detection{
		StreamID:   stream.ID,
		Recorded:   g.now().UTC(),
		Captured:   frame.Captured.UTC(),
		Position:   frame.Position,
		Species:    v.Species,
		Confidence: v.Confidence,
		Thumbnail:  url,
	}
	err = g.store.CreateDetection(ctx, det)
	if err != nil {
		return Outcome{}, fmt.Errorf("could not create detection: %w", err)
	}

	out := Outcome{
		Accepted:  true,
		Reason:    fmt.Sprintf("detected %s (%.2f%%)", v.Species, v.Confidence),
		Decision:  Accept,
		Detection: det,
	}
	if !ShouldNotify(stream.Notify, v) {
		return out, nil
	}

	if g.announcer != nil {
		err = g.announcer.Announce(ctx, v.Species)
		if err != nil {
			g.log.Warning("could not announce detection", "stream", stream.ID, "error", err)
		}
	}

	err = g.notify(ctx, stream, det)
	switch {
	case err == nil:
		out.Notify = Notified
	case errors.Is(err, ErrNoTopic):
		g.log.Warning("not notifying", "stream", stream.ID, "owner", stream.OwnerID, "reason", err)
		out.Notify = NoTopic
	default:
		g.log.Error("could not notify", "stream", stream.ID, "error", err)
		out.Notify = NotifyFailed
	}
	return out, nil
}

// notify publishes det to the topic of the stream's owner.
func (g *Gate) notify(ctx context.Context, stream *model.Stream, det *model.Detection) error {
	owner, err := g.store.GetOwner(ctx, stream.OwnerID)
	if err != nil {
		return fmt.Errorf("could not get owner %s: %w", stream.OwnerID, err)
	}
	if owner.Topic == "" {
		return ErrNoTopic
	}

	n, m := 1, 1
	streams, err := g.store.GetStreamsByOwner(ctx, owner.ID)
	if err != nil {
		g.log.Warning("could not get owner streams", "owner", owner.ID, "error", err)
	} else {
		n, m = position(streams, stream.ID)
	}

	return g.publisher.Publish(ctx, owner.Topic, Subject(det.Species, n, m), Body(det, stream.URL))
}

// position returns the 1-based position of stream id among streams, which
// are ordered by creation, and the number of streams. The position
// defaults to 1 when id is not found.
func position(streams []model.Stream, id int64) (int, int) {
	for i := range streams {
		if streams[i].ID == id {
			return i + 1, len(streams)
		}
	}
	return 1, len(streams)
}

// Subject returns the notification subject for a species detected in the
// nth of an owner's m streams.
func Subject(species string, n, m int) string {
	if m <= 1 {
		return fmt.Sprintf("BirdWatch: %s detected in your stream!", species)
	}
	return fmt.Sprintf("BirdWatch: %s detected in your stream #%d of %d!", species, n, m)
}

// Body returns the notification body for det, seen in the stream at url.
func Body(det *model.Detection, url string) string {
	return fmt.Sprintf(
		"Bird detection alert!\n\n"+
			"A %s was detected in your stream! (Confidence: %.2f%%)\n"+
			"Stream: %s\n"+
			"Detected at: %s UTC\n\n"+
			"Log in to BirdWatch to view more details.\n",
		det.Species, det.Confidence, url, det.Recorded.UTC().Format("2006-01-02 15:04:05"),
	)
}
