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

package gate

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausocean/birdwatch/capture"
	"github.com/ausocean/birdwatch/classify"
	"github.com/ausocean/birdwatch/model"
	"github.com/ausocean/birdwatch/store"
)

const ownerID = "0d8f0a4e-2b6c-4c55-9a55-6f0e3c1f7a21"

// memStore is an in-memory store.Store.
type memStore struct {
	mu         sync.Mutex
	streams    map[int64]model.Stream
	owners     map[string]model.Owner
	detections []model.Detection
	createErr  error
}

func newMemStore() *memStore {
	return &memStore{streams: map[int64]model.Stream{}, owners: map[string]model.Owner{}}
}

func (m *memStore) GetStream(ctx context.Context, id int64) (*model.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) UpdateStream(ctx context.Context, id int64, fn func(*model.Stream)) (*model.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	fn(&s)
	s.ID = id
	m.streams[id] = s
	return &s, nil
}

func (m *memStore) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (m *memStore) GetStreamsByOwner(ctx context.Context, id string) ([]model.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var streams []model.Stream
	for _, s := range m.streams {
		if s.OwnerID == id {
			streams = append(streams, s)
		}
	}
	model.SortByCreated(streams)
	return streams, nil
}

func (m *memStore) CreateDetection(ctx context.Context, d *model.Detection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.detections = append(m.detections, *d)
	return nil
}

func (m *memStore) GetLatestDetection(ctx context.Context, streamID int64) (*model.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dets []model.Detection
	for _, d := range m.detections {
		if d.StreamID == streamID {
			dets = append(dets, d)
		}
	}
	latest := model.Latest(dets)
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

type fakeUploader struct{ keys []string }

func (u *fakeUploader) Upload(ctx context.Context, key string, data []byte) (string, error) {
	u.keys = append(u.keys, key)
	return "https://thumbs.example/" + key, nil
}

type message struct{ topic, subject, body string }

type fakePublisher struct {
	sent []message
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, topic, subject, body string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, message{topic, subject, body})
	return nil
}

type fakeAnnouncer struct{ species []string }

func (a *fakeAnnouncer) Announce(ctx context.Context, species string) error {
	a.species = append(a.species, species)
	return nil
}

// testFrame returns a small JPEG frame captured at t.
func testFrame(t *testing.T, at time.Time) capture.Frame {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 48)), nil))
	return capture.Frame{Data: buf.Bytes(), Position: 5000, Captured: at}
}

// testGate returns a gate over a store holding one owner with a topic and
// stream 1, plus a clock that advances one second per call.
func testGate(t *testing.T, targets []string) (*Gate, *memStore, *fakePublisher, *fakeUploader) {
	t.Helper()
	ms := newMemStore()
	ms.owners[ownerID] = model.Owner{ID: ownerID, Email: "a@example.com", Topic: "arn:aws:sns:bw"}
	s := model.Stream{ID: 1, OwnerID: ownerID, URL: "https://youtube.com/live/x", Active: true, Notify: true, Cadence: 5}
	s.SetTargetSpecies(targets)
	ms.streams[1] = s

	clock := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	pub := &fakePublisher{}
	up := &fakeUploader{}
	return New(ms, up, pub, (*logging.TestLogger)(t), WithClock(now)), ms, pub, up
}

func verdict(labels ...classify.Label) classify.Verdict {
	return classify.NewInterpreter(nil).Interpret(labels)
}

func TestDecide(t *testing.T) {
	robin := classify.Verdict{Detected: true, Species: "Robin", Confidence: 95}
	tests := []struct {
		name    string
		v       classify.Verdict
		targets []string
		latest  *model.Detection
		want    Decision
	}{
		{name: "no detection", v: classify.Verdict{}, want: SkipNoDetection},
		{name: "no detection beats duplicate", v: classify.Verdict{Species: "Robin"}, latest: &model.Detection{Species: "Robin"}, want: SkipNoDetection},
		{name: "first detection", v: robin, want: Accept},
		{name: "duplicate", v: robin, latest: &model.Detection{Species: "Robin"}, want: SkipDuplicate},
		{name: "duplicate beats targeting", v: robin, targets: []string{"Eagle"}, latest: &model.Detection{Species: "Robin"}, want: SkipDuplicate},
		{name: "different species resets", v: robin, latest: &model.Detection{Species: "Eagle"}, want: Accept},
		{name: "not targeted", v: robin, targets: []string{"Eagle"}, want: SkipNotTargeted},
		{name: "targeted case insensitive", v: robin, targets: []string{"robin"}, want: Accept},
		{name: "empty targets match any", v: robin, targets: []string{}, want: Accept},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, Decide(test.v, test.targets, test.latest))
		})
	}
}

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		enabled    bool
		confidence float64
		specific   bool
		want       bool
	}{
		{enabled: true, confidence: 90, want: false},
		{enabled: true, confidence: 90.01, want: true},
		{enabled: true, confidence: 50, specific: true, want: true},
		{enabled: false, confidence: 99, specific: true, want: false},
		{enabled: true, confidence: 89, want: false},
	}
	for i, test := range tests {
		v := classify.Verdict{Detected: true, Species: "Bird", Confidence: test.confidence, HasSpecific: test.specific}
		assert.Equal(t, test.want, ShouldNotify(test.enabled, v), "test %d", i)
	}
}

// TestRobinRobinEagle checks that a repeated species is skipped and that a
// low confidence specific species is still notified.
func TestRobinRobinEagle(t *testing.T) {
	ctx := context.Background()
	g, ms, pub, up := testGate(t, nil)
	ann := &fakeAnnouncer{}
	g.announcer = ann
	s, err := ms.GetStream(ctx, 1)
	require.NoError(t, err)
	at := time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC)

	out, err := g.Process(ctx, s, testFrame(t, at), verdict(classify.Label{Name: "Robin", Confidence: 95}))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, Accept, out.Decision)
	assert.Equal(t, Notified, out.Notify)

	out, err = g.Process(ctx, s, testFrame(t, at.Add(5*time.Second)), verdict(classify.Label{Name: "Robin", Confidence: 96}))
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, SkipDuplicate, out.Decision)

	out, err = g.Process(ctx, s, testFrame(t, at.Add(10*time.Second)), verdict(classify.Label{Name: "Eagle", Confidence: 70}))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, Notified, out.Notify)

	require.Len(t, ms.detections, 2)
	assert.Equal(t, "Robin", ms.detections[0].Species)
	assert.Equal(t, "Eagle", ms.detections[1].Species)
	assert.Equal(t, "https://thumbs.example/thumbnails/1/20260304050000.jpg", ms.detections[0].Thumbnail)
	assert.Equal(t, []string{"thumbnails/1/20260304050000.jpg", "thumbnails/1/20260304050010.jpg"}, up.keys)
	assert.Equal(t, []string{"Robin", "Eagle"}, ann.species)

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "arn:aws:sns:bw", pub.sent[0].topic)
	assert.Equal(t, "BirdWatch: Robin detected in your stream!", pub.sent[0].subject)
	assert.Contains(t, pub.sent[1].body, "(Confidence: 70.00%)")
	assert.Contains(t, pub.sent[1].body, "https://youtube.com/live/x")
}

// TestCardinalTarget checks that only targeted species are recorded.
func TestCardinalTarget(t *testing.T) {
	ctx := context.Background()
	g, ms, pub, _ := testGate(t, []string{"Cardinal"})
	s, err := ms.GetStream(ctx, 1)
	require.NoError(t, err)
	at := time.Now()

	// A specific species well above the notify threshold is still skipped.
	out, err := g.Process(ctx, s, testFrame(t, at), verdict(classify.Label{Name: "Robin", Confidence: 99}))
	require.NoError(t, err)
	assert.Equal(t, SkipNotTargeted, out.Decision)
	assert.Empty(t, ms.detections)
	assert.Empty(t, pub.sent)

	out, err = g.Process(ctx, s, testFrame(t, at), verdict(classify.Label{Name: "Cardinal", Confidence: 60}))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Len(t, ms.detections, 1)
	assert.Len(t, pub.sent, 1)
}

func TestNotifyThresholdBoundary(t *testing.T) {
	ctx := context.Background()
	g, ms, pub, _ := testGate(t, nil)
	s, err := ms.GetStream(ctx, 1)
	require.NoError(t, err)

	out, err := g.Process(ctx, s, testFrame(t, time.Now()), verdict(classify.Label{Name: "Bird", Confidence: 90}))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, NotNotified, out.Notify)
	assert.Empty(t, pub.sent)

	// Disabled notifications are never sent.
	s.Notify = false
	out, err = g.Process(ctx, s, testFrame(t, time.Now()), verdict(classify.Label{Name: "Robin", Confidence: 99}))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, NotNotified, out.Notify)
	assert.Empty(t, pub.sent)
}

func TestNoTopic(t *testing.T) {
	ctx := context.Background()
	g, ms, pub, _ := testGate(t, nil)
	ms.owners[ownerID] = model.Owner{ID: ownerID, Email: "a@example.com"}
	s, err := ms.GetStream(ctx, 1)
	require.NoError(t, err)

	out, err := g.Process(ctx, s, testFrame(t, time.Now()), verdict(classify.Label{Name: "Robin", Confidence: 95}))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, NoTopic, out.Notify)
	assert.Empty(t, pub.sent)
	assert.Len(t, ms.detections, 1)
}

func TestNotifyFailed(t *testing.T) {
	ctx := context.Background()
	g, ms, pub, _ := testGate(t, nil)
	pub.err = errors.New("throttled")
	s, err := ms.GetStream(ctx, 1)
	require.NoError(t, err)

	out, err := g.Process(ctx, s, testFrame(t, time.Now()), verdict(classify.Label{Name: "Robin", Confidence: 95}))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, NotifyFailed, out.Notify)
}

func TestPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	g, ms, pub, _ := testGate(t, nil)
	ms.createErr = errors.New("disk full")
	s, err := ms.GetStream(ctx, 1)
	require.NoError(t, err)

	_, err = g.Process(ctx, s, testFrame(t, time.Now()), verdict(classify.Label{Name: "Robin", Confidence: 95}))
	assert.Error(t, err)
	assert.Empty(t, pub.sent)
}

func TestMalformedTargets(t *testing.T) {
	ctx := context.Background()
	g, ms, _, _ := testGate(t, nil)
	s, err := ms.GetStream(ctx, 1)
	require.NoError(t, err)
	s.Targets = "[not json"

	out, err := g.Process(ctx, s, testFrame(t, time.Now()), verdict(classify.Label{Name: "Robin", Confidence: 95}))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
}

func TestSubjectPosition(t *testing.T) {
	ctx := context.Background()
	g, ms, pub, _ := testGate(t, nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ms.streams[2] = model.Stream{ID: 2, OwnerID: ownerID, Cadence: 5, Created: base}
	s1 := ms.streams[1]
	s1.Created = base.Add(time.Hour)
	ms.streams[1] = s1
	ms.streams[3] = model.Stream{ID: 3, OwnerID: ownerID, Cadence: 5, Created: base.Add(2 * time.Hour)}

	s, err := ms.GetStream(ctx, 1)
	require.NoError(t, err)
	_, err = g.Process(ctx, s, testFrame(t, time.Now()), verdict(classify.Label{Name: "Robin", Confidence: 95}))
	require.NoError(t, err)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "BirdWatch: Robin detected in your stream #2 of 3!", pub.sent[0].subject)
}

func TestBody(t *testing.T) {
	det := &model.Detection{Species: "Eagle", Confidence: 87.456, Recorded: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	body := Body(det, "https://example.com/live")
	for _, want := range []string{"Eagle", "87.46%", "https://example.com/live", "2026-01-02 03:04:05 UTC"} {
		assert.True(t, strings.Contains(body, want), "body missing %q", want)
	}
}
