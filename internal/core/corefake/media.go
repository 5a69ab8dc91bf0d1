// Package corefake provides in-memory collaborators for tests.
package corefake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

type Track struct {
	id      string
	kind    webrtc.RTPCodecType
	enabled atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	onEnded func()
}

func NewTrack(kind webrtc.RTPCodecType) *Track {
	t := &Track{id: kind.String() + "-" + uuid.NewString(), kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string                    { return t.id }
func (t *Track) Kind() webrtc.RTPCodecType     { return t.kind }
func (t *Track) Enabled() bool                 { return t.enabled.Load() }
func (t *Track) SetEnabled(v bool)             { t.enabled.Store(v) }
func (t *Track) Stop()                         { t.stopped.Store(true) }
func (t *Track) Stopped() bool                 { return t.stopped.Load() }
func (t *Track) TrackLocal() webrtc.TrackLocal { return nil }

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// End simulates the source going away on its own.
func (t *Track) End() {
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	t.stopped.Store(true)
	if fn != nil {
		fn()
	}
}

type Stream struct {
	id     string
	tracks []core.MediaTrack
}

func NewStream(tracks ...core.MediaTrack) *Stream {
	return &Stream{id: uuid.NewString(), tracks: tracks}
}

func (s *Stream) ID() string                     { return s.id }
func (s *Stream) Tracks() []core.MediaTrack      { return s.tracks }
func (s *Stream) AudioTracks() []core.MediaTrack { return s.ofKind(webrtc.RTPCodecTypeAudio) }
func (s *Stream) VideoTracks() []core.MediaTrack { return s.ofKind(webrtc.RTPCodecTypeVideo) }

func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Stopped reports whether every track was stopped.
func (s *Stream) Stopped() bool {
	for _, t := range s.tracks {
		if ft, ok := t.(*Track); ok && !ft.Stopped() {
			return false
		}
	}
	return true
}

func (s *Stream) ofKind(k webrtc.RTPCodecType) []core.MediaTrack {
	var out []core.MediaTrack
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// Devices hands out fake capture streams. Error fields make the matching
// request fail; Delay holds every user media request that long.
type Devices struct {
	mu         sync.Mutex
	AudioErr   error
	VideoErr   error
	DisplayErr error
	Delay      time.Duration

	Requests []core.Constraints
	Streams  []*Stream
	Displays []*Stream
}

func (d *Devices) GetUserMedia(ctx context.Context, c core.Constraints) (core.MediaStream, error) {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Requests = append(d.Requests, c)
	if c.Video != nil && d.VideoErr != nil {
		return nil, d.VideoErr
	}
	if c.Audio != nil && d.AudioErr != nil {
		return nil, d.AudioErr
	}
	var tracks []core.MediaTrack
	if c.Audio != nil {
		tracks = append(tracks, NewTrack(webrtc.RTPCodecTypeAudio))
	}
	if c.Video != nil {
		tracks = append(tracks, NewTrack(webrtc.RTPCodecTypeVideo))
	}
	s := NewStream(tracks...)
	d.Streams = append(d.Streams, s)
	return s, nil
}

func (d *Devices) GetDisplayMedia(context.Context) (core.MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DisplayErr != nil {
		return nil, d.DisplayErr
	}
	s := NewStream(NewTrack(webrtc.RTPCodecTypeVideo))
	d.Displays = append(d.Displays, s)
	return s, nil
}

func (d *Devices) LastStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Streams) == 0 {
		return nil
	}
	return d.Streams[len(d.Streams)-1]
}

func (d *Devices) LastDisplay() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Displays) == 0 {
		return nil
	}
	return d.Displays[len(d.Displays)-1]
}
