package core

import (
	"context"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaTrack is one local capture track.
type MediaTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	// SetEnabled mutes the track in place; a disabled track keeps its sender.
	SetEnabled(bool)
	// Stop releases the capture device. Stopping twice is a no-op.
	Stop()
	// OnEnded fires once when the source ends on its own (device unplugged,
	// screen capture closed by the OS).
	OnEnded(func())
	// TrackLocal is what gets attached to a peer connection.
	TrackLocal() webrtc.TrackLocal
}

// MediaStream groups the tracks returned by one capture request.
type MediaStream interface {
	domain.Stream
	Tracks() []MediaTrack
	AudioTracks() []MediaTrack
	VideoTracks() []MediaTrack
	// Stop stops every track.
	Stop()
}

type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

type VideoConstraints struct {
	Width     int
	Height    int
	FrameRate float64
}

// Constraints describes a capture request. A nil Video means audio only.
type Constraints struct {
	Audio *AudioConstraints
	Video *VideoConstraints
}

// MediaDevices is the capture backend.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (MediaStream, error)
	GetDisplayMedia(ctx context.Context) (MediaStream, error)
}

// FirstTrack returns the first track of a slice or nil.
func FirstTrack(tracks []MediaTrack) MediaTrack {
	if len(tracks) == 0 {
		return nil
	}
	return tracks[0]
}
