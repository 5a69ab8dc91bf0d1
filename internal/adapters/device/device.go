// Package device captures local media with pion/mediadevices.
package device

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
)

// CodecRegistrar registers the encoders capture uses on a media engine.
type CodecRegistrar interface {
	Populate(*webrtc.MediaEngine)
}

// Stream is a captured set of tracks.
type Stream struct {
	id     string
	tracks []core.MediaTrack
}

func NewStream(id string, tracks ...core.MediaTrack) *Stream {
	return &Stream{id: id, tracks: tracks}
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

func (s *Stream) ofKind(k webrtc.RTPCodecType) []core.MediaTrack {
	var out []core.MediaTrack
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// classify wraps driver errors with the matching domain media sentinel.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM),
		strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	case errors.Is(err, syscall.EBUSY), strings.Contains(msg, "busy"):
		return fmt.Errorf("%w: %w", domain.ErrDeviceBusy, err)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), strings.Contains(msg, "not found"),
		strings.Contains(msg, "no such device"):
		return fmt.Errorf("%w: %w", domain.ErrDeviceNotFound, err)
	case strings.Contains(msg, "failed to find the best driver"), strings.Contains(msg, "constraint"):
		return fmt.Errorf("%w: %w", domain.ErrConstraintsUnsatisfiable, err)
	}
	return err
}
