//go:build linux

package device

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"
)

// Devices opens cameras, microphones and screens through mediadevices.
type Devices struct {
	selector *mediadevices.CodecSelector
}

func New(videoBitRate int) (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	if videoBitRate > 0 {
		vpxParams.BitRate = videoBitRate
	}
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	return &Devices{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// Codecs is what the peer connection factory must register so negotiated
// codecs match the encoders.
func (d *Devices) Codecs() CodecRegistrar { return d.selector }

func (d *Devices) GetUserMedia(ctx context.Context, c core.Constraints) (core.MediaStream, error) {
	if c.Audio == nil && c.Video == nil {
		return nil, fmt.Errorf("%w: nothing requested", domain.ErrConstraintsUnsatisfiable)
	}
	if err := requireDevices(c); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if c.Audio != nil {
		ac := *c.Audio
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {
			// The capture drivers expose no echo, noise or gain processing.
			log.Debug().Str("module", "adapters.device").
				Bool("echo_cancellation", ac.EchoCancellation).
				Bool("noise_suppression", ac.NoiseSuppression).
				Bool("auto_gain_control", ac.AutoGainControl).
				Msg("audio constraints")
		}
	}
	if c.Video != nil {
		vc := *c.Video
		constraints.Video = func(m *mediadevices.MediaTrackConstraints) {
			// Raw formats only; MJPEG nodes on some cameras break the VP8 encoder.
			m.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			if vc.Width > 0 {
				m.Width = prop.IntRanged{Max: vc.Width, Ideal: vc.Width}
			}
			if vc.Height > 0 {
				m.Height = prop.IntRanged{Max: vc.Height, Ideal: vc.Height}
			}
			if vc.FrameRate > 0 {
				m.FrameRate = prop.Float(vc.FrameRate)
			}
		}
	}

	return d.capture(ctx, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetUserMedia(constraints)
	})
}

func (d *Devices) GetDisplayMedia(ctx context.Context) (core.MediaStream, error) {
	constraints := mediadevices.MediaStreamConstraints{
		Codec: d.selector,
		Video: func(_ *mediadevices.MediaTrackConstraints) {},
	}
	return d.capture(ctx, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetDisplayMedia(constraints)
	})
}

type captureResult struct {
	ms  mediadevices.MediaStream
	err error
}

// capture runs a blocking driver call, giving up when ctx ends. A stream
// that arrives after that is closed.
func (d *Devices) capture(ctx context.Context, open func() (mediadevices.MediaStream, error)) (core.MediaStream, error) {
	done := make(chan captureResult, 1)
	go func() {
		ms, err := open()
		done <- captureResult{ms, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				for _, t := range r.ms.GetTracks() {
					_ = t.Close()
				}
			}
		}()
		return nil, fmt.Errorf("%w: %w", domain.ErrDeviceBusy, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, classify(r.err)
		}
		return wrapStream(r.ms), nil
	}
}

func wrapStream(ms mediadevices.MediaStream) *Stream {
	var tracks []core.MediaTrack
	for _, t := range ms.GetTracks() {
		tracks = append(tracks, newTrack(t))
	}
	return NewStream(uuid.NewString(), tracks...)
}

// requireDevices fails fast with device-not-found when no device of a
// requested kind is present.
func requireDevices(c core.Constraints) error {
	var audio, video bool
	for _, d := range mediadevices.EnumerateDevices() {
		switch d.Kind {
		case mediadevices.AudioInput:
			audio = true
		case mediadevices.VideoInput:
			video = true
		}
	}
	switch {
	case c.Audio != nil && !audio:
		return fmt.Errorf("%w: no microphone", domain.ErrDeviceNotFound)
	case c.Video != nil && !video:
		return fmt.Errorf("%w: no camera", domain.ErrDeviceNotFound)
	}
	return nil
}
