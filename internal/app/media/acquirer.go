// Package media requests local capture with an audio-only fallback.
package media

import (
	"context"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Audio   core.AudioConstraints
	Video   core.VideoConstraints
	Timeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Audio:   core.AudioConstraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true},
		Video:   core.VideoConstraints{Width: 1280, Height: 720, FrameRate: 30},
		Timeout: 10 * time.Second,
	}
}

// Result of a successful capture. VideoFallback is set when video was asked
// for but only audio could be opened; Warning then carries the user message.
type Result struct {
	Stream        core.MediaStream
	VideoFallback bool
	Warning       string
}

type Acquirer struct {
	devices core.MediaDevices
	opts    Options
}

func NewAcquirer(devices core.MediaDevices, opts Options) *Acquirer {
	return &Acquirer{devices: devices, opts: opts}
}

// Acquire opens the microphone and, when wantVideo, the camera. Callers must
// release previously held streams first.
func (a *Acquirer) Acquire(ctx context.Context, wantVideo bool) (Result, error) {
	audio := a.opts.Audio
	if !wantVideo {
		ms, err := a.get(ctx, core.Constraints{Audio: &audio})
		if err != nil {
			return Result{}, Classify(err)
		}
		return Result{Stream: ms}, nil
	}

	video := a.opts.Video
	ms, err := a.get(ctx, core.Constraints{Audio: &audio, Video: &video})
	if err == nil && len(ms.VideoTracks()) > 0 {
		return Result{Stream: ms}, nil
	}
	if err == nil {
		// Opened but without a camera track.
		return Result{Stream: ms, VideoFallback: true, Warning: "Camera unavailable, continuing with audio only."}, nil
	}

	camErr := Classify(err)
	log.Warn().Str("module", "app.media").Err(err).Str("kind", string(camErr.Kind)).Msg("camera capture failed, retrying audio only")

	ms, err = a.get(ctx, core.Constraints{Audio: &audio})
	if err != nil {
		return Result{}, Classify(err)
	}
	return Result{
		Stream:        ms,
		VideoFallback: true,
		Warning:       camErr.UserMessage() + " Continuing with audio only.",
	}, nil
}

// AcquireDisplay captures the screen for sharing.
func (a *Acquirer) AcquireDisplay(ctx context.Context) (core.MediaStream, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	ms, err := a.devices.GetDisplayMedia(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	if len(ms.VideoTracks()) == 0 {
		ms.Stop()
		return nil, &Error{Kind: KindDeviceNotFound}
	}
	return ms, nil
}

func (a *Acquirer) get(ctx context.Context, c core.Constraints) (core.MediaStream, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	ms, err := a.devices.GetUserMedia(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(ms.AudioTracks()) == 0 {
		ms.Stop()
		return nil, &Error{Kind: KindDeviceNotFound}
	}
	return ms, nil
}

func (a *Acquirer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.opts.Timeout)
}
