package orch

import (
	"context"
	"time"

	"github.com/dkeye/VoiceClient/internal/app/store"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ToggleAudio mutes or unmutes the microphone in place. It returns false
// when there is no local audio track.
func (o *Orchestrator) ToggleAudio() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	ms := o.store.LocalMedia()
	if ms == nil {
		return false
	}
	mic := core.FirstTrack(ms.AudioTracks())
	if mic == nil {
		return false
	}
	enabled := !mic.Enabled()
	mic.SetEnabled(enabled)

	o.store.Mutate(func(s *store.Session) {
		s.AudioEnabled = enabled
		s.Update(s.CurrentUserID, func(p *domain.Participant) { p.AudioEnabled = enabled })
	})
	if err := o.bridge.ToggleAudio(enabled); err != nil {
		log.Debug().Str("module", "app.orch").Err(err).Msg("toggle-audio not sent")
	}
	return true
}

// ToggleVideo flips the camera. Unless a screen is being shared, every peer's
// video sender is switched between the camera and nothing, and the call
// returns after all peers were renegotiated.
func (o *Orchestrator) ToggleVideo(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	ms := o.store.LocalMedia()
	if ms == nil {
		return false
	}
	cam := core.FirstTrack(ms.VideoTracks())
	if cam == nil {
		return false
	}
	enabled := !cam.Enabled()
	cam.SetEnabled(enabled)

	// While sharing, the screen stays on the video sender; the camera
	// choice applies when the share stops.
	if o.store.Snapshot().ScreenSharing {
		return true
	}
	var next core.MediaTrack
	if enabled {
		next = cam
	}
	o.renegotiate(ctx, next)
	o.store.Mutate(func(s *store.Session) {
		s.VideoEnabled = enabled
		s.Update(s.CurrentUserID, func(p *domain.Participant) { p.VideoEnabled = enabled })
	})
	if err := o.bridge.ToggleVideo(enabled); err != nil {
		log.Debug().Str("module", "app.orch").Err(err).Msg("toggle-video not sent")
	}
	return true
}

// ToggleAudioOutput switches between speaker and microphone output. It is
// local only and returns false outside a call.
func (o *Orchestrator) ToggleAudioOutput() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.Snapshot().Status == domain.StatusIdle {
		return false
	}
	o.store.Mutate(func(s *store.Session) {
		if s.AudioOutput == domain.OutputSpeaker {
			s.AudioOutput = domain.OutputMicrophone
		} else {
			s.AudioOutput = domain.OutputSpeaker
		}
	})
	return true
}

// StartScreenShare captures the screen and sends it as video to every peer.
func (o *Orchestrator) StartScreenShare(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Snapshot()
	if !st.InCall || st.Status == domain.StatusIdle {
		return domain.ErrNotInCall
	}
	if st.ScreenSharing {
		return domain.ErrAlreadySharing
	}

	ms, err := o.media.AcquireDisplay(ctx)
	if err != nil {
		o.mediaFailed(err)
		return err
	}
	screen := core.FirstTrack(ms.VideoTracks())
	screen.OnEnded(func() { go o.screenEnded(ms) })

	o.renegotiate(ctx, screen)
	o.store.Mutate(func(s *store.Session) {
		s.SetScreenStream(ms)
		s.ScreenSharing = true
		s.VideoEnabled = true
		s.Update(s.CurrentUserID, func(p *domain.Participant) {
			p.ScreenSharing = true
			p.VideoEnabled = true
		})
	})
	if err := o.bridge.StartScreenShare(); err != nil {
		log.Debug().Str("module", "app.orch").Err(err).Msg("start-screen-share not sent")
	}
	l := o.logger(st.CallID)
	l.Info().Msg("screen share started")
	return nil
}

// StopScreenShare restores the camera, or no video when the camera is off.
func (o *Orchestrator) StopScreenShare(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopScreenShareLocked(ctx)
}

func (o *Orchestrator) stopScreenShareLocked(ctx context.Context) error {
	st := o.store.Snapshot()
	if !st.ScreenSharing {
		return domain.ErrNotSharing
	}
	cam := o.enabledCamera()
	o.renegotiate(ctx, cam)

	video := cam != nil
	o.store.Mutate(func(s *store.Session) {
		s.SetScreenStream(nil)
		s.ScreenSharing = false
		s.VideoEnabled = video
		s.Update(s.CurrentUserID, func(p *domain.Participant) {
			p.ScreenSharing = false
			p.VideoEnabled = video
		})
	})
	if err := o.bridge.StopScreenShare(); err != nil {
		log.Debug().Str("module", "app.orch").Err(err).Msg("stop-screen-share not sent")
	}
	if err := o.bridge.ToggleVideo(video); err != nil {
		log.Debug().Str("module", "app.orch").Err(err).Msg("toggle-video not sent")
	}
	l := o.logger(st.CallID)
	l.Info().Bool("camera", video).Msg("screen share stopped")
	return nil
}

// screenEnded handles a capture closed outside the app.
func (o *Orchestrator) screenEnded(ms core.MediaStream) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.ScreenMedia() != ms {
		return
	}
	if err := o.stopScreenShareLocked(context.Background()); err != nil {
		log.Debug().Str("module", "app.orch").Err(err).Msg("screen share stop after capture ended")
	}
}

// renegotiate replaces the video sender on every peer and waits for the
// whole batch. Per-peer failures are already logged by the pool.
func (o *Orchestrator) renegotiate(ctx context.Context, track core.MediaTrack) {
	if o.pool.Len() == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, o.cfg.RenegotiateTimeout)
	defer cancel()
	if err := o.pool.ReplaceVideoTrack(rctx, track, o.sendOffer); err != nil {
		log.Warn().Str("module", "app.orch").Err(err).Msg("renegotiation incomplete")
	}
}

// onRemoteTrack runs on a connection goroutine when media from id arrives.
func (o *Orchestrator) onRemoteTrack(id domain.ParticipantID, track core.RemoteTrack) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.store.Snapshot().Status == domain.StatusIdle || !o.pool.Has(id) {
		log.Debug().Str("module", "app.orch").Str("participant", id.String()).Msg("track for closed connection ignored")
		return
	}
	o.relays.Start(o.lifecycle, id, track)
	stream := o.relays.Stream(id)

	o.store.Mutate(func(s *store.Session) {
		if s.Update(id, func(p *domain.Participant) { p.Stream = stream }) {
			return
		}
		s.Put(domain.Participant{
			UserID:       id,
			Name:         domain.UnknownParticipantName,
			AudioEnabled: true,
			VideoEnabled: track.Kind() == webrtc.RTPCodecTypeVideo,
			Stream:       stream,
			JoinedAt:     time.Now(),
		})
	})
	log.Info().Str("module", "app.orch").Str("participant", id.String()).Str("kind", track.Kind().String()).Msg("remote track attached")
}
