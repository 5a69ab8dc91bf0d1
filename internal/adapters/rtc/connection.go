// Package rtc implements peer connections on pion/webrtc.
package rtc

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("peer connection closed")

type WebRTCConnection struct {
	pc *webrtc.PeerConnection
	id domain.ParticipantID

	mu           sync.Mutex
	onICE        func(webrtc.ICECandidateInit)
	onTrack      func(core.RemoteTrack)
	videoSender  *webrtc.RTPSender
	videoTrackID string

	closed atomic.Bool
}

func newConnection(pc *webrtc.PeerConnection, id domain.ParticipantID) *WebRTCConnection {
	c := &WebRTCConnection{pc: pc, id: id}
	c.start()
	return c
}

func (c *WebRTCConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("participant", c.id.String()).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		ev := log.Info()
		if s == webrtc.PeerConnectionStateFailed {
			ev = log.Warn()
		}
		ev.Str("module", "adapters.rtc").Str("participant", c.id.String()).Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "adapters.rtc").
			Str("participant", c.id.String()).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})
}

func (c *WebRTCConnection) AddLocalTrack(t core.MediaTrack) error {
	if c.closed.Load() {
		return ErrClosed
	}
	sender, err := c.pc.AddTrack(t.TrackLocal())
	if err != nil {
		return err
	}
	go drainRTCP(sender)
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		c.mu.Lock()
		c.videoSender, c.videoTrackID = sender, t.ID()
		c.mu.Unlock()
	}
	return nil
}

func (c *WebRTCConnection) ReplaceVideoTrack(t core.MediaTrack) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.videoSender == nil {
		if t == nil {
			return nil
		}
		sender, err := c.pc.AddTrack(t.TrackLocal())
		if err != nil {
			return err
		}
		go drainRTCP(sender)
		c.videoSender, c.videoTrackID = sender, t.ID()
		return nil
	}

	var local webrtc.TrackLocal
	id := ""
	if t != nil {
		local, id = t.TrackLocal(), t.ID()
	}
	if err := c.videoSender.ReplaceTrack(local); err != nil {
		return err
	}
	c.videoTrackID = id
	return nil
}

func (c *WebRTCConnection) VideoTrackID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoTrackID
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks. pion invokes it
// on its own goroutine.
func (c *WebRTCConnection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) RequestKeyFrame(ssrc webrtc.SSRC) error {
	return c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}})
}

// Close detaches every outbound track, then closes the connection.
func (c *WebRTCConnection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	for _, s := range c.pc.GetSenders() {
		if s.Track() == nil {
			continue
		}
		if err := s.ReplaceTrack(nil); err != nil {
			log.Debug().Err(err).Str("module", "adapters.rtc").Str("participant", c.id.String()).Msg("detach sender")
		}
	}
	c.mu.Lock()
	c.videoSender, c.videoTrackID = nil, ""
	c.mu.Unlock()
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Str("participant", c.id.String()).Msg("close error")
	} else {
		log.Info().Str("module", "adapters.rtc").Str("participant", c.id.String()).Msg("closed")
	}
}

func (c *WebRTCConnection) IsClosed() bool { return c.closed.Load() }

// drainRTCP keeps interceptors fed until the sender stops.
func drainRTCP(s *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.Read(buf); err != nil {
			return
		}
	}
}
