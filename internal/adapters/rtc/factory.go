package rtc

import (
	"fmt"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// CodecRegistrar registers the codecs local capture can encode.
// *mediadevices.CodecSelector satisfies it.
type CodecRegistrar interface {
	Populate(*webrtc.MediaEngine)
}

type Options struct {
	// Codecs defaults to pion's default codec set when nil.
	Codecs              CodecRegistrar
	ICEServers          []webrtc.ICEServer
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Factory builds peer connections from one shared pion API.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(opts Options) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if opts.Codecs != nil {
		opts.Codecs.Populate(m)
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if opts.DisconnectedTimeout <= 0 {
		opts.DisconnectedTimeout = 10 * time.Second
	}
	if opts.FailedTimeout <= 0 {
		opts.FailedTimeout = 30 * time.Second
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = 2 * time.Second
	}
	se.SetICETimeouts(opts.DisconnectedTimeout, opts.FailedTimeout, opts.KeepAliveInterval)

	cfg := DefaultWebRTCConfig()
	if len(opts.ICEServers) > 0 {
		cfg.ICEServers = opts.ICEServers
	}
	return &Factory{
		api: webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se)),
		cfg: cfg,
	}, nil
}

func (f *Factory) NewPeer(id domain.ParticipantID) (core.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	// Receive slots so the offer always carries audio and video m-lines;
	// AddTrack later reuses them for sending.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return newConnection(pc, id), nil
}
