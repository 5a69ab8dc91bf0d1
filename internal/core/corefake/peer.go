package corefake

import (
	"errors"
	"io"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var ErrClosed = errors.New("peer closed")

// Peer records every call made on it.
type Peer struct {
	ID domain.ParticipantID

	mu          sync.Mutex
	tracks      []core.MediaTrack
	video       core.MediaTrack
	videoSender bool
	remote      *webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	offers      int
	keyFrames   []webrtc.SSRC
	onICE       func(webrtc.ICECandidateInit)
	onTrack     func(core.RemoteTrack)
	closed      bool

	ReplaceErr error
	OfferErr   error
}

func (p *Peer) AddLocalTrack(t core.MediaTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.tracks = append(p.tracks, t)
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		p.video, p.videoSender = t, true
	}
	return nil
}

func (p *Peer) ReplaceVideoTrack(t core.MediaTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ReplaceErr != nil {
		return p.ReplaceErr
	}
	p.video, p.videoSender = t, true
	return nil
}

func (p *Peer) VideoTrackID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return ""
	}
	return p.video.ID()
}

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OfferErr != nil {
		return webrtc.SessionDescription{}, p.OfferErr
	}
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-" + string(p.ID)}, nil
}

func (p *Peer) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &offer
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-" + string(p.ID)}, nil
}

func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &answer
	return nil
}

func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *Peer) OnTrack(fn func(core.RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *Peer) RequestKeyFrame(ssrc webrtc.SSRC) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyFrames = append(p.keyFrames, ssrc)
	return nil
}

func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *Peer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// EmitCandidate simulates a locally gathered candidate.
func (p *Peer) EmitCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// EmitTrack simulates a remote track arriving.
func (p *Peer) EmitTrack(t core.RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (p *Peer) Tracks() []core.MediaTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.MediaTrack(nil), p.tracks...)
}

// VideoTracks counts the tracks this peer currently sends as video.
func (p *Peer) VideoTracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return 0
	}
	return 1
}

func (p *Peer) Candidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

func (p *Peer) Remote() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *Peer) Offers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offers
}

func (p *Peer) KeyFrames() []webrtc.SSRC {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.SSRC(nil), p.keyFrames...)
}

// PeerFactory creates Peers and remembers all of them in creation order.
type PeerFactory struct {
	mu    sync.Mutex
	peers []*Peer
	Err   error
}

func (f *PeerFactory) NewPeer(id domain.ParticipantID) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p := &Peer{ID: id}
	f.peers = append(f.peers, p)
	return p, nil
}

// Peer returns the newest connection created for id.
func (f *PeerFactory) Peer(id domain.ParticipantID) *Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.peers) - 1; i >= 0; i-- {
		if f.peers[i].ID == id {
			return f.peers[i]
		}
	}
	return nil
}

func (f *PeerFactory) All() []*Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Peer(nil), f.peers...)
}

// RemoteTrack replays queued packets and returns io.EOF once closed.
type RemoteTrack struct {
	TrackID  string
	Stream   string
	Codec    webrtc.RTPCodecType
	SSRCVal  webrtc.SSRC
	packets  chan *rtp.Packet
	closeOne sync.Once
}

func NewRemoteTrack(id, stream string, kind webrtc.RTPCodecType, ssrc webrtc.SSRC) *RemoteTrack {
	return &RemoteTrack{TrackID: id, Stream: stream, Codec: kind, SSRCVal: ssrc, packets: make(chan *rtp.Packet, 64)}
}

func (t *RemoteTrack) ID() string                { return t.TrackID }
func (t *RemoteTrack) StreamID() string          { return t.Stream }
func (t *RemoteTrack) Kind() webrtc.RTPCodecType { return t.Codec }
func (t *RemoteTrack) SSRC() webrtc.SSRC         { return t.SSRCVal }

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-t.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

func (t *RemoteTrack) Push(pkt *rtp.Packet) { t.packets <- pkt }

func (t *RemoteTrack) Close() { t.closeOne.Do(func() { close(t.packets) }) }
