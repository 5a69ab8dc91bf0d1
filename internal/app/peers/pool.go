// Package peers keeps one peer connection per remote participant.
package peers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var (
	ErrNoPeer         = errors.New("no peer connection for participant")
	ErrCandidateFlood = errors.New("too many queued ice candidates")
)

// MaxPendingCandidates bounds the queue kept for a participant that has no
// usable connection yet.
const MaxPendingCandidates = 64

type (
	CandidateFunc func(id domain.ParticipantID, c webrtc.ICECandidateInit)
	TrackFunc     func(id domain.ParticipantID, t core.RemoteTrack)
	// OfferFunc delivers a renegotiation offer to one participant.
	OfferFunc func(ctx context.Context, id domain.ParticipantID, offer webrtc.SessionDescription) error
)

type Hooks struct {
	OnCandidate CandidateFunc
	OnTrack     TrackFunc
}

type entry struct {
	pc        core.PeerConnection
	remoteSet bool
}

type Pool struct {
	factory core.PeerFactory
	hooks   Hooks

	mu      sync.Mutex
	peers   map[domain.ParticipantID]*entry
	pending map[domain.ParticipantID][]webrtc.ICECandidateInit
}

func New(factory core.PeerFactory, hooks Hooks) *Pool {
	return &Pool{
		factory: factory,
		hooks:   hooks,
		peers:   make(map[domain.ParticipantID]*entry),
		pending: make(map[domain.ParticipantID][]webrtc.ICECandidateInit),
	}
}

// Ensure returns the connection for id, creating it with tracks attached
// when missing. created reports whether a new connection was made.
func (p *Pool) Ensure(id domain.ParticipantID, tracks []core.MediaTrack) (pc core.PeerConnection, created bool, err error) {
	id = domain.CanonicalID(id)
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.peers[id]; ok && !e.pc.IsClosed() {
		return e.pc, false, nil
	}

	pc, err = p.factory.NewPeer(id)
	if err != nil {
		return nil, false, fmt.Errorf("new peer %s: %w", id, err)
	}
	for _, t := range tracks {
		if t == nil {
			continue
		}
		if err := pc.AddLocalTrack(t); err != nil {
			pc.Close()
			return nil, false, fmt.Errorf("add %s track to %s: %w", t.Kind(), id, err)
		}
	}

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if p.hooks.OnCandidate != nil {
			p.hooks.OnCandidate(id, c)
		}
	})
	pc.OnTrack(func(t core.RemoteTrack) {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			if err := pc.RequestKeyFrame(t.SSRC()); err != nil {
				log.Debug().Str("module", "app.peers").Str("participant", id.String()).Err(err).Msg("key frame request failed")
			}
		}
		if p.hooks.OnTrack != nil {
			p.hooks.OnTrack(id, t)
		}
	})

	p.peers[id] = &entry{pc: pc}
	log.Info().Str("module", "app.peers").Str("participant", id.String()).Int("tracks", len(tracks)).Msg("peer connection created")
	return pc, true, nil
}

func (p *Pool) Get(id domain.ParticipantID) (core.PeerConnection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.peers[domain.CanonicalID(id)]
	if !ok {
		return nil, false
	}
	return e.pc, true
}

func (p *Pool) Has(id domain.ParticipantID) bool {
	_, ok := p.Get(id)
	return ok
}

func (p *Pool) IDs() []domain.ParticipantID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ParticipantID, 0, len(p.peers))
	for id := range p.peers {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// AddCandidate applies c now if the connection for id has a remote
// description, otherwise queues it until one is applied. Candidates past
// MaxPendingCandidates are rejected.
func (p *Pool) AddCandidate(id domain.ParticipantID, c webrtc.ICECandidateInit) error {
	id = domain.CanonicalID(id)
	p.mu.Lock()
	e, ok := p.peers[id]
	if !ok || !e.remoteSet {
		if len(p.pending[id]) >= MaxPendingCandidates {
			p.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrCandidateFlood, id)
		}
		p.pending[id] = append(p.pending[id], c)
		n := len(p.pending[id])
		p.mu.Unlock()
		log.Debug().Str("module", "app.peers").Str("participant", id.String()).Int("queued", n).Msg("ice candidate queued")
		return nil
	}
	p.mu.Unlock()
	return e.pc.AddICECandidate(c)
}

// Pending returns the number of queued candidates for id.
func (p *Pool) Pending(id domain.ParticipantID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending[domain.CanonicalID(id)])
}

// CreateOffer creates and applies a local offer on the connection for id.
func (p *Pool) CreateOffer(id domain.ParticipantID) (webrtc.SessionDescription, error) {
	pc, ok := p.Get(id)
	if !ok {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s", ErrNoPeer, id)
	}
	return pc.CreateOffer()
}

// ApplyOffer sets a remote offer, flushes queued candidates and returns the answer.
func (p *Pool) ApplyOffer(id domain.ParticipantID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	pc, ok := p.Get(id)
	if !ok {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s", ErrNoPeer, id)
	}
	answer, err := pc.ApplyOffer(offer)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	p.remoteApplied(domain.CanonicalID(id))
	return answer, nil
}

// ApplyAnswer sets a remote answer and flushes queued candidates.
func (p *Pool) ApplyAnswer(id domain.ParticipantID, answer webrtc.SessionDescription) error {
	pc, ok := p.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPeer, id)
	}
	if err := pc.ApplyAnswer(answer); err != nil {
		return err
	}
	p.remoteApplied(domain.CanonicalID(id))
	return nil
}

func (p *Pool) remoteApplied(id domain.ParticipantID) {
	p.mu.Lock()
	e, ok := p.peers[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	e.remoteSet = true
	queued := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	for _, c := range queued {
		if err := e.pc.AddICECandidate(c); err != nil {
			log.Warn().Str("module", "app.peers").Str("participant", id.String()).Err(err).Msg("queued ice candidate rejected")
		}
	}
	if len(queued) > 0 {
		log.Debug().Str("module", "app.peers").Str("participant", id.String()).Int("flushed", len(queued)).Msg("ice candidates flushed")
	}
}

// Close closes and forgets the connection for id together with its queue.
func (p *Pool) Close(id domain.ParticipantID) bool {
	id = domain.CanonicalID(id)
	p.mu.Lock()
	e, ok := p.peers[id]
	delete(p.peers, id)
	delete(p.pending, id)
	p.mu.Unlock()
	if !ok {
		return false
	}
	e.pc.Close()
	log.Info().Str("module", "app.peers").Str("participant", id.String()).Msg("peer connection closed")
	return true
}

// CloseAll closes every connection and drops all queued candidates.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	peers := p.peers
	p.peers = make(map[domain.ParticipantID]*entry)
	p.pending = make(map[domain.ParticipantID][]webrtc.ICECandidateInit)
	p.mu.Unlock()
	for _, e := range peers {
		e.pc.Close()
	}
	if len(peers) > 0 {
		log.Info().Str("module", "app.peers").Int("count", len(peers)).Msg("all peer connections closed")
	}
}

// ReplaceVideoTrack swaps the outbound video track on every connection and
// sends each peer a fresh offer. A nil track clears the video sender. Peers
// are handled concurrently and the call returns once all of them finished;
// failures stay isolated to the failing peer and are returned joined.
func (p *Pool) ReplaceVideoTrack(ctx context.Context, track core.MediaTrack, send OfferFunc) error {
	p.mu.Lock()
	targets := make(map[domain.ParticipantID]core.PeerConnection, len(p.peers))
	for id, e := range p.peers {
		targets[id] = e.pc
	}
	p.mu.Unlock()

	trackID := ""
	if track != nil {
		trackID = track.ID()
	}

	wg := pool.New().WithErrors().WithContext(ctx)
	for id, pc := range targets {
		wg.Go(func(ctx context.Context) error {
			logger := log.With().Str("module", "app.peers").Str("participant", id.String()).Str("track", trackID).Logger()
			if err := pc.ReplaceVideoTrack(track); err != nil {
				logger.Warn().Err(err).Msg("replace video track failed")
				return fmt.Errorf("%s: replace: %w", id, err)
			}
			offer, err := pc.CreateOffer()
			if err != nil {
				logger.Warn().Err(err).Msg("renegotiation offer failed")
				return fmt.Errorf("%s: offer: %w", id, err)
			}
			if send != nil {
				if err := send(ctx, id, offer); err != nil {
					logger.Warn().Err(err).Msg("renegotiation offer not delivered")
					return fmt.Errorf("%s: send: %w", id, err)
				}
			}
			logger.Debug().Msg("video track replaced")
			return nil
		})
	}
	return wg.Wait()
}

// VideoTrackIDs reports the outbound video track of every connection.
func (p *Pool) VideoTrackIDs() map[domain.ParticipantID]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[domain.ParticipantID]string, len(p.peers))
	for id, e := range p.peers {
		out[id] = e.pc.VideoTrackID()
	}
	return out
}
