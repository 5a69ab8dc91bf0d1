package relay

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	mu     sync.RWMutex
	relays map[domain.ParticipantID]map[string]*Relay
}

func NewManager() *Manager {
	return &Manager{relays: make(map[domain.ParticipantID]map[string]*Relay)}
}

// Start creates a relay for track and starts its read loop. A relay for the
// same participant and track id is replaced.
func (m *Manager) Start(ctx context.Context, id domain.ParticipantID, track core.RemoteTrack) *Relay {
	logger := log.With().
		Str("module", "app.relay").
		Str("participant", id.String()).
		Str("track", track.ID()).
		Str("kind", track.Kind().String()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	r := newRelay(track, id, cancel)

	m.mu.Lock()
	byTrack, ok := m.relays[id]
	if !ok {
		byTrack = make(map[string]*Relay)
		m.relays[id] = byTrack
	}
	if old, ok := byTrack[track.ID()]; ok {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		old.cancel()
	}
	byTrack[track.ID()] = r
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go r.loop(relayCtx, &logger)
	return r
}

// Stream returns the remote stream handle for a participant, or nil if no
// track has arrived yet.
func (m *Manager) Stream(id domain.ParticipantID) *RemoteStream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byTrack := m.relays[id]
	if len(byTrack) == 0 {
		return nil
	}
	rs := &RemoteStream{participant: id, manager: m}
	for _, r := range byTrack {
		if rs.id == "" || r.Src.StreamID() < rs.id {
			rs.id = r.Src.StreamID()
		}
	}
	return rs
}

// AddSink attaches s to every track of kind from participant id.
func (m *Manager) AddSink(id domain.ParticipantID, kind webrtc.RTPCodecType, key string, s Sink) bool {
	added := false
	for _, r := range m.participantRelays(id) {
		if r.Src.Kind() == kind {
			r.addSink(key, s)
			added = true
		}
	}
	return added
}

func (m *Manager) RemoveSink(id domain.ParticipantID, key string) {
	for _, r := range m.participantRelays(id) {
		r.removeSink(key)
	}
}

// SetMuted stops forwarding kind packets of a participant while keeping
// the read loop and counters running.
func (m *Manager) SetMuted(id domain.ParticipantID, kind webrtc.RTPCodecType, muted bool) {
	for _, r := range m.participantRelays(id) {
		if r.Src.Kind() == kind {
			r.muted.Store(muted)
		}
	}
}

// Stop stops every relay of a participant.
func (m *Manager) Stop(id domain.ParticipantID) {
	m.mu.Lock()
	byTrack := m.relays[id]
	delete(m.relays, id)
	m.mu.Unlock()
	for _, r := range byTrack {
		r.markAllDelete()
		r.cancel()
	}
	if len(byTrack) > 0 {
		log.Info().Str("module", "app.relay").Str("participant", id.String()).Msg("relays stopped")
	}
}

func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]domain.ParticipantID, 0, len(m.relays))
	for id := range m.relays {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.Stop(id)
	}
}

func (m *Manager) Has(id domain.ParticipantID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays[id]) > 0
}

// Stats returns counters for every running relay, ordered by participant
// and track id.
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	all := make([]*Relay, 0, len(m.relays))
	for _, byTrack := range m.relays {
		for _, r := range byTrack {
			all = append(all, r)
		}
	}
	m.mu.RUnlock()

	out := make([]Stats, 0, len(all))
	for _, r := range all {
		out = append(out, r.Stats())
	}
	slices.SortFunc(out, func(a, b Stats) int {
		return cmp.Or(cmp.Compare(a.Participant, b.Participant), cmp.Compare(a.TrackID, b.TrackID))
	})
	return out
}

func (m *Manager) participantRelays(id domain.ParticipantID) []*Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byTrack := m.relays[id]
	out := make([]*Relay, 0, len(byTrack))
	for _, r := range byTrack {
		out = append(out, r)
	}
	return out
}

// RemoteStream is the handle stored on a participant once media arrives.
type RemoteStream struct {
	id          string
	participant domain.ParticipantID
	manager     *Manager
}

func (s *RemoteStream) ID() string { return s.id }

func (s *RemoteStream) Participant() domain.ParticipantID { return s.participant }

// Stats returns the counters of the tracks backing this stream.
func (s *RemoteStream) Stats() []Stats {
	var out []Stats
	for _, r := range s.manager.participantRelays(s.participant) {
		out = append(out, r.Stats())
	}
	return out
}
