package store

import (
	"slices"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

// Session is the mutable view handed to Store.Mutate. Scalar fields are
// edited through the embedded CallState; the roster and the media streams
// must go through the methods so observers and device ownership stay right.
type Session struct {
	*domain.CallState
	store         *Store
	rosterChanged bool
}

func (s *Session) Participant(id domain.ParticipantID) (domain.Participant, bool) {
	return s.Participants.Get(domain.CanonicalID(id))
}

func (s *Session) HasParticipant(id domain.ParticipantID) bool {
	_, ok := s.Participant(id)
	return ok
}

// Put inserts p or replaces the entry with the same id in place.
func (s *Session) Put(p domain.Participant) {
	p.UserID = domain.CanonicalID(p.UserID)
	s.rosterChanged = true
	if i := s.index(p.UserID); i >= 0 {
		s.Participants[i] = p
	} else {
		s.Participants = append(s.Participants, p)
	}
	s.Participants = s.Participants.Normalize()
}

// Update edits an existing participant. It reports whether one was found.
func (s *Session) Update(id domain.ParticipantID, fn func(*domain.Participant)) bool {
	i := s.index(domain.CanonicalID(id))
	if i < 0 {
		return false
	}
	fn(&s.Participants[i])
	s.rosterChanged = true
	s.Participants = s.Participants.Normalize()
	return true
}

// Merge folds metadata and flags from p into an existing entry, keeping its
// stream and join time, or inserts p when unknown.
func (s *Session) Merge(p domain.Participant) {
	p.UserID = domain.CanonicalID(p.UserID)
	if s.Update(p.UserID, func(cur *domain.Participant) {
		cur.MergeMeta(p)
		cur.VideoEnabled = p.VideoEnabled
		cur.AudioEnabled = p.AudioEnabled
		cur.ScreenSharing = p.ScreenSharing
	}) {
		return
	}
	s.Put(p)
}

func (s *Session) Remove(id domain.ParticipantID) bool {
	i := s.index(domain.CanonicalID(id))
	if i < 0 {
		return false
	}
	s.Participants = slices.Delete(s.Participants, i, i+1)
	s.rosterChanged = true
	return true
}

// ResetParticipants replaces the roster with ps.
func (s *Session) ResetParticipants(ps ...domain.Participant) {
	s.Participants = domain.Participants(slices.Clone(ps)).Normalize()
	s.rosterChanged = true
}

func (s *Session) index(id domain.ParticipantID) int {
	return slices.IndexFunc(s.Participants, func(p domain.Participant) bool { return p.UserID == id })
}

// SetLocalStream stores ms as the local stream, stopping a different
// previously held one first.
func (s *Session) SetLocalStream(ms core.MediaStream) {
	if old := s.store.local; old != nil && old != ms {
		old.Stop()
	}
	s.store.local = ms
	s.LocalStream = nil
	if ms != nil {
		s.LocalStream = ms
	}
}

// SetScreenStream is SetLocalStream for the screen capture.
func (s *Session) SetScreenStream(ms core.MediaStream) {
	if old := s.store.screen; old != nil && old != ms {
		old.Stop()
	}
	s.store.screen = ms
	s.ScreenStream = nil
	if ms != nil {
		s.ScreenStream = ms
	}
}

func (s *Session) LocalMedia() core.MediaStream  { return s.store.local }
func (s *Session) ScreenMedia() core.MediaStream { return s.store.screen }

// ReleaseStreams stops both streams.
func (s *Session) ReleaseStreams() {
	s.SetLocalStream(nil)
	s.SetScreenStream(nil)
}
