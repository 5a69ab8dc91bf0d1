// Package store holds the authoritative call session and fans snapshots out
// to observers.
package store

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/rs/zerolog/log"
)

type (
	StateFunc        func(domain.CallState)
	ParticipantsFunc func(domain.Participants)
)

type subscription[F any] struct {
	fn     F
	active atomic.Bool
}

// Store owns one call session. All methods are safe for concurrent use;
// observers are invoked after the store lock is released, in subscription
// order, on the goroutine that performed the mutation.
type Store struct {
	mu     sync.Mutex
	state  domain.CallState
	local  core.MediaStream
	screen core.MediaStream

	subMu      sync.Mutex
	stateSubs  []*subscription[StateFunc]
	rosterSubs []*subscription[ParticipantsFunc]
}

func New() *Store {
	return &Store{state: domain.IdleState()}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.CallState {
	out := s.state
	out.Participants = slices.Clone(s.state.Participants)
	if out.Participants == nil {
		out.Participants = domain.Participants{}
	}
	if s.state.Waiting != nil {
		w := *s.state.Waiting
		out.Waiting = &w
	}
	return out
}

// LocalMedia returns the held camera/microphone stream, if any.
func (s *Store) LocalMedia() core.MediaStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// ScreenMedia returns the held screen capture stream, if any.
func (s *Store) ScreenMedia() core.MediaStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

// Mutate applies fn to the session under the store lock and then notifies
// observers. Participant observers are notified only when fn touched the roster.
func (s *Store) Mutate(fn func(*Session)) {
	s.mu.Lock()
	sess := &Session{CallState: &s.state, store: s}
	fn(sess)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap, sess.rosterChanged)
}

// Reset stops every held stream and returns the session to the idle template.
func (s *Store) Reset() {
	s.Mutate(func(sess *Session) {
		sess.ReleaseStreams()
		*sess.CallState = domain.IdleState()
		sess.rosterChanged = true
	})
	log.Debug().Str("module", "app.store").Msg("session reset")
}

// ReleaseStreams stops and forgets local and screen streams.
func (s *Store) ReleaseStreams() {
	s.Mutate(func(sess *Session) { sess.ReleaseStreams() })
}

// Touch re-broadcasts the current state without changing it.
func (s *Store) Touch() {
	snap := s.Snapshot()
	s.notify(snap, false)
}

// OnStateChange registers fn for whole-session snapshots. The returned func
// unsubscribes and may be called any number of times.
func (s *Store) OnStateChange(fn StateFunc) (unsubscribe func()) {
	sub := &subscription[StateFunc]{fn: fn}
	sub.active.Store(true)
	s.subMu.Lock()
	s.stateSubs = append(s.stateSubs, sub)
	s.subMu.Unlock()
	return func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		s.subMu.Lock()
		s.stateSubs = slices.DeleteFunc(s.stateSubs, func(x *subscription[StateFunc]) bool { return x == sub })
		s.subMu.Unlock()
	}
}

// OnParticipantUpdate registers fn for roster snapshots.
func (s *Store) OnParticipantUpdate(fn ParticipantsFunc) (unsubscribe func()) {
	sub := &subscription[ParticipantsFunc]{fn: fn}
	sub.active.Store(true)
	s.subMu.Lock()
	s.rosterSubs = append(s.rosterSubs, sub)
	s.subMu.Unlock()
	return func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		s.subMu.Lock()
		s.rosterSubs = slices.DeleteFunc(s.rosterSubs, func(x *subscription[ParticipantsFunc]) bool { return x == sub })
		s.subMu.Unlock()
	}
}

func (s *Store) notify(snap domain.CallState, roster bool) {
	s.subMu.Lock()
	stateSubs := slices.Clone(s.stateSubs)
	rosterSubs := slices.Clone(s.rosterSubs)
	s.subMu.Unlock()

	for _, sub := range stateSubs {
		if sub.active.Load() {
			sub.fn(copyState(snap))
		}
	}
	if !roster {
		return
	}
	for _, sub := range rosterSubs {
		if sub.active.Load() {
			sub.fn(slices.Clone(snap.Participants))
		}
	}
}

// copyState gives each observer its own participant slice.
func copyState(st domain.CallState) domain.CallState {
	st.Participants = slices.Clone(st.Participants)
	if st.Waiting != nil {
		w := *st.Waiting
		st.Waiting = &w
	}
	return st
}
