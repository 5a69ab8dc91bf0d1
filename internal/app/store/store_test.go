package store

import (
	"sync"
	"testing"

	"github.com/dkeye/VoiceClient/internal/core/corefake"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Mutate(func(sess *Session) {
		sess.Status = domain.StatusConnected
		sess.Put(domain.Participant{UserID: "1", Name: "Ann"})
		sess.Waiting = &domain.WaitingCall{CallID: "w"}
	})

	snap := s.Snapshot()
	snap.Participants[0].Name = "changed"
	snap.Waiting.CallID = "changed"

	again := s.Snapshot()
	assert.Equal(t, "Ann", again.Participants[0].Name)
	assert.Equal(t, "w", again.Waiting.CallID)
}

func TestObserversGetEveryMutationInOrder(t *testing.T) {
	s := New()
	var got []domain.CallStatus
	var rosters []int
	s.OnStateChange(func(st domain.CallState) { got = append(got, st.Status) })
	s.OnParticipantUpdate(func(ps domain.Participants) { rosters = append(rosters, len(ps)) })

	s.Mutate(func(sess *Session) { sess.Status = domain.StatusCalling })
	s.Mutate(func(sess *Session) { sess.Put(domain.Participant{UserID: "1", Name: "Ann"}) })
	s.Reset()

	assert.Equal(t, []domain.CallStatus{domain.StatusCalling, domain.StatusCalling, domain.StatusIdle}, got)
	assert.Equal(t, []int{1, 0}, rosters, "roster observers only see roster changes")
}

func TestUnsubscribeIsIdempotentAndTakesEffectMidRound(t *testing.T) {
	s := New()
	var second int
	var off2 func()
	off1 := s.OnStateChange(func(domain.CallState) { off2() })
	off2 = s.OnStateChange(func(domain.CallState) { second++ })

	s.Touch()
	assert.Zero(t, second, "removed during the round, so not called")

	off1()
	off1()
	off2()
	s.Touch()
	assert.Zero(t, second)
}

func TestMergeKeepsStream(t *testing.T) {
	s := New()
	stream := corefake.NewStream()
	s.Mutate(func(sess *Session) {
		sess.Put(domain.Participant{UserID: "1", Name: domain.UnknownParticipantName, Stream: stream})
	})
	s.Mutate(func(sess *Session) {
		sess.Merge(domain.Participant{UserID: "1", Name: "Ann", AudioEnabled: true, SignalingAddress: "s1"})
		sess.Merge(domain.Participant{UserID: "2", Name: "Bob"})
	})

	st := s.Snapshot()
	require.Len(t, st.Participants, 2)
	p, _ := st.Participants.Get("1")
	assert.Equal(t, "Ann", p.Name)
	assert.True(t, p.AudioEnabled)
	assert.Same(t, stream, p.Stream)
}

func TestPutReplacesInPlaceAndRemove(t *testing.T) {
	s := New()
	s.Mutate(func(sess *Session) {
		sess.Put(domain.Participant{UserID: "1", Name: "Ann"})
		sess.Put(domain.Participant{UserID: "2", Name: "Bob"})
		sess.Put(domain.Participant{UserID: "1", Name: "Ann B"})
	})
	assert.Equal(t, []domain.ParticipantID{"1", "2"}, s.Snapshot().Participants.IDs())

	s.Mutate(func(sess *Session) {
		assert.True(t, sess.Remove("1"))
		assert.False(t, sess.Remove("9"))
	})
	assert.Equal(t, []domain.ParticipantID{"2"}, s.Snapshot().Participants.IDs())
}

func TestStreamsAreStoppedOnReplaceAndReset(t *testing.T) {
	s := New()
	first := corefake.NewStream(corefake.NewTrack(webrtc.RTPCodecTypeAudio))
	second := corefake.NewStream(corefake.NewTrack(webrtc.RTPCodecTypeAudio))
	screen := corefake.NewStream(corefake.NewTrack(webrtc.RTPCodecTypeVideo))

	s.Mutate(func(sess *Session) { sess.SetLocalStream(first) })
	s.Mutate(func(sess *Session) { sess.SetLocalStream(second); sess.SetScreenStream(screen) })
	assert.True(t, first.Stopped())
	assert.False(t, second.Stopped())
	assert.Equal(t, second, s.LocalMedia())

	s.Reset()
	assert.True(t, second.Stopped())
	assert.True(t, screen.Stopped())
	assert.Nil(t, s.LocalMedia())
	assert.Nil(t, s.ScreenMedia())

	idle := domain.IdleState()
	st := s.Snapshot()
	assert.Equal(t, idle.Status, st.Status)
	assert.Nil(t, st.LocalStream)
	assert.Empty(t, st.Participants)
}

func TestConcurrentMutations(t *testing.T) {
	s := New()
	var mu sync.Mutex
	seen := 0
	s.OnStateChange(func(domain.CallState) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Mutate(func(sess *Session) {
				sess.Put(domain.Participant{UserID: domain.CanonicalID(i), Name: "p"})
			})
		}()
	}
	wg.Wait()
	assert.Len(t, s.Snapshot().Participants, 50)
	assert.Equal(t, 50, seen)
}
