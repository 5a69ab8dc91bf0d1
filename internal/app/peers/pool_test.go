package peers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/core/corefake"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(s string) webrtc.ICECandidateInit { return webrtc.ICECandidateInit{Candidate: s} }

func TestEnsureCreatesOnceWithTracks(t *testing.T) {
	f := &corefake.PeerFactory{}
	p := New(f, Hooks{})
	mic := corefake.NewTrack(webrtc.RTPCodecTypeAudio)
	cam := corefake.NewTrack(webrtc.RTPCodecTypeVideo)

	pc, created, err := p.Ensure("2", []core.MediaTrack{mic, cam, nil})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := p.Ensure("2", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, pc, again)

	fp := f.Peer("2")
	assert.Len(t, fp.Tracks(), 2)
	assert.Equal(t, cam.ID(), fp.VideoTrackID())
	assert.Equal(t, 1, p.Len())
}

func TestEnsureReportsFactoryError(t *testing.T) {
	f := &corefake.PeerFactory{Err: errors.New("no api")}
	_, _, err := New(f, Hooks{}).Ensure("2", nil)
	assert.Error(t, err)
}

func TestCandidatesQueueUntilRemoteDescription(t *testing.T) {
	f := &corefake.PeerFactory{}
	p := New(f, Hooks{})

	// Before the connection exists.
	require.NoError(t, p.AddCandidate("2", candidate("a")))
	_, _, err := p.Ensure("2", nil)
	require.NoError(t, err)
	// Connection exists, remote description not applied yet.
	require.NoError(t, p.AddCandidate("2", candidate("b")))
	assert.Equal(t, 2, p.Pending("2"))
	assert.Empty(t, f.Peer("2").Candidates())

	_, err = p.ApplyOffer("2", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"})
	require.NoError(t, err)
	assert.Zero(t, p.Pending("2"))
	assert.Len(t, f.Peer("2").Candidates(), 2)

	require.NoError(t, p.AddCandidate("2", candidate("c")))
	got := f.Peer("2").Candidates()
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].Candidate)
}

func TestCandidateQueueIsBounded(t *testing.T) {
	p := New(&corefake.PeerFactory{}, Hooks{})

	for i := range MaxPendingCandidates {
		require.NoError(t, p.AddCandidate("9", candidate(fmt.Sprint(i))))
	}
	err := p.AddCandidate("9", candidate("overflow"))
	assert.ErrorIs(t, err, ErrCandidateFlood)
	assert.Equal(t, MaxPendingCandidates, p.Pending("9"))

	require.NoError(t, p.AddCandidate("3", candidate("a")), "other participants keep their own queue")
}

func TestAnswerFlushesQueue(t *testing.T) {
	f := &corefake.PeerFactory{}
	p := New(f, Hooks{})
	_, _, _ = p.Ensure("2", nil)
	_, err := p.CreateOffer("2")
	require.NoError(t, err)
	_ = p.AddCandidate("2", candidate("a"))

	require.NoError(t, p.ApplyAnswer("2", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "y"}))
	assert.Len(t, f.Peer("2").Candidates(), 1)
}

func TestOperationsOnUnknownPeer(t *testing.T) {
	p := New(&corefake.PeerFactory{}, Hooks{})
	_, err := p.CreateOffer("9")
	assert.ErrorIs(t, err, ErrNoPeer)
	_, err = p.ApplyOffer("9", webrtc.SessionDescription{})
	assert.ErrorIs(t, err, ErrNoPeer)
	assert.ErrorIs(t, p.ApplyAnswer("9", webrtc.SessionDescription{}), ErrNoPeer)
	assert.False(t, p.Close("9"))
}

func TestCloseDropsQueueAndConnection(t *testing.T) {
	f := &corefake.PeerFactory{}
	p := New(f, Hooks{})
	_, _, _ = p.Ensure("2", nil)
	_, _, _ = p.Ensure("3", nil)
	_ = p.AddCandidate("2", candidate("a"))

	assert.True(t, p.Close("2"))
	assert.True(t, f.Peer("2").IsClosed())
	assert.Zero(t, p.Pending("2"))
	assert.Equal(t, []domain.ParticipantID{"3"}, p.IDs())

	p.CloseAll()
	assert.True(t, f.Peer("3").IsClosed())
	assert.Zero(t, p.Len())
}

func TestHooksCarryParticipant(t *testing.T) {
	f := &corefake.PeerFactory{}
	var mu sync.Mutex
	var cands []domain.ParticipantID
	var tracks []domain.ParticipantID
	p := New(f, Hooks{
		OnCandidate: func(id domain.ParticipantID, _ webrtc.ICECandidateInit) {
			mu.Lock()
			cands = append(cands, id)
			mu.Unlock()
		},
		OnTrack: func(id domain.ParticipantID, _ core.RemoteTrack) {
			mu.Lock()
			tracks = append(tracks, id)
			mu.Unlock()
		},
	})
	_, _, _ = p.Ensure("2", nil)
	fp := f.Peer("2")

	fp.EmitCandidate(candidate("x"))
	video := corefake.NewRemoteTrack("v", "s", webrtc.RTPCodecTypeVideo, 42)
	defer video.Close()
	fp.EmitTrack(video)

	assert.Equal(t, []domain.ParticipantID{"2"}, cands)
	assert.Equal(t, []domain.ParticipantID{"2"}, tracks)
	assert.Equal(t, []webrtc.SSRC{42}, fp.KeyFrames(), "video tracks request a key frame")
}

func TestReplaceVideoTrackIsolatesFailures(t *testing.T) {
	f := &corefake.PeerFactory{}
	p := New(f, Hooks{})
	for _, id := range []domain.ParticipantID{"2", "3", "4"} {
		_, _, err := p.Ensure(id, nil)
		require.NoError(t, err)
	}
	f.Peer("3").ReplaceErr = errors.New("sender gone")

	var mu sync.Mutex
	sent := map[domain.ParticipantID]string{}
	screen := corefake.NewTrack(webrtc.RTPCodecTypeVideo)
	err := p.ReplaceVideoTrack(context.Background(), screen, func(_ context.Context, id domain.ParticipantID, offer webrtc.SessionDescription) error {
		mu.Lock()
		sent[id] = offer.SDP
		mu.Unlock()
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3: replace")

	assert.Len(t, sent, 2)
	ids := p.VideoTrackIDs()
	assert.Equal(t, screen.ID(), ids["2"])
	assert.Equal(t, "", ids["3"])
	assert.Equal(t, screen.ID(), ids["4"])

	f.Peer("3").ReplaceErr = nil
	require.NoError(t, p.ReplaceVideoTrack(context.Background(), nil, nil))
	for _, fp := range f.All() {
		assert.Zero(t, fp.VideoTracks())
	}
}
