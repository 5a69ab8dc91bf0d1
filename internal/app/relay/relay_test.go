package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceClient/internal/core/corefake"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	seq  []uint16
	fail bool
}

func (s *recordingSink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink broken")
	}
	s.seq = append(s.seq, p.SequenceNumber)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seq)
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: []byte{1, 2, 3}}
}

func TestRelayCountsAndForwards(t *testing.T) {
	m := NewManager()
	track := corefake.NewRemoteTrack("a1", "stream-1", webrtc.RTPCodecTypeAudio, 1)
	r := m.Start(context.Background(), "7", track)

	sink := &recordingSink{}
	require.True(t, m.AddSink("7", webrtc.RTPCodecTypeAudio, "ui", sink))
	assert.False(t, m.AddSink("7", webrtc.RTPCodecTypeVideo, "ui", sink), "no video track yet")

	track.Push(packet(1))
	track.Push(packet(2))
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	st := r.Stats()
	assert.EqualValues(t, 2, st.Packets)
	assert.EqualValues(t, 6, st.Bytes)
	assert.Equal(t, 1, st.Sinks)
	assert.False(t, st.LastPacket.IsZero())

	rs := m.Stream("7")
	require.NotNil(t, rs)
	assert.Equal(t, "stream-1", rs.ID())
	assert.Len(t, rs.Stats(), 1)

	track.Close()
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("relay loop did not exit")
	}
}

func TestMutedRelayKeepsCountingButStopsForwarding(t *testing.T) {
	m := NewManager()
	track := corefake.NewRemoteTrack("v1", "s", webrtc.RTPCodecTypeVideo, 2)
	r := m.Start(context.Background(), "7", track)
	defer track.Close()

	sink := &recordingSink{}
	m.AddSink("7", webrtc.RTPCodecTypeVideo, "ui", sink)
	m.SetMuted("7", webrtc.RTPCodecTypeVideo, true)

	track.Push(packet(1))
	require.Eventually(t, func() bool { return r.Stats().Packets == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, sink.count())
	assert.True(t, r.Stats().Muted)
}

func TestFailingSinkIsDropped(t *testing.T) {
	m := NewManager()
	track := corefake.NewRemoteTrack("a1", "s", webrtc.RTPCodecTypeAudio, 1)
	r := m.Start(context.Background(), "7", track)
	defer track.Close()

	m.AddSink("7", webrtc.RTPCodecTypeAudio, "bad", &recordingSink{fail: true})
	track.Push(packet(1))
	require.Eventually(t, func() bool { return r.Stats().Sinks == 0 }, time.Second, 5*time.Millisecond)
}

func TestStopRemovesParticipant(t *testing.T) {
	m := NewManager()
	a := corefake.NewRemoteTrack("a1", "s", webrtc.RTPCodecTypeAudio, 1)
	b := corefake.NewRemoteTrack("v1", "s", webrtc.RTPCodecTypeVideo, 2)
	c := corefake.NewRemoteTrack("a2", "t", webrtc.RTPCodecTypeAudio, 3)
	defer a.Close()
	defer b.Close()
	defer c.Close()
	m.Start(context.Background(), "7", a)
	m.Start(context.Background(), "7", b)
	m.Start(context.Background(), "8", c)

	stats := m.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, "a1", stats[0].TrackID)
	assert.Equal(t, "v1", stats[1].TrackID)
	assert.Equal(t, "a2", stats[2].TrackID)

	m.Stop("7")
	assert.False(t, m.Has("7"))
	assert.True(t, m.Has("8"))
	assert.Nil(t, m.Stream("7"))

	m.StopAll()
	assert.Empty(t, m.Stats())
}

func TestRestartReplacesRelayForSameTrack(t *testing.T) {
	m := NewManager()
	first := corefake.NewRemoteTrack("a1", "s", webrtc.RTPCodecTypeAudio, 1)
	second := corefake.NewRemoteTrack("a1", "s", webrtc.RTPCodecTypeAudio, 1)
	defer first.Close()
	defer second.Close()

	m.Start(context.Background(), "7", first)
	m.Start(context.Background(), "7", second)
	assert.Len(t, m.Stats(), 1)
}
