package signaling

import (
	"testing"

	"github.com/dkeye/VoiceClient/internal/app/store"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/core/corefake"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// recorder implements Handler by remembering event names.
type recorder struct {
	events []string
	last   any
}

func (r *recorder) add(ev string, m any) { r.events = append(r.events, ev); r.last = m }

func (r *recorder) HandleIncomingCall(m protocol.IncomingCall) { r.add(m.Event(), m) }
func (r *recorder) HandleCallAccepted(m protocol.CallAccepted) { r.add(m.Event(), m) }
func (r *recorder) HandleParticipantJoined(m protocol.ParticipantJoined) {
	r.add(m.Event(), m)
}
func (r *recorder) HandleParticipantLeft(m protocol.ParticipantLeft) { r.add(m.Event(), m) }
func (r *recorder) HandleParticipantSync(m protocol.ParticipantSync) { r.add(m.Event(), m) }
func (r *recorder) HandleOffer(m protocol.Offer)                     { r.add(m.Event(), m) }
func (r *recorder) HandleAnswer(m protocol.Answer)                   { r.add(m.Event(), m) }
func (r *recorder) HandleICECandidate(m protocol.ICECandidate)       { r.add(m.Event(), m) }
func (r *recorder) HandleParticipantAudio(m protocol.MediaToggle)    { r.add("audio", m) }
func (r *recorder) HandleParticipantVideo(m protocol.MediaToggle)    { r.add("video", m) }
func (r *recorder) HandleParticipantScreenShare(_ protocol.ScreenShare, sharing bool) {
	r.add("screen", sharing)
}
func (r *recorder) HandleForceStopScreenShare(m protocol.ForceStopScreenShare) {
	r.add(m.Event(), m)
}
func (r *recorder) HandleCallEnded(m protocol.CallEnded) { r.add(m.Event(), m) }

func setup(t *testing.T) (*Bridge, *corefake.Signal, *store.Store, *recorder) {
	t.Helper()
	sig := corefake.NewSignal("sock-me")
	st := store.New()
	b := New(sig, st)
	rec := &recorder{}
	b.Bind(rec)
	return b, sig, st, rec
}

func inCall(st *store.Store) {
	st.Mutate(func(s *store.Session) {
		s.CallID = "c1"
		s.Status = domain.StatusConnected
		s.CurrentUserID = "1"
		s.ResetParticipants(
			domain.Participant{UserID: "1", Name: "Me", SignalingAddress: "sock-me", Avatar: "me.png"},
			domain.Participant{UserID: "2", Name: "Bob", SignalingAddress: "sock-2"},
		)
	})
}

func TestIncomingCallAlwaysDelivered(t *testing.T) {
	_, sig, _, rec := setup(t)
	sig.Inject(core.Frame(`{"event":"incoming-call","data":{"callId":"c9","chatId":"x","chatType":"direct","callType":"audio","caller":{"userId":"2","name":"Bob"}}}`))
	assert.Equal(t, []string{protocol.EventIncomingCall}, rec.events)
}

func TestEventsForOtherCallsAreDropped(t *testing.T) {
	_, sig, st, rec := setup(t)
	sig.Inject(core.Frame(`{"event":"call-accepted","data":{"callId":"c1"}}`))
	assert.Empty(t, rec.events, "idle session drops call events")

	inCall(st)
	sig.Inject(core.Frame(`{"event":"call-accepted","data":{"callId":"other"}}`))
	assert.Empty(t, rec.events)

	sig.Inject(core.Frame(`{"event":"call-accepted","data":{"callId":"c1"}}`))
	assert.Equal(t, []string{protocol.EventCallAccepted}, rec.events)
}

func TestEchoFromSelfIsDropped(t *testing.T) {
	_, sig, st, rec := setup(t)
	inCall(st)
	sig.Inject(core.Frame(`{"event":"participant-toggle-audio","data":{"callId":"c1","userId":1,"enabled":false}}`))
	assert.Empty(t, rec.events)

	sig.Inject(core.Frame(`{"event":"participant-toggle-audio","data":{"callId":"c1","userId":2,"enabled":false}}`))
	assert.Equal(t, []string{"audio"}, rec.events)
}

func TestWaitingCallEndIsDelivered(t *testing.T) {
	_, sig, st, rec := setup(t)
	inCall(st)
	st.Mutate(func(s *store.Session) { s.Waiting = &domain.WaitingCall{CallID: "w1"} })

	sig.Inject(core.Frame(`{"event":"call-ended","data":{"callId":"w1"}}`))
	require.Equal(t, []string{protocol.EventCallEnded}, rec.events)
	assert.Equal(t, "w1", rec.last.(protocol.CallEnded).CallID)
}

func TestInvalidFramesAreDropped(t *testing.T) {
	_, sig, st, rec := setup(t)
	inCall(st)
	sig.Inject(core.Frame(`{"event":"offer","data":{"callId":"c1","from":"2"}}`))
	sig.Inject(core.Frame(`garbage`))
	sig.Inject(core.Frame(`{"event":"unknown-thing","data":{}}`))
	assert.Empty(t, rec.events)
}

func TestRoutesEveryCallEvent(t *testing.T) {
	_, sig, st, rec := setup(t)
	inCall(st)
	frames := []string{
		`{"event":"participant-joined","data":{"callId":"c1","userId":"3","socketId":"s3","name":"Cy"}}`,
		`{"event":"participant-left","data":{"callId":"c1","userId":"3"}}`,
		`{"event":"participant-sync","data":{"callId":"c1","participants":[]}}`,
		`{"event":"offer","data":{"callId":"c1","from":"2","socketId":"sock-2","sdp":"v=0"}}`,
		`{"event":"answer","data":{"callId":"c1","from":"2","socketId":"sock-2","sdp":"v=0"}}`,
		`{"event":"ice-candidate","data":{"callId":"c1","from":"2","candidate":{"candidate":"x"}}}`,
		`{"event":"participant-toggle-video","data":{"callId":"c1","userId":"2","enabled":true}}`,
		`{"event":"participant-screen-share-started","data":{"callId":"c1","userId":"2"}}`,
		`{"event":"participant-screen-share-stopped","data":{"callId":"c1","userId":"2"}}`,
		`{"event":"force-stop-screen-share","data":{"callId":"c1","byUserId":"2"}}`,
		`{"event":"call-ended","data":{"callId":"c1"}}`,
	}
	for _, f := range frames {
		sig.Inject(core.Frame(f))
	}
	assert.Equal(t, []string{
		protocol.EventParticipantJoined,
		protocol.EventParticipantLeft,
		protocol.EventParticipantSync,
		protocol.EventOffer,
		protocol.EventAnswer,
		protocol.EventICECandidate,
		"video",
		"screen",
		"screen",
		protocol.EventForceStopScreenShare,
		protocol.EventCallEnded,
	}, rec.events)
}

func TestOutboundMessages(t *testing.T) {
	b, sig, st, _ := setup(t)

	assert.ErrorIs(t, b.SendOffer("2", webrtc.SessionDescription{SDP: "v=0"}), domain.ErrNotInCall)
	assert.ErrorIs(t, b.ToggleAudio(false), domain.ErrNotInCall)

	inCall(st)
	require.NoError(t, b.JoinCall("c1", domain.User{ID: "1", Name: "Me"}, true, false))
	require.NoError(t, b.SendOffer("2", webrtc.SessionDescription{SDP: "v=0"}))
	require.NoError(t, b.SendAnswer("2", webrtc.SessionDescription{SDP: "v=1"}))
	require.NoError(t, b.SendCandidate("2", webrtc.ICECandidateInit{Candidate: "cand"}))
	require.NoError(t, b.ToggleVideo(true))
	require.NoError(t, b.StartScreenShare())
	require.NoError(t, b.StopScreenShare())

	join := sig.SentEvents(protocol.EventJoinCall)
	require.Len(t, join, 1)
	assert.False(t, gjson.GetBytes(join[0], "data.isVideoEnabled").Bool())

	offer := sig.SentEvents(protocol.EventOffer)
	require.Len(t, offer, 1)
	assert.Equal(t, "sock-2", gjson.GetBytes(offer[0], "data.to").String())
	assert.Equal(t, "2", gjson.GetBytes(offer[0], "data.targetUserId").String())
	assert.Equal(t, "1", gjson.GetBytes(offer[0], "data.from").String())
	assert.Equal(t, "Me", gjson.GetBytes(offer[0], "data.name").String())

	cand := sig.SentEvents(protocol.EventICECandidate)
	require.Len(t, cand, 1)
	assert.Equal(t, "cand", gjson.GetBytes(cand[0], "data.candidate.candidate").String())

	assert.Len(t, sig.SentEvents(protocol.EventAnswer), 1)
	assert.Len(t, sig.SentEvents(protocol.EventToggleVideo), 1)
	assert.Len(t, sig.SentEvents(protocol.EventStartScreenShare), 1)
	assert.Len(t, sig.SentEvents(protocol.EventStopScreenShare), 1)
}

func TestSendFailureIsReported(t *testing.T) {
	b, sig, st, _ := setup(t)
	inCall(st)
	sig.SendErr = assert.AnError
	assert.ErrorIs(t, b.ToggleAudio(true), assert.AnError)
}
