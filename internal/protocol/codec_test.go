package protocol

import (
	"testing"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestDecodeIncomingCall(t *testing.T) {
	frame := []byte(`{"event":"incoming-call","data":{"callId":"c1","chatId":"chat","chatName":"Team","chatType":"group","callType":"video","caller":{"userId":17,"name":"Ann"},"socketId":"s-17"}}`)
	msg, err := Decode(frame)
	require.NoError(t, err)
	m, ok := msg.(*IncomingCall)
	require.True(t, ok)
	assert.Equal(t, "c1", m.CallID)
	assert.Equal(t, domain.ParticipantID("17"), m.Caller.UserID)
	assert.Equal(t, domain.CallVideo, m.CallType)
	assert.Equal(t, "s-17", m.SocketID)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrNoEvent)

	_, err = Decode([]byte(`{"event":"dance","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode([]byte(`{"event":"offer","data":{"callId":"c1","from":"2"}}`))
	assert.ErrorIs(t, err, ErrMissingSDP)

	_, err = Decode([]byte(`{"event":"incoming-call","data":{"callId":"c1","chatType":"group","callType":"fax","caller":{"userId":"1"}}}`))
	assert.ErrorIs(t, err, ErrBadEnum)

	_, err = Decode([]byte(`{"event":"call-ended","data":null}`))
	assert.ErrorIs(t, err, ErrMissingCallID)
}

func TestDecodeCandidateAndToggle(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"ice-candidate","data":{"callId":"c1","from":"2","candidate":{"candidate":"candidate:1 1 udp 1 1.2.3.4 5 typ host","sdpMid":"0"}}}`))
	require.NoError(t, err)
	c := msg.(*ICECandidate)
	require.NotNil(t, c.Candidate.SDPMid)
	assert.Equal(t, "0", *c.Candidate.SDPMid)

	msg, err = Decode([]byte(`{"event":"participant-toggle-video","data":{"callId":"c1","userId":"2","enabled":false}}`))
	require.NoError(t, err)
	v := msg.(*ParticipantToggleVideo)
	assert.False(t, v.Enabled)
	assert.Equal(t, domain.ParticipantID("2"), v.UserID)
}

func TestSyncRosterIsNormalized(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"participant-sync","data":{"callId":"c1","participants":[
		{"userId":1,"socketId":"a","name":"Ann","isAudioEnabled":true},
		{"userId":"1","socketId":"b","name":"Dup"},
		{"userId":2,"socketId":"c","name":""}]}}`))
	require.NoError(t, err)
	roster := msg.(*ParticipantSync).Roster()
	require.Len(t, roster, 1)
	assert.Equal(t, "a", roster[0].SignalingAddress)
	assert.True(t, roster[0].AudioEnabled)
}

func TestEncodeWrapsEnvelope(t *testing.T) {
	frame, err := Encode(OutboundOffer{
		Directed: Directed{CallID: "c1", To: "s-2", TargetUserID: "2", From: "1"},
		Name:     "Ann",
		SDP:      "v=0",
	})
	require.NoError(t, err)
	assert.Equal(t, EventOffer, PeekEvent(frame))
	assert.Equal(t, "s-2", gjson.GetBytes(frame, "data.to").String())
	assert.Equal(t, "2", gjson.GetBytes(frame, "data.targetUserId").String())
	assert.Equal(t, "v=0", gjson.GetBytes(frame, "data.sdp").String())

	_, err = Encode(OutboundAnswer{Directed: Directed{CallID: "c1", From: "1"}, SDP: "v=0"})
	assert.ErrorIs(t, err, ErrMissingTarget)

	_, err = Encode(ToggleAudio{MediaToggle{UserID: "1"}})
	assert.ErrorIs(t, err, ErrMissingCallID)
}

func TestDescriptionTypes(t *testing.T) {
	o := Offer{Description{SDP: "x"}}
	a := Answer{Description{SDP: "y"}}
	assert.Equal(t, webrtc.SDPTypeOffer, o.SessionDescription().Type)
	assert.Equal(t, webrtc.SDPTypeAnswer, a.SessionDescription().Type)
}
